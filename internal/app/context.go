package app

import (
	"fmt"
	"os"

	"taskline/internal/config"
	"taskline/internal/db"
)

// ResolveConfig loads the workspace taskline.yml, falling back to compiled
// defaults when the file is absent. The returned config is always non-nil.
func ResolveConfig(workspace string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default("taskline")
	}
	return cfg, nil
}

// InitWorkspace creates the .taskline data directory and writes a default
// taskline.yml. An existing config is left alone unless force is set.
func InitWorkspace(workspace, name string, force bool) (string, error) {
	if name == "" {
		name = "taskline"
	}
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	cfgPath := config.Path(workspace)
	if _, err := os.Stat(cfgPath); err == nil && !force {
		return cfgPath, fmt.Errorf("config %s already exists; use --force to overwrite", cfgPath)
	}
	if err := os.WriteFile(cfgPath, []byte(config.GenerateDefault(name)), 0o644); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	return cfgPath, nil
}
