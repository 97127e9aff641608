package app_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"taskline/internal/app"
	"taskline/internal/config"
)

func TestInitWorkspace(t *testing.T) {
	dir := t.TempDir()
	path, err := app.InitWorkspace(dir, "sideproject", false)
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(dir, "taskline.yml") {
		t.Fatalf("config path %q", path)
	}
	if _, err := os.Stat(filepath.Join(dir, ".taskline")); err != nil {
		t.Fatalf("data dir missing: %v", err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Project.Name != "sideproject" {
		t.Fatalf("name %q", cfg.Project.Name)
	}

	// a second init must not clobber the existing config
	if _, err := app.InitWorkspace(dir, "other", false); err == nil || !strings.Contains(err.Error(), "--force") {
		t.Fatalf("expected overwrite guard, got %v", err)
	}
	if _, err := app.InitWorkspace(dir, "other", true); err != nil {
		t.Fatalf("forced init: %v", err)
	}
	cfg, err = config.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Project.Name != "other" {
		t.Fatalf("forced name %q", cfg.Project.Name)
	}
}

func TestInitWorkspaceDefaultName(t *testing.T) {
	dir := t.TempDir()
	if _, err := app.InitWorkspace(dir, "", false); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Project.Name != "taskline" {
		t.Fatalf("name %q", cfg.Project.Name)
	}
}

func TestResolveConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, err := app.ResolveConfig(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg == nil || cfg.Project.Name != "taskline" {
		t.Fatalf("fallback config %+v", cfg)
	}

	custom := "project:\n  name: custom\nrecurrence:\n  default_count: 3\n"
	if err := os.WriteFile(config.Path(dir), []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = app.ResolveConfig(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Project.Name != "custom" || cfg.Recurrence.DefaultCount != 3 {
		t.Fatalf("loaded config %+v", cfg)
	}

	if err := os.WriteFile(config.Path(dir), []byte("project: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := app.ResolveConfig(dir); err == nil {
		t.Fatal("expected error for invalid yaml")
	}
}
