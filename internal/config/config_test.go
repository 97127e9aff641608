package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"taskline/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.Default("demo")
	if cfg.Project.Name != "demo" {
		t.Fatalf("unexpected name %q", cfg.Project.Name)
	}
	if cfg.Server.Addr != ":8787" || cfg.Server.BasePath != "/api/v1" {
		t.Fatalf("unexpected server defaults %q %q", cfg.Server.Addr, cfg.Server.BasePath)
	}
	if cfg.Auth.Require || cfg.Auth.TokenTTLMinutes != 1440 {
		t.Fatalf("unexpected auth defaults %+v", cfg.Auth)
	}
	if cfg.Recurrence.DefaultCount != 10 {
		t.Fatalf("unexpected recurrence default %d", cfg.Recurrence.DefaultCount)
	}
	if cfg.Scheduler.Enabled || cfg.Scheduler.Cron != "0 0 6 * * *" {
		t.Fatalf("unexpected scheduler defaults %+v", cfg.Scheduler)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestGeneratedDefaultRoundTrips(t *testing.T) {
	cfg, err := config.FromYAML([]byte(config.GenerateDefault("demo")))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Project.Name != "demo" {
		t.Fatalf("unexpected name %q", cfg.Project.Name)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			"missing name",
			"project:\n  name: \"\"\n",
			"project.name",
		},
		{
			"auth without secret",
			"project:\n  name: demo\nauth:\n  require: true\n",
			"jwt_secret",
		},
		{
			"negative ttl",
			"project:\n  name: demo\nauth:\n  token_ttl_minutes: -5\n",
			"token_ttl_minutes",
		},
		{
			"negative default count",
			"project:\n  name: demo\nrecurrence:\n  default_count: -1\n",
			"default_count",
		},
		{
			"scheduler without cron",
			"project:\n  name: demo\nscheduler:\n  enabled: true\n",
			"scheduler.cron",
		},
		{
			"webhook without url",
			"project:\n  name: demo\nwebhooks:\n  - secret: s\n",
			"webhooks[0].url",
		},
		{
			"webhook negative timeout",
			"project:\n  name: demo\nwebhooks:\n  - url: http://localhost:1\n    timeout_seconds: -1\n",
			"timeout_seconds",
		},
	}
	for _, tc := range cases {
		_, err := config.FromYAML([]byte(tc.yaml))
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error mentioning %q, got %v", tc.name, tc.want, err)
		}
	}
}

func TestLoadAndLoadOptional(t *testing.T) {
	dir := t.TempDir()
	if _, err := config.Load(dir); err == nil || !strings.Contains(err.Error(), "tl init") {
		t.Fatalf("expected missing config hint, got %v", err)
	}
	cfg, err := config.LoadOptional(dir)
	if err != nil || cfg != nil {
		t.Fatalf("expected nil,nil for absent optional config, got %v %v", cfg, err)
	}

	path := filepath.Join(dir, "taskline.yml")
	if err := os.WriteFile(path, []byte(config.GenerateDefault("demo")), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = config.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Project.Name != "demo" {
		t.Fatalf("unexpected name %q", cfg.Project.Name)
	}
	cfg, err = config.FromFile(path)
	if err != nil || cfg.Project.Name != "demo" {
		t.Fatalf("FromFile: %v %+v", err, cfg)
	}
}

func TestWebhookEnabledPointer(t *testing.T) {
	raw := `project:
  name: demo
webhooks:
  - url: http://localhost:9999/hook
    events: [task.created]
    secret: topsecret
  - url: http://localhost:9999/off
    enabled: false
`
	cfg, err := config.FromYAML([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Webhooks) != 2 {
		t.Fatalf("expected 2 webhooks, got %d", len(cfg.Webhooks))
	}
	if cfg.Webhooks[0].Enabled != nil {
		t.Fatalf("unset enabled should stay nil")
	}
	if cfg.Webhooks[1].Enabled == nil || *cfg.Webhooks[1].Enabled {
		t.Fatalf("explicit false lost: %v", cfg.Webhooks[1].Enabled)
	}
	if cfg.Webhooks[0].Events[0] != "task.created" || cfg.Webhooks[0].Secret != "topsecret" {
		t.Fatalf("unexpected first hook %+v", cfg.Webhooks[0])
	}
}

func TestPath(t *testing.T) {
	if got := config.Path(""); got != "taskline.yml" {
		t.Fatalf("empty workspace path %q", got)
	}
	if got := config.Path("/tmp/ws"); got != "/tmp/ws/taskline.yml" {
		t.Fatalf("workspace path %q", got)
	}
}
