package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected default addr :8080, got %q", cfg.Server.Addr)
	}
	if cfg.Scheduler.CronExpression != "0 * * * *" {
		t.Errorf("expected hourly default schedule, got %q", cfg.Scheduler.CronExpression)
	}
	if cfg.Scheduler.Location().String() != "UTC" {
		t.Errorf("expected UTC default timezone, got %q", cfg.Scheduler.Location())
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulse.yaml")
	raw := []byte(`
server:
  addr: ":9090"
site:
  host: news.example
scheduler:
  cronExpression: "30 * * * *"
  timezone: Europe/Berlin
`)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(configPathEnv, path)

	cfg := Load()

	if cfg.Server.Addr != ":9090" {
		t.Errorf("expected addr from file, got %q", cfg.Server.Addr)
	}
	if cfg.Site.Host != "news.example" {
		t.Errorf("expected site host from file, got %q", cfg.Site.Host)
	}
	if cfg.Scheduler.Location().String() != "Europe/Berlin" {
		t.Errorf("expected Berlin timezone, got %q", cfg.Scheduler.Location())
	}
	// Unset file values keep their defaults.
	if cfg.Database.DSN == "" {
		t.Error("database DSN default was lost")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulse.yaml")
	if err := os.WriteFile(path, []byte("server:\n  addr: \":9090\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(configPathEnv, path)
	t.Setenv(listenAddrEnv, ":7070")
	t.Setenv(databaseDSNEnv, "postgres://override")

	cfg := Load()

	if cfg.Server.Addr != ":7070" {
		t.Errorf("environment should win over file, got %q", cfg.Server.Addr)
	}
	if cfg.Database.DSN != "postgres://override" {
		t.Errorf("expected DSN override, got %q", cfg.Database.DSN)
	}
}

func TestUnknownTimezoneFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulse.yaml")
	if err := os.WriteFile(path, []byte("scheduler:\n  timezone: Not/AZone\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(configPathEnv, path)

	cfg := Load()
	if cfg.Scheduler.Location().String() != "UTC" {
		t.Errorf("expected UTC fallback, got %q", cfg.Scheduler.Location())
	}
}
