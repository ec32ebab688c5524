package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFirstRunCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("first-run load: %v", err)
	}
	if cfg.RefreshCron != "0 0 * * *" {
		t.Errorf("refresh = %q, want default", cfg.RefreshCron)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 600", perm)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.AuthURL = "https://auth.test"
	cfg.Holidays = HolidayConfig{Source: "api", Country: "CA"}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.AuthURL != "https://auth.test" {
		t.Errorf("auth_url = %q", loaded.AuthURL)
	}
	if loaded.Holidays.Source != "api" || loaded.Holidays.Country != "CA" {
		t.Errorf("holidays = %+v", loaded.Holidays)
	}
}

func TestNormalizeFillsPartialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("auth_url: https://auth.test\nholidays:\n  source: bogus\n"), 0o600); err != nil {
		t.Fatalf("write partial config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath == "" || cfg.LogLevel == "" {
		t.Errorf("defaults not filled: %+v", cfg)
	}
	if cfg.Holidays.Source != "none" {
		t.Errorf("holiday source = %q, want none for unknown value", cfg.Holidays.Source)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
