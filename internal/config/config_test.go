package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OFFGRID_VAULT_DIR", t.TempDir())
	t.Setenv("OFFGRID_VAULT_FILE", "")
	t.Setenv("OFFGRID_LOG_LEVEL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("default log level = %q, want warn", cfg.LogLevel)
	}
	if cfg.VaultFile != "" {
		t.Errorf("default vault file = %q, want empty", cfg.VaultFile)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OFFGRID_VAULT_DIR", dir)
	t.Setenv("OFFGRID_VAULT_FILE", "")
	t.Setenv("OFFGRID_LOG_LEVEL", "")

	content := "vault_file: /data/work.vault\nlog_level: debug\n"
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.VaultFile != "/data/work.vault" {
		t.Errorf("vault file = %q", cfg.VaultFile)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q, want debug", cfg.LogLevel)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OFFGRID_VAULT_DIR", dir)
	t.Setenv("OFFGRID_VAULT_FILE", "/env/override.vault")
	t.Setenv("OFFGRID_LOG_LEVEL", "")

	content := "vault_file: /file/loses.vault\n"
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.VaultFile != "/env/override.vault" {
		t.Errorf("vault file = %q, env should win", cfg.VaultFile)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OFFGRID_VAULT_DIR", dir)

	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("vault_file: [bad"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := Load(); err == nil {
		t.Error("malformed config file should error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OFFGRID_VAULT_DIR", dir)
	t.Setenv("OFFGRID_VAULT_FILE", "")
	t.Setenv("OFFGRID_LOG_LEVEL", "")

	cfg := &Config{VaultDir: dir, VaultFile: "/saved.vault", LogLevel: "info"}
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.VaultFile != "/saved.vault" || loaded.LogLevel != "info" {
		t.Errorf("round trip mismatch: %+v", loaded)
	}
}
