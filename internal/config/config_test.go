package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_NoFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != "remedian.db" {
		t.Errorf("DBPath = %q, want remedian.db", cfg.DBPath)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.CleanGrace != 24*time.Hour {
		t.Errorf("CleanGrace = %v, want 24h", cfg.CleanGrace)
	}
	if cfg.RelaxedDurability {
		t.Error("RelaxedDurability should be off by default")
	}
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != "remedian.db" {
		t.Errorf("DBPath = %q, want default", cfg.DBPath)
	}
}

func TestLoad_ReadsYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
db_path: /var/lib/remedian/store.db
key_path: /var/lib/remedian/signing.key
log_level: debug
relaxed_durability: true
clean_grace: 1h30m
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != "/var/lib/remedian/store.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.KeyPath != "/var/lib/remedian/signing.key" {
		t.Errorf("KeyPath = %q", cfg.KeyPath)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if !cfg.RelaxedDurability {
		t.Error("RelaxedDurability = false, want true")
	}
	if cfg.CleanGrace != 90*time.Minute {
		t.Errorf("CleanGrace = %v, want 1h30m", cfg.CleanGrace)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("db_path: from-file.db\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(EnvDBPath, "from-env.db")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvRelaxedDurability, "true")
	t.Setenv(EnvCleanGraceSec, "3600")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != "from-env.db" {
		t.Errorf("DBPath = %q, want env value", cfg.DBPath)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if !cfg.RelaxedDurability {
		t.Error("RelaxedDurability = false, want true")
	}
	if cfg.CleanGrace != time.Hour {
		t.Errorf("CleanGrace = %v, want 1h", cfg.CleanGrace)
	}
}

func TestLoad_RejectsInvalidLogLevel(t *testing.T) {
	t.Setenv(EnvLogLevel, "loud")
	if _, err := Load(""); err == nil {
		t.Fatal("expected invalid log_level error")
	}
}

func TestValidate_RejectsEmptyDBPath(t *testing.T) {
	cfg := Default()
	cfg.DBPath = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected db_path error")
	}
}

func TestValidate_RejectsNegativeGrace(t *testing.T) {
	cfg := Default()
	cfg.CleanGrace = -time.Minute
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected clean_grace error")
	}
}
