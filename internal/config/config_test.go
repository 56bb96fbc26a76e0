package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvOnly(t *testing.T) {
	t.Setenv("DB_URL", "postgres://u:p@localhost:5432/vkwatch")
	t.Setenv("VK_TOKENS", "tok1, tok2 ,")
	t.Setenv("WORKER_CONCURRENCY", "4")
	t.Setenv("PORT", "")
	t.Setenv("VK_API_VERSION", "")
	t.Setenv("RUN_MODE", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.VKTokens) != 2 || cfg.VKTokens[1] != "tok2" {
		t.Errorf("VKTokens = %v", cfg.VKTokens)
	}
	if cfg.WorkerConcurrency != 4 {
		t.Errorf("WorkerConcurrency = %d", cfg.WorkerConcurrency)
	}
	// defaults survive when env is unset
	if cfg.APIPort != "8080" || cfg.VKVersion != "5.199" || cfg.VKRateRPS != 3 {
		t.Errorf("defaults broken: %+v", cfg)
	}
	if cfg.Mode != "all" {
		t.Errorf("Mode = %s", cfg.Mode)
	}
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
database_url: postgres://file@localhost/db
api_port: "9000"
vk_tokens: [file-token]
monitor_interval_sec: 120
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("DB_URL", "")
	t.Setenv("VK_TOKENS", "")
	t.Setenv("PORT", "9999") // env wins over the file

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://file@localhost/db" {
		t.Errorf("DatabaseURL = %s", cfg.DatabaseURL)
	}
	if cfg.APIPort != "9999" {
		t.Errorf("APIPort = %s, env should override file", cfg.APIPort)
	}
	if cfg.MonitorIntervalSec != 120 {
		t.Errorf("MonitorIntervalSec = %d", cfg.MonitorIntervalSec)
	}
}

func TestLoadRequiredFields(t *testing.T) {
	t.Setenv("DB_URL", "")
	t.Setenv("VK_TOKENS", "")
	if _, err := Load(""); err == nil {
		t.Error("missing DB_URL should fail")
	}

	t.Setenv("DB_URL", "postgres://localhost/db")
	if _, err := Load(""); err == nil {
		t.Error("missing VK_TOKENS should fail")
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/db")
	t.Setenv("VK_TOKENS", "tok")
	if _, err := Load("/nonexistent/config.yaml"); err != nil {
		t.Fatalf("missing file should be tolerated: %v", err)
	}
}
