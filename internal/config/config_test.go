package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"XO_CONFIG", "HTTP_ADDR", "WS_ADDR", "REDIS_URL", "DATABASE_URL",
		"TURN_TIMEOUT", "WIN_DELTA", "LOSS_DELTA", "DRAW_CREDIT", "ALLOW_ORIGINS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.WSAddr != ":8081" {
		t.Fatalf("addr defaults: %+v", cfg)
	}
	if cfg.TurnTimeout != 60*time.Second {
		t.Fatalf("TurnTimeout = %v", cfg.TurnTimeout)
	}
	if cfg.WinDelta != 10 || cfg.LossDelta != 10 || cfg.DrawCredit != 5 {
		t.Fatalf("delta defaults: %+v", cfg)
	}
}

func TestLoadRequiresRedisURL(t *testing.T) {
	clearEnv(t)
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without REDIS_URL")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("TURN_TIMEOUT", "45s")
	t.Setenv("WIN_DELTA", "25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" || cfg.TurnTimeout != 45*time.Second || cfg.WinDelta != 25 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestLoadRejectsBadTimeout(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("TURN_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for bad TURN_TIMEOUT")
	}
}

func TestLoadFileOverlayEnvWins(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "xo.yaml")
	body := "redis_url: redis://filehost:6379/1\nhttp_addr: \":7000\"\nturn_timeout: 30s\ndraw_credit: 7\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("XO_CONFIG", path)
	t.Setenv("HTTP_ADDR", ":7070")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RedisURL != "redis://filehost:6379/1" {
		t.Fatalf("file value not applied: %+v", cfg)
	}
	if cfg.HTTPAddr != ":7070" {
		t.Fatalf("env must win over file: %+v", cfg)
	}
	if cfg.TurnTimeout != 30*time.Second || cfg.DrawCredit != 7 {
		t.Fatalf("file overlay incomplete: %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("XO_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
