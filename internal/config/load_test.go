package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "console.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONSOLE_CONFIG_PATH", "")
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.Prefix != "/backend" || cfg.Backend.LoginPath != "/login/" {
		t.Fatalf("unexpected backend paths: %+v", cfg.Backend)
	}
	if cfg.Cache.StaleTime.Duration != 30*time.Second {
		t.Fatalf("stale_time=%v", cfg.Cache.StaleTime.Duration)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	p := writeConfig(t, `
env: production
backend:
  base_url: "http://api.internal:9000/"
  prefix: "backend/"
  login_path: "accounts/login"
  timeout: 10s
cache:
  stale_time: 1000000000
console:
  render_wait: 250ms
`)
	t.Setenv("CONSOLE_CONFIG_PATH", p)
	t.Setenv("CONSOLE_HTTP_ADDR", ":9999")
	t.Setenv("CONSOLE_CORS_ORIGINS", "http://localhost:5173, http://127.0.0.1:5173")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Env != "production" {
		t.Fatalf("env=%q", cfg.Env)
	}
	if cfg.HTTP.Addr != ":9999" {
		t.Fatalf("addr=%q", cfg.HTTP.Addr)
	}
	if cfg.Backend.BaseURL != "http://api.internal:9000" {
		t.Fatalf("base_url=%q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Prefix != "/backend" || cfg.Backend.LoginPath != "/accounts/login/" {
		t.Fatalf("paths not normalized: %+v", cfg.Backend)
	}
	if cfg.Backend.Timeout.Duration != 10*time.Second {
		t.Fatalf("timeout=%v", cfg.Backend.Timeout.Duration)
	}
	if cfg.Cache.StaleTime.Duration != time.Second {
		t.Fatalf("int nanoseconds not honored: %v", cfg.Cache.StaleTime.Duration)
	}
	if cfg.Console.RenderWait.Duration != 250*time.Millisecond {
		t.Fatalf("render_wait=%v", cfg.Console.RenderWait.Duration)
	}
	if len(cfg.HTTP.CORSOrigins) != 2 {
		t.Fatalf("cors origins=%v", cfg.HTTP.CORSOrigins)
	}
}

func TestLoadRejectsRelativeBackend(t *testing.T) {
	p := writeConfig(t, "backend:\n  base_url: backend:8080\n")
	t.Setenv("CONSOLE_CONFIG_PATH", p)
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for base_url without scheme")
	}
}
