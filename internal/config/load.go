package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/buoy-console/internal/platform/envutil"
)

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar, got kind=%d", node.Kind)
	}
	s := strings.TrimSpace(node.Value)
	if s == "" || s == "null" || s == "~" {
		d.Duration = 0
		return nil
	}
	if node.Tag == "!!int" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		d.Duration = time.Duration(n)
		return nil
	}
	dd, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration must be a string like \"5s\" or an int nanoseconds: %w", err)
	}
	d.Duration = dd
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

func Default() *Config {
	return &Config{
		Env: "development",
		HTTP: HTTPConfig{
			Addr:              ":3000",
			ReadHeaderTimeout: Duration{Duration: 5 * time.Second},
			IdleTimeout:       Duration{Duration: 2 * time.Minute},
			ShutdownTimeout:   Duration{Duration: 15 * time.Second},
		},
		Backend: BackendConfig{
			BaseURL:       "http://backend:8080",
			Prefix:        "/backend",
			LoginPath:     "/login/",
			Timeout:       Duration{Duration: 30 * time.Second},
			SessionCookie: "sessionid",
			CSRFCookie:    "csrftoken",
		},
		Cache: CacheConfig{
			StaleTime: Duration{Duration: 30 * time.Second},
			GCTime:    Duration{Duration: 5 * time.Minute},
		},
		Session: SessionConfig{
			MaxSessions: 1024,
			IdleTTL:     Duration{Duration: 30 * time.Minute},
			SweepEvery:  Duration{Duration: time.Minute},
		},
		Redis: RedisConfig{Channel: "console:invalidate"},
		Console: ConsoleConfig{
			RenderWait:   Duration{Duration: 2 * time.Second},
			RefreshAfter: Duration{Duration: 2 * time.Second},
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "buoy-console",
			SampleRatio:    0.1,
			MetricsEnabled: true,
		},
	}
}

// Load reads CONSOLE_CONFIG_PATH (or ./config/console.yaml when present) over
// the defaults, then applies environment overrides and validates the result.
func Load() (*Config, error) {
	cfg := Default()

	cfgPath := strings.TrimSpace(os.Getenv("CONSOLE_CONFIG_PATH"))
	if cfgPath == "" {
		if wd, err := os.Getwd(); err == nil {
			p := filepath.Join(wd, "config", "console.yaml")
			if _, err := os.Stat(p); err == nil {
				cfgPath = p
			}
		}
	}
	if cfgPath != "" {
		b, err := os.ReadFile(cfgPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", cfgPath, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Env = envutil.String("LOG_MODE", cfg.Env)
	cfg.HTTP.Addr = envutil.String("CONSOLE_HTTP_ADDR", cfg.HTTP.Addr)
	if v := envutil.String("CONSOLE_CORS_ORIGINS", ""); v != "" {
		cfg.HTTP.CORSOrigins = splitList(v)
	}
	cfg.Backend.BaseURL = envutil.String("CONSOLE_BACKEND_URL", cfg.Backend.BaseURL)
	cfg.Backend.PublicURL = envutil.String("CONSOLE_BACKEND_PUBLIC_URL", cfg.Backend.PublicURL)
	cfg.Backend.APIKey = envutil.String("CONSOLE_BACKEND_API_KEY", cfg.Backend.APIKey)
	cfg.Backend.Timeout.Duration = envutil.Duration("CONSOLE_BACKEND_TIMEOUT", cfg.Backend.Timeout.Duration)
	cfg.Cache.StaleTime.Duration = envutil.Duration("CONSOLE_CACHE_STALE_TIME", cfg.Cache.StaleTime.Duration)
	cfg.Console.RenderWait.Duration = envutil.Duration("CONSOLE_RENDER_WAIT", cfg.Console.RenderWait.Duration)
	cfg.Redis.Addr = envutil.String("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = envutil.String("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.Channel = envutil.String("REDIS_CHANNEL", cfg.Redis.Channel)
	cfg.Telemetry.TracingEnabled = envutil.Bool("OTEL_ENABLED", cfg.Telemetry.TracingEnabled)
	cfg.Telemetry.OTLPEndpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
	cfg.Telemetry.OTLPInsecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", cfg.Telemetry.OTLPInsecure)
	cfg.Telemetry.MetricsEnabled = envutil.Bool("METRICS_ENABLED", cfg.Telemetry.MetricsEnabled)
}

func (cfg *Config) normalize() error {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "development"
	}
	if strings.TrimSpace(cfg.HTTP.Addr) == "" {
		cfg.HTTP.Addr = ":3000"
	}

	b := &cfg.Backend
	b.BaseURL = strings.TrimRight(strings.TrimSpace(b.BaseURL), "/")
	if b.BaseURL == "" {
		return errors.New("backend.base_url is required")
	}
	if u, err := url.Parse(b.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend.base_url %q is not an absolute URL", b.BaseURL)
	}
	b.Prefix = "/" + strings.Trim(strings.TrimSpace(b.Prefix), "/")
	if b.Prefix == "/" {
		b.Prefix = ""
	}
	b.LoginPath = "/" + strings.Trim(strings.TrimSpace(b.LoginPath), "/") + "/"
	if b.LoginPath == "//" {
		return errors.New("backend.login_path is required")
	}
	b.PublicURL = strings.TrimRight(strings.TrimSpace(b.PublicURL), "/")
	if b.Timeout.Duration < 0 {
		return errors.New("backend.timeout must not be negative")
	}
	if strings.TrimSpace(b.SessionCookie) == "" {
		b.SessionCookie = "sessionid"
	}
	if strings.TrimSpace(b.CSRFCookie) == "" {
		b.CSRFCookie = "csrftoken"
	}

	if cfg.Cache.StaleTime.Duration < 0 || cfg.Cache.GCTime.Duration < 0 {
		return errors.New("cache durations must not be negative")
	}
	if cfg.Session.MaxSessions <= 0 {
		cfg.Session.MaxSessions = 1024
	}
	if cfg.Session.IdleTTL.Duration <= 0 {
		cfg.Session.IdleTTL = Duration{Duration: 30 * time.Minute}
	}
	if cfg.Session.SweepEvery.Duration <= 0 {
		cfg.Session.SweepEvery = Duration{Duration: time.Minute}
	}
	if strings.TrimSpace(cfg.Redis.Channel) == "" {
		cfg.Redis.Channel = "console:invalidate"
	}
	if cfg.Console.RenderWait.Duration < 0 {
		return errors.New("console.render_wait must not be negative")
	}
	if cfg.Console.RefreshAfter.Duration <= 0 {
		cfg.Console.RefreshAfter = Duration{Duration: 2 * time.Second}
	}
	if cfg.Telemetry.SampleRatio < 0 {
		cfg.Telemetry.SampleRatio = 0
	}
	if cfg.Telemetry.SampleRatio > 1 {
		cfg.Telemetry.SampleRatio = 1
	}
	if strings.TrimSpace(cfg.Telemetry.ServiceName) == "" {
		cfg.Telemetry.ServiceName = "buoy-console"
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
