package config

import "time"

// Duration accepts "5s"-style strings or integer nanoseconds in config files.
type Duration struct {
	Duration time.Duration
}

type HTTPConfig struct {
	Addr              string   `yaml:"addr"`
	ReadHeaderTimeout Duration `yaml:"read_header_timeout"`
	IdleTimeout       Duration `yaml:"idle_timeout"`
	ShutdownTimeout   Duration `yaml:"shutdown_timeout"`

	// CORSOrigins are allowed to call the JSON mirror under /manage/api.
	CORSOrigins []string `yaml:"cors_origins"`
}

type BackendConfig struct {
	// BaseURL is where the console reaches the backend, e.g. http://backend:8080.
	BaseURL string `yaml:"base_url"`

	// Prefix is the path the backend is mounted under. Login redirects and API
	// calls are built below it.
	Prefix    string `yaml:"prefix"`
	LoginPath string `yaml:"login_path"`

	// PublicURL, when set, is prepended to login redirects sent to browsers.
	PublicURL string `yaml:"public_url"`

	// APIKey is sent as X-API-KEY. Only the by-pipeline listing requires it.
	APIKey string `yaml:"api_key"`

	Timeout Duration `yaml:"timeout"`

	SessionCookie string `yaml:"session_cookie"`
	CSRFCookie    string `yaml:"csrf_cookie"`
}

type CacheConfig struct {
	StaleTime Duration `yaml:"stale_time"`
	GCTime    Duration `yaml:"gc_time"`
}

type SessionConfig struct {
	MaxSessions int      `yaml:"max_sessions"`
	IdleTTL     Duration `yaml:"idle_ttl"`
	SweepEvery  Duration `yaml:"sweep_every"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

type ConsoleConfig struct {
	// RenderWait bounds how long a page waits for pending queries before it
	// renders the loading placeholder.
	RenderWait Duration `yaml:"render_wait"`
	// RefreshAfter is the placeholder's auto-refresh interval.
	RefreshAfter Duration `yaml:"refresh_after"`
}

type TelemetryConfig struct {
	ServiceName    string  `yaml:"service_name"`
	Version        string  `yaml:"version"`
	TracingEnabled bool    `yaml:"tracing_enabled"`
	OTLPEndpoint   string  `yaml:"otlp_endpoint"`
	OTLPInsecure   bool    `yaml:"otlp_insecure"`
	SampleRatio    float64 `yaml:"sample_ratio"`
	MetricsEnabled bool    `yaml:"metrics_enabled"`
}

type Config struct {
	Env       string          `yaml:"env"`
	HTTP      HTTPConfig      `yaml:"http"`
	Backend   BackendConfig   `yaml:"backend"`
	Cache     CacheConfig     `yaml:"cache"`
	Session   SessionConfig   `yaml:"session"`
	Redis     RedisConfig     `yaml:"redis"`
	Console   ConsoleConfig   `yaml:"console"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}
