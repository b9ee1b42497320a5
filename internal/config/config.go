package config

import (
	"fmt"
	"os"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Proxy     ProxyConfig
	Engine    EngineConfig
	Services  ServicesConfig
	Library   LibraryConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000" yaml:"port"`
	Host string `envconfig:"HOST" default:"0.0.0.0" yaml:"host"`
}

// ProxyConfig holds rewriting proxy configuration.
type ProxyConfig struct {
	// UserAgent is sent on every upstream fetch. Many sites 403 non-browser agents.
	UserAgent string `envconfig:"PROXY_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36" yaml:"user_agent"`
	// AllowHosts and DenyHosts are doublestar glob patterns matched against the
	// upstream hostname. An empty AllowHosts admits every host not denied.
	AllowHosts []string      `envconfig:"PROXY_ALLOW_HOSTS" yaml:"allow_hosts"`
	DenyHosts  []string      `envconfig:"PROXY_DENY_HOSTS" yaml:"deny_hosts"`
	Timeout    time.Duration `envconfig:"PROXY_TIMEOUT" default:"30s" yaml:"timeout"`
	AgentPath  string        `envconfig:"PROXY_AGENT_PATH" default:"/agent.js" yaml:"agent_path"`
}

// EngineConfig holds in-page engine tuning knobs.
type EngineConfig struct {
	WatchdogTimeout time.Duration `envconfig:"ENGINE_WATCHDOG_TIMEOUT" default:"10s" yaml:"watchdog_timeout"`
	MeasureDelay    time.Duration `envconfig:"ENGINE_MEASURE_DELAY" default:"50ms" yaml:"measure_delay"`
	ThemeDelay      time.Duration `envconfig:"ENGINE_THEME_DELAY" default:"1s" yaml:"theme_delay"`
	// ViewportBuffer extends batch collection this many pixels above and below
	// the viewport. Zero keeps strict viewport intersection.
	ViewportBuffer float64 `envconfig:"ENGINE_VIEWPORT_BUFFER" default:"0" yaml:"viewport_buffer"`
	// RunPageScripts executes the page's inline scripts in the sandbox when a
	// pane session boots.
	RunPageScripts bool `envconfig:"ENGINE_RUN_PAGE_SCRIPTS" default:"false" yaml:"run_page_scripts"`
}

// ServicesConfig holds external translation and AI service endpoints.
type ServicesConfig struct {
	TranslateURL string        `envconfig:"TRANSLATE_URL" default:"http://localhost:9000/translate" yaml:"translate_url"`
	BatchURL     string        `envconfig:"TRANSLATE_BATCH_URL" default:"http://localhost:9000/translate/batch" yaml:"batch_url"`
	AIActionURL  string        `envconfig:"AI_ACTION_URL" default:"http://localhost:9000/ai" yaml:"ai_action_url"`
	Timeout      time.Duration `envconfig:"SERVICES_TIMEOUT" default:"30s" yaml:"timeout"`
	RetryMax     int           `envconfig:"SERVICES_RETRY_MAX" default:"2" yaml:"retry_max"`
}

// LibraryConfig holds saved-page storage configuration.
type LibraryConfig struct {
	Dir string `envconfig:"LIBRARY_DIR" default:"/tmp/lingolens/library" yaml:"dir"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" yaml:"development"`
}

// RateLimitConfig holds proxy rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"50" yaml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"100" yaml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" yaml:"enabled"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadFile loads configuration from the environment, then overlays values from
// a YAML file. File values win over environment values.
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns the built-in defaults, ignoring the environment.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8000", Host: "0.0.0.0"},
		Proxy: ProxyConfig{
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			Timeout:   30 * time.Second,
			AgentPath: "/agent.js",
		},
		Engine: EngineConfig{
			WatchdogTimeout: 10 * time.Second,
			MeasureDelay:    50 * time.Millisecond,
			ThemeDelay:      time.Second,
		},
		Services: ServicesConfig{
			TranslateURL: "http://localhost:9000/translate",
			BatchURL:     "http://localhost:9000/translate/batch",
			AIActionURL:  "http://localhost:9000/ai",
			Timeout:      30 * time.Second,
			RetryMax:     2,
		},
		Library: LibraryConfig{Dir: "/tmp/lingolens/library"},
		Logging: LogConfig{Level: "info"},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			Enabled:           true,
		},
	}
}

// HostAllowed reports whether the proxy may fetch from the given hostname.
// Deny patterns are checked first, then allow patterns.
func (p ProxyConfig) HostAllowed(host string) bool {
	for _, pat := range p.DenyHosts {
		if ok, _ := doublestar.Match(pat, host); ok {
			return false
		}
	}
	if len(p.AllowHosts) == 0 {
		return true
	}
	for _, pat := range p.AllowHosts {
		if ok, _ := doublestar.Match(pat, host); ok {
			return true
		}
	}
	return false
}
