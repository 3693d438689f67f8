package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds MCP transport settings.
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	SSEPath     string   `yaml:"sse_path"`
	MessagePath string   `yaml:"message_path"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// BrowserConfig holds browser session settings.
type BrowserConfig struct {
	// RemoteURL is the CDP WebSocket endpoint for connecting to a remote
	// Chrome. If empty, a local Chrome instance is launched.
	RemoteURL string `yaml:"remote_url"`
	// Headless controls whether a locally launched Chrome runs headless.
	Headless bool `yaml:"headless"`
	// CommandTimeout is the per-driver-command timeout.
	CommandTimeout time.Duration `yaml:"command_timeout"`
	// StartTimeout bounds the browser launch.
	StartTimeout time.Duration `yaml:"start_timeout"`
	// ReadinessBudget bounds the document-ready wait for page fetches.
	ReadinessBudget time.Duration `yaml:"readiness_budget"`
	// DownloadDir is where save_pdf writes rendered files.
	DownloadDir string `yaml:"download_dir"`
}

// SearchConfig holds search tool settings.
type SearchConfig struct {
	// RateLimit is the number of searches allowed per engine per RateWindow.
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
	// CacheTTL controls how long identical search responses are reused.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// ConverterConfig holds document conversion settings.
type ConverterConfig struct {
	// PDFCommand is an external command invoked as `cmd <file>` to convert
	// a downloaded PDF to markdown on stdout. Empty disables PDF conversion.
	PDFCommand string `yaml:"pdf_command"`
	// MaxFetchBytes caps the size of downloaded documents.
	MaxFetchBytes int64 `yaml:"max_fetch_bytes"`
}

// SecurityConfig holds URL validation settings.
type SecurityConfig struct {
	// AllowPrivate permits navigation to private/reserved addresses.
	// Only for test deployments against local fixtures.
	AllowPrivate bool `yaml:"allow_private"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // text|json
	Output string `yaml:"output"` // stdout|stderr|<file path>
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout|noop
}

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Browser   BrowserConfig   `yaml:"browser"`
	Search    SearchConfig    `yaml:"search"`
	Converter ConverterConfig `yaml:"converter"`
	Security  SecurityConfig  `yaml:"security"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
}

// Default returns a Config with all defaults applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "127.0.0.1",
			Port:        3333,
			SSEPath:     "/sse",
			MessagePath: "/messages",
			CORSOrigins: []string{"http://127.0.0.1", "http://localhost"},
		},
		Browser: BrowserConfig{
			Headless:        true,
			CommandTimeout:  30 * time.Second,
			StartTimeout:    30 * time.Second,
			ReadinessBudget: 30 * time.Second,
			DownloadDir:     ".data/downloads",
		},
		Search: SearchConfig{
			RateLimit:  30,
			RateWindow: time.Minute,
			CacheTTL:   15 * time.Minute,
		},
		Converter: ConverterConfig{
			MaxFetchBytes: 10 * 1024 * 1024,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter: "noop",
		},
	}
}

// Load reads configuration from an optional YAML file, applies environment
// overrides, and validates the result. An empty path loads defaults only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides config fields from BROWSERMCP_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("BROWSERMCP_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("BROWSERMCP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("BROWSERMCP_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("BROWSERMCP_REMOTE_URL"); v != "" {
		cfg.Browser.RemoteURL = v
	}
	if v := os.Getenv("BROWSERMCP_HEADLESS"); v != "" {
		cfg.Browser.Headless = v != "false" && v != "0"
	}
	if v := os.Getenv("BROWSERMCP_DOWNLOAD_DIR"); v != "" {
		cfg.Browser.DownloadDir = v
	}
	if v := os.Getenv("BROWSERMCP_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("BROWSERMCP_PDF_COMMAND"); v != "" {
		cfg.Converter.PDFCommand = v
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if !strings.HasPrefix(c.Server.SSEPath, "/") {
		return fmt.Errorf("server.sse_path must start with /: %q", c.Server.SSEPath)
	}
	if !strings.HasPrefix(c.Server.MessagePath, "/") {
		return fmt.Errorf("server.message_path must start with /: %q", c.Server.MessagePath)
	}
	if c.Browser.CommandTimeout <= 0 {
		return fmt.Errorf("browser.command_timeout must be positive")
	}
	if c.Browser.ReadinessBudget <= 0 {
		return fmt.Errorf("browser.readiness_budget must be positive")
	}
	switch c.Logger.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logger.level invalid: %q", c.Logger.Level)
	}
	switch c.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		return fmt.Errorf("tracer.exporter invalid: %q", c.Tracer.Exporter)
	}
	return nil
}
