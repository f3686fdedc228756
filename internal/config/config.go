// Package config provides configuration management for smartspec-service.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents the service configuration.
type Config struct {
	Service  ServiceConfig  `toml:"service"`
	API      APIConfig      `toml:"api"`
	MCP      MCPConfig      `toml:"mcp"`
	Gateway  GatewayConfig  `toml:"gateway"`
	Store    StoreConfig    `toml:"store"`
	Engine   EngineConfig   `toml:"engine"`
	Verifier VerifierConfig `toml:"verifier"`
	Logging  LoggingConfig  `toml:"logging"`
	Security SecurityConfig `toml:"security"`
}

// ServiceConfig contains service-level settings.
type ServiceConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	DataDir         string `toml:"data_dir"`
	RepoRoot        string `toml:"repo_root"`
	PIDFile         string `toml:"pid_file"`
	ShutdownTimeout int    `toml:"shutdown_timeout_seconds"`
	MaxRequestSize  int64  `toml:"max_request_size_bytes"`
}

// APIConfig contains REST API settings.
type APIConfig struct {
	Enabled        bool     `toml:"enabled"`
	APIKey         string   `toml:"api_key"`
	RateLimit      int      `toml:"rate_limit_per_minute"`
	AllowedOrigins []string `toml:"allowed_origins"`
	RequestTimeout int      `toml:"request_timeout_seconds"`
}

// MCPConfig contains MCP server settings.
type MCPConfig struct {
	Enabled bool `toml:"enabled"`
}

// GatewayConfig contains credit-gated LLM gateway settings.
type GatewayConfig struct {
	MarkupRate       float64 `toml:"markup_rate"`
	RateLimitPerMin  int     `toml:"rate_limit_per_minute"`
	GenAIAPIKey      string  `toml:"genai_api_key"`
	GenAIModel       string  `toml:"genai_model"`
	GenAIThinking    string  `toml:"genai_thinking_level"`
	DefaultUserID    string  `toml:"default_user_id"`
}

// StoreConfig contains the relational/ACID persistence settings.
type StoreConfig struct {
	Path string `toml:"path"`
}

// EngineConfig contains checkpointed execution engine settings.
type EngineConfig struct {
	DefaultFanOut           int `toml:"default_fan_out"`
	CancelGracePeriodSecs   int `toml:"cancel_grace_period_seconds"`
	InterruptTimeoutSeconds int `toml:"interrupt_timeout_seconds"`
}

// VerifierConfig contains evidence-verification settings.
type VerifierConfig struct {
	FuzzyThreshold float64 `toml:"fuzzy_threshold"`
	MaxSuggestions int     `toml:"max_suggestions"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level      string      `toml:"level"`
	Format     string      `toml:"format"`
	Output     StringSlice `toml:"output"`
	TimeFormat string      `toml:"time_format"`
	MaxSizeMB  int         `toml:"max_size_mb"`
	MaxBackups int         `toml:"max_backups"`
	MaxAgeDays int         `toml:"max_age_days"`
	Compress   bool        `toml:"compress"`
}

// StringSlice is a custom type that can unmarshal from either a string or []string.
type StringSlice []string

// UnmarshalTOML implements toml.Unmarshaler for flexible config parsing.
func (s *StringSlice) UnmarshalTOML(data interface{}) error {
	switch v := data.(type) {
	case string:
		*s = []string{v}
	case []interface{}:
		result := make([]string, len(v))
		for i, item := range v {
			str, ok := item.(string)
			if !ok {
				return fmt.Errorf("expected string in array, got %T", item)
			}
			result[i] = str
		}
		*s = result
	default:
		return fmt.Errorf("expected string or array, got %T", data)
	}
	return nil
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	TLSEnabled  bool   `toml:"tls_enabled"`
	TLSCertFile string `toml:"tls_cert_file"`
	TLSKeyFile  string `toml:"tls_key_file"`
	CORSEnabled bool   `toml:"cors_enabled"`
}

// DefaultConfig returns the default configuration with all values set.
// Environment variables SMARTSPEC_HOST and SMARTSPEC_PORT can override
// defaults.
func DefaultConfig() *Config {
	dataDir := DefaultDataDir()

	host := "127.0.0.1"
	if envHost := os.Getenv("SMARTSPEC_HOST"); envHost != "" {
		host = envHost
	}

	port := 8430
	if envPort := os.Getenv("SMARTSPEC_PORT"); envPort != "" {
		if p, err := strconv.Atoi(envPort); err == nil {
			port = p
		}
	}

	return &Config{
		Service: ServiceConfig{
			Host:            host,
			Port:            port,
			DataDir:         dataDir,
			RepoRoot:        ".",
			PIDFile:         filepath.Join(dataDir, "smartspec-service.pid"),
			ShutdownTimeout: 30,
			MaxRequestSize:  10 * 1024 * 1024, // 10MB
		},
		API: APIConfig{
			Enabled:        true,
			APIKey:         "", // empty = no auth for localhost
			RateLimit:      100,
			AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
			RequestTimeout: 60,
		},
		MCP: MCPConfig{
			Enabled: true,
		},
		Gateway: GatewayConfig{
			MarkupRate:      0.15,
			RateLimitPerMin: 60,
			GenAIAPIKey:     os.Getenv("GEMINI_API_KEY"),
			GenAIModel:      "gemini-1.5-flash",
			GenAIThinking:   "none",
			DefaultUserID:   "default",
		},
		Store: StoreConfig{
			Path: filepath.Join(dataDir, "smartspec.db"),
		},
		Engine: EngineConfig{
			DefaultFanOut:           4,
			CancelGracePeriodSecs:   30,
			InterruptTimeoutSeconds: 3600,
		},
		Verifier: VerifierConfig{
			FuzzyThreshold: 0.55,
			MaxSuggestions: 3,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     StringSlice{"file"},
			TimeFormat: "15:04:05.000",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Security: SecurityConfig{
			TLSEnabled:  false,
			TLSCertFile: "",
			TLSKeyFile:  "",
			CORSEnabled: true,
		},
	}
}

// DefaultDataDir returns the default data directory based on OS.
func DefaultDataDir() string {
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "smartspec-service")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "AppData", "Roaming", "smartspec-service")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "smartspec-service")
	default: // linux and others
		if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
			return filepath.Join(xdgData, "smartspec-service")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".smartspec-service")
	}
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.toml")
}

// Load loads configuration from a file, merging with defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	if _, err := toml.Decode(expanded, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.expandPaths()
	return cfg, nil
}

// LoadFromString loads configuration from a TOML string, merging with defaults.
func LoadFromString(tomlStr string) (*Config, error) {
	cfg := DefaultConfig()

	expanded := os.ExpandEnv(tomlStr)

	if _, err := toml.Decode(expanded, cfg); err != nil {
		return nil, fmt.Errorf("parse config string: %w", err)
	}

	cfg.expandPaths()
	return cfg, nil
}

// expandPaths expands tilde in path fields.
func (c *Config) expandPaths() {
	home, _ := os.UserHomeDir()

	expandTilde := func(path string) string {
		if strings.HasPrefix(path, "~/") {
			return filepath.Join(home, path[2:])
		}
		return path
	}

	c.Service.DataDir = expandTilde(c.Service.DataDir)
	c.Service.RepoRoot = expandTilde(c.Service.RepoRoot)
	c.Service.PIDFile = expandTilde(c.Service.PIDFile)
	c.Store.Path = expandTilde(c.Store.Path)
	c.Security.TLSCertFile = expandTilde(c.Security.TLSCertFile)
	c.Security.TLSKeyFile = expandTilde(c.Security.TLSKeyFile)
}

// Save saves the configuration to a file in TOML format.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	return nil
}

// WriteExampleConfig writes an example config file with comments.
func WriteExampleConfig(path string) error {
	example := `# smartspec-service configuration file
# All values shown are defaults - uncomment and modify as needed

[service]
# Host to bind the HTTP server to
host = "127.0.0.1"
# Port to listen on
port = 8430
# Directory for service data (database, logs, pid file)
# data_dir = "~/.smartspec-service"
# Repository root governed specs/** and .spec/** live under
repo_root = "."
# Graceful shutdown timeout in seconds
shutdown_timeout_seconds = 30
# Maximum request body size in bytes (10MB default)
max_request_size_bytes = 10485760

[api]
# Enable the REST API
enabled = true
# API key for authentication (empty = no auth for localhost)
api_key = ""
# Rate limit requests per minute (0 = unlimited)
rate_limit_per_minute = 100
# Allowed CORS origins
allowed_origins = ["http://localhost:*", "http://127.0.0.1:*"]
# Request timeout in seconds
request_timeout_seconds = 60

[mcp]
# Enable the MCP tool server
enabled = true

[gateway]
# Fractional markup applied on credit top-up only, never on usage
markup_rate = 0.15
# Per-user token-bucket rate limit
rate_limit_per_minute = 60
# API key for the genai provider (can use environment variable: ${GEMINI_API_KEY})
genai_api_key = "${GEMINI_API_KEY}"
genai_model = "gemini-1.5-flash"
genai_thinking_level = "none"
# Credit-ledger identity used for workflow-driven gateway calls
default_user_id = "default"

[store]
# path = "~/.smartspec-service/smartspec.db"

[engine]
# Independent steps run concurrently up to this bound
default_fan_out = 4
# Grace period before a cancelled execution escalates to "stopped"
cancel_grace_period_seconds = 30
# How long a human-in-the-loop interrupt waits before failing
interrupt_timeout_seconds = 3600

[verifier]
# Minimum similarity score for a naming_issue suggestion.
# These two values are validated only; the verifier always uses its
# built-in threshold (0.55) and suggestion limit (3).
fuzzy_threshold = 0.55
max_suggestions = 3

[logging]
# Log level: debug, info, warn, error
level = "info"
# Log format: json, text
format = "text"
# Output destinations: "file", "stdout", or both
output = ["file"]
# Time format for log timestamps (Go time format)
time_format = "15:04:05.000"
# Maximum log file size in MB before rotation
max_size_mb = 100
# Number of backup log files to keep
max_backups = 5
# Maximum age of log files in days
max_age_days = 30
# Compress rotated log files
compress = true

[security]
# Enable TLS/HTTPS
tls_enabled = false
# Path to TLS certificate file
# tls_cert_file = "/path/to/cert.pem"
# Path to TLS key file
# tls_key_file = "/path/to/key.pem"
# Enable CORS
cors_enabled = true
`

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	return os.WriteFile(path, []byte(example), 0644)
}

// Address returns the full address string for the HTTP server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Service.Host, c.Service.Port)
}

// LogPath returns the path to the service log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.Service.DataDir, "logs", "service.log")
}

// PIDPath returns the path to the PID file.
func (c *Config) PIDPath() string {
	if c.Service.PIDFile != "" {
		return c.Service.PIDFile
	}
	return filepath.Join(c.Service.DataDir, "smartspec-service.pid")
}

// EnsureDirectories creates all necessary directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Service.DataDir,
		filepath.Dir(c.Store.Path),
		filepath.Dir(c.LogPath()),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

// BundleHash generates a unique hash for a spec bundle's absolute path,
// generalizing the teacher's per-project hash to SmartSpec's governed
// bundle roots.
func BundleHash(path string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	absPath = filepath.Clean(absPath)

	h := sha256.Sum256([]byte(absPath))
	return hex.EncodeToString(h[:])[:16]
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Service.Port)
	}

	if c.Service.ShutdownTimeout < 1 {
		return fmt.Errorf("shutdown_timeout_seconds must be at least 1")
	}

	if c.API.RateLimit < 0 {
		return fmt.Errorf("rate_limit_per_minute cannot be negative")
	}

	if c.Gateway.MarkupRate < 0 {
		return fmt.Errorf("gateway.markup_rate cannot be negative")
	}

	if c.Engine.DefaultFanOut < 1 {
		return fmt.Errorf("engine.default_fan_out must be at least 1")
	}

	if c.Verifier.FuzzyThreshold < 0 || c.Verifier.FuzzyThreshold > 1 {
		return fmt.Errorf("verifier.fuzzy_threshold must be between 0.0 and 1.0")
	}

	if c.Security.TLSEnabled {
		if c.Security.TLSCertFile == "" || c.Security.TLSKeyFile == "" {
			return fmt.Errorf("TLS enabled but cert/key files not specified")
		}
	}

	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c

	clone.API.AllowedOrigins = make([]string, len(c.API.AllowedOrigins))
	copy(clone.API.AllowedOrigins, c.API.AllowedOrigins)

	clone.Logging.Output = make(StringSlice, len(c.Logging.Output))
	copy(clone.Logging.Output, c.Logging.Output)

	return &clone
}
