package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the mailscope API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Cache     CacheConfig     `yaml:"cache"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	// MaxAttempts bounds embedding retries per request.
	MaxAttempts int `yaml:"max_attempts"`
	// RateLimitCooldownSec is the fixed wait after a provider 429.
	RateLimitCooldownSec int `yaml:"rate_limit_cooldown_sec"`
	// CallTimeoutSec bounds each provider API call.
	CallTimeoutSec int `yaml:"call_timeout_sec"`
}

// CollectionConfig describes one searchable collection.
type CollectionConfig struct {
	Name   string  `yaml:"name"`
	Weight float64 `yaml:"weight"`
	// Keywords route auto-strategy queries toward this collection.
	Keywords []string `yaml:"keywords"`
}

// SearchConfig holds vector search settings.
type SearchConfig struct {
	DefaultCollection string             `yaml:"default_collection"`
	Collections       []CollectionConfig `yaml:"collections"`
	CallTimeoutSec    int                `yaml:"call_timeout_sec"`
}

// CacheConfig holds per-namespace cache TTLs in seconds. Zero values fall
// back to package defaults.
type CacheConfig struct {
	EmbeddingTTLSec int `yaml:"embedding_ttl_sec"`
	QueryTTLSec     int `yaml:"query_ttl_sec"`
	MetadataTTLSec  int `yaml:"metadata_ttl_sec"`
	ResultsTTLSec   int `yaml:"results_ttl_sec"`
	SearchLogTTLSec int `yaml:"search_log_ttl_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Embedding.MaxAttempts <= 0 {
		c.Embedding.MaxAttempts = 3
	}
	if c.Embedding.RateLimitCooldownSec <= 0 {
		c.Embedding.RateLimitCooldownSec = 5
	}
	if c.Embedding.CallTimeoutSec <= 0 {
		c.Embedding.CallTimeoutSec = 10
	}
	if c.Search.DefaultCollection == "" {
		c.Search.DefaultCollection = "emails"
	}
	if len(c.Search.Collections) == 0 {
		c.Search.Collections = []CollectionConfig{{Name: c.Search.DefaultCollection, Weight: 1.0}}
	}
	if c.Search.CallTimeoutSec <= 0 {
		c.Search.CallTimeoutSec = 5
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Embedding.Provider != "openai" {
		return fmt.Errorf("embedding.provider must be \"openai\", got %q", c.Embedding.Provider)
	}
	names := make(map[string]struct{}, len(c.Search.Collections))
	for _, coll := range c.Search.Collections {
		if coll.Name == "" {
			return fmt.Errorf("search.collections entries require a name")
		}
		if _, dup := names[coll.Name]; dup {
			return fmt.Errorf("search.collections has duplicate name %q", coll.Name)
		}
		names[coll.Name] = struct{}{}
		if coll.Weight < 0 {
			return fmt.Errorf("search.collections.%s.weight must not be negative", coll.Name)
		}
	}
	if _, ok := names[c.Search.DefaultCollection]; !ok {
		return fmt.Errorf("search.default_collection %q is not in search.collections", c.Search.DefaultCollection)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
