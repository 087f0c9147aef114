package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/helixdata/metasearch/internal/domain/entity"
)

// Config holds the metasearch API configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Auth     AuthConfig     `yaml:"auth"`
	Engine   EngineConfig   `yaml:"engine"`
	Cache    CacheConfig    `yaml:"cache"`
	Lineage  LineageConfig  `yaml:"lineage"`
	Logging  LoggingConfig  `yaml:"logging"`
	Entities []EntityConfig `yaml:"entities"`
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

// EngineConfig holds search engine settings.
type EngineConfig struct {
	// IndexPath is the on-disk index directory. Empty means in-memory.
	IndexPath         string `yaml:"index_path"`
	MaxTermBucketSize int    `yaml:"max_term_bucket_size"`
}

// CacheConfig holds search result cache settings.
type CacheConfig struct {
	Enabled    bool        `yaml:"enabled"`
	Driver     string      `yaml:"driver"` // memory, redis (default: memory)
	BatchSize  int         `yaml:"batch_size"`
	TTLSec     int         `yaml:"ttl_sec"`
	MaxEntries int         `yaml:"max_entries"` // memory driver only
	Redis      RedisConfig `yaml:"redis"`
}

// RedisConfig holds redis connection settings for the cache driver.
type RedisConfig struct {
	Addrs    []string `yaml:"addrs"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
}

// LineageConfig holds lineage graph service settings.
type LineageConfig struct {
	GraphURL   string `yaml:"graph_url"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// EntityConfig declares one searchable entity type and its fields.
type EntityConfig struct {
	Name   string                   `yaml:"name"`
	Fields []entity.SearchableField `yaml:"fields"`
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

// EntitySpecs converts the declared entity types into validated specs.
func (c *Config) EntitySpecs() ([]entity.Spec, error) {
	specs := make([]entity.Spec, 0, len(c.Entities))
	for _, e := range c.Entities {
		spec, err := entity.NewSpec(e.Name, e.Fields)
		if err != nil {
			return nil, fmt.Errorf("entity %q: %w", e.Name, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
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
	if c.Engine.MaxTermBucketSize <= 0 {
		c.Engine.MaxTermBucketSize = 100
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Cache.BatchSize <= 0 {
		c.Cache.BatchSize = 100
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 600
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = 10_000
	}
	if c.Lineage.TimeoutSec <= 0 {
		c.Lineage.TimeoutSec = 30
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Cache.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.driver must be \"memory\" or \"redis\", got %q", c.Cache.Driver)
	}
	if c.Cache.Enabled && c.Cache.Driver == "redis" && len(c.Cache.Redis.Addrs) == 0 {
		return fmt.Errorf("cache.redis.addrs is required for the redis cache driver")
	}
	if c.Lineage.GraphURL == "" {
		return fmt.Errorf("lineage.graph_url is required")
	}
	if len(c.Entities) == 0 {
		return fmt.Errorf("at least one entity type must be configured")
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
