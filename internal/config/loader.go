package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. TOOLGATE_AI_API_KEY
const EnvPrefix = "TOOLGATE"

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load reads the config file, if present, and applies environment overrides
// on top of the defaults
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return nil, fmt.Errorf("failed to determine config path")
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Dir(configPath)
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(cfg.DataDir, "toolgate.db")
	}

	return cfg, nil
}

// setDefaults registers every scalar key so AutomaticEnv can override it
func setDefaults(v *viper.Viper, cfg *Config) {
	defaults := map[string]any{
		"logging.level":               cfg.Logging.Level,
		"logging.file":                cfg.Logging.File,
		"logging.console":             cfg.Logging.Console,
		"logging.pretty":              cfg.Logging.Pretty,
		"logging.max_size":            cfg.Logging.MaxSize,
		"logging.max_age":             cfg.Logging.MaxAge,
		"logging.compress":            cfg.Logging.Compress,
		"logging.redaction":           cfg.Logging.Redaction,
		"registry.short_name_policy":  cfg.Registry.ShortNamePolicy,
		"dispatch.validate_arguments": cfg.Dispatch.ValidateArguments,
		"dispatch.batch_concurrency":  cfg.Dispatch.BatchConcurrency,
		"audit.file":                  cfg.Audit.File,
		"metrics.enabled":             cfg.Metrics.Enabled,
		"tracing.enabled":             cfg.Tracing.Enabled,
		"tracing.service_name":        cfg.Tracing.ServiceName,
		"store.path":                  cfg.Store.Path,
		"ai.provider":                 cfg.AI.Provider,
		"ai.api_key":                  cfg.AI.APIKey,
		"ai.model":                    cfg.AI.Model,
		"ai.max_tokens":               cfg.AI.MaxTokens,
		"ai.cache_size":               cfg.AI.CacheSize,
		"ai.cache_ttl":                cfg.AI.CacheTTL,
		"http.host":                   cfg.HTTP.Host,
		"http.port":                   cfg.HTTP.Port,
		"http.read_timeout":           cfg.HTTP.ReadTimeout,
		"http.shutdown_timeout":       cfg.HTTP.ShutdownTimeout,
		"http.rate_limit_per_minute":  cfg.HTTP.RateLimitPerMinute,
		"data_dir":                    cfg.DataDir,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to determine config path")
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("logging", cfg.Logging)
	v.Set("registry", cfg.Registry)
	v.Set("dispatch", cfg.Dispatch)
	v.Set("audit", cfg.Audit)
	v.Set("metrics", cfg.Metrics)
	v.Set("tracing", cfg.Tracing)
	v.Set("store", cfg.Store)
	v.Set("ai", cfg.AI)
	v.Set("http", cfg.HTTP)
	v.Set("users", cfg.Users)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".toolgate", "toolgate.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
