package config

import (
	"fmt"
	"strings"

	"github.com/harun/toolgate/pkg/permission"
	"github.com/harun/toolgate/pkg/toolregistry"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateProvider validates the AI provider name. Empty disables the AI service.
func (v *Validator) ValidateProvider(provider string) error {
	switch provider {
	case "", "anthropic", "openai":
		return nil
	default:
		return fmt.Errorf("invalid AI provider: %s (must be one of: anthropic, openai)", provider)
	}
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateShortNamePolicy validates the registry short-name policy
func (v *Validator) ValidateShortNamePolicy(policy string) error {
	_, err := toolregistry.ParseShortNamePolicy(policy)
	return err
}

// ValidatePort validates a TCP port
func (v *Validator) ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ValidateUsers checks the static caller table
func (v *Validator) ValidateUsers(users []UserConfig) []error {
	var errs []error
	tokens := make(map[string]bool)
	ids := make(map[string]bool)

	for i, u := range users {
		if strings.TrimSpace(u.Token) == "" {
			errs = append(errs, fmt.Errorf("user %d: token is required", i))
		} else if tokens[u.Token] {
			errs = append(errs, fmt.Errorf("user %d: token is already assigned", i))
		}
		tokens[u.Token] = true

		if strings.TrimSpace(u.ID) == "" {
			errs = append(errs, fmt.Errorf("user %d: id is required", i))
		} else if ids[u.ID] {
			errs = append(errs, fmt.Errorf("user %d: duplicate id %s", i, u.ID))
		}
		ids[u.ID] = true

		if _, err := permission.ParseRole(u.Role); err != nil {
			errs = append(errs, fmt.Errorf("user %d (%s): %w", i, u.ID, err))
		}
	}

	return errs
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}
	if cfg.Logging.MaxSize < 0 {
		errors = append(errors, fmt.Errorf("logging.max_size must be >= 0"))
	}

	if err := v.ValidateShortNamePolicy(cfg.Registry.ShortNamePolicy); err != nil {
		errors = append(errors, err)
	}

	if cfg.Dispatch.BatchConcurrency < 0 {
		errors = append(errors, fmt.Errorf("dispatch.batch_concurrency must be >= 0"))
	}

	if err := v.ValidateProvider(cfg.AI.Provider); err != nil {
		errors = append(errors, err)
	} else if cfg.AI.Provider != "" && cfg.AI.APIKey != "" {
		if err := v.ValidateAPIKey(cfg.AI.APIKey, cfg.AI.Provider); err != nil {
			errors = append(errors, err)
		}
	}
	if cfg.AI.MaxTokens < 0 {
		errors = append(errors, fmt.Errorf("ai.max_tokens must be >= 0"))
	}
	if cfg.AI.CacheSize < 0 || cfg.AI.CacheTTL < 0 {
		errors = append(errors, fmt.Errorf("ai.cache_size and ai.cache_ttl must be >= 0"))
	}

	if err := v.ValidatePort(cfg.HTTP.Port); err != nil {
		errors = append(errors, fmt.Errorf("http: %w", err))
	}
	if cfg.HTTP.RateLimitPerMinute < 0 {
		errors = append(errors, fmt.Errorf("http.rate_limit_per_minute must be >= 0"))
	}

	errors = append(errors, v.ValidateUsers(cfg.Users)...)

	return errors
}
