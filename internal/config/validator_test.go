package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAPIKey(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateAPIKey("sk-ant-abc", "anthropic"))
	assert.Error(t, v.ValidateAPIKey("sk-abc", "anthropic"))
	assert.NoError(t, v.ValidateAPIKey("sk-abc", "openai"))
	assert.Error(t, v.ValidateAPIKey("abc", "openai"))
	assert.Error(t, v.ValidateAPIKey("", "openai"))
}

func TestValidateProvider(t *testing.T) {
	v := NewValidator()

	for _, p := range []string{"", "anthropic", "openai"} {
		assert.NoError(t, v.ValidateProvider(p), p)
	}
	assert.Error(t, v.ValidateProvider("gemini"))
}

func TestValidateLogLevel(t *testing.T) {
	v := NewValidator()

	for _, level := range []string{"debug", "info", "warn", "error"} {
		assert.NoError(t, v.ValidateLogLevel(level), level)
	}
	assert.Error(t, v.ValidateLogLevel("trace"))
}

func TestValidatePort(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidatePort(8080))
	assert.Error(t, v.ValidatePort(0))
	assert.Error(t, v.ValidatePort(70000))
}

func TestValidateUsers(t *testing.T) {
	v := NewValidator()

	errs := v.ValidateUsers([]UserConfig{
		{Token: "a", ID: "u1", Role: "user"},
		{Token: "a", ID: "u2", Role: "user"},
		{Token: "b", ID: "u1", Role: "admin"},
		{Token: "", ID: "", Role: "demo"},
		{Token: "c", ID: "u3", Role: "superuser"},
	})

	assert.Len(t, errs, 5)
	assert.Empty(t, v.ValidateUsers([]UserConfig{{Token: "a", ID: "u1", Role: "demo"}}))
}

func TestValidateConfig(t *testing.T) {
	v := NewValidator()

	assert.Empty(t, v.ValidateConfig(DefaultConfig()))

	cfg := DefaultConfig()
	cfg.Logging.Level = "loud"
	cfg.HTTP.Port = -1
	cfg.Registry.ShortNamePolicy = "random"
	assert.Len(t, v.ValidateConfig(cfg), 3)
}
