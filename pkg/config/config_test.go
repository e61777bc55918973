package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Port    int     `env:"TEST_CFG_PORT" envDefault:"8080"`
	Driver  string  `env:"TEST_CFG_DRIVER" envDefault:"memory"`
	TaxRate float64 `env:"TEST_CFG_TAX_RATE" envDefault:"0.05"`
	Enabled bool    `env:"TEST_CFG_ENABLED" envDefault:"false"`
}

func TestLoad_Defaults(t *testing.T) {
	var cfg testConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "memory", cfg.Driver)
	assert.InDelta(t, 0.05, cfg.TaxRate, 1e-9)
	assert.False(t, cfg.Enabled)
}

func TestLoad_FromEnvVars(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "9090")
	t.Setenv("TEST_CFG_DRIVER", "redis")
	t.Setenv("TEST_CFG_ENABLED", "true")

	var cfg testConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "redis", cfg.Driver)
	assert.True(t, cfg.Enabled)
}

func TestLoad_InvalidType(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "not-a-number")

	var cfg testConfig
	err := Load(&cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

type validatedConfig struct {
	Port int `env:"TEST_CFG_VALIDATED_PORT" envDefault:"8080"`
}

func (c *validatedConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.New("port out of range")
	}
	return nil
}

func TestLoad_RunsValidate(t *testing.T) {
	t.Setenv("TEST_CFG_VALIDATED_PORT", "70000")

	var cfg validatedConfig
	err := Load(&cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate config")
	assert.Contains(t, err.Error(), "port out of range")
}

func TestLoad_ValidatePasses(t *testing.T) {
	var cfg validatedConfig
	require.NoError(t, Load(&cfg))
	assert.Equal(t, 8080, cfg.Port)
}
