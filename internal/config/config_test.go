package config

import (
	"licensebot/entity"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Storage: StorageConfig{Driver: DriverMemory},
		Licenses: LicenseConfig{
			MaxUnused:            100,
			DefaultDurationHours: 720,
			MaxGenerate:          25,
			SweepInterval:        time.Minute,
		},
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, validConfig().validate())

	c := validConfig()
	c.Storage.Driver = "sqlite"
	assert.Error(t, c.validate())

	c = validConfig()
	c.Licenses.MaxUnused = 0
	assert.Error(t, c.validate())

	c = validConfig()
	c.Licenses.SweepInterval = 10 * time.Millisecond
	assert.Error(t, c.validate())

	c = validConfig()
	c.Licenses.DefaultDurationHours = 400 * 365 * 24
	assert.Error(t, c.validate())
}

func TestValidateApiOperators(t *testing.T) {
	c := validConfig()
	c.Api = ApiConfig{
		Enabled:   true,
		RateLimit: 60,
		Operators: []entity.Operator{{Name: "console", Token: "0123456789abcdef0123"}},
	}
	assert.NoError(t, c.validate())

	c.Api.Operators = append(c.Api.Operators, entity.Operator{Name: "short", Token: "abc"})
	assert.ErrorContains(t, c.validate(), "api.operators[1]")

	c.Api.Operators = c.Api.Operators[:1]
	c.Api.RateLimit = 0
	assert.Error(t, c.validate())
}

func TestValidateTelegramKey(t *testing.T) {
	c := validConfig()
	c.Telegram.Enabled = true
	assert.Error(t, c.validate())

	c.Telegram.ApiKey = "123:abc"
	assert.NoError(t, c.validate())
}
