package config

import (
	"fmt"
	"licensebot/entity"
	"licensebot/lib/clock"
	"licensebot/lib/validate"
	"log"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	DriverMongo  = "mongo"
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

type Listen struct {
	BindIp string `yaml:"bind_ip" env-default:"0.0.0.0"`
	Port   string `yaml:"port" env-default:"8080"`
}

type ApiConfig struct {
	Enabled   bool              `yaml:"enabled" env-default:"false"`
	Operators []entity.Operator `yaml:"operators"`
	RateLimit int               `yaml:"rate_limit" env-default:"60"` // requests per minute per client
}

type TelegramConfig struct {
	Enabled   bool    `yaml:"enabled" env-default:"true"`
	ApiKey    string  `yaml:"api_key" env:"TELEGRAM_API_KEY" env-default:""`
	Operators []int64 `yaml:"operators"`
	LogLevel  string  `yaml:"log_level" env-default:"error"`
	// per group, for /generate, /licenses and /random_licenses
	Cooldown      time.Duration `yaml:"cooldown" env-default:"10s"`
	AlertInterval time.Duration `yaml:"alert_interval" env-default:"30s"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" env-default:"mongo"`
}

type MongoConfig struct {
	Host     string `yaml:"host" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env-default:"27017"`
	User     string `yaml:"user" env-default:""`
	Password string `yaml:"password" env:"MONGO_PASSWORD" env-default:""`
	Database string `yaml:"database" env-default:"licensebot"`
}

type MySQLConfig struct {
	HostName string `yaml:"hostname" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env-default:"3306"`
	UserName string `yaml:"username" env-default:""`
	Password string `yaml:"password" env:"MYSQL_PASSWORD" env-default:""`
	Database string `yaml:"database" env-default:"licensebot"`
	Prefix   string `yaml:"prefix" env-default:""`
}

// LicenseConfig holds the defaults applied to newly joined groups and the
// limits of the license commands.
type LicenseConfig struct {
	MaxUnused            int           `yaml:"max_unused" env-default:"100"`
	DefaultDurationHours int           `yaml:"default_duration_hours" env-default:"720"`
	MaxGenerate          int           `yaml:"max_generate" env-default:"25"`
	SweepInterval        time.Duration `yaml:"sweep_interval" env-default:"60s"`
	ConfirmTimeout       time.Duration `yaml:"confirm_timeout" env-default:"15s"`
}

type Config struct {
	Env      string         `yaml:"env" env-default:"local"`
	Listen   Listen         `yaml:"listen"`
	Api      ApiConfig      `yaml:"api"`
	Telegram TelegramConfig `yaml:"telegram"`
	Storage  StorageConfig  `yaml:"storage"`
	Mongo    MongoConfig    `yaml:"mongo"`
	MySQL    MySQLConfig    `yaml:"mysql"`
	Licenses LicenseConfig  `yaml:"licenses"`
}

var instance *Config
var once sync.Once

func MustLoad(path string) *Config {
	var err error
	once.Do(func() {
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("config: %s; %s", err, desc)
			instance = nil
			log.Fatal(err)
		}
		if err = instance.validate(); err != nil {
			instance = nil
			log.Fatal(fmt.Errorf("config: %w", err))
		}
	})
	return instance
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverMongo, DriverMySQL, DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver: %s", c.Storage.Driver)
	}
	if c.Licenses.MaxUnused < 1 {
		return fmt.Errorf("licenses.max_unused must be positive")
	}
	if c.Licenses.DefaultDurationHours < 1 || c.Licenses.DefaultDurationHours > clock.MaxDurationHours {
		return fmt.Errorf("licenses.default_duration_hours must be between 1 and %d", clock.MaxDurationHours)
	}
	if c.Licenses.MaxGenerate < 1 {
		return fmt.Errorf("licenses.max_generate must be positive")
	}
	if c.Licenses.SweepInterval < time.Second {
		return fmt.Errorf("licenses.sweep_interval must be at least one second")
	}
	if c.Api.Enabled {
		if c.Api.RateLimit < 1 {
			return fmt.Errorf("api.rate_limit must be positive")
		}
		for i := range c.Api.Operators {
			if err := validate.Struct(&c.Api.Operators[i]); err != nil {
				return fmt.Errorf("api.operators[%d]: %w", i, err)
			}
		}
	}
	if c.Telegram.Enabled && c.Telegram.ApiKey == "" {
		return fmt.Errorf("telegram.api_key is required when telegram is enabled")
	}
	return nil
}
