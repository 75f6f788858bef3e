// Package config loads server and CLI settings from an optional YAML file
// and PAYROLL_* environment variables using viper.
//
//	server:
//	  port: 8080
//	  cors_origins: ["http://localhost:3000"]
//	database:
//	  driver: sqlite          # or postgres
//	  path: payroll.db
//	  url: postgres://...     # postgres only
//	logging:
//	  level: info
//	  format: text
//	payroll:
//	  timezone: UTC
//	  workers: 4
//
// PAYROLL_DATABASE_URL overrides database.url, and so on.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "PAYROLL"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Payroll  PayrollConfig  `mapstructure:"payroll"`
}

type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	URL    string `mapstructure:"url"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type PayrollConfig struct {
	Timezone string `mapstructure:"timezone"`
	Workers  int    `mapstructure:"workers"`
}

// SetDefaults registers every key so that environment overrides apply on
// Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "payroll.db")
	v.SetDefault("database.url", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("payroll.timezone", "UTC")
	v.SetDefault("payroll.workers", 4)
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads cfgFile (if set, else ./payroll.yaml when present) into v and
// returns the validated configuration.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("payroll")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q (use sqlite or postgres)", c.Database.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Payroll.Workers < 1 {
		return fmt.Errorf("payroll.workers must be at least 1, got %d", c.Payroll.Workers)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves payroll.timezone, the zone used for day-of-week and
// hour-of-day conditions.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Payroll.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid payroll.timezone %q: %w", c.Payroll.Timezone, err)
	}
	return loc, nil
}
