// Package config loads toolkit configuration with precedence
// ENV > file > defaults.
package config

import (
	"time"

	"github.com/crudcore/crudcore/pkg/filter"
	"github.com/crudcore/crudcore/pkg/observability/logger"
	"github.com/crudcore/crudcore/pkg/store/mongodb"
)

// Config is the root configuration structure.
type Config struct {
	Service ServiceConfig `mapstructure:"service"`
	Logger  LoggerConfig  `mapstructure:"logger"`
	MongoDB MongoConfig   `mapstructure:"mongodb"`
	Crud    CrudConfig    `mapstructure:"crud"`
	Auth    AuthConfig    `mapstructure:"auth"`
}

// ServiceConfig configures service identity metadata.
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// LoggerConfig configures structured logging output.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MongoConfig configures the document store adapter.
type MongoConfig struct {
	URL              string        `mapstructure:"url"`
	Database         string        `mapstructure:"database"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

// CrudConfig configures the filter compiler bounds.
type CrudConfig struct {
	DefaultLimit          int64 `mapstructure:"default_limit"`
	MaxLimit              int64 `mapstructure:"max_limit"`
	AutoDetectIdentifiers bool  `mapstructure:"auto_detect_identifiers"`
}

// AuthConfig configures token validation.
type AuthConfig struct {
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// DefaultConfig returns the defaults every load starts from.
func DefaultConfig() Config {
	return Config{
		Service: ServiceConfig{
			Name:        "crudcore",
			Environment: "development",
		},
		Logger: LoggerConfig{
			Level:  string(logger.InfoLevel),
			Format: string(logger.JSONFormat),
		},
		MongoDB: MongoConfig{
			URL:              "mongodb://localhost:27017",
			Database:         "crudcore",
			ConnectTimeout:   5 * time.Second,
			OperationTimeout: 5 * time.Second,
		},
		Crud: CrudConfig{
			DefaultLimit: filter.DefaultLimit,
			MaxLimit:     filter.DefaultMaxLimit,
		},
		Auth: AuthConfig{
			Issuer:   "crudcore",
			TokenTTL: 24 * time.Hour,
		},
	}
}

// LoggerOptions converts the logging section into the logger package's config.
func (c Config) LoggerOptions() logger.Config {
	return logger.Config{
		Level:  logger.LogLevel(c.Logger.Level),
		Format: logger.LogFormat(c.Logger.Format),
	}
}

// MongoOptions converts the mongodb section into the adapter's config.
func (c Config) MongoOptions() mongodb.Config {
	return mongodb.Config{
		URL:              c.MongoDB.URL,
		Database:         c.MongoDB.Database,
		ConnectTimeout:   c.MongoDB.ConnectTimeout,
		OperationTimeout: c.MongoDB.OperationTimeout,
	}
}

// CompilerOptions converts the crud section into the filter compiler's config.
func (c Config) CompilerOptions() filter.Config {
	return filter.Config{
		DefaultLimit:          c.Crud.DefaultLimit,
		MaxLimit:              c.Crud.MaxLimit,
		AutoDetectIdentifiers: c.Crud.AutoDetectIdentifiers,
	}
}
