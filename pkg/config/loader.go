package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/crudcore/crudcore/pkg/observability/logger"
)

// Loader defines the interface for loading configuration
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader implements Loader using Viper for configuration management
type ViperLoader struct {
	configFile string
	envPrefix  string
}

// NewViperLoader creates a new ViperLoader
// configFile: path to configuration file (optional, can be empty)
// envPrefix: prefix for environment variables (e.g., "CRUDCORE")
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	if envPrefix == "" {
		envPrefix = "CRUDCORE"
	}
	return &ViperLoader{
		configFile: configFile,
		envPrefix:  envPrefix,
	}
}

// Load loads configuration with precedence: ENV > file > defaults
func (l *ViperLoader) Load() (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	l.setDefaults(v, defaults)

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified but couldn't be read
			return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	// Environment variables override file config through explicit bindings.
	v.SetEnvPrefix(l.envPrefix)
	l.bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// bindEnvVars explicitly binds environment variables for nested structs
func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	v.BindEnv("service.name", l.prefixedEnv("SERVICE_NAME"))
	v.BindEnv("service.environment", l.prefixedEnv("SERVICE_ENVIRONMENT"), l.prefixedEnv("ENVIRONMENT"))

	v.BindEnv("logger.level", l.prefixedEnv("LOG_LEVEL"))
	v.BindEnv("logger.format", l.prefixedEnv("LOG_FORMAT"))

	v.BindEnv("mongodb.url", l.prefixedEnv("MONGODB_URL"))
	v.BindEnv("mongodb.database", l.prefixedEnv("MONGODB_DATABASE"))
	v.BindEnv("mongodb.connect_timeout", l.prefixedEnv("MONGODB_CONNECT_TIMEOUT"))
	v.BindEnv("mongodb.operation_timeout", l.prefixedEnv("MONGODB_OPERATION_TIMEOUT"))

	v.BindEnv("crud.default_limit", l.prefixedEnv("CRUD_DEFAULT_LIMIT"))
	v.BindEnv("crud.max_limit", l.prefixedEnv("CRUD_MAX_LIMIT"))
	v.BindEnv("crud.auto_detect_identifiers", l.prefixedEnv("CRUD_AUTO_DETECT_IDENTIFIERS"))

	v.BindEnv("auth.secret", l.prefixedEnv("AUTH_SECRET"))
	v.BindEnv("auth.issuer", l.prefixedEnv("AUTH_ISSUER"))
	v.BindEnv("auth.token_ttl", l.prefixedEnv("AUTH_TOKEN_TTL"))
}

func (l *ViperLoader) prefixedEnv(name string) string {
	return l.envPrefix + "_" + name
}

func (l *ViperLoader) setDefaults(v *viper.Viper, defaults Config) {
	v.SetDefault("service.name", defaults.Service.Name)
	v.SetDefault("service.environment", defaults.Service.Environment)

	v.SetDefault("logger.level", defaults.Logger.Level)
	v.SetDefault("logger.format", defaults.Logger.Format)

	v.SetDefault("mongodb.url", defaults.MongoDB.URL)
	v.SetDefault("mongodb.database", defaults.MongoDB.Database)
	v.SetDefault("mongodb.connect_timeout", defaults.MongoDB.ConnectTimeout)
	v.SetDefault("mongodb.operation_timeout", defaults.MongoDB.OperationTimeout)

	v.SetDefault("crud.default_limit", defaults.Crud.DefaultLimit)
	v.SetDefault("crud.max_limit", defaults.Crud.MaxLimit)
	v.SetDefault("crud.auto_detect_identifiers", defaults.Crud.AutoDetectIdentifiers)

	v.SetDefault("auth.secret", defaults.Auth.Secret)
	v.SetDefault("auth.issuer", defaults.Auth.Issuer)
	v.SetDefault("auth.token_ttl", defaults.Auth.TokenTTL)
}

// Validate checks the loaded configuration for inconsistencies that would
// surface later as hard-to-trace runtime failures.
func (l *ViperLoader) Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	var problems []string

	if strings.TrimSpace(cfg.Service.Name) == "" {
		problems = append(problems, "service.name is required")
	}
	if _, err := logger.ParseLogLevel(cfg.Logger.Level); err != nil {
		problems = append(problems, fmt.Sprintf("logger.level: %v", err))
	}
	if _, err := logger.ParseLogFormat(cfg.Logger.Format); err != nil {
		problems = append(problems, fmt.Sprintf("logger.format: %v", err))
	}
	if strings.TrimSpace(cfg.MongoDB.URL) == "" {
		problems = append(problems, "mongodb.url is required")
	}
	if strings.TrimSpace(cfg.MongoDB.Database) == "" {
		problems = append(problems, "mongodb.database is required")
	}
	if cfg.Crud.DefaultLimit <= 0 {
		problems = append(problems, "crud.default_limit must be positive")
	}
	if cfg.Crud.MaxLimit <= 0 {
		problems = append(problems, "crud.max_limit must be positive")
	}
	if cfg.Crud.DefaultLimit > cfg.Crud.MaxLimit {
		problems = append(problems, "crud.default_limit cannot exceed crud.max_limit")
	}
	if cfg.Auth.TokenTTL <= 0 {
		problems = append(problems, "auth.token_ttl must be positive")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
