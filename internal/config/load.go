package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// ASYNCAPP_APP_LOG_LEVEL for app.log_level.
const EnvPrefix = "ASYNCAPP"

// configName is the base name of the TOML file searched for by Load
const configName = "asyncapp"

// setDefaults registers a default for every key, which also makes each key
// visible to environment variable binding.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "async_app")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.worker_count", 32)
	v.SetDefault("app.queue_size", 64)
	v.SetDefault("app.shutdown_grace", "5s")

	v.SetDefault("monitoring.process_frequency", 0.0)
	v.SetDefault("monitoring.system_frequency", 0.0)
	v.SetDefault("monitoring.task_frequency", 0.0)
	v.SetDefault("monitoring.periodicals_frequency", 0.0)

	v.SetDefault("messenger.backend", "memory")
	v.SetDefault("messenger.database_url", "")
	v.SetDefault("messenger.auto_migrate", true)

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.token_lifetime", "1h")
	v.SetDefault("server.linger", "30s")

	v.SetDefault("demo.enabled", false)
	v.SetDefault("demo.say_hello_frequency", 0.0)
	v.SetDefault("demo.exit_after", "0s")
}

// Options selects the sources LoadWith reads besides the environment.
type Options struct {
	// File is an explicit config file. When empty, asyncapp.toml is searched
	// for in the working directory and the user config directory.
	File string

	// Flags holds command line overrides registered with RegisterFlags.
	Flags *pflag.FlagSet
}

// Load configuration from environment variables and optionally an
// asyncapp.toml found in the working directory or the user config directory.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	return LoadWith(Options{})
}

// LoadFile loads configuration from the file at path, with environment
// variables taking precedence. The file must exist.
func LoadFile(path string) (*Config, error) {
	return LoadWith(Options{File: path})
}

// LoadWith loads configuration from opts. Precedence, highest first: flags
// set on the command line, environment variables, the config file, defaults.
func LoadWith(opts Options) (*Config, error) {
	v := newViper()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.File, err)
		}
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, configName))
		}

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	if opts.Flags != nil {
		if err := bindFlags(v, opts.Flags); err != nil {
			return nil, err
		}
	}

	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
