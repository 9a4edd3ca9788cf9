package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	App        AppConfig        `mapstructure:"app" validate:"required"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Messenger  MessengerConfig  `mapstructure:"messenger"`
	Server     ServerConfig     `mapstructure:"server"`
	Demo       DemoConfig       `mapstructure:"demo"`
}

// AppConfig contains settings of the task runtime itself.
type AppConfig struct {
	// Name prefixes every messenger namespace, e.g. "<name>:task_monitor"
	Name     string `mapstructure:"name" validate:"required"`
	LogLevel string `mapstructure:"log_level"`

	// WorkerCount bounds how many blocking functions run at once
	WorkerCount int `mapstructure:"worker_count" validate:"gt=0"`
	QueueSize   int `mapstructure:"queue_size" validate:"gte=0"`

	// ShutdownGrace is how long units get to return after shutdown starts
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace" validate:"gte=0"`
}

// MonitoringConfig sets the frequency in Hz of each built-in monitor.
// A frequency of 0 disables that monitor.
type MonitoringConfig struct {
	ProcessFrequency     float64 `mapstructure:"process_frequency" validate:"gte=0"`
	SystemFrequency      float64 `mapstructure:"system_frequency" validate:"gte=0"`
	TaskFrequency        float64 `mapstructure:"task_frequency" validate:"gte=0"`
	PeriodicalsFrequency float64 `mapstructure:"periodicals_frequency" validate:"gte=0"`
}

// MessengerConfig selects the transport status is broadcast through.
type MessengerConfig struct {
	Backend     string `mapstructure:"backend" validate:"required,oneof=memory postgres"`
	DatabaseURL string `mapstructure:"database_url" validate:"required_if=Backend postgres"`

	// AutoMigrate applies pending migrations when the postgres backend starts
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// ServerConfig contains the settings of the HTTP status server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port" validate:"gt=0,lt=65536"`

	// JWTSecret protects POST /api/shutdown when set
	JWTSecret     string        `mapstructure:"jwt_secret" validate:"omitempty,min=32"`
	TokenLifetime time.Duration `mapstructure:"token_lifetime" validate:"gt=0"`

	// Linger keeps the server up after the run finishes so /api/results can
	// be fetched. It ends early on cancellation.
	Linger time.Duration `mapstructure:"linger" validate:"gte=0"`
}

// DemoConfig controls the demo tasks registered by the command.
type DemoConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	SayHelloFrequency float64       `mapstructure:"say_hello_frequency" validate:"gte=0"`
	ExitAfter         time.Duration `mapstructure:"exit_after" validate:"gte=0"`
}
