// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Scheduler     SchedulerConfig    `mapstructure:"scheduler"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	Metrics       MetricsConfig      `mapstructure:"metrics"`
}

// --- Core App/Infrastructure Config ---

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SchedulerConfig holds settings for the polling loop and job executions.
type SchedulerConfig struct {
	PollInterval   int `mapstructure:"poll_interval"`    // seconds
	WorkerPoolSize int `mapstructure:"worker_pool_size"` // concurrent job executions per tick
	JobTimeout     int `mapstructure:"job_timeout"`      // seconds, default per-execution cap
}

// NotificationConfig holds settings for the channel senders.
type NotificationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
		FromName  string `mapstructure:"from_name"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled        bool    `mapstructure:"enabled"`
		SenderID       string  `mapstructure:"sender_id"`
		CostPerMessage float64 `mapstructure:"cost_per_message"`
		DailyCostLimit float64 `mapstructure:"daily_cost_limit"`
	} `mapstructure:"sms"`
	Push struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"push"`
	SendTimeout int `mapstructure:"send_timeout"` // milliseconds, per provider call
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig holds settings for the metrics/pprof listener.
type MetricsConfig struct {
	Address string `mapstructure:"address"`
}
