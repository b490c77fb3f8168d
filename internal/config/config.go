// FilePath: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Server        ServerConfig
	Postgres      PostgresConfig
	Redis         RedisConfig
	Notifications NotificationsConfig
	Reporting     ReportingConfig
	Workers       WorkersConfig
	Admin         AdminConfig
	Monitoring    MonitoringConfig
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	HardwarePort    int           `mapstructure:"hardware_port"`
	AppPort         int           `mapstructure:"app_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the host:port form used by the redis and asynq clients.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NotificationsConfig struct {
	QueueConcurrency int `mapstructure:"queue_concurrency"`
}

type ReportingConfig struct {
	StreamMaxLen int64 `mapstructure:"stream_max_len"`
	QueueSize    int   `mapstructure:"queue_size"`
	Workers      int   `mapstructure:"workers"`
}

type WorkersConfig struct {
	StatsSpec string `mapstructure:"stats_spec"`
	TrimSpec  string `mapstructure:"trim_spec"`
	SaveSpec  string `mapstructure:"save_spec"`
}

type AdminConfig struct {
	Port      int    `mapstructure:"port"`
	AuthToken string `mapstructure:"auth_token"`
}

type MonitoringConfig struct {
	LogLevel string `mapstructure:"log_level"`
}

// Load initializes configuration from environment variables and config file
func Load() (*Config, error) {
	viper.SetEnvPrefix("RELAYHUB")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Load config file if exists
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.hardware_port", 8442)
	viper.SetDefault("server.app_port", 8443)
	viper.SetDefault("server.read_timeout", "90s")
	viper.SetDefault("server.write_timeout", "15s")
	viper.SetDefault("server.shutdown_timeout", "30s")

	// Postgres defaults
	viper.SetDefault("postgres.host", "localhost")
	viper.SetDefault("postgres.port", 5432)
	viper.SetDefault("postgres.user", "relayhub")
	viper.SetDefault("postgres.dbname", "relayhub")
	viper.SetDefault("postgres.sslmode", "disable")

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	// Notification queue defaults
	viper.SetDefault("notifications.queue_concurrency", 4)

	// Reporting defaults
	viper.SetDefault("reporting.stream_max_len", 10000)
	viper.SetDefault("reporting.queue_size", 4096)
	viper.SetDefault("reporting.workers", 2)

	// Worker defaults
	viper.SetDefault("workers.stats_spec", "@every 1m")
	viper.SetDefault("workers.trim_spec", "@hourly")
	viper.SetDefault("workers.save_spec", "@every 5m")

	// Admin API defaults
	viper.SetDefault("admin.port", 7443)

	// Monitoring defaults
	viper.SetDefault("monitoring.log_level", "info")
}

func validateConfig(config *Config) error {
	if config.Server.HardwarePort == config.Server.AppPort {
		return fmt.Errorf("hardware and app ports must differ")
	}
	if config.Postgres.Host == "" {
		return fmt.Errorf("postgres host is required")
	}
	if config.Redis.Host == "" {
		return fmt.Errorf("redis host is required")
	}
	if config.Admin.AuthToken == "" {
		return fmt.Errorf("admin auth token is required")
	}
	return nil
}
