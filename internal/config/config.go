// Package config loads server configuration from file, environment,
// and defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/advisordesk/portfolio-backend/pkg/types"
)

type Config struct {
	Environment string                 `mapstructure:"environment"`
	LogLevel    string                 `mapstructure:"log_level"`
	Server      types.ServerConfig     `mapstructure:"server"`
	Data        types.DataConfig       `mapstructure:"data"`
	Backtest    types.BacktestDefaults `mapstructure:"backtest"`
	Workers     WorkersConfig          `mapstructure:"workers"`
}

type WorkersConfig struct {
	NumWorkers int `mapstructure:"num_workers"`
	QueueSize  int `mapstructure:"queue_size"`
}

// Load reads config.yaml from the given directories, falling back to
// defaults and environment variables. An empty path list searches the
// working directory and ./configs.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./configs"}
	}
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("portfolio")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine, defaults and env apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)

	if err := validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func validate(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("server port must be in 1..65535, got %d", config.Server.Port)
	}
	if !strings.HasPrefix(config.Server.WebSocketPath, "/") {
		return fmt.Errorf("websocket path must start with /, got %q", config.Server.WebSocketPath)
	}
	if config.Workers.NumWorkers <= 0 {
		return fmt.Errorf("workers num_workers must be positive, got %d", config.Workers.NumWorkers)
	}
	for name, raw := range map[string]string{
		"backtest start_date": config.Backtest.StartDate,
		"backtest end_date":   config.Backtest.EndDate,
	} {
		if _, err := time.Parse("2006-01-02", raw); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, raw, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.websocket_path", "/ws")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.max_connections", 100)
	v.SetDefault("server.enable_metrics", true)

	v.SetDefault("data.data_dir", "./data")

	v.SetDefault("backtest.start_date", "2018-01-01")
	v.SetDefault("backtest.end_date", "2023-12-31")

	v.SetDefault("workers.num_workers", 4)
	v.SetDefault("workers.queue_size", 64)
}
