// Package config loads service configuration from YAML files and PALISADE_*
// environment variables, with validation and live reload.
package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Load reads configuration from file and environment variables. A missing
// config file is not an error; defaults apply.
func Load(configPath string) (*Config, error) {
	config := GetDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/palisade/")
	viper.AddConfigPath("$HOME/.palisade/")

	viper.SetEnvPrefix("PALISADE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		viper.SetConfigFile(configPath)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Detection.MaxInputLength <= 0 {
		return fmt.Errorf("max_input_length must be positive: %d", config.Detection.MaxInputLength)
	}

	if config.Embedding.Provider != "hash" && config.Embedding.Provider != "openai" {
		return fmt.Errorf("invalid embedding provider: %s (must be hash or openai)", config.Embedding.Provider)
	}

	if config.Similarity.Threshold <= 0 || config.Similarity.Threshold > 1 {
		return fmt.Errorf("similarity threshold %f outside (0, 1]", config.Similarity.Threshold)
	}
	if (config.Similarity.MatrixPath == "") != (config.Similarity.MetadataPath == "") {
		return fmt.Errorf("similarity matrix_path and metadata_path must be set together")
	}

	if config.Judge.ConfidenceThreshold <= 0 || config.Judge.ConfidenceThreshold > 1 {
		return fmt.Errorf("judge confidence threshold %f outside (0, 1]", config.Judge.ConfidenceThreshold)
	}

	if config.RateLimit.Enabled {
		if config.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate limit requests_per_second must be positive")
		}
		if config.RateLimit.Burst <= 0 {
			return fmt.Errorf("rate limit burst must be positive")
		}
	}

	switch config.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	return nil
}

// Watch re-reads the config file on change and invokes callback with each
// valid new configuration. Invalid intermediate states are ignored.
func Watch(config *Config, callback func(*Config)) error {
	viper.WatchConfig()
	viper.OnConfigChange(func(e fsnotify.Event) {
		newConfig := GetDefaults()
		if err := viper.Unmarshal(newConfig); err != nil {
			return
		}
		if err := validateConfig(newConfig); err != nil {
			return
		}
		callback(newConfig)
	})

	return nil
}
