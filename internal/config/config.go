// Package config loads service configuration from a file, environment
// variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the typed service configuration.
type Config struct {
	// ListenAddr is the HTTP API bind address.
	ListenAddr string `mapstructure:"listen_addr"`
	// Secret seeds credential-key derivation. Empty falls back to the
	// built-in development secret.
	Secret string `mapstructure:"secret"`
	// SQLPackagePath overrides where the archive tool is found.
	SQLPackagePath string `mapstructure:"sqlpackage_path"`
	// TempDir overrides where exported archives are written.
	TempDir string `mapstructure:"temp_dir"`
	// StorePath is the SQLite store location.
	StorePath string `mapstructure:"store_path"`
	// JobRetention is how long terminal jobs stay queryable.
	JobRetention time.Duration `mapstructure:"job_retention"`
	// JobCapacity bounds the job registry.
	JobCapacity int `mapstructure:"job_capacity"`
	// ConnectTimeout bounds each connection attempt.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// Verbose enables debug logging.
	Verbose bool `mapstructure:"verbose"`
}

// Load reads configuration with precedence: environment (REPLICATOR_*), then
// the optional config file, then defaults. path may be empty, in which case
// replicator.yaml is searched for in the working directory and the user
// config directory.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("secret", "")
	v.SetDefault("sqlpackage_path", "sqlpackage")
	v.SetDefault("temp_dir", "")
	v.SetDefault("store_path", defaultStorePath())
	v.SetDefault("job_retention", 24*time.Hour)
	v.SetDefault("job_capacity", 1024)
	v.SetDefault("connect_timeout", 15*time.Second)
	v.SetDefault("verbose", false)

	v.SetEnvPrefix("REPLICATOR")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("replicator")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "replicator"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "replicator.db"
	}
	return filepath.Join(dir, "replicator", "replicator.db")
}
