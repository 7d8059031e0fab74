// Package config loads the potency CLI configuration: an optional YAML file
// overlaid by flags and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type SQLite struct {
	Path string `yaml:"path"`
	WAL  bool   `yaml:"wal"`
}

type Redis struct {
	Addr   string `yaml:"addr"`
	Prefix string `yaml:"prefix"`
}

type Config struct {
	Backend  string `yaml:"backend"` // sqlite | redis
	Codec    string `yaml:"codec"`   // empty => the backend's own
	LogLevel string `yaml:"log_level"`
	SQLite   SQLite `yaml:"sqlite"`
	Redis    Redis  `yaml:"redis"`
}

func Default() Config {
	return Config{
		Backend:  "sqlite",
		LogLevel: "info",
		SQLite:   SQLite{Path: "potency.db"},
		Redis:    Redis{Addr: "localhost:6379", Prefix: "potency"},
	}
}

// Load reads path over the defaults. A missing file is not an error when
// path is empty.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Backend {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.Backend == "sqlite" && c.SQLite.Path == "" {
		return errors.New("config: sqlite.path is required")
	}
	if c.Backend == "redis" && c.Redis.Addr == "" {
		return errors.New("config: redis.addr is required")
	}
	return nil
}

// FlagOrEnv will try and get a flag from the cobra.Command and if not found, look it up in the environment
// and fallback to defaultValue if non found
func FlagOrEnv(cmd *cobra.Command, flagName string, envName string, defaultValue string) string {
	flagValue, _ := cmd.Flags().GetString(flagName)
	if flagValue != "" {
		return flagValue
	}
	if val, ok := os.LookupEnv(envName); ok {
		return val
	}
	return defaultValue
}

// Resolve loads the --config file and applies flag/env overrides.
func Resolve(cmd *cobra.Command) (Config, error) {
	cfg, err := Load(FlagOrEnv(cmd, "config", "POTENCY_CONFIG", ""))
	if err != nil {
		return cfg, err
	}
	cfg.Backend = FlagOrEnv(cmd, "backend", "POTENCY_BACKEND", cfg.Backend)
	cfg.Codec = FlagOrEnv(cmd, "codec", "POTENCY_CODEC", cfg.Codec)
	cfg.LogLevel = FlagOrEnv(cmd, "log-level", "POTENCY_LOG_LEVEL", cfg.LogLevel)
	cfg.SQLite.Path = FlagOrEnv(cmd, "db", "POTENCY_DB", cfg.SQLite.Path)
	cfg.Redis.Addr = FlagOrEnv(cmd, "redis-addr", "POTENCY_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Prefix = FlagOrEnv(cmd, "prefix", "POTENCY_PREFIX", cfg.Redis.Prefix)
	return cfg, cfg.Validate()
}
