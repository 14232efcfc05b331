// Package config loads application settings from rollcall.yaml, the
// environment (ROLLCALL_*) and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rollcall/attendance/internal/flatstore"
)

// EnvPrefix prefixes every environment override, e.g. ROLLCALL_DATA_DIR.
const EnvPrefix = "ROLLCALL"

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Config is the resolved application configuration.
type Config struct {
	DataDir string
	// DBPath is the mirror database; empty means attendance.db in DataDir.
	DBPath        string
	MirrorEnabled bool
	CacheTTL      time.Duration
	NotifyPort    int
	Log           LogConfig

	// ConfigFile is the file that was read, if any.
	ConfigFile string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "data")
	v.SetDefault("db_path", "")
	v.SetDefault("mirror.enabled", true)
	v.SetDefault("cache_ttl", flatstore.DefaultCacheTTL)
	v.SetDefault("notify.port", 8787)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
}

// Load resolves the configuration. An explicit file must exist; otherwise
// rollcall.yaml is looked up in the working directory and is optional.
func Load(file string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("rollcall")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DataDir:       v.GetString("data_dir"),
		DBPath:        v.GetString("db_path"),
		MirrorEnabled: v.GetBool("mirror.enabled"),
		CacheTTL:      v.GetDuration("cache_ttl"),
		NotifyPort:    v.GetInt("notify.port"),
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			File:   v.GetString("log.file"),
		},
		ConfigFile: v.ConfigFileUsed(),
	}
	if cfg.DataDir == "" {
		return nil, errors.New("data_dir must not be empty")
	}
	if cfg.CacheTTL < 0 {
		return nil, fmt.Errorf("cache_ttl must not be negative (got %s)", cfg.CacheTTL)
	}
	if cfg.NotifyPort < 0 || cfg.NotifyPort > 65535 {
		return nil, fmt.Errorf("notify.port out of range (got %d)", cfg.NotifyPort)
	}
	return cfg, nil
}

// MirrorPath returns the mirror database path, or "" when the mirror is
// disabled.
func (c *Config) MirrorPath() string {
	if !c.MirrorEnabled {
		return ""
	}
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.DataDir, "attendance.db")
}
