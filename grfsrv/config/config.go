package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	internal "github.com/raiken-mf/grfserve/grfsrv"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	DataDir             string        `mapstructure:"dataDir"`
	Manifest            string        `mapstructure:"manifest"`
	Listen              string        `mapstructure:"listen"`
	Cache               CacheConfig   `mapstructure:"cache"`
	AutoDetectThreshold float64       `mapstructure:"autoDetectThreshold"`
	ScanLimit           int           `mapstructure:"scanLimit"`
	Extract             ExtractConfig `mapstructure:"extract"`
}

// CacheConfig bounds the in-memory content cache.
type CacheConfig struct {
	MaxEntries  int `mapstructure:"maxEntries"`
	MaxMemoryMB int `mapstructure:"maxMemoryMB"`
}

// ExtractConfig controls the physical mirror of fetched entries.
type ExtractConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// MaxBytes converts the configured megabyte budget.
func (c CacheConfig) MaxBytes() int64 {
	return int64(c.MaxMemoryMB) << 20
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetDefault("dataDir", ".")
	v.SetDefault("manifest", internal.DefaultManifestName)
	v.SetDefault("listen", internal.DefaultListenAddr)
	v.SetDefault("cache.maxEntries", internal.DefaultCacheMaxEntries)
	v.SetDefault("cache.maxMemoryMB", internal.DefaultCacheMaxMemMB)
	v.SetDefault("autoDetectThreshold", internal.DefaultAutoDetectThreshold)
	v.SetDefault("scanLimit", 0)
	v.SetDefault("extract.enabled", false)
	v.SetDefault("extract.dir", "data")

	v.SetEnvPrefix(strings.ToUpper(internal.DefaultAppName))
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults will be used.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	return &cfg, nil
}
