// Package config loads pagelet settings through Viper from the config file,
// PAGELET_ environment variables and command-line flags.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete runtime configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server" yaml:"server"`
	Site   SiteConfig   `mapstructure:"site" yaml:"site"`
	Cache  CacheConfig  `mapstructure:"cache" yaml:"cache"`
	Script ScriptConfig `mapstructure:"script" yaml:"script"`
	Log    LogConfig    `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	Compress        bool          `mapstructure:"compress" yaml:"compress"`
	CompressLevel   string        `mapstructure:"compress_level" yaml:"compress_level"`
	CompressMinSize int           `mapstructure:"compress_min_size" yaml:"compress_min_size"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// SiteConfig locates the pages.
type SiteConfig struct {
	Root  string `mapstructure:"root" yaml:"root"`
	Index string `mapstructure:"index" yaml:"index"`

	// MaxTokenSize caps a single markup token in bytes. Zero is unlimited.
	MaxTokenSize int `mapstructure:"max_token_size" yaml:"max_token_size"`
}

// CacheConfig controls the page cache.
type CacheConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// ScriptConfig controls server script loading and execution.
type ScriptConfig struct {
	TempDir  string        `mapstructure:"temp_dir" yaml:"temp_dir"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	PoolSize int           `mapstructure:"pool_size" yaml:"pool_size"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Defaults.
const (
	DefaultHost            = "localhost"
	DefaultPort            = 3000
	DefaultRoot            = "./src"
	DefaultIndex           = "index.html"
	DefaultPoolSize        = 4
	DefaultCompressLevel   = "default"
	DefaultCompressMinSize = 1024
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
)

// Load reads the configuration from the global Viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v, applies defaults and validates
// the result.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	applyDefaults(&config, v)

	result := Validate(&config)
	if result.HasErrors() {
		return nil, fmt.Errorf("invalid configuration: %w", &result.Errors[0])
	}

	return &config, nil
}

func applyDefaults(config *Config, v *viper.Viper) {
	if config.Server.Host == "" {
		config.Server.Host = DefaultHost
	}
	if !v.IsSet("server.port") {
		config.Server.Port = DefaultPort
	}
	if !v.IsSet("server.compress") {
		config.Server.Compress = true
	}
	if config.Server.CompressLevel == "" {
		config.Server.CompressLevel = DefaultCompressLevel
	}
	if config.Server.CompressMinSize == 0 {
		config.Server.CompressMinSize = DefaultCompressMinSize
	}
	if config.Server.ReadTimeout == 0 {
		config.Server.ReadTimeout = DefaultReadTimeout
	}
	if config.Server.WriteTimeout == 0 {
		config.Server.WriteTimeout = DefaultWriteTimeout
	}
	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if config.Site.Root == "" {
		config.Site.Root = DefaultRoot
	}
	if config.Site.Index == "" {
		config.Site.Index = DefaultIndex
	}

	if !v.IsSet("cache.enabled") {
		config.Cache.Enabled = true
	}

	if config.Script.TempDir == "" {
		config.Script.TempDir = os.TempDir()
	}
	if config.Script.PoolSize == 0 {
		config.Script.PoolSize = DefaultPoolSize
	}

	if config.Log.Level == "" {
		config.Log.Level = DefaultLogLevel
	}
	if config.Log.Format == "" {
		config.Log.Format = DefaultLogFormat
	}
}

// Addr returns the host:port the server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
