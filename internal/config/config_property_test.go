//go:build property
// +build property

package config

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/spf13/viper"
)

func baseConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "localhost", Port: 3000},
		Site:   SiteConfig{Root: os.TempDir(), Index: "index.html"},
		Script: ScriptConfig{TempDir: os.TempDir(), PoolSize: 4},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// TestConfigurationProperties tests configuration loading and validation properties
func TestConfigurationProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("ports in range validate", prop.ForAll(
		func(port int) bool {
			cfg := baseConfig()
			cfg.Server.Port = port
			return !Validate(cfg).HasErrors()
		},
		gen.IntRange(0, 65535),
	))

	properties.Property("ports out of range are rejected", prop.ForAll(
		func(port int) bool {
			cfg := baseConfig()
			cfg.Server.Port = port
			return Validate(cfg).HasErrors()
		},
		gen.OneGenOf(gen.IntRange(-100000, -1), gen.IntRange(65536, 1000000)),
	))

	properties.Property("hosts with shell metacharacters are rejected", prop.ForAll(
		func(prefix string, char string) bool {
			cfg := baseConfig()
			cfg.Server.Host = prefix + char
			return Validate(cfg).HasErrors()
		},
		gen.AlphaString(),
		gen.OneConstOf(";", "&", "|", "$", "`", "(", ")", "<", ">"),
	))

	properties.Property("index names with separators are rejected", prop.ForAll(
		func(dir, name string) bool {
			cfg := baseConfig()
			cfg.Site.Index = dir + "/" + name + ".html"
			return Validate(cfg).HasErrors()
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.Property("pool size round trips through viper", prop.ForAll(
		func(size int) bool {
			v := viper.New()
			v.Set("site.root", os.TempDir())
			v.Set("script.pool_size", size)
			cfg, err := LoadFrom(v)
			return err == nil && cfg.Script.PoolSize == size
		},
		gen.IntRange(1, 256),
	))

	properties.Property("log level parsing is case insensitive", prop.ForAll(
		func(level string, upper bool) bool {
			if upper {
				level = strings.ToUpper(level)
			}
			cfg := baseConfig()
			cfg.Log.Level = level
			result := Validate(cfg)
			if result.HasErrors() {
				t.Log(fmt.Sprint(result))
			}
			return !result.HasErrors()
		},
		gen.OneConstOf("debug", "info", "warn", "error"),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
