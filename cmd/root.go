// Package cmd provides the command-line interface for pagelet.
//
// Configuration System:
//
//	Settings are read from several sources with clear precedence:
//	1. Command-line flags (--root, --port, etc.) - highest priority
//	2. Individual environment variables (PAGELET_SERVER_PORT, etc.)
//	3. Configuration file (--config, PAGELET_CONFIG_FILE or .pagelet.yml) - lowest priority
//
// Environment Variables:
//
//	PAGELET_CONFIG_FILE: Path to custom configuration file
//	PAGELET_SERVER_PORT: Override server port
//	PAGELET_SITE_ROOT: Override the document root
//	And many more following the PAGELET_<SECTION>_<OPTION> pattern
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/pagelet/internal/config"
	"github.com/conneroisu/pagelet/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pagelet",
	Short: "Serve HTML pages with server scripts",
	Long: `Pagelet serves HTML pages from a document root. A page may carry a
<script use="server"> element whose default export runs for every request;
the value it returns is rendered into the rest of the page as a Handlebars
template, or it may redirect the client instead.

Quick Start:
  pagelet serve --root ./src      Serve pages on http://localhost:3000
  pagelet render /about.html      Render one page to stdout
  pagelet list                    List the pages under the document root

Documentation: https://github.com/conneroisu/pagelet`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .pagelet.yml, can also use PAGELET_CONFIG_FILE env var)")
	flags.StringP("root", "r", config.DefaultRoot, "document root holding the pages")
	flags.String("index", config.DefaultIndex, "page served for directory requests")
	flags.StringP("log-level", "l", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	flags.String("log-format", config.DefaultLogFormat, "log format (text, json)")

	bindFlags(flags, map[string]string{
		"root":       "site.root",
		"index":      "site.index",
		"log-level":  "log.level",
		"log-format": "log.format",
	})

	AddFlagValidation(flags, "log-format", func(format string) error {
		return ValidateFormat(format, []string{"text", "json"})
	})
}

// initConfig wires the config file and environment into the global Viper
// instance. A flag-given file wins over PAGELET_CONFIG_FILE, which wins over
// .pagelet.yml in the working directory.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("PAGELET_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".pagelet")
	}

	// PAGELET_SERVER_PORT, PAGELET_CACHE_ENABLED, ...
	viper.SetEnvPrefix("PAGELET")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing or unreadable file leaves the defaults in place.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig loads the configuration and builds the logger it describes.
// Validation warnings are logged, errors are returned.
func loadConfig(cmd *cobra.Command) (*config.Config, logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}

	if result := config.Validate(cfg); result.HasWarnings() {
		for _, w := range result.Warnings {
			logger.Warn(cmd.Context(), nil, "Configuration warning", "field", w.Field, "message", w.Message)
		}
	}

	return cfg, logger, nil
}

func newLogger(cfg config.LogConfig, w io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Format,
		Output: w,
	}), nil
}
