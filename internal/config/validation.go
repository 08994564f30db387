package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strings"

	"github.com/conneroisu/pagelet/internal/logging"
	"github.com/conneroisu/pagelet/internal/validation"
)

// IndexExtensions are the extensions accepted for site.index.
var IndexExtensions = []string{".html", ".htm"}

var hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	write := func(title string, issues []ValidationError) {
		if len(issues) == 0 {
			return
		}
		builder.WriteString(title + ":\n")
		for _, issue := range issues {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", issue.Field, issue.Message))
			for _, suggestion := range issue.Suggestions {
				builder.WriteString(fmt.Sprintf("    hint: %s\n", suggestion))
			}
		}
	}

	write("Validation errors", vr.Errors)
	write("Validation warnings", vr.Warnings)

	return builder.String()
}

func (vr *ValidationResult) addError(field string, value interface{}, msg string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: msg, Suggestions: suggestions})
}

func (vr *ValidationResult) addWarning(field string, value interface{}, msg string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: msg, Suggestions: suggestions})
}

// Validate checks every section of config.
func Validate(config *Config) *ValidationResult {
	result := &ValidationResult{}

	validateServerConfig(&config.Server, result)
	validateSiteConfig(&config.Site, result)
	validateScriptConfig(&config.Script, result)
	validateLogConfig(&config.Log, result)

	return result
}

func validateServerConfig(config *ServerConfig, result *ValidationResult) {
	// Port 0 lets the system pick one.
	if config.Port < 0 || config.Port > 65535 {
		result.addError("server.port", config.Port,
			fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			"Common development ports: 3000, 8080, 8000")
	} else if config.Port > 0 && config.Port < 1024 {
		result.addWarning("server.port", config.Port, "port below 1024 requires elevated privileges")
	}

	if config.Host != "" {
		if err := validateHostname(config.Host); err != nil {
			result.addError("server.host", config.Host, err.Error(),
				"Use 'localhost' for local development",
				"Use '0.0.0.0' to bind to all interfaces")
		}
	}

	switch config.CompressLevel {
	case "", "none", "fastest", "default", "best":
	default:
		result.addError("server.compress_level", config.CompressLevel,
			fmt.Sprintf("unknown compression level %q", config.CompressLevel),
			"Use one of: none, fastest, default, best")
	}

	if config.CompressMinSize < 0 {
		result.addError("server.compress_min_size", config.CompressMinSize, "must not be negative")
	}
	if config.ReadTimeout < 0 || config.WriteTimeout < 0 || config.ShutdownTimeout < 0 {
		result.addError("server.*_timeout", nil, "timeouts must not be negative")
	}
}

func validateSiteConfig(config *SiteConfig, result *ValidationResult) {
	if err := validation.ValidateDir(config.Root); err != nil {
		result.addError("site.root", config.Root, err.Error())
	} else if info, err := os.Stat(config.Root); err != nil || !info.IsDir() {
		result.addWarning("site.root", config.Root, "document root does not exist or is not a directory",
			"Create the directory or point site.root at your pages")
	}

	if err := validation.ValidateIndexName(config.Index, IndexExtensions); err != nil {
		result.addError("site.index", config.Index, err.Error(),
			"Use a plain file name such as index.html")
	}

	if config.MaxTokenSize < 0 {
		result.addError("site.max_token_size", config.MaxTokenSize, "max token size must not be negative",
			"Use 0 for no limit")
	}
}

func validateScriptConfig(config *ScriptConfig, result *ValidationResult) {
	if err := validation.ValidateDir(config.TempDir); err != nil {
		result.addError("script.temp_dir", config.TempDir, err.Error())
	}
	if config.Timeout < 0 {
		result.addError("script.timeout", config.Timeout, "timeout must not be negative",
			"Use 0 to disable the timeout")
	}
	if config.PoolSize < 1 {
		result.addError("script.pool_size", config.PoolSize, "pool size must be at least 1")
	} else if config.PoolSize > 256 {
		result.addWarning("script.pool_size", config.PoolSize, "very large runtime pools use a lot of memory")
	}
}

func validateLogConfig(config *LogConfig, result *ValidationResult) {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		result.addError("log.level", config.Level, err.Error(),
			"Use one of: debug, info, warn, error")
	}
	if config.Format != "text" && config.Format != "json" {
		result.addError("log.format", config.Format,
			fmt.Sprintf("unknown log format %q", config.Format),
			"Use text or json")
	}
}

func validateHostname(host string) error {
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("contains dangerous character: %s", char)
		}
	}

	if net.ParseIP(host) != nil {
		return nil
	}

	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format")
	}

	return nil
}
