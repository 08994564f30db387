package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateRedirectURL checks a redirect target returned by a server script.
// Relative references and absolute http/https URLs are allowed.
func ValidateRedirectURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("redirect URL cannot be empty")
	}

	// Header injection.
	if strings.ContainsAny(rawURL, "\r\n\x00") {
		return fmt.Errorf("redirect URL contains control characters")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid redirect URL: %w", err)
	}

	switch parsed.Scheme {
	case "":
		return nil
	case "http", "https":
		if parsed.Host == "" {
			return fmt.Errorf("redirect URL must have a valid hostname")
		}
		return nil
	default:
		return fmt.Errorf("invalid redirect URL scheme: %s (only http/https allowed)", parsed.Scheme)
	}
}
