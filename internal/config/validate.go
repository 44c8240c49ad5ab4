package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const (
	// API keys issued by the console are 80-character alphanumeric strings.
	minAPIKeyLength = 80
	// Site tokens are opaque base64-like strings; the shortest observed form
	// is just over 90 characters. This is a structural floor, not an exact
	// length gate.
	minSiteTokenLength = 90

	maxCatalogLimit = 20
)

var (
	apiKeyPattern    = regexp.MustCompile(`^[A-Za-z0-9]+$`)
	siteTokenPattern = regexp.MustCompile(`^[A-Za-z0-9+/_=-]+$`)
)

// NormalizeChannel maps a case-insensitive channel selector to its canonical
// lowercase form.
func NormalizeChannel(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ga":
		return "ga", nil
	case "ea":
		return "ea", nil
	default:
		return "", fmt.Errorf("invalid release channel %q: must be GA or EA", raw)
	}
}

// Validate checks the configuration before any network call is made. It also
// normalizes the channel and strips the trailing slash from the console URL.
func (c *Config) Validate() error {
	if c.Console.URL == "" {
		return fmt.Errorf("console URL is required")
	}
	parsed, err := url.Parse(c.Console.URL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("invalid console URL %q", c.Console.URL)
	}
	c.Console.URL = strings.TrimRight(c.Console.URL, "/")

	if len(c.Console.APIKey) < minAPIKeyLength {
		return fmt.Errorf("API key is too short: expected at least %d characters, got %d", minAPIKeyLength, len(c.Console.APIKey))
	}
	if !apiKeyPattern.MatchString(c.Console.APIKey) {
		return fmt.Errorf("API key contains non-alphanumeric characters")
	}

	if len(c.Console.SiteToken) < minSiteTokenLength {
		return fmt.Errorf("site token is too short: expected at least %d characters, got %d", minSiteTokenLength, len(c.Console.SiteToken))
	}
	if !siteTokenPattern.MatchString(c.Console.SiteToken) {
		return fmt.Errorf("site token contains characters outside the base64 alphabet")
	}

	channel, err := NormalizeChannel(c.Console.Channel)
	if err != nil {
		return err
	}
	c.Console.Channel = channel

	switch c.Console.AuthScheme {
	case "ApiToken", "APIToken":
	default:
		return fmt.Errorf("invalid auth scheme %q: must be ApiToken or APIToken", c.Console.AuthScheme)
	}

	switch c.Selection.Policy {
	case "version", "server-order":
	default:
		return fmt.Errorf("invalid selection policy %q: must be version or server-order", c.Selection.Policy)
	}

	if c.Selection.Limit < 1 || c.Selection.Limit > maxCatalogLimit {
		return fmt.Errorf("selection limit must be between 1 and %d, got %d", maxCatalogLimit, c.Selection.Limit)
	}

	if c.Console.Timeout <= 0 {
		return fmt.Errorf("console timeout must be positive")
	}
	if c.Download.Timeout <= 0 {
		return fmt.Errorf("download timeout must be positive")
	}
	if c.Download.Retries < 0 {
		return fmt.Errorf("download retries must not be negative")
	}

	return nil
}
