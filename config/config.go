package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/books-catalog/models"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL         string
	Mode            models.Mode
	Delay           time.Duration
	Timeout         time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration // zero disables the cap
	FetchDetails    bool
	KeepPartial     bool
	OutputDir       string
	OutputFormat    string // csv, json, or dual
	UserAgent       string
	Verbose         bool
	MetricsAddr     string
}

// DefaultConfig returns polite defaults for the demo target.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:         "https://books.toscrape.com/",
		Mode:            models.All{},
		Delay:           time.Second,
		Timeout:         10 * time.Second,
		MaxRetries:      3,
		RetryBackoff:    time.Second,
		RetryBackoffMax: 0,
		OutputDir:       "output",
		OutputFormat:    "csv",
		UserAgent:       "Mozilla/5.0 (compatible; BooksCatalogBot/1.0; +https://github.com/aluiziolira/books-catalog)",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("base URL scheme must be http or https")
	}

	if err := ValidateMode(c.Mode); err != nil {
		return err
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output dir cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// ValidateMode rejects a missing mode and out-of-range mode parameters.
func ValidateMode(mode models.Mode) error {
	switch m := mode.(type) {
	case nil:
		return fmt.Errorf("mode is required: one of -pages, -all, -category")
	case models.Pages:
		if m.N <= 0 {
			return fmt.Errorf("pages must be >= 1, got %d", m.N)
		}
	case models.Category:
		if strings.TrimSpace(m.Name) == "" {
			return fmt.Errorf("category name cannot be empty")
		}
	}
	return nil
}

// ParseMode turns the mutually exclusive CLI selectors into a Mode.
// Exactly one of pages > 0, all, or a non-empty category must be given.
func ParseMode(pages int, all bool, category string) (models.Mode, error) {
	var (
		selected int
		mode     models.Mode
	)
	if pages != 0 {
		selected++
		mode = models.Pages{N: pages}
	}
	if all {
		selected++
		mode = models.All{}
	}
	if category != "" {
		selected++
		mode = models.Category{Name: category}
	}

	switch selected {
	case 0:
		return nil, fmt.Errorf("one of -pages, -all, -category is required")
	case 1:
	default:
		return nil, fmt.Errorf("-pages, -all and -category are mutually exclusive")
	}

	if err := ValidateMode(mode); err != nil {
		return nil, err
	}
	return mode, nil
}

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer when it is set.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}

// EnvDuration parses key as a Go duration (e.g. "500ms") when it is set.
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}

// EnvBool parses key as a boolean when it is set.
func EnvBool(key string) (bool, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return false, false, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}
