package config

import (
	"fmt"
	"net/url"
	"time"
)

// Backend names.
const (
	BackendChrome = "chrome"
	BackendStatic = "static"
)

// Pagination strategies.
const (
	PaginationURL   = "url"
	PaginationClick = "click"
)

// Config holds scraper configuration.
type Config struct {
	StartURL          string
	Timeout           time.Duration // bound for each wait condition
	NavigationTimeout time.Duration
	OutputFile        string
	OutputFormat      string // csv, json, or dual
	Backend           string // chrome or static
	Pagination        string // url or click
	Headless          bool
	UserAgent         string
	MaxPages          int // 0 means every listing page
	Verbose           bool
	MetricsAddr       string
	LayoutFile        string
}

// DefaultConfig returns defaults for the foreign-language books catalog.
func DefaultConfig() *Config {
	return &Config{
		StartURL:          "https://www.podpisnie.ru/categories/knigi/knigi-na-inostrannykh-yazykakh/",
		Timeout:           10 * time.Second,
		NavigationTimeout: 30 * time.Second,
		OutputFile:        "books.csv",
		OutputFormat:      "csv",
		Backend:           BackendChrome,
		Pagination:        PaginationURL,
		Headless:          true,
		UserAgent:         "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		MaxPages:          0,
		Verbose:           false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.StartURL == "" {
		return fmt.Errorf("start URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.StartURL)
	if err != nil {
		return fmt.Errorf("invalid start URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("start URL must include a host")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("start URL scheme must be http or https")
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.NavigationTimeout <= 0 {
		return fmt.Errorf("navigation timeout must be positive")
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("max pages cannot be negative")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.Backend != BackendChrome && c.Backend != BackendStatic {
		return fmt.Errorf("backend must be %s or %s", BackendChrome, BackendStatic)
	}
	if c.Pagination != PaginationURL && c.Pagination != PaginationClick {
		return fmt.Errorf("pagination must be %s or %s", PaginationURL, PaginationClick)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}
