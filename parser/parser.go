package parser

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

// ValidateRecord ensures the record can be written.
func ValidateRecord(r models.BookRecord) error {
	if err := ValidateSourceURL(r.SourceURL); err != nil {
		return fmt.Errorf("record %w", err)
	}
	return nil
}

// ValidateSourceURL accepts only absolute http(s) URLs with a host.
func ValidateSourceURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("missing source url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("source url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("source url %q is not http(s)", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("source url %q has no host", raw)
	}
	return nil
}

// NormalizeText trims text and collapses internal whitespace runs into single
// spaces, so multi-line page content fits one output line.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ParsePageCount converts the pagination label into a page count.
func ParsePageCount(text string) (int, error) {
	trimmed := strings.TrimSpace(text)
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("page count %q is not a number: %w", trimmed, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("page count %d must be positive", n)
	}
	return n, nil
}
