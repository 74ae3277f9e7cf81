// Package browser defines the page-automation contract the scraper drives and
// its two backends: a Chrome DevTools session and a static HTTP session.
package browser

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a locator matches no element.
var ErrNotFound = errors.New("browser: element not found")

// Kind selects the locator query language.
type Kind string

const (
	KindCSS   Kind = "css"
	KindXPath Kind = "xpath"
)

// Locator addresses elements on a page.
type Locator struct {
	Kind Kind   `json:"kind"`
	Expr string `json:"expr"`
}

// CSS returns a CSS selector locator.
func CSS(expr string) Locator {
	return Locator{Kind: KindCSS, Expr: expr}
}

// XPath returns an XPath locator.
func XPath(expr string) Locator {
	return Locator{Kind: KindXPath, Expr: expr}
}

func (l Locator) String() string {
	return fmt.Sprintf("%s(%s)", l.Kind, l.Expr)
}

// Validate reports whether the locator is usable.
func (l Locator) Validate() error {
	if l.Expr == "" {
		return fmt.Errorf("locator expression cannot be empty")
	}
	if l.Kind != KindCSS && l.Kind != KindXPath {
		return fmt.Errorf("unknown locator kind %q", l.Kind)
	}
	return nil
}

// Condition is what Wait blocks on.
type Condition int

const (
	Present Condition = iota
	Visible
	Clickable
)

func (c Condition) String() string {
	switch c {
	case Present:
		return "present"
	case Visible:
		return "visible"
	case Clickable:
		return "clickable"
	default:
		return "unknown"
	}
}

// Session is one independently navigable browsing context.
type Session interface {
	// Navigate loads url and returns once the document is ready.
	Navigate(ctx context.Context, url string) error
	// Location returns the URL of the current document.
	Location(ctx context.Context) (string, error)
	// Text returns the textContent of the first element matching loc, or
	// ErrNotFound.
	Text(ctx context.Context, loc Locator) (string, error)
	// Count returns how many elements match loc.
	Count(ctx context.Context, loc Locator) (int, error)
	// ChildAttrs returns, for every element matching parent in document order,
	// attr of its first descendant matching child. A parent without such a
	// descendant yields ErrNotFound.
	ChildAttrs(ctx context.Context, parent, child Locator, attr string) ([]string, error)
	// Click clicks the first element matching loc.
	Click(ctx context.Context, loc Locator) error
	// Wait blocks until cond holds for loc or ctx is done.
	Wait(ctx context.Context, loc Locator, cond Condition) error
	Close() error
}

// Browser hands out sessions that share one browser process.
type Browser interface {
	NewSession(ctx context.Context) (Session, error)
	Close() error
}
