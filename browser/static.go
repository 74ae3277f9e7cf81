package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/gocolly/colly/v2"
	"golang.org/x/net/html"
)

// StaticOptions configures the HTTP-only backend.
type StaticOptions struct {
	UserAgent string
	Timeout   time.Duration
	Transport http.RoundTripper
}

// Static serves sessions that fetch server-rendered pages over HTTP. Nothing
// executes scripts, so the document never changes after it loads.
type Static struct {
	collector *colly.Collector
	selectors *selectorCache
}

// NewStatic builds the HTTP backend from opts.
func NewStatic(opts StaticOptions) (*Static, error) {
	options := []colly.CollectorOption{colly.AllowURLRevisit()}
	if opts.UserAgent != "" {
		options = append(options, colly.UserAgent(opts.UserAgent))
	}
	collector := colly.NewCollector(options...)
	collector.IgnoreRobotsTxt = true
	if opts.Timeout > 0 {
		collector.SetRequestTimeout(opts.Timeout)
	}
	if opts.Transport != nil {
		collector.WithTransport(opts.Transport)
	}

	selectors, err := newSelectorCache(defaultSelectorCacheSize)
	if err != nil {
		return nil, err
	}
	return &Static{collector: collector, selectors: selectors}, nil
}

// NewSession returns a session with its own document state. Sessions share the
// transport and cookie jar.
func (s *Static) NewSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sess := &staticSession{
		collector: s.collector.Clone(),
		selectors: s.selectors,
	}
	sess.collector.OnResponse(func(r *colly.Response) {
		sess.last = r
	})
	return sess, nil
}

// Close is a no-op; the static backend holds no process.
func (s *Static) Close() error {
	return nil
}

type staticSession struct {
	collector *colly.Collector
	selectors *selectorCache

	mu     sync.Mutex
	last   *colly.Response
	doc    *html.Node
	url    string
	closed bool
}

func (s *staticSession) Navigate(ctx context.Context, rawURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("browser: session closed")
	}

	s.last = nil
	if err := s.collector.Visit(rawURL); err != nil {
		return fmt.Errorf("visit %s: %w", rawURL, err)
	}
	if s.last == nil {
		return fmt.Errorf("visit %s: no response", rawURL)
	}

	doc, err := html.Parse(bytes.NewReader(s.last.Body))
	if err != nil {
		return fmt.Errorf("parse %s: %w", rawURL, err)
	}
	s.doc = doc
	s.url = s.last.Request.URL.String()
	return nil
}

func (s *staticSession) Location(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return "", errors.New("browser: no document loaded")
	}
	return s.url, nil
}

func (s *staticSession) Text(ctx context.Context, loc Locator) (string, error) {
	doc, err := s.document()
	if err != nil {
		return "", err
	}
	node, err := s.selectors.queryFirst(doc, loc)
	if err != nil {
		return "", err
	}
	return textContent(node), nil
}

func (s *staticSession) Count(ctx context.Context, loc Locator) (int, error) {
	doc, err := s.document()
	if err != nil {
		return 0, err
	}
	nodes, err := s.selectors.queryAll(doc, loc)
	if err != nil {
		return 0, err
	}
	return len(nodes), nil
}

func (s *staticSession) ChildAttrs(ctx context.Context, parent, child Locator, attr string) ([]string, error) {
	doc, err := s.document()
	if err != nil {
		return nil, err
	}
	parents, err := s.selectors.queryAll(doc, parent)
	if err != nil {
		return nil, err
	}

	values := make([]string, 0, len(parents))
	for i, p := range parents {
		node, err := s.selectors.queryFirst(p, child)
		if err != nil {
			return nil, fmt.Errorf("%s #%d: %w", parent, i+1, err)
		}
		values = append(values, htmlquery.SelectAttr(node, attr))
	}
	return values, nil
}

// Click follows the href of the element or its nearest anchor ancestor.
// Elements without a target have nothing to trigger and succeed.
func (s *staticSession) Click(ctx context.Context, loc Locator) error {
	doc, err := s.document()
	if err != nil {
		return err
	}
	node, err := s.selectors.queryFirst(doc, loc)
	if err != nil {
		return err
	}

	href := ""
	for n := node; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && n.Data == "a" {
			href = htmlquery.SelectAttr(n, "href")
			break
		}
	}
	if href == "" {
		return nil
	}

	base, err := s.Location(ctx)
	if err != nil {
		return err
	}
	target, err := resolveURL(base, href)
	if err != nil {
		return err
	}
	return s.Navigate(ctx, target)
}

// Wait reports whether loc exists. The document is static, so a missing
// element is reported as an elapsed deadline straight away.
func (s *staticSession) Wait(ctx context.Context, loc Locator, cond Condition) error {
	doc, err := s.document()
	if err != nil {
		return err
	}
	if _, err := s.selectors.queryFirst(doc, loc); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("wait %s %s: %w", loc, cond, context.DeadlineExceeded)
		}
		return err
	}
	return nil
}

func (s *staticSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.doc = nil
	return nil
}

func (s *staticSession) document() (*html.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil, errors.New("browser: no document loaded")
	}
	return s.doc, nil
}

func resolveURL(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", base, err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", ref, err)
	}
	return b.ResolveReference(r).String(), nil
}
