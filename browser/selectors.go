package browser

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/net/html"
)

const defaultSelectorCacheSize = 256

// selectorCache evaluates locators against parsed documents, keeping compiled
// XPath expressions around between pages.
type selectorCache struct {
	xpaths *lru.Cache[string, *xpath.Expr]
}

func newSelectorCache(size int) (*selectorCache, error) {
	if size <= 0 {
		size = defaultSelectorCacheSize
	}
	cache, err := lru.New[string, *xpath.Expr](size)
	if err != nil {
		return nil, fmt.Errorf("create selector cache: %w", err)
	}
	return &selectorCache{xpaths: cache}, nil
}

func (sc *selectorCache) compileXPath(expr string) (*xpath.Expr, error) {
	if compiled, ok := sc.xpaths.Get(expr); ok {
		return compiled, nil
	}
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile xpath %q: %w", expr, err)
	}
	sc.xpaths.Add(expr, compiled)
	return compiled, nil
}

// queryAll returns every element under root matching loc, in document order.
func (sc *selectorCache) queryAll(root *html.Node, loc Locator) ([]*html.Node, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	switch loc.Kind {
	case KindCSS:
		return goquery.NewDocumentFromNode(root).Find(loc.Expr).Nodes, nil
	default:
		compiled, err := sc.compileXPath(loc.Expr)
		if err != nil {
			return nil, err
		}
		return htmlquery.QuerySelectorAll(root, compiled), nil
	}
}

func (sc *selectorCache) queryFirst(root *html.Node, loc Locator) (*html.Node, error) {
	nodes, err := sc.queryAll(root, loc)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%s: %w", loc, ErrNotFound)
	}
	return nodes[0], nil
}

func textContent(n *html.Node) string {
	return htmlquery.InnerText(n)
}
