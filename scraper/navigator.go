package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/aluiziolira/go-scrape-catalog/browser"
	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/parser"
)

// navigator moves the listing session between catalog pages.
type navigator struct {
	tab
	startURL   string
	pagination string
	layout     parser.Layout
}

func (n *navigator) openStartPage(ctx context.Context) error {
	slog.Debug("opening start page", slog.String("url", n.startURL))
	return n.navigate(ctx, n.startURL)
}

func (n *navigator) dismissLocationPrompt(ctx context.Context) error {
	if err := n.wait(ctx, n.layout.ConsentReady, browser.Clickable, "location prompt"); err != nil {
		return err
	}
	return n.click(ctx, n.layout.ConsentButton, "location confirmation")
}

func (n *navigator) pageCount(ctx context.Context) (int, error) {
	if err := n.wait(ctx, n.layout.LastPage, browser.Present, "pagination"); err != nil {
		return 0, err
	}
	text, err := n.sess.Text(ctx, n.layout.LastPage)
	if err != nil {
		return 0, fmt.Errorf("read last page number: %w", err)
	}
	total, err := parser.ParsePageCount(text)
	if err != nil {
		return 0, ErrPageCount{Text: text, Err: err}
	}
	return total, nil
}

// goToPage loads listing page number page and waits for its product cards.
func (n *navigator) goToPage(ctx context.Context, page int) error {
	switch n.pagination {
	case config.PaginationClick:
		from, err := n.sess.Location(ctx)
		if err != nil {
			return fmt.Errorf("read listing location: %w", err)
		}
		if err := n.wait(ctx, n.layout.NextPage, browser.Clickable, "next page control"); err != nil {
			return err
		}
		if err := n.click(ctx, n.layout.NextPage, "next page control"); err != nil {
			return err
		}
		if err := n.waitLocationChange(ctx, from); err != nil {
			return err
		}
	default:
		target, err := pageURL(n.startURL, page)
		if err != nil {
			return err
		}
		if err := n.navigate(ctx, target); err != nil {
			return err
		}
	}

	return n.wait(ctx, n.layout.Cards, browser.Visible, fmt.Sprintf("product cards on page %d", page))
}

// pageURL returns startURL with its page query parameter set to page.
func pageURL(startURL string, page int) (string, error) {
	u, err := url.Parse(startURL)
	if err != nil {
		return "", fmt.Errorf("parse start url: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
