package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/browser"
	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
	"github.com/aluiziolira/go-scrape-catalog/pipeline"
)

// Scraper walks the catalog listing pages and writes one record per product
// card, strictly in page-then-card order.
type Scraper struct {
	cfg     *config.Config
	browser browser.Browser
	layout  parser.Layout
	Metrics *Metrics

	now func() time.Time
}

// NewScraper builds a scraper that drives b with the locators in layout.
func NewScraper(cfg *config.Config, b browser.Browser, layout parser.Layout) (*Scraper, error) {
	if b == nil {
		return nil, fmt.Errorf("browser cannot be nil")
	}
	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("layout: %w", err)
	}
	if _, err := url.Parse(cfg.StartURL); err != nil {
		return nil, fmt.Errorf("parse start url: %w", err)
	}

	return &Scraper{
		cfg:     cfg,
		browser: b,
		layout:  layout,
		Metrics: NewMetrics(),
		now:     time.Now,
	}, nil
}

// Run crawls every listing page and streams records through p. The first
// navigation, wait or write failure aborts the run; the partial result is
// returned alongside the error.
func (s *Scraper) Run(ctx context.Context, p *pipeline.Pipeline) (*models.ScraperResult, error) {
	result := &models.ScraperResult{
		StartTime:     s.now(),
		MissingFields: make(map[string]int),
	}
	defer func() {
		result.EndTime = s.now()
	}()

	listing, err := s.browser.NewSession(ctx)
	if err != nil {
		return result, s.fail(fmt.Errorf("open listing session: %w", err))
	}
	defer listing.Close()

	detail, err := s.browser.NewSession(ctx)
	if err != nil {
		return result, s.fail(fmt.Errorf("open detail session: %w", err))
	}
	defer detail.Close()

	nav := &navigator{
		tab:        s.newTab(listing),
		startURL:   s.cfg.StartURL,
		pagination: s.cfg.Pagination,
		layout:     s.layout,
	}
	ext := &extractor{
		tab:    s.newTab(detail),
		layout: s.layout,
		now:    s.now,
	}

	if err := nav.openStartPage(ctx); err != nil {
		return result, s.fail(err)
	}
	if err := nav.dismissLocationPrompt(ctx); err != nil {
		return result, s.fail(err)
	}

	total, err := nav.pageCount(ctx)
	if err != nil {
		return result, s.fail(err)
	}
	planned := total
	if s.cfg.MaxPages > 0 && s.cfg.MaxPages < planned {
		planned = s.cfg.MaxPages
	}
	result.PagesPlanned = planned
	slog.Info("total number of pages",
		slog.Int("pages", total),
		slog.Int("planned", planned),
	)

	for page := 1; page <= planned; page++ {
		if page > 1 {
			if err := nav.goToPage(ctx, page); err != nil {
				return result, s.fail(err)
			}
		}

		links, err := s.harvestLinks(ctx, listing)
		if err != nil {
			return result, s.fail(err)
		}
		slog.Info("books on page", slog.Int("page", page), slog.Int("books", len(links)))

		for _, link := range links {
			if err := ctx.Err(); err != nil {
				return result, s.fail(err)
			}
			slog.Debug("current book", slog.String("url", link))

			record, err := ext.extractRecord(ctx, link)
			if err != nil {
				return result, s.fail(err)
			}
			written, err := p.Process(record)
			if err != nil {
				return result, s.fail(ErrOutput{Err: err})
			}
			if written == 0 {
				return result, s.fail(ErrOutput{Err: fmt.Errorf("record for %s was rejected", link)})
			}

			result.RecordCount++
			s.Metrics.IncRecords()
			for _, name := range models.DetailFields {
				if !record.Get(name).Present {
					result.MissingFields[string(name)]++
				}
			}
		}

		result.PageCount++
		s.Metrics.IncPages()
	}

	return result, nil
}

// harvestLinks returns the absolute detail URL of every card on the current
// listing page, in document order. A card without an http(s) link is fatal.
func (s *Scraper) harvestLinks(ctx context.Context, listing browser.Session) ([]string, error) {
	hrefs, err := listing.ChildAttrs(ctx, s.layout.Cards, s.layout.CardLink, "href")
	if err != nil {
		return nil, fmt.Errorf("read product links: %w", err)
	}
	if len(hrefs) == 0 {
		return nil, nil
	}

	location, err := listing.Location(ctx)
	if err != nil {
		return nil, fmt.Errorf("read listing location: %w", err)
	}
	base, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parse listing location %q: %w", location, err)
	}

	links := make([]string, 0, len(hrefs))
	for i, href := range hrefs {
		if href == "" {
			return nil, fmt.Errorf("product card %d on %s has no link", i+1, location)
		}
		ref, err := url.Parse(href)
		if err != nil {
			return nil, fmt.Errorf("product card %d link %q: %w", i+1, href, err)
		}
		link := base.ResolveReference(ref).String()
		if err := parser.ValidateSourceURL(link); err != nil {
			return nil, fmt.Errorf("product card %d on %s: %w", i+1, location, err)
		}
		links = append(links, link)
	}
	return links, nil
}

func (s *Scraper) newTab(sess browser.Session) tab {
	return tab{
		sess:       sess,
		timeout:    s.cfg.Timeout,
		navTimeout: s.cfg.NavigationTimeout,
		metrics:    s.Metrics,
	}
}

func (s *Scraper) fail(err error) error {
	category := errorTypeLabel(err)
	s.Metrics.IncError(category)
	slog.Error("scrape aborted",
		slog.String("category", category),
		slog.Any("error", err),
	)
	return err
}
