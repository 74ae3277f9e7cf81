package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/browser"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
)

// extractor reads book records through the detail session.
type extractor struct {
	tab
	layout parser.Layout
	now    func() time.Time
}

// extractField returns the normalised text at loc, or an absent field when
// nothing matches.
func (e *extractor) extractField(ctx context.Context, fl parser.FieldLocator) (models.Field, error) {
	text, err := e.sess.Text(ctx, fl.Locator)
	if errors.Is(err, browser.ErrNotFound) {
		slog.Debug("element not found",
			slog.String("field", string(fl.Field)),
			slog.String("locator", fl.Locator.String()),
		)
		e.metrics.IncMissing(string(fl.Field))
		return models.Absent, nil
	}
	if err != nil {
		return models.Absent, fmt.Errorf("read %s: %w", fl.Field, err)
	}
	return models.Present(parser.NormalizeText(text)), nil
}

func (e *extractor) extractRecord(ctx context.Context, detailURL string) (models.BookRecord, error) {
	if err := e.navigate(ctx, detailURL); err != nil {
		return models.BookRecord{}, err
	}
	if err := e.wait(ctx, e.layout.DetailReady, browser.Present, "detail page "+detailURL); err != nil {
		return models.BookRecord{}, err
	}

	fields := make(map[models.FieldName]models.Field, len(e.layout.Fields))
	for _, fl := range e.layout.Fields {
		field, err := e.extractField(ctx, fl)
		if err != nil {
			return models.BookRecord{}, fmt.Errorf("extract %s: %w", detailURL, err)
		}
		fields[fl.Field] = field
	}
	return models.NewBookRecord(detailURL, fields, e.now()), nil
}
