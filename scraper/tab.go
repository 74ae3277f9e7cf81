package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/browser"
)

// tab wraps a session with the run's time bounds.
type tab struct {
	sess       browser.Session
	timeout    time.Duration
	navTimeout time.Duration
	metrics    *Metrics
}

func (t *tab) navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, t.navTimeout)
	defer cancel()

	start := time.Now()
	err := t.sess.Navigate(navCtx, url)
	t.metrics.ObserveNavigation(time.Since(start))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return classifyError("page load "+url, ErrNavigation{URL: url, Err: err})
	}
	return nil
}

func (t *tab) wait(ctx context.Context, loc browser.Locator, cond browser.Condition, what string) error {
	waitCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	if err := t.sess.Wait(waitCtx, loc, cond); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return classifyError(what, err)
	}
	return nil
}

func (t *tab) click(ctx context.Context, loc browser.Locator, what string) error {
	clickCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	if err := t.sess.Click(clickCtx, loc); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return classifyError(what, fmt.Errorf("click %s: %w", what, err))
	}
	return nil
}

// waitLocationChange polls until the session leaves from.
func (t *tab) waitLocationChange(ctx context.Context, from string) error {
	waitCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		current, err := t.sess.Location(waitCtx)
		if err == nil && current != from {
			return nil
		}
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrTimeout{Op: "navigation away from " + from, Err: waitCtx.Err()}
		case <-ticker.C:
		}
	}
}
