package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chromedp/chromedp"
)

// ChromeOptions configures the Chrome backend.
type ChromeOptions struct {
	Headless  bool
	UserAgent string
}

// Chrome drives a local Chrome instance over the DevTools protocol.
type Chrome struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
}

// NewChrome launches Chrome and waits until it accepts commands.
func NewChrome(ctx context.Context, opts ChromeOptions) (*Chrome, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", opts.Headless),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.Flag("start-maximized", true),
		chromedp.WindowSize(1920, 1080),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			slog.Debug(fmt.Sprintf(format, args...), slog.String("component", "chromedp"))
		}),
	)

	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	return &Chrome{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

// NewSession opens a new tab.
func (c *Chrome) NewSession(ctx context.Context) (Session, error) {
	tabCtx, cancel := chromedp.NewContext(c.browserCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return &chromeSession{tab: tabCtx, cancel: cancel}, nil
}

// Close shuts down every tab and the browser process.
func (c *Chrome) Close() error {
	c.browserCancel()
	c.allocCancel()
	return nil
}

type chromeSession struct {
	tab    context.Context
	cancel context.CancelFunc
}

// run executes actions on the tab, bounded by ctx's deadline and cancellation.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.tab)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return ctx.Err()
	}
	return err
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (s *chromeSession) Location(ctx context.Context) (string, error) {
	var location string
	if err := s.run(ctx, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return location, nil
}

type textResult struct {
	Found bool   `json:"found"`
	Text  string `json:"text"`
}

func (s *chromeSession) Text(ctx context.Context, loc Locator) (string, error) {
	script, err := textScript(loc)
	if err != nil {
		return "", err
	}
	var res textResult
	if err := s.run(ctx, chromedp.Evaluate(script, &res)); err != nil {
		return "", fmt.Errorf("read text %s: %w", loc, err)
	}
	if !res.Found {
		return "", fmt.Errorf("%s: %w", loc, ErrNotFound)
	}
	return res.Text, nil
}

func (s *chromeSession) Count(ctx context.Context, loc Locator) (int, error) {
	script, err := countScript(loc)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.run(ctx, chromedp.Evaluate(script, &n)); err != nil {
		return 0, fmt.Errorf("count %s: %w", loc, err)
	}
	return n, nil
}

type attrResult struct {
	Found bool   `json:"found"`
	Value string `json:"value"`
}

func (s *chromeSession) ChildAttrs(ctx context.Context, parent, child Locator, attr string) ([]string, error) {
	script, err := childAttrsScript(parent, child, attr)
	if err != nil {
		return nil, err
	}
	var res []attrResult
	if err := s.run(ctx, chromedp.Evaluate(script, &res)); err != nil {
		return nil, fmt.Errorf("read %s of %s: %w", attr, child, err)
	}

	values := make([]string, 0, len(res))
	for i, r := range res {
		if !r.Found {
			return nil, fmt.Errorf("%s #%d: %s: %w", parent, i+1, child, ErrNotFound)
		}
		values = append(values, r.Value)
	}
	return values, nil
}

func (s *chromeSession) Click(ctx context.Context, loc Locator) error {
	if err := loc.Validate(); err != nil {
		return err
	}
	if err := s.run(ctx, chromedp.Click(loc.Expr, queryOption(loc))); err != nil {
		return fmt.Errorf("click %s: %w", loc, err)
	}
	return nil
}

func (s *chromeSession) Wait(ctx context.Context, loc Locator, cond Condition) error {
	if err := loc.Validate(); err != nil {
		return err
	}
	by := queryOption(loc)

	var actions []chromedp.Action
	switch cond {
	case Present:
		actions = append(actions, chromedp.WaitReady(loc.Expr, by))
	case Visible:
		actions = append(actions, chromedp.WaitVisible(loc.Expr, by))
	case Clickable:
		actions = append(actions, chromedp.WaitVisible(loc.Expr, by), chromedp.WaitEnabled(loc.Expr, by))
	default:
		return fmt.Errorf("unknown wait condition %d", cond)
	}

	if err := s.run(ctx, actions...); err != nil {
		return fmt.Errorf("wait %s %s: %w", loc, cond, err)
	}
	return nil
}

func (s *chromeSession) Close() error {
	s.cancel()
	return nil
}

func queryOption(loc Locator) chromedp.QueryOption {
	if loc.Kind == KindXPath {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

// queryAllJS returns a JS expression evaluating to an array of the elements
// under root matching loc.
func queryAllJS(loc Locator, root string) (string, error) {
	if err := loc.Validate(); err != nil {
		return "", err
	}
	expr, err := json.Marshal(loc.Expr)
	if err != nil {
		return "", fmt.Errorf("encode locator: %w", err)
	}
	if loc.Kind == KindCSS {
		return fmt.Sprintf("Array.from(%s.querySelectorAll(%s))", root, expr), nil
	}
	return fmt.Sprintf(`(() => {
	const snap = document.evaluate(%s, %s, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
	const out = [];
	for (let i = 0; i < snap.snapshotLength; i++) out.push(snap.snapshotItem(i));
	return out;
})()`, expr, root), nil
}

func textScript(loc Locator) (string, error) {
	all, err := queryAllJS(loc, "document")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(() => {
	const els = %s;
	return els.length ? {found: true, text: els[0].textContent} : {found: false, text: ""};
})()`, all), nil
}

func countScript(loc Locator) (string, error) {
	all, err := queryAllJS(loc, "document")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s.length", all), nil
}

func childAttrsScript(parent, child Locator, attr string) (string, error) {
	parents, err := queryAllJS(parent, "document")
	if err != nil {
		return "", err
	}
	children, err := queryAllJS(child, "p")
	if err != nil {
		return "", err
	}
	name, err := json.Marshal(attr)
	if err != nil {
		return "", fmt.Errorf("encode attribute: %w", err)
	}
	return fmt.Sprintf(`%s.map((p) => {
	const kids = %s;
	return kids.length ? {found: true, value: kids[0].getAttribute(%s) || ""} : {found: false, value: ""};
})`, parents, children, name), nil
}
