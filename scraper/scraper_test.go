package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/browser"
	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
	"github.com/aluiziolira/go-scrape-catalog/pipeline"
	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const testStartURL = "http://shop.test/catalog/"

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.StartURL = testStartURL
	cfg.Backend = config.BackendStatic
	cfg.Timeout = time.Second
	cfg.NavigationTimeout = time.Second
	return cfg
}

func newTestScraper(t *testing.T, cfg *config.Config, transport *httpmock.MockTransport) *Scraper {
	t.Helper()
	static, err := browser.NewStatic(browser.StaticOptions{Transport: transport})
	if err != nil {
		t.Fatalf("new static browser: %v", err)
	}
	s, err := NewScraper(cfg, static, parser.DefaultLayout())
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.now = func() time.Time { return time.Unix(0, 0).UTC() }
	return s
}

// runToCSV runs s into a CSV file and returns the file's lines without the
// byte-order mark.
func runToCSV(t *testing.T, s *Scraper) (*models.ScraperResult, []string, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "books.csv")
	writer, err := pipeline.NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	p := pipeline.NewPipeline(writer)

	result, runErr := s.Run(context.Background(), p)

	if err := p.Close(); err != nil && runErr == nil {
		t.Fatalf("close pipeline: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if !bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}) {
		t.Fatalf("csv missing byte-order mark")
	}
	text := strings.TrimSuffix(string(data[3:]), "\n")
	return result, strings.Split(text, "\n"), runErr
}

func TestScraper_TwoPagesFourBooks(t *testing.T) {
	for _, pagination := range []string{config.PaginationURL, config.PaginationClick} {
		t.Run(pagination, func(t *testing.T) {
			cfg := testConfig()
			cfg.Pagination = pagination

			s := newTestScraper(t, cfg, twoPageCatalog())
			result, lines, err := runToCSV(t, s)
			if err != nil {
				t.Fatalf("run: %v", err)
			}

			if len(lines) != 5 {
				t.Fatalf("lines=%d, want 1 header + 4 records: %q", len(lines), lines)
			}
			for i, line := range lines {
				if got := strings.Count(line, `";"`); got != 8 {
					t.Fatalf("line %d has %d separators, want 8: %s", i, got, line)
				}
				if !strings.HasPrefix(line, `"`) || !strings.HasSuffix(line, `"`) {
					t.Fatalf("line %d is not quote-wrapped: %s", i, line)
				}
			}

			want := []string{
				`"Book 1";"Author 1";"Description of book 1. Second line.";"Penguin";"2001";"Английский";"101";"1 001 ₽";"http://shop.test/books/1/"`,
				`"Book 2";"Author 2";"Description of book 2. Second line.";"Vintage";"2002";"Английский";"102";"1 002 ₽";"http://shop.test/books/2/"`,
				`"Book 3";"Author 3";"Description of book 3. Second line.";"Not Available";"2003";"Английский";"103";"1 003 ₽";"http://shop.test/books/3/"`,
				`"Book 4";"Author 4";"Description of book 4. Second line.";"Penguin";"2004";"Английский";"104";"1 004 ₽";"http://shop.test/books/4/"`,
			}
			for i, w := range want {
				if lines[i+1] != w {
					t.Fatalf("record %d:\n got %s\nwant %s", i+1, lines[i+1], w)
				}
			}

			if result.PagesPlanned != 2 || result.PageCount != 2 || result.RecordCount != 4 {
				t.Fatalf("result = %+v, want 2 planned, 2 pages, 4 records", result)
			}
			if result.MissingFields[string(models.FieldPublisher)] != 1 {
				t.Fatalf("missing publisher = %d, want 1", result.MissingFields[string(models.FieldPublisher)])
			}
			if got := testutil.ToFloat64(s.Metrics.RecordsTotal); got != 4 {
				t.Fatalf("records metric = %v, want 4", got)
			}
			if got := testutil.ToFloat64(s.Metrics.MissingFieldsTotal.WithLabelValues("publisher")); got != 1 {
				t.Fatalf("missing publisher metric = %v, want 1", got)
			}
		})
	}
}

func TestScraper_SinglePageNoBooks(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testStartURL, htmlResponder(listingPage(1, 0)))

	s := newTestScraper(t, testConfig(), transport)
	result, lines, err := runToCSV(t, s)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("lines=%d, want header only: %q", len(lines), lines)
	}
	if result.RecordCount != 0 || result.PageCount != 1 {
		t.Fatalf("result = %+v, want 1 page, 0 records", result)
	}
}

func TestScraper_MaxPagesCapsCrawl(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPages = 1

	s := newTestScraper(t, cfg, twoPageCatalog())
	result, lines, err := runToCSV(t, s)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("lines=%d, want header + 2 records", len(lines))
	}
	if result.PagesPlanned != 1 {
		t.Fatalf("pages planned = %d, want 1", result.PagesPlanned)
	}
}

func TestScraper_FatalErrors(t *testing.T) {
	tests := []struct {
		name    string
		listing string
		check   func(t *testing.T, err error)
		label   string
	}{
		{
			name:    "missing location prompt",
			listing: strings.Replace(listingPage(2, 0), `class="current-location"`, `class="elsewhere"`, 1),
			label:   "timeout",
			check: func(t *testing.T, err error) {
				var timeout ErrTimeout
				if !errors.As(err, &timeout) || !strings.Contains(timeout.Op, "location prompt") {
					t.Fatalf("error = %v, want location prompt timeout", err)
				}
			},
		},
		{
			name:    "non-numeric page count",
			listing: strings.Replace(listingPage(1, 0), "<li><span>1</span></li>", "<li><span>…</span></li>", 1),
			label:   "page_count",
			check: func(t *testing.T, err error) {
				var pageCount ErrPageCount
				if !errors.As(err, &pageCount) {
					t.Fatalf("error = %v, want ErrPageCount", err)
				}
			},
		},
		{
			name:    "missing pagination",
			listing: strings.Replace(listingPage(1, 0), "pagination-left", "pages", 1),
			label:   "timeout",
			check: func(t *testing.T, err error) {
				var timeout ErrTimeout
				if !errors.As(err, &timeout) || timeout.Op != "pagination" {
					t.Fatalf("error = %v, want pagination timeout", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := httpmock.NewMockTransport()
			transport.RegisterResponder("GET", testStartURL, htmlResponder(tt.listing))

			s := newTestScraper(t, testConfig(), transport)
			_, lines, err := runToCSV(t, s)
			if err == nil {
				t.Fatalf("expected run to fail")
			}
			tt.check(t, err)
			if len(lines) != 1 {
				t.Fatalf("lines=%d, want header only", len(lines))
			}
			if got := testutil.ToFloat64(s.Metrics.ErrorsTotal.WithLabelValues(tt.label)); got != 1 {
				t.Fatalf("errors{%s} = %v, want 1", tt.label, got)
			}
		})
	}
}

func TestScraper_StartPageUnreachable(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testStartURL, httpmock.NewStringResponder(503, "down"))

	s := newTestScraper(t, testConfig(), transport)
	_, _, err := runToCSV(t, s)
	var nav ErrNavigation
	if !errors.As(err, &nav) || nav.URL != testStartURL {
		t.Fatalf("error = %v, want navigation error for start page", err)
	}
}

func TestScraper_DetailFailureKeepsEarlierRecords(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testStartURL, htmlResponder(listingPage(1, 0, 1, 2)))
	transport.RegisterResponder("GET", "http://shop.test/books/1/", htmlResponder(detailPage(1, "a")))

	s := newTestScraper(t, testConfig(), transport)
	result, lines, err := runToCSV(t, s)

	var nav ErrNavigation
	if !errors.As(err, &nav) || nav.URL != "http://shop.test/books/2/" {
		t.Fatalf("error = %v, want navigation error for book 2", err)
	}
	if len(lines) != 2 || result.RecordCount != 1 {
		t.Fatalf("lines=%d records=%d, want header + 1 record", len(lines), result.RecordCount)
	}
}

func TestScraper_NonHTTPCardLinkIsFatal(t *testing.T) {
	tests := []struct {
		name string
		href string
	}{
		{name: "mailto", href: "mailto:shop@podpisnie.ru"},
		{name: "javascript", href: "javascript:void(0)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listing := strings.ReplaceAll(listingPage(1, 0, 1), `href="/books/1/"`, `href="`+tt.href+`"`)
			transport := httpmock.NewMockTransport()
			transport.RegisterResponder("GET", testStartURL, htmlResponder(listing))

			s := newTestScraper(t, testConfig(), transport)
			result, lines, err := runToCSV(t, s)
			if err == nil || !strings.Contains(err.Error(), "not http(s)") {
				t.Fatalf("error = %v, want non-http link error", err)
			}
			if result.RecordCount != 0 {
				t.Fatalf("records = %d, want 0", result.RecordCount)
			}
			if len(lines) != 1 {
				t.Fatalf("lines=%d, want header only", len(lines))
			}
			if got := testutil.ToFloat64(s.Metrics.RecordsTotal); got != 0 {
				t.Fatalf("records metric = %v, want 0", got)
			}
		})
	}
}

func TestScraper_CanceledContext(t *testing.T) {
	s := newTestScraper(t, testConfig(), twoPageCatalog())

	writer, err := pipeline.NewCSVWriter(filepath.Join(t.TempDir(), "books.csv"))
	if err != nil {
		t.Fatalf("create writer: %v", err)
	}
	defer writer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Run(ctx, pipeline.NewPipeline(writer)); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestExtractRecordIsRepeatable(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://shop.test/books/3/", htmlResponder(detailPage(3, "")))

	s := newTestScraper(t, testConfig(), transport)
	sess, err := s.browser.NewSession(context.Background())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer sess.Close()

	ext := &extractor{tab: s.newTab(sess), layout: s.layout, now: s.now}
	first, err := ext.extractRecord(context.Background(), "http://shop.test/books/3/")
	if err != nil {
		t.Fatalf("first extraction: %v", err)
	}
	second, err := ext.extractRecord(context.Background(), "http://shop.test/books/3/")
	if err != nil {
		t.Fatalf("second extraction: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("extractions differ:\n%+v\n%+v", first, second)
	}

	if first.Publisher.Present {
		t.Fatalf("publisher should be absent, got %q", first.Publisher.Value)
	}
	if first.Title != models.Present("Book 3") {
		t.Fatalf("title = %+v, want Book 3", first.Title)
	}
	if first.SourceURL != "http://shop.test/books/3/" {
		t.Fatalf("source url = %s", first.SourceURL)
	}
}

func TestExtractRecordWaitsForDetailContainer(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://shop.test/books/9/", htmlResponder("<html><body><p>Товар не найден</p></body></html>"))

	s := newTestScraper(t, testConfig(), transport)
	sess, _ := s.browser.NewSession(context.Background())
	defer sess.Close()

	ext := &extractor{tab: s.newTab(sess), layout: s.layout, now: s.now}
	_, err := ext.extractRecord(context.Background(), "http://shop.test/books/9/")
	var timeout ErrTimeout
	if !errors.As(err, &timeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
}

func TestPageURL(t *testing.T) {
	tests := []struct {
		start string
		page  int
		want  string
	}{
		{start: "https://www.podpisnie.ru/categories/knigi/", page: 2, want: "https://www.podpisnie.ru/categories/knigi/?page=2"},
		{start: "https://www.podpisnie.ru/categories/knigi/?page=1", page: 3, want: "https://www.podpisnie.ru/categories/knigi/?page=3"},
		{start: "http://shop.test/catalog/?sort=new", page: 2, want: "http://shop.test/catalog/?page=2&sort=new"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got, err := pageURL(tt.start, tt.page)
			if err != nil {
				t.Fatalf("pageURL: %v", err)
			}
			if got != tt.want {
				t.Fatalf("pageURL(%q, %d) = %q, want %q", tt.start, tt.page, got, tt.want)
			}
		})
	}
}

func TestErrorTypeLabel(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil", err: nil, expected: "unknown"},
		{name: "deadline", err: classifyError("cards", context.DeadlineExceeded), expected: "timeout"},
		{name: "navigation", err: ErrNavigation{URL: "http://x", Err: errors.New("refused")}, expected: "navigation"},
		{name: "navigation timeout", err: classifyError("load", ErrNavigation{URL: "http://x", Err: context.DeadlineExceeded}), expected: "timeout"},
		{name: "page count", err: ErrPageCount{Text: "x", Err: errors.New("bad")}, expected: "page_count"},
		{name: "output", err: ErrOutput{Err: errors.New("disk full")}, expected: "output"},
		{name: "canceled", err: fmt.Errorf("run: %w", context.Canceled), expected: "canceled"},
		{name: "other", err: errors.New("boom"), expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(tt.err); got != tt.expected {
				t.Fatalf("errorTypeLabel(%v) = %q, want %q", tt.err, got, tt.expected)
			}
		})
	}
}

func TestNewScraperRejectsBadLayout(t *testing.T) {
	static, err := browser.NewStatic(browser.StaticOptions{})
	if err != nil {
		t.Fatalf("new static: %v", err)
	}
	layout := parser.DefaultLayout()
	layout.Fields = nil
	if _, err := NewScraper(testConfig(), static, layout); err == nil {
		t.Fatalf("expected layout error")
	}
	if _, err := NewScraper(testConfig(), nil, parser.DefaultLayout()); err == nil {
		t.Fatalf("expected nil browser error")
	}
}

// twoPageCatalog serves two listing pages of two books each; book 3 has no
// publisher and book 2 lists it as plain text.
func twoPageCatalog() *httpmock.MockTransport {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testStartURL, htmlResponder(listingPage(2, 2, 1, 2)))
	transport.RegisterResponder("GET", testStartURL+"?page=2", htmlResponder(listingPage(2, 0, 3, 4)))

	publishers := map[int]string{1: "a", 2: "span", 3: "", 4: "a"}
	for id, publisher := range publishers {
		url := fmt.Sprintf("http://shop.test/books/%d/", id)
		transport.RegisterResponder("GET", url, htmlResponder(detailPage(id, publisher)))
	}
	return transport
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html; charset=utf-8")
	return httpmock.ResponderFromResponse(resp)
}

// listingPage renders a catalog page. next is the page the forward control
// points to, 0 for none.
func listingPage(lastPage, next int, ids ...int) string {
	var builder strings.Builder
	builder.WriteString("<html><body>")
	builder.WriteString(`<div class="current-location"><span>Ваш город Москва?</span><button>Да</button><button>Нет</button></div>`)

	builder.WriteString(`<div class="catalog-list-cards">`)
	for _, id := range ids {
		builder.WriteString(`<div class="catalog-list-card">`)
		fmt.Fprintf(&builder, `<div class="catalog-list-card-image"><a href="/books/%d/"><img src="/img/%d.jpg"></a></div>`, id, id)
		fmt.Fprintf(&builder, `<div class="catalog-list-card-title"><a href="/books/%d/">Book %d</a></div>`, id, id)
		builder.WriteString(`</div>`)
	}
	builder.WriteString(`</div>`)

	builder.WriteString(`<div class="pagination"><ul class="pagination-left">`)
	for i := 1; i < lastPage; i++ {
		fmt.Fprintf(&builder, `<li><a href="?page=%d">%d</a></li>`, i, i)
	}
	fmt.Fprintf(&builder, "<li><span>%d</span></li>", lastPage)
	builder.WriteString(`</ul><ul class="pagination-right">`)
	if next > 0 {
		fmt.Fprintf(&builder, `<li><a href="?page=%d">→</a></li>`, next)
	}
	builder.WriteString("</ul></div></body></html>")
	return builder.String()
}

// detailPage renders a product page. publisher is the element holding the
// publisher name ("a" or "span"), or empty to leave it out.
func detailPage(id int, publisher string) string {
	var builder strings.Builder
	builder.WriteString(`<html><body><div class="catalog-detail">`)
	fmt.Fprintf(&builder, `<div class="catalog-detail-header-title"><h1> Book %d </h1></div>`, id)
	fmt.Fprintf(&builder, `<div class="catalog-detail-header-author"><a href="/authors/%d/">Author %d</a></div>`, id, id)
	fmt.Fprintf(&builder, "<div class=\"catalog-detail-tabs-content-item\">\n  Description of book %d.\n  Second line.\n</div>", id)

	name := "Penguin"
	if publisher == "span" {
		name = "Vintage"
	}
	switch publisher {
	case "a":
		fmt.Fprintf(&builder, `<div class="catalog-detail-item"><span>Издательство</span><a href="/publishers/1/">%s</a></div>`, name)
	case "span":
		fmt.Fprintf(&builder, `<div class="catalog-detail-item"><span>Издательство</span><span>%s</span></div>`, name)
	}
	fmt.Fprintf(&builder, `<div class="catalog-detail-item"><span>Год издания</span><span>%d</span></div>`, 2000+id)
	builder.WriteString(`<div class="catalog-detail-item"><span>Язык</span><span>Английский</span></div>`)
	fmt.Fprintf(&builder, `<div class="catalog-detail-item"><span>Количество страниц</span><span>%d</span></div>`, 100+id)
	fmt.Fprintf(&builder, `<div class="catalog-detail-buy-now"><span>1 %03d</span> ₽</div>`, id)
	builder.WriteString("</div></body></html>")
	return builder.String()
}
