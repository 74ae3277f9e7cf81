package parser

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aluiziolira/go-scrape-catalog/browser"
	"github.com/aluiziolira/go-scrape-catalog/models"
)

// FieldLocator maps one record field to where it lives on the detail page.
type FieldLocator struct {
	Field   models.FieldName `json:"field"`
	Locator browser.Locator  `json:"locator"`
}

// Layout is the site's DOM contract: every selector the crawl depends on.
type Layout struct {
	ConsentReady  browser.Locator `json:"consent_ready"`
	ConsentButton browser.Locator `json:"consent_button"`
	LastPage      browser.Locator `json:"last_page"`
	Cards         browser.Locator `json:"cards"`
	CardLink      browser.Locator `json:"card_link"`
	NextPage      browser.Locator `json:"next_page"`
	DetailReady   browser.Locator `json:"detail_ready"`
	Fields        []FieldLocator  `json:"fields"`
}

func detailItem(label, sibling string) browser.Locator {
	return browser.XPath(fmt.Sprintf("//div[@class='catalog-detail-item']/span[text()='%s']/following-sibling::%s", label, sibling))
}

// DefaultLayout returns the locators for podpisnie.ru.
func DefaultLayout() Layout {
	return Layout{
		ConsentReady:  browser.CSS("div.current-location button"),
		ConsentButton: browser.XPath("//div[@class='current-location']/button[text()='Да']"),
		LastPage:      browser.CSS("ul.pagination-left li:last-child"),
		Cards:         browser.CSS("div.catalog-list-cards div.catalog-list-card"),
		CardLink:      browser.CSS("div.catalog-list-card-image a"),
		NextPage:      browser.CSS("ul.pagination-right li:last-child a"),
		DetailReady:   browser.CSS("div.catalog-detail-header-title"),
		Fields: []FieldLocator{
			{Field: models.FieldTitle, Locator: browser.CSS("div.catalog-detail-header-title h1")},
			{Field: models.FieldAuthor, Locator: browser.CSS("div.catalog-detail-header-author a")},
			{Field: models.FieldDescription, Locator: browser.CSS("div.catalog-detail-tabs-content-item")},
			// The publisher is a link for most titles and plain text for the rest.
			{Field: models.FieldPublisher, Locator: detailItem("Издательство", "*[self::a or self::span][1]")},
			{Field: models.FieldPublishedYear, Locator: detailItem("Год издания", "span")},
			{Field: models.FieldLanguage, Locator: detailItem("Язык", "span")},
			{Field: models.FieldPageCount, Locator: detailItem("Количество страниц", "span")},
			{Field: models.FieldPrice, Locator: browser.CSS("div.catalog-detail-buy-now")},
		},
	}
}

// Validate checks every locator and that each record field is mapped once.
func (l Layout) Validate() error {
	named := map[string]browser.Locator{
		"consent_ready":  l.ConsentReady,
		"consent_button": l.ConsentButton,
		"last_page":      l.LastPage,
		"cards":          l.Cards,
		"card_link":      l.CardLink,
		"next_page":      l.NextPage,
		"detail_ready":   l.DetailReady,
	}
	for name, loc := range named {
		if err := loc.Validate(); err != nil {
			return fmt.Errorf("layout %s: %w", name, err)
		}
	}

	known := make(map[models.FieldName]bool, len(models.DetailFields))
	for _, name := range models.DetailFields {
		known[name] = true
	}

	seen := make(map[models.FieldName]bool, len(l.Fields))
	for _, fl := range l.Fields {
		if !known[fl.Field] {
			return fmt.Errorf("layout has unknown field %s", fl.Field)
		}
		if err := fl.Locator.Validate(); err != nil {
			return fmt.Errorf("layout field %s: %w", fl.Field, err)
		}
		if seen[fl.Field] {
			return fmt.Errorf("layout field %s mapped twice", fl.Field)
		}
		seen[fl.Field] = true
	}
	for _, name := range models.DetailFields {
		if !seen[name] {
			return fmt.Errorf("layout missing field %s", name)
		}
	}
	return nil
}

// LoadLayout reads a JSON layout from path. Locators the file leaves out keep
// their default values; a fields list in the file replaces the default list.
func LoadLayout(path string) (Layout, error) {
	layout := DefaultLayout()

	data, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("read layout: %w", err)
	}
	if err := json.Unmarshal(data, &layout); err != nil {
		return Layout{}, fmt.Errorf("decode layout %s: %w", path, err)
	}
	if err := layout.Validate(); err != nil {
		return Layout{}, err
	}
	return layout, nil
}
