// Package models defines data structures for the scraper.
package models

import (
	"encoding/json"
	"time"
)

// NotAvailable is written in place of a field the detail page did not carry.
const NotAvailable = "Not Available"

// FieldName identifies one extracted detail-page field.
type FieldName string

const (
	FieldTitle         FieldName = "title"
	FieldAuthor        FieldName = "author"
	FieldDescription   FieldName = "description"
	FieldPublisher     FieldName = "publisher"
	FieldPublishedYear FieldName = "published_year"
	FieldLanguage      FieldName = "language"
	FieldPageCount     FieldName = "page_count"
	FieldPrice         FieldName = "price"
)

// DetailFields lists the extracted fields in output column order.
var DetailFields = []FieldName{
	FieldTitle,
	FieldAuthor,
	FieldDescription,
	FieldPublisher,
	FieldPublishedYear,
	FieldLanguage,
	FieldPageCount,
	FieldPrice,
}

// Field is an optionally present text value.
type Field struct {
	Value   string
	Present bool
}

// Present wraps a value found on the page.
func Present(value string) Field {
	return Field{Value: value, Present: true}
}

// Absent is the zero Field.
var Absent = Field{}

// Or returns the value, or fallback when the field is absent.
func (f Field) Or(fallback string) string {
	if !f.Present {
		return fallback
	}
	return f.Value
}

// MarshalJSON encodes absent fields as null.
func (f Field) MarshalJSON() ([]byte, error) {
	if !f.Present {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// UnmarshalJSON decodes null as an absent field.
func (f *Field) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = Absent
		return nil
	}
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	*f = Present(value)
	return nil
}

// BookRecord is one scraped product detail page.
type BookRecord struct {
	Title         Field     `json:"title"`
	Author        Field     `json:"author"`
	Description   Field     `json:"description"`
	Publisher     Field     `json:"publisher"`
	PublishedYear Field     `json:"published_year"`
	Language      Field     `json:"language"`
	PageCount     Field     `json:"page_count"`
	Price         Field     `json:"price"`
	SourceURL     string    `json:"url"`
	ScrapedAt     time.Time `json:"scraped_at"`
}

// NewBookRecord builds a record from extracted fields. Names missing from
// fields are absent.
func NewBookRecord(sourceURL string, fields map[FieldName]Field, scrapedAt time.Time) BookRecord {
	return BookRecord{
		Title:         fields[FieldTitle],
		Author:        fields[FieldAuthor],
		Description:   fields[FieldDescription],
		Publisher:     fields[FieldPublisher],
		PublishedYear: fields[FieldPublishedYear],
		Language:      fields[FieldLanguage],
		PageCount:     fields[FieldPageCount],
		Price:         fields[FieldPrice],
		SourceURL:     sourceURL,
		ScrapedAt:     scrapedAt,
	}
}

// Get returns the named field.
func (b BookRecord) Get(name FieldName) Field {
	switch name {
	case FieldTitle:
		return b.Title
	case FieldAuthor:
		return b.Author
	case FieldDescription:
		return b.Description
	case FieldPublisher:
		return b.Publisher
	case FieldPublishedYear:
		return b.PublishedYear
	case FieldLanguage:
		return b.Language
	case FieldPageCount:
		return b.PageCount
	case FieldPrice:
		return b.Price
	default:
		return Absent
	}
}

// ScraperResult holds the overall result of a scraping run.
type ScraperResult struct {
	StartTime     time.Time
	EndTime       time.Time
	PagesPlanned  int
	PageCount     int
	RecordCount   int
	MissingFields map[string]int
}
