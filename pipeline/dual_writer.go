package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

// Output formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatDual = "dual"
)

// OutputPaths returns the files format writes for filename, CSV first. A
// .csv, .json or .jsonl extension on filename is swapped for the format's own.
func OutputPaths(format, filename string) ([]string, error) {
	base := filename
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".json", ".jsonl":
		base = strings.TrimSuffix(filename, filepath.Ext(filename))
	}

	switch format {
	case FormatCSV:
		return []string{base + ".csv"}, nil
	case FormatJSON:
		return []string{base + ".json"}, nil
	case FormatDual:
		return []string{base + ".csv", base + ".json"}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// NewWriter opens the writer for format at the paths OutputPaths derives.
func NewWriter(format, filename string) (OutputWriter, error) {
	paths, err := OutputPaths(format, filename)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatCSV:
		return NewCSVWriter(paths[0])
	case FormatJSON:
		return NewJSONWriter(paths[0])
	default:
		return NewDualWriter(paths[0], paths[1])
	}
}

// DualWriter writes each batch to the CSV file and then to the JSON Lines
// file. Records reach both files in the same order.
type DualWriter struct {
	csv  *CSVWriter
	json *JSONWriter
}

// NewDualWriter creates both files. If the JSON file cannot be created the CSV
// file is closed again.
func NewDualWriter(csvFilename, jsonFilename string) (*DualWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, err
	}
	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		return nil, errors.Join(err, csvWriter.Close())
	}
	return &DualWriter{csv: csvWriter, json: jsonWriter}, nil
}

// Write stops at the first file that fails, so the JSON file never holds a
// batch the CSV file is missing.
func (dw *DualWriter) Write(records []models.BookRecord) error {
	if err := dw.csv.Write(records); err != nil {
		return fmt.Errorf("csv: %w", err)
	}
	if err := dw.json.Write(records); err != nil {
		return fmt.Errorf("json: %w", err)
	}
	return nil
}

func (dw *DualWriter) Close() error {
	return errors.Join(dw.csv.Close(), dw.json.Close())
}

func (dw *DualWriter) Validate() error {
	return errors.Join(dw.csv.Validate(), dw.json.Validate())
}
