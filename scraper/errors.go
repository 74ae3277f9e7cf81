package scraper

import (
	"context"
	"errors"
	"fmt"
)

// ErrNavigation indicates a page could not be loaded.
type ErrNavigation struct {
	URL string
	Err error
}

func (e ErrNavigation) Error() string {
	return fmt.Errorf("navigation to %s: %w", e.URL, e.Err).Error()
}

func (e ErrNavigation) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates a wait condition did not hold in time.
type ErrTimeout struct {
	Op  string
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout waiting for %s: %w", e.Op, e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrPageCount indicates the pagination label was not a page number.
type ErrPageCount struct {
	Text string
	Err  error
}

func (e ErrPageCount) Error() string {
	return fmt.Errorf("page count %q: %w", e.Text, e.Err).Error()
}

func (e ErrPageCount) Unwrap() error {
	return e.Err
}

// ErrOutput indicates a record could not be written.
type ErrOutput struct {
	Err error
}

func (e ErrOutput) Error() string {
	return fmt.Errorf("output: %w", e.Err).Error()
}

func (e ErrOutput) Unwrap() error {
	return e.Err
}

// classifyError turns an elapsed deadline under op into ErrTimeout and
// leaves other errors as they are.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Op: op, Err: err}
	}
	return err
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var nav ErrNavigation
	if errors.As(err, &nav) {
		return "navigation"
	}
	var pageCount ErrPageCount
	if errors.As(err, &pageCount) {
		return "page_count"
	}
	var output ErrOutput
	if errors.As(err, &output) {
		return "output"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "other"
}
