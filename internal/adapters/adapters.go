// Package adapters holds the pieces shared by the per-suite document adapters.
package adapters

import (
	"fmt"
	"math"
	"os"

	"github.com/boyarskiy/runledger/internal/errors"
	"github.com/boyarskiy/runledger/internal/model"
)

// ParseError provides actionable error information for parsing failures.
// It unwraps to the underlying read error when there is one, and to
// errors.ErrMalformedDocument otherwise.
type ParseError struct {
	File    string
	Message string
	Action  string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s: %s. %s", e.File, e.Message, e.Action)
}

// Unwrap exposes the cause for errors.Is.
func (e *ParseError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return errors.ErrMalformedDocument
}

// Malformed builds a ParseError for a document that does not match its schema.
func Malformed(file, action, format string, args ...any) *ParseError {
	return &ParseError{
		File:    file,
		Message: fmt.Sprintf(format, args...),
		Action:  action,
	}
}

// ReadDocument reads a suite document. A missing file keeps its fs.ErrNotExist
// cause; a zero-byte file is malformed.
func ReadDocument(path, tool string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{
			File:    path,
			Message: fmt.Sprintf("failed to read file: %v", err),
			Action:  fmt.Sprintf("Ensure %s completed and wrote its report to this path.", tool),
			Err:     err,
		}
	}

	if len(data) == 0 {
		return nil, Malformed(path,
			fmt.Sprintf("Ensure %s completed successfully. The report file should not be empty.", tool),
			"file is empty")
	}

	return data, nil
}

// ValidDuration reports whether ms is a usable duration: finite and not negative.
func ValidDuration(ms float64) bool {
	return ms >= 0 && !math.IsInf(ms, 1)
}

// Collector accumulates results keyed by test name. A repeated name replaces
// the earlier result in place, so retries resolve to the last occurrence while
// the output keeps the order in which names first appeared.
type Collector struct {
	index   map[string]int
	results []model.TestResult
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{index: make(map[string]int)}
}

// Add records a result.
func (c *Collector) Add(r model.TestResult) {
	if i, ok := c.index[r.Name]; ok {
		c.results[i] = r
		return
	}
	c.index[r.Name] = len(c.results)
	c.results = append(c.results, r)
}

// Results returns the collected results. The slice is never nil.
func (c *Collector) Results() []model.TestResult {
	if c.results == nil {
		return []model.TestResult{}
	}
	return c.results
}

// Len returns the number of distinct tests collected.
func (c *Collector) Len() int {
	return len(c.results)
}
