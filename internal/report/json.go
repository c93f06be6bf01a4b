package report

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/boyarskiy/runledger/internal/model"
	"github.com/boyarskiy/runledger/internal/trend"
)

// SchemaVersion is bumped whenever the structured document changes shape.
const SchemaVersion = 1

// Document is the structured report. The same schema is written to disk and
// returned in-process.
type Document struct {
	SchemaVersion int                     `json:"schema_version"`
	GeneratedAt   time.Time               `json:"generated_at"`
	Run           *model.TestRun          `json:"run"`
	Trend         *model.TrendSummary     `json:"trend,omitempty"`
	Flaky         []model.FlakyTestRecord `json:"flaky,omitempty"`

	// flakyComputed distinguishes "not requested" from "none found".
	flakyComputed bool
}

// NewDocument assembles the structured report.
func NewDocument(in Input, generatedAt time.Time) *Document {
	return &Document{
		SchemaVersion: SchemaVersion,
		GeneratedAt:   generatedAt.UTC(),
		Run:           in.Run,
		Trend:         in.Trend,
		Flaky:         in.Flaky,
		flakyComputed: in.Flaky != nil,
	}
}

// MarshalJSON returns the document as indented JSON.
func MarshalJSON(doc *Document) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("report is required")
	}
	return marshalIndent(doc)
}

func marshalIndent(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return append(data, '\n'), nil
}

// TrendExport is the windowed dump of the trend store: the condensed summary
// plus every stored run in the window with its per-test outcomes.
type TrendExport struct {
	Summary *model.TrendSummary `json:"summary"`
	Runs    []trend.Record      `json:"runs"`
}

// MarshalTrend returns the trend summary and the window's runs as indented JSON.
func MarshalTrend(summary *model.TrendSummary, runs []trend.Record) ([]byte, error) {
	if summary == nil {
		return nil, fmt.Errorf("trend summary is required")
	}
	if runs == nil {
		runs = []trend.Record{}
	}
	return marshalIndent(TrendExport{Summary: summary, Runs: runs})
}
