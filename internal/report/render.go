// Package report renders runs, trend summaries and flaky findings into
// durable artifacts.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/boyarskiy/runledger/internal/clock"
	"github.com/boyarskiy/runledger/internal/errors"
	"github.com/boyarskiy/runledger/internal/model"
	"github.com/boyarskiy/runledger/internal/trend"
)

// Format is an output artifact kind.
type Format string

const (
	FormatJSON     Format = "json"
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
	FormatMarkdown Format = "markdown"
	FormatMetrics  Format = "metrics"

	// formatTrend and formatFlaky name the companion exports. They are not
	// requested explicitly; they are produced whenever their data exists.
	formatTrend Format = "trend"
	formatFlaky Format = "flaky"
)

// Formats returns every selectable format in render order.
func Formats() []Format {
	return []Format{FormatJSON, FormatMarkdown, FormatHTML, FormatPDF, FormatMetrics}
}

// ParseFormats validates format names, removing duplicates and returning them
// in render order. Unknown names wrap errors.ErrUnknownFormat.
func ParseFormats(names []string) ([]Format, error) {
	requested := make(map[Format]bool, len(names))
	for _, name := range names {
		f := Format(strings.ToLower(strings.TrimSpace(name)))
		if f == "" {
			continue
		}
		if !isKnown(f) {
			return nil, errors.Wrapf(errors.ErrUnknownFormat, "%q (expected one of %s)", name, formatList())
		}
		requested[f] = true
	}

	formats := make([]Format, 0, len(requested))
	for _, f := range Formats() {
		if requested[f] {
			formats = append(formats, f)
		}
	}
	return formats, nil
}

func isKnown(f Format) bool {
	for _, known := range Formats() {
		if f == known {
			return true
		}
	}
	return false
}

func formatList() string {
	names := make([]string, 0, len(Formats()))
	for _, f := range Formats() {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// Input is everything a report can show. Trend and Flaky are nil when they
// were not computed; an empty non-nil Flaky means detection found nothing.
// History holds the stored runs Trend was summarized from.
type Input struct {
	Run     *model.TestRun
	Trend   *model.TrendSummary
	History []trend.Record
	Flaky   []model.FlakyTestRecord
}

// Artifact is one rendered file.
type Artifact struct {
	Format Format
	Name   string
	Data   []byte
}

// Failure records a format that could not be rendered.
type Failure struct {
	Format Format
	Err    error
}

func (f Failure) String() string {
	return fmt.Sprintf("%s: %v", f.Format, f.Err)
}

// Output is the result of a Render call. A failed format never affects the
// others.
type Output struct {
	Artifacts []Artifact
	Failures  []Failure
}

// Renderer turns an Input into artifacts.
type Renderer struct {
	// Archiver produces the print/archival artifact. Nil means unavailable.
	Archiver Archiver

	// Clock stamps generated_at. Defaults to the system clock.
	Clock clock.Clock
}

// Render produces one artifact per requested format plus the trend and
// flaky exports when that data is present. Unknown formats are rejected
// before anything is rendered.
func (r *Renderer) Render(ctx context.Context, in Input, formats []Format) (*Output, error) {
	if in.Run == nil {
		return nil, errors.Wrap(errors.ErrEmptyValue, "run is required")
	}
	for _, f := range formats {
		if !isKnown(f) {
			return nil, errors.Wrapf(errors.ErrUnknownFormat, "%q", f)
		}
	}

	log := zerolog.Ctx(ctx)
	c := r.Clock
	if c == nil {
		c = clock.RealClock{}
	}
	doc := NewDocument(in, c.Now())

	requested := make(map[Format]bool, len(formats))
	for _, f := range formats {
		requested[f] = true
	}

	out := &Output{}
	add := func(f Format, name string, data []byte, err error) {
		if err != nil {
			log.Warn().Err(err).Str("format", string(f)).Msg("format failed to render")
			out.Failures = append(out.Failures, Failure{Format: f, Err: err})
			return
		}
		out.Artifacts = append(out.Artifacts, Artifact{Format: f, Name: name, Data: data})
	}

	if requested[FormatJSON] {
		data, err := MarshalJSON(doc)
		add(FormatJSON, "report.json", data, err)
	}

	markdown := RenderMarkdown(doc)
	if requested[FormatMarkdown] {
		add(FormatMarkdown, "report.md", []byte(markdown), nil)
	}

	if requested[FormatHTML] || requested[FormatPDF] {
		html, err := RenderHTML(markdown, doc)
		if requested[FormatHTML] {
			add(FormatHTML, "report.html", html, err)
		}
		if requested[FormatPDF] {
			if err != nil {
				add(FormatPDF, "report.pdf", nil, errors.Wrap(err, "pdf depends on html"))
			} else {
				pdf, err := r.archive(ctx, html)
				add(FormatPDF, "report.pdf", pdf, err)
			}
		}
	}

	if requested[FormatMetrics] {
		data, err := RenderMetrics(doc)
		add(FormatMetrics, "runledger.prom", data, err)
	}

	if in.Trend != nil {
		data, err := MarshalTrend(in.Trend, in.History)
		add(formatTrend, "trend.json", data, err)
	}
	if in.Flaky != nil {
		data, err := marshalIndent(in.Flaky)
		add(formatFlaky, "flaky.json", data, err)
	}

	return out, nil
}

func (r *Renderer) archive(ctx context.Context, html []byte) ([]byte, error) {
	if r.Archiver == nil {
		return nil, errors.Wrap(errors.ErrArchiverUnavailable, "no archiver configured")
	}
	if err := r.Archiver.Available(); err != nil {
		return nil, err
	}
	return r.Archiver.Archive(ctx, html)
}

// formatDuration formats milliseconds in a human-readable way.
func formatDuration(ms float64) string {
	d := time.Duration(ms * float64(time.Millisecond))
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	secs := d.Seconds()
	if secs < 60 {
		return fmt.Sprintf("%.1fs", secs)
	}
	return fmt.Sprintf("%.1fm", secs/60)
}

func formatPercent(rate float64) string {
	return fmt.Sprintf("%.1f%%", rate*100)
}
