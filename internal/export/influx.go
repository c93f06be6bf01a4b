// Package export ships run summaries to external time-series stores.
package export

import (
	"context"
	"math"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"

	"github.com/boyarskiy/runledger/internal/errors"
	"github.com/boyarskiy/runledger/internal/model"
)

const (
	MeasurementRun         = "runledger_run"
	MeasurementPerformance = "runledger_performance"
)

// InfluxConfig locates the bucket runs are exported to.
type InfluxConfig struct {
	URL     string        `mapstructure:"url" yaml:"url" json:"url"`
	Token   string        `mapstructure:"token" yaml:"token" json:"-"`
	Org     string        `mapstructure:"org" yaml:"org" json:"org"`
	Bucket  string        `mapstructure:"bucket" yaml:"bucket" json:"bucket"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// Enabled reports whether an export target is configured.
func (c InfluxConfig) Enabled() bool {
	return c.URL != ""
}

// Influx writes run points through the blocking write API.
type Influx struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	bucket   string
}

// NewInflux creates an exporter. URL, org and bucket are required.
func NewInflux(cfg InfluxConfig) (*Influx, error) {
	switch {
	case cfg.URL == "":
		return nil, errors.Wrap(errors.ErrEmptyValue, "influx url")
	case cfg.Org == "":
		return nil, errors.Wrap(errors.ErrEmptyValue, "influx org")
	case cfg.Bucket == "":
		return nil, errors.Wrap(errors.ErrEmptyValue, "influx bucket")
	}

	opts := influxdb2.DefaultOptions()
	if cfg.Timeout > 0 {
		opts.SetHTTPRequestTimeout(timeoutSeconds(cfg.Timeout))
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)
	return &Influx{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		bucket:   cfg.Bucket,
	}, nil
}

// timeoutSeconds converts d to the client's whole-second timeout, rounding up.
// The client treats 0 as no timeout, so any positive d yields at least 1.
func timeoutSeconds(d time.Duration) uint {
	return uint(max(1, math.Ceil(d.Seconds())))
}

// Export writes the run's points. The call returns after the server has
// accepted or rejected the batch.
func (e *Influx) Export(ctx context.Context, run *model.TestRun) error {
	if run == nil {
		return errors.Wrap(errors.ErrEmptyValue, "run is required")
	}

	points := Points(run)
	if err := e.writeAPI.WritePoint(ctx, points...); err != nil {
		return errors.Wrapf(err, "failed to export run %s to influx bucket %s", run.RunID, e.bucket)
	}

	zerolog.Ctx(ctx).Debug().
		Str("run_id", run.RunID).
		Str("bucket", e.bucket).
		Int("points", len(points)).
		Msg("run exported to influx")
	return nil
}

// Close releases the client's idle connections.
func (e *Influx) Close() {
	e.client.Close()
}

// Points converts a run into line-protocol points stamped with the run time.
func Points(run *model.TestRun) []*write.Point {
	tags := map[string]string{"run_id": run.RunID}
	if run.Metadata.Branch != "" {
		tags["branch"] = run.Metadata.Branch
	}

	s := run.Summary
	points := []*write.Point{
		influxdb2.NewPoint(MeasurementRun, tags, map[string]interface{}{
			"total":       s.Total,
			"passed":      s.Passed,
			"failed":      s.Failed,
			"skipped":     s.Skipped,
			"pass_rate":   s.PassRate,
			"duration_ms": s.DurationMS,
			"warnings":    len(run.Warnings),
		}, run.Timestamp),
	}

	if perf := run.Performance; perf != nil {
		points = append(points, influxdb2.NewPoint(MeasurementPerformance, tags, map[string]interface{}{
			"throughput":     perf.Throughput,
			"p50_latency_ms": perf.P50LatencyMS,
			"p95_latency_ms": perf.P95LatencyMS,
			"error_rate":     perf.ErrorRate,
		}, run.Timestamp))
	}

	return points
}
