package trend

import (
	"math"

	"github.com/boyarskiy/runledger/internal/model"
)

// Summarize condenses records (oldest first) into a trend summary.
func Summarize(records []Record, days int) *model.TrendSummary {
	summary := &model.TrendSummary{
		WindowDays: days,
		Runs:       len(records),
		Points:     make([]model.TrendPoint, 0, len(records)),
	}
	if len(records) == 0 {
		return summary
	}

	var (
		passRateSum   float64
		durationSum   float64
		throughputSum float64
		p95Sum        float64
		perfRuns      int
	)

	summary.MinPassRate = math.Inf(1)
	summary.MaxPassRate = math.Inf(-1)

	for _, r := range records {
		s := r.Summary
		passRateSum += s.PassRate
		durationSum += s.DurationMS
		summary.TotalFailed += s.Failed
		summary.MinPassRate = math.Min(summary.MinPassRate, s.PassRate)
		summary.MaxPassRate = math.Max(summary.MaxPassRate, s.PassRate)

		if r.Performance != nil {
			perfRuns++
			throughputSum += r.Performance.Throughput
			p95Sum += r.Performance.P95LatencyMS
		}

		summary.Points = append(summary.Points, model.TrendPoint{
			RunID:      r.RunID,
			Timestamp:  r.Timestamp,
			Total:      s.Total,
			Failed:     s.Failed,
			PassRate:   s.PassRate,
			DurationMS: s.DurationMS,
		})
	}

	n := float64(len(records))
	summary.AvgPassRate = round(passRateSum / n)
	summary.AvgDurationMS = round(durationSum / n)
	summary.FirstPassRate = records[0].Summary.PassRate
	summary.LatestPassRate = records[len(records)-1].Summary.PassRate
	summary.PassRateDelta = round(summary.LatestPassRate - summary.FirstPassRate)

	if perfRuns > 0 {
		summary.AvgThroughput = round(throughputSum / float64(perfRuns))
		summary.AvgP95LatencyMS = round(p95Sum / float64(perfRuns))
	}

	return summary
}

func round(v float64) float64 {
	return math.Round(v*10000) / 10000
}
