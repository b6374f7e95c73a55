package topics

import (
	"context"
	"fmt"
	"math"
)

// TrendLabel classifies a topic's growth trajectory.
type TrendLabel string

const (
	TrendRapidlyEmerging  TrendLabel = "rapidly-emerging"
	TrendEmerging         TrendLabel = "emerging"
	TrendStable           TrendLabel = "stable"
	TrendDeclining        TrendLabel = "declining"
	TrendInsufficientData TrendLabel = "insufficient-data"
)

// Growth is a growth prediction for one topic.
type Growth struct {
	TopicID    string     `json:"topic_id"`
	Label      TrendLabel `json:"label"`
	DailyRate  float64    `json:"daily_rate"`
	Confidence float64    `json:"confidence"`
	DataPoints int        `json:"data_points"`
}

// PredictGrowth fits log(count+1) against the day index by least
// squares over the topic's daily artifact counts. The +1 keeps empty
// days in the fit. Daily growth rate is e^b - 1; confidence is the
// squared Pearson correlation of the fit.
func (e *Engine) PredictGrowth(ctx context.Context, topicID string) (Growth, error) {
	counts, err := e.store.TopicDailyCounts(ctx, topicID, e.cfg.WindowDays)
	if err != nil {
		return Growth{}, fmt.Errorf("topic daily counts: %w", err)
	}

	g := Growth{TopicID: topicID, DataPoints: len(counts)}
	if len(counts) < e.cfg.MinGrowthPoints {
		g.Label = TrendInsufficientData
		return g, nil
	}

	_, b, r2 := fitLogCounts(counts)
	g.DailyRate = math.Exp(b) - 1
	g.Confidence = r2
	g.Label = labelRate(g.DailyRate)
	return g, nil
}

func labelRate(rate float64) TrendLabel {
	switch {
	case rate > 0.05:
		return TrendRapidlyEmerging
	case rate > 0.01:
		return TrendEmerging
	case rate >= -0.01:
		return TrendStable
	default:
		return TrendDeclining
	}
}

// fitLogCounts returns the intercept, slope, and r-squared of the
// least-squares line through (dayIndex, log(count+1)).
func fitLogCounts(counts []int) (a, b, r2 float64) {
	n := float64(len(counts))

	var sumX, sumY, sumXY, sumXX, sumYY float64
	for i, count := range counts {
		x := float64(i)
		y := math.Log(float64(count) + 1)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
		sumYY += y * y
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return sumY / n, 0, 0
	}
	b = (n*sumXY - sumX*sumY) / denom
	a = (sumY - b*sumX) / n

	varY := n*sumYY - sumY*sumY
	if varY == 0 {
		// A flat series fits perfectly with zero slope.
		return a, b, 1
	}
	r := (n*sumXY - sumX*sumY) / math.Sqrt(denom*varY)
	return a, b, r * r
}
