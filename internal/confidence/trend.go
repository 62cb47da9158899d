package confidence

import (
	"errors"
	"math"

	"github.com/haldanelabs/nightshift/internal/domain"
)

// TrendSlopeEpsilon separates a stable trend from a moving one.
const TrendSlopeEpsilon = 0.01

type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

var ErrTooFewPoints = errors.New("trend analysis requires at least 2 history points")

// Trend summarizes the movement of a confidence history.
type Trend struct {
	Mean        float64        `json:"mean"`
	StdDev      float64        `json:"std_dev"`
	Slope       float64        `json:"slope"`
	Direction   TrendDirection `json:"direction"`
	ElapsedDays float64        `json:"elapsed_days"`
}

// AnalyzeTrend computes mean, population standard deviation and the OLS slope
// of confidence values over index order, plus the elapsed days between the
// first and last entries.
func AnalyzeTrend(history []domain.ConfidenceEntry) (*Trend, error) {
	n := len(history)
	if n < 2 {
		return nil, ErrTooFewPoints
	}

	var sum float64
	for _, e := range history {
		sum += e.Value
	}
	mean := sum / float64(n)

	var varSum float64
	for _, e := range history {
		d := e.Value - mean
		varSum += d * d
	}
	stddev := math.Sqrt(varSum / float64(n))

	// OLS slope with x = 0..n-1.
	xMean := float64(n-1) / 2
	var num, den float64
	for i, e := range history {
		dx := float64(i) - xMean
		num += dx * (e.Value - mean)
		den += dx * dx
	}
	slope := num / den

	dir := TrendStable
	if slope > TrendSlopeEpsilon {
		dir = TrendIncreasing
	} else if slope < -TrendSlopeEpsilon {
		dir = TrendDecreasing
	}

	elapsed := history[n-1].Timestamp.Sub(history[0].Timestamp).Hours() / 24

	return &Trend{
		Mean:        mean,
		StdDev:      stddev,
		Slope:       slope,
		Direction:   dir,
		ElapsedDays: elapsed,
	}, nil
}
