package quotes

import (
	"fmt"
	"math/rand"

	"github.com/conceptlab/conceptci/internal/statistics"
)

// BoardSummary aggregates the quotes of one concept board.
type BoardSummary struct {
	Total   int `json:"total"`
	Up      int `json:"up"`
	Down    int `json:"down"`
	Flat    int `json:"flat"`
	Stopped int `json:"stopped"`
	Errors  int `json:"errors"`
	// AvgChangePercent is the mean change% of stocks with a live price.
	AvgChangePercent float64 `json:"avgChangePercent"`
	// CI is the bootstrap interval of AvgChangePercent; nil when no stock
	// has a live price.
	CI *statistics.ConfidenceInterval `json:"ci,omitempty"`
}

// SummaryOptions configures the bootstrap interval of a board summary.
// A nil Rand uses a non-deterministic generator.
type SummaryOptions struct {
	Iterations      int
	ConfidenceLevel float64
	Rand            *rand.Rand
}

// Summarize counts movers and estimates the board's average change%.
func Summarize(quotes []Quote, opts SummaryOptions) (BoardSummary, error) {
	s := BoardSummary{Total: len(quotes)}

	var changes []float64
	for _, q := range quotes {
		switch q.Status {
		case StatusStopped:
			s.Stopped++
		case StatusError:
			s.Errors++
		}
		switch q.Direction() {
		case Up:
			s.Up++
		case Down:
			s.Down++
		default:
			s.Flat++
		}
		if q.Status == StatusNormal && q.Price > 0 {
			changes = append(changes, q.ChangePercent)
		}
	}
	if len(changes) == 0 {
		return s, nil
	}

	rng := opts.Rand
	if rng == nil {
		rng = statistics.NewRand(-1)
	}
	ci, err := statistics.BootstrapCI(changes, statistics.Options{
		Iterations:      opts.Iterations,
		ConfidenceLevel: opts.ConfidenceLevel,
		Rand:            rng,
	})
	if err != nil {
		return s, fmt.Errorf("summarizing board: %w", err)
	}
	s.AvgChangePercent = round2(ci.Mean)
	s.CI = &ci
	return s, nil
}
