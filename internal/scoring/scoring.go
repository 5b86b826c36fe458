// Package scoring merges the rule score, the semantic score and the freshness
// penalty of a candidate into a single ranking score.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// ErrInvalidWeight is returned when a weight is outside [0, 1].
var ErrInvalidWeight = errors.New("weight must be within [0, 1]")

const (
	// weightEpsilon is the tolerance for Rule+Semantic summing to one.
	weightEpsilon = 1e-9

	// FreshnessWindow is the age up to which a record carries no penalty.
	FreshnessWindow = 365

	PenaltyFresh   = 0.0
	PenaltyStale   = 0.1
	PenaltyUnknown = 0.05

	dateLayout = "2006-01-02"
)

// Weights controls how R, S and F are blended.
type Weights struct {
	Rule      float64 `json:"rule" mapstructure:"rule"`
	Semantic  float64 `json:"semantic" mapstructure:"semantic"`
	Freshness float64 `json:"freshness" mapstructure:"freshness"`
}

// FallbackWeights replace Rule and Semantic when both are zero.
func FallbackWeights() Weights {
	return Weights{Rule: 0.6, Semantic: 0.3, Freshness: 0.1}
}

// DefaultWeights are used when a request does not supply any.
func DefaultWeights() Weights {
	return Weights{Rule: 0.6, Semantic: 0.4, Freshness: 0.1}
}

// Validate rejects weights outside [0, 1].
func (w Weights) Validate() error {
	for _, item := range []struct {
		name  string
		value float64
	}{
		{"rule", w.Rule},
		{"semantic", w.Semantic},
		{"freshness", w.Freshness},
	} {
		if math.IsNaN(item.value) || item.value < 0 || item.value > 1 {
			return fmt.Errorf("%s weight %v: %w", item.name, item.value, ErrInvalidWeight)
		}
	}
	return nil
}

// Normalize validates the weights and rescales Rule and Semantic to sum to one.
// Freshness is left untouched.
func (w Weights) Normalize() (Weights, error) {
	if err := w.Validate(); err != nil {
		return Weights{}, err
	}

	total := w.Rule + w.Semantic
	if total == 0 {
		return FallbackWeights(), nil
	}

	if math.Abs(total-1) > weightEpsilon {
		w.Rule /= total
		w.Semantic /= total
	}
	w.Rule = clamp01(w.Rule)
	w.Semantic = clamp01(w.Semantic)
	return w, nil
}

// Score is the combined outcome for one candidate.
type Score struct {
	R            float64 `json:"R"`
	S            float64 `json:"S"`
	F            float64 `json:"F"`
	Final        float64 `json:"final_score"`
	PercentMatch float64 `json:"percent_match"`
}

// Combine blends the three signals with already normalized weights.
func Combine(r, s, f float64, w Weights) Score {
	final := clamp01(w.Rule*r + w.Semantic*s - w.Freshness*f)
	return Score{
		R:            r,
		S:            s,
		F:            f,
		Final:        final,
		PercentMatch: Percent(final),
	}
}

// Percent scales a score to 0..100 rounded to one decimal, ties to even.
func Percent(final float64) float64 {
	return math.RoundToEven(final*1000) / 10
}

// FreshnessPenalty returns 0 for records updated within a year of now, 0.1 for
// older ones and 0.05 when the date is missing or unparsable. Anything after a
// "T" in the timestamp is ignored.
func FreshnessPenalty(lastUpdated string, now time.Time) float64 {
	value := strings.TrimSpace(lastUpdated)
	if idx := strings.IndexByte(value, 'T'); idx >= 0 {
		value = value[:idx]
	}
	if value == "" {
		return PenaltyUnknown
	}

	date, err := time.ParseInLocation(dateLayout, value, time.UTC)
	if err != nil {
		return PenaltyUnknown
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	ageDays := int(today.Sub(date).Hours() / 24)
	if ageDays <= FreshnessWindow {
		return PenaltyFresh
	}
	return PenaltyStale
}

// Rank sorts items by score descending, keeping input order for ties, and
// truncates the result to topK. A topK <= 0 keeps everything.
func Rank[T any](items []T, score func(T) float64, topK int) []T {
	sorted := make([]T, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return score(sorted[i]) > score(sorted[j])
	})
	if topK > 0 && len(sorted) > topK {
		sorted = sorted[:topK]
	}
	return sorted
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
