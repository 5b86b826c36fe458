package scoring

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   Weights
		want Weights
	}{
		{name: "already normalized", in: Weights{Rule: 0.6, Semantic: 0.4, Freshness: 0.1}, want: Weights{Rule: 0.6, Semantic: 0.4, Freshness: 0.1}},
		{name: "rescaled", in: Weights{Rule: 0.3, Semantic: 0.1, Freshness: 0.5}, want: Weights{Rule: 0.75, Semantic: 0.25, Freshness: 0.5}},
		{name: "zero falls back", in: Weights{Freshness: 0.9}, want: Weights{Rule: 0.6, Semantic: 0.3, Freshness: 0.1}},
		{name: "over one", in: Weights{Rule: 1, Semantic: 1}, want: Weights{Rule: 0.5, Semantic: 0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Normalize()
			require.NoError(t, err)
			assert.InDelta(t, tt.want.Rule, got.Rule, 1e-12)
			assert.InDelta(t, tt.want.Semantic, got.Semantic, 1e-12)
			assert.InDelta(t, tt.want.Freshness, got.Freshness, 1e-12)
		})
	}
}

func TestNormalizeRejectsInvalidWeights(t *testing.T) {
	for _, w := range []Weights{
		{Rule: -0.1, Semantic: 0.5},
		{Rule: 0.5, Semantic: 1.5},
		{Rule: 0.5, Semantic: 0.5, Freshness: 2},
	} {
		_, err := w.Normalize()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidWeight))
	}
}

func TestCombine(t *testing.T) {
	t.Run("perfect candidate", func(t *testing.T) {
		w, err := Weights{Rule: 0.6, Semantic: 0.4, Freshness: 0.1}.Normalize()
		require.NoError(t, err)

		got := Combine(1, 1, 0, w)
		assert.Equal(t, 1.0, got.Final)
		assert.Equal(t, 100.0, got.PercentMatch)
	})

	t.Run("clamped at zero", func(t *testing.T) {
		w, err := Weights{Rule: 0.6, Semantic: 0.3, Freshness: 0.1}.Normalize()
		require.NoError(t, err)

		got := Combine(0, 0, 1, w)
		assert.Equal(t, 0.0, got.Final)
		assert.Equal(t, 0.0, got.PercentMatch)
	})

	t.Run("mixed", func(t *testing.T) {
		got := Combine(0.5, 0.8, 0.1, DefaultWeights())
		assert.InDelta(t, 0.6*0.5+0.4*0.8-0.1*0.1, got.Final, 1e-12)
		assert.Equal(t, 61.0, got.PercentMatch)
	})
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 12.3, Percent(0.12345))
	assert.Equal(t, 66.7, Percent(2.0/3.0))
	assert.Equal(t, 0.0, Percent(0))
}

func TestPercentRoundsHalfToEven(t *testing.T) {
	assert.Equal(t, 6.2, Percent(0.0625))
	assert.Equal(t, 18.8, Percent(0.1875))
}

func TestFreshnessPenalty(t *testing.T) {
	now := time.Date(2024, 6, 15, 13, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   string
		want float64
	}{
		{name: "exactly a year", in: "2023-06-16", want: 0.0},
		{name: "one day over", in: "2023-06-15", want: 0.1},
		{name: "recent timestamp", in: "2024-06-01T10:00:00Z", want: 0.0},
		{name: "future", in: "2025-01-01", want: 0.0},
		{name: "old", in: "2019-01-01", want: 0.1},
		{name: "missing", in: "", want: 0.05},
		{name: "unparsable", in: "15/06/2024", want: 0.05},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FreshnessPenalty(tt.in, now))
		})
	}
}

func TestFreshnessBoundaryRelativeToNow(t *testing.T) {
	now := time.Now()
	assert.Equal(t, 0.0, FreshnessPenalty(now.AddDate(0, 0, -365).Format("2006-01-02"), now))
	assert.Equal(t, 0.1, FreshnessPenalty(now.AddDate(0, 0, -366).Format("2006-01-02"), now))
}

func TestRank(t *testing.T) {
	type item struct {
		id    string
		score float64
	}
	items := []item{{"a", 0.5}, {"b", 0.9}, {"c", 0.5}, {"d", 0.7}, {"e", 0.5}}

	got := Rank(items, func(i item) float64 { return i.score }, 4)

	ids := make([]string, 0, len(got))
	for _, i := range got {
		ids = append(ids, i.id)
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids)
	assert.Equal(t, "a", items[0].id, "input is not reordered")

	assert.Len(t, Rank(items, func(i item) float64 { return i.score }, 0), 5)
}
