package filtering

import (
	"context"
	"strconv"

	"github.com/spigell/yojana-matcher/internal/recommend"
)

type minimumPercentFilter struct {
	threshold float64
	disabled  bool
	reason    string
}

// NewMinimumPercent drops candidates whose percent match is below threshold.
func NewMinimumPercent(threshold float64) Filter {
	f := &minimumPercentFilter{threshold: threshold}
	if threshold <= 0 {
		f.Disable("no threshold configured")
	}
	return f
}

func (f *minimumPercentFilter) Name() string { return "minimum_percent" }

func (f *minimumPercentFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *minimumPercentFilter) IsEnabled() bool { return !f.disabled }

func (f *minimumPercentFilter) Apply(_ context.Context, candidates []recommend.Candidate) ([]recommend.Candidate, Step, error) {
	kept, dropped := keep(candidates, func(c recommend.Candidate) bool {
		return c.PercentMatch >= f.threshold
	})
	return kept, Step{Initial: len(candidates), Dropped: len(dropped), Left: len(kept)}, nil
}

func (f *minimumPercentFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{"minimum_percent": strconv.FormatFloat(f.threshold, 'f', 1, 64)},
	}
}
