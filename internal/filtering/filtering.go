// Package filtering applies optional post-ranking steps to a candidate list.
package filtering

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/yojana-matcher/internal/recommend"
)

// Filter is a single step applied to ranked candidates. Steps never reorder
// the list.
type Filter interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Apply(ctx context.Context, candidates []recommend.Candidate) ([]recommend.Candidate, Step, error)
}

// Step describes the result of executing a filtering step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
	Details map[string]string
}

type statusProvider interface {
	Status() Status
}

// Filtering runs a fixed list of steps.
type Filtering struct {
	steps  []Filter
	logger *zap.Logger
}

func New(steps []Filter, logger *zap.Logger) *Filtering {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Filtering{steps: steps, logger: logger}
}

// DisableByName marks a step as disabled while keeping it in the list.
func (f *Filtering) DisableByName(name, reason string) {
	for _, step := range f.steps {
		if step.Name() == name {
			step.Disable(reason)
		}
	}
}

// Run executes the enabled steps in order.
func (f *Filtering) Run(ctx context.Context, candidates []recommend.Candidate) ([]recommend.Candidate, error) {
	for _, step := range f.steps {
		if !step.IsEnabled() {
			f.logger.Debug("filter disabled", zap.String("name", step.Name()))
			continue
		}

		next, info, err := step.Apply(ctx, candidates)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}

		f.logger.Info("filter step",
			zap.String("name", step.Name()),
			zap.Int("initial", info.Initial),
			zap.Int("dropped", info.Dropped),
			zap.Int("left", info.Left),
		)
		candidates = next
	}
	return candidates, nil
}

// Describe returns status entries for every step.
func (f *Filtering) Describe() []Status {
	statuses := make([]Status, 0, len(f.steps))
	for _, step := range f.steps {
		if reporter, ok := step.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}
		statuses = append(statuses, Status{Name: step.Name(), Enabled: step.IsEnabled()})
	}
	return statuses
}

// keep returns the candidates for which pred holds, plus the dropped ids.
func keep(candidates []recommend.Candidate, pred func(recommend.Candidate) bool) ([]recommend.Candidate, []string) {
	kept := make([]recommend.Candidate, 0, len(candidates))
	var dropped []string
	for _, c := range candidates {
		if pred(c) {
			kept = append(kept, c)
			continue
		}
		dropped = append(dropped, c.SchemeID)
	}
	return kept, dropped
}
