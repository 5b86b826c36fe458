// Package resources builds the read-only state shared by every ranking call
// and hands it out once it is ready.
package resources

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spigell/yojana-matcher/internal/catalog"
	"github.com/spigell/yojana-matcher/internal/eligibility"
	"github.com/spigell/yojana-matcher/internal/search"
)

// ErrNotReady wraps the cause of a failed initialisation.
var ErrNotReady = errors.New("resources not ready")

// Set is immutable once built.
type Set struct {
	Store    catalog.Store
	Searcher search.Searcher
	Engine   *eligibility.Engine
	Count    int
	LoadedAt time.Time
}

// BuildFunc constructs a Set. It is called at most once at a time.
type BuildFunc func(ctx context.Context) (*Set, error)

// Loader initialises a Set lazily. Concurrent first callers share a single
// build; a failed build is reported to all of them and retried by the next
// call.
type Loader struct {
	build  BuildFunc
	logger *zap.Logger

	group   singleflight.Group
	current atomic.Pointer[Set]
}

func NewLoader(build BuildFunc, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{build: build, logger: logger}
}

// Get returns the ready Set, building it on first use.
func (l *Loader) Get(ctx context.Context) (*Set, error) {
	if set := l.current.Load(); set != nil {
		return set, nil
	}

	ch := l.group.DoChan("resources", func() (any, error) {
		if set := l.current.Load(); set != nil {
			return set, nil
		}

		started := time.Now()
		set, err := l.build(context.WithoutCancel(ctx))
		if err != nil {
			l.logger.Error("failed to load resources", zap.Error(err))
			return nil, err
		}
		if set == nil {
			return nil, errors.New("resource builder returned nothing")
		}
		if set.LoadedAt.IsZero() {
			set.LoadedAt = time.Now()
		}

		l.current.Store(set)
		l.logger.Info("resources loaded",
			zap.Int("schemes", set.Count),
			zap.Duration("took", time.Since(started)),
		)
		return set, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotReady, res.Err)
		}
		return res.Val.(*Set), nil
	}
}

// Prefetch starts a build in the background.
func (l *Loader) Prefetch(ctx context.Context) {
	go func() {
		if _, err := l.Get(ctx); err != nil {
			l.logger.Warn("resource prefetch failed", zap.Error(err))
		}
	}()
}

// Ready reports whether a Set has been built.
func (l *Loader) Ready() bool {
	return l.current.Load() != nil
}

// Current returns the built Set or nil.
func (l *Loader) Current() *Set {
	return l.current.Load()
}
