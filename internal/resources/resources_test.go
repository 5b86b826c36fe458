package resources

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/yojana-matcher/internal/catalog"
)

func TestLoaderBuildsOnceForConcurrentCallers(t *testing.T) {
	var builds atomic.Int32
	release := make(chan struct{})

	loader := NewLoader(func(context.Context) (*Set, error) {
		builds.Add(1)
		<-release
		return &Set{Store: catalog.NewMemoryStore(nil), Count: 3}, nil
	}, nil)
	assert.False(t, loader.Ready())

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*Set, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			set, err := loader.Get(context.Background())
			assert.NoError(t, err)
			results[i] = set
		}(i)
	}

	// Let the goroutines join the in-flight build before it finishes.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load())
	for _, set := range results {
		assert.Same(t, results[0], set)
	}
	assert.True(t, loader.Ready())
	assert.False(t, loader.Current().LoadedAt.IsZero())

	again, err := loader.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, results[0], again)
	assert.Equal(t, int32(1), builds.Load())
}

func TestLoaderReportsAndRetriesFailures(t *testing.T) {
	cause := errors.New("dataset missing")
	var attempts atomic.Int32

	loader := NewLoader(func(context.Context) (*Set, error) {
		if attempts.Add(1) == 1 {
			return nil, cause
		}
		return &Set{Count: 1}, nil
	}, nil)

	_, err := loader.Get(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotReady))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, loader.Ready())
	assert.Nil(t, loader.Current())

	set, err := loader.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, set.Count)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestLoaderRespectsCallerContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	loader := NewLoader(func(context.Context) (*Set, error) {
		<-release
		return &Set{}, nil
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := loader.Get(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestPrefetch(t *testing.T) {
	loader := NewLoader(func(context.Context) (*Set, error) {
		return &Set{Count: 2}, nil
	}, nil)

	loader.Prefetch(context.Background())
	assert.Eventually(t, loader.Ready, time.Second, 5*time.Millisecond)
}
