package rollnumber

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signbridge/internal/platform/logger"
	"signbridge/internal/profile/models"
	"signbridge/internal/profile/store"
)

type fakeChecker struct {
	mu      sync.Mutex
	taken   map[string]bool
	failFor int
	calls   []string
}

func (f *fakeChecker) ExistsRollNumber(_ context.Context, n string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, n)
	if f.failFor > 0 {
		f.failFor--
		return false, errors.New("connection reset")
	}
	return f.taken[n], nil
}

func seeded() Option {
	return WithRand(rand.New(rand.NewPCG(1, 2)))
}

func TestAllocateReturnsSixDigitsInRange(t *testing.T) {
	a := New(&fakeChecker{}, WithLogger(logger.Discard()))
	for range 500 {
		n, err := a.Allocate(context.Background())
		require.NoError(t, err)
		require.True(t, models.ValidRollNumber(n), "got %q", n)
	}
}

func TestAllocateSkipsTakenValues(t *testing.T) {
	// replay the seeded sequence to learn the first draws, then mark them taken
	replay := New(&fakeChecker{}, seeded())
	first, err := replay.Allocate(context.Background())
	require.NoError(t, err)

	checker := &fakeChecker{taken: map[string]bool{first: true}}
	a := New(checker, seeded(), WithLogger(logger.Discard()))

	got, err := a.Allocate(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first, got)
	assert.Len(t, checker.calls, 2)
	assert.Equal(t, first, checker.calls[0])
}

func TestAllocateTreatsCheckErrorsAsTaken(t *testing.T) {
	checker := &fakeChecker{failFor: 3}
	a := New(checker, WithLogger(logger.Discard()))

	got, err := a.Allocate(context.Background())
	require.NoError(t, err)
	assert.Len(t, checker.calls, 4)
	assert.Equal(t, checker.calls[3], got)
}

func TestAllocateStopsWhenContextDone(t *testing.T) {
	checker := &fakeChecker{failFor: 1 << 30}
	a := New(checker, WithLogger(logger.Discard()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Allocate(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAllocateIsSafeForConcurrentUse(t *testing.T) {
	a := New(&fakeChecker{}, WithLogger(logger.Discard()))
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				n, err := a.Allocate(context.Background())
				assert.NoError(t, err)
				assert.True(t, models.ValidRollNumber(n))
			}
		}()
	}
	wg.Wait()
}

func TestSequentialAllocationsAreDistinct(t *testing.T) {
	ctx := context.Background()
	profiles := store.NewInMemory()
	a := New(profiles, seeded(), WithLogger(logger.Discard()))

	const n = 2000
	seen := make(map[string]bool, n)
	for i := range n {
		roll, err := a.Allocate(ctx)
		require.NoError(t, err)
		require.True(t, models.ValidRollNumber(roll), "got %q", roll)
		require.False(t, seen[roll], "roll number %s issued twice", roll)
		seen[roll] = true

		require.NoError(t, profiles.Upsert(ctx, &models.Profile{
			ID:         fmt.Sprintf("id-%d", i),
			Email:      fmt.Sprintf("member%d@example.com", i),
			Role:       models.RoleDeaf,
			RollNumber: roll,
		}))
	}
	assert.Len(t, seen, n)
}
