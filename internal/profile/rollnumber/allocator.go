// Package rollnumber draws six-digit public identifiers for new profiles.
package rollnumber

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"sync"

	"signbridge/internal/platform/metrics"
	"signbridge/internal/profile/models"
)

// ExistenceChecker reports whether a roll number is already taken.
type ExistenceChecker interface {
	ExistsRollNumber(ctx context.Context, rollNumber string) (bool, error)
}

// Allocator draws uniformly from [100000, 999999] until the store reports a free
// value. A failed existence check counts as taken. The loop has no retry bound and
// only stops when ctx is done. The store's unique constraint is the final arbiter:
// a race between check and insert surfaces as a conflict on upsert.
type Allocator struct {
	checker ExistenceChecker
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu  sync.Mutex
	rnd *rand.Rand
}

type Option func(*Allocator)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Allocator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Allocator) {
		a.metrics = m
	}
}

// WithRand replaces the random source, for deterministic draws in tests.
func WithRand(r *rand.Rand) Option {
	return func(a *Allocator) {
		if r != nil {
			a.rnd = r
		}
	}
}

func New(checker ExistenceChecker, opts ...Option) *Allocator {
	a := &Allocator{
		checker: checker,
		logger:  slog.Default(),
		rnd:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Allocator) Allocate(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate := a.draw()
		a.metrics.IncRollNumberDraw()

		exists, err := a.checker.ExistsRollNumber(ctx, candidate)
		if err != nil {
			a.logger.WarnContext(ctx, "roll number existence check failed, drawing again",
				"roll_number", candidate,
				"error", err,
			)
			continue
		}
		if !exists {
			return candidate, nil
		}
	}
}

func (a *Allocator) draw() string {
	a.mu.Lock()
	n := models.RollNumberMin + a.rnd.IntN(models.RollNumberMax-models.RollNumberMin+1)
	a.mu.Unlock()
	return strconv.Itoa(n)
}
