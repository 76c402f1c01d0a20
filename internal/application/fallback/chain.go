// Package fallback runs an ordered list of strategies until one succeeds.
package fallback

import (
	"context"
	"errors"
	"log/slog"
)

// Strategy is one way of producing O from I.
type Strategy[I, O any] interface {
	Name() string
	Attempt(ctx context.Context, in I) (O, error)
}

// Func adapts a plain function into a Strategy.
type Func[I, O any] struct {
	Label string
	Fn    func(ctx context.Context, in I) (O, error)
}

func (f Func[I, O]) Name() string { return f.Label }

func (f Func[I, O]) Attempt(ctx context.Context, in I) (O, error) { return f.Fn(ctx, in) }

// Chain tries strategies in order. Recoverable decides whether a failure
// moves on to the next strategy; nil treats every error as recoverable.
// Only the last error is returned when all strategies fail.
type Chain[I, O any] struct {
	Name        string
	Strategies  []Strategy[I, O]
	Recoverable func(error) bool
	Logger      *slog.Logger
}

// ErrNoStrategy is returned by a chain with nothing to try.
var ErrNoStrategy = errors.New("fallback: no strategy configured")

func (c *Chain[I, O]) Run(ctx context.Context, in I) (O, error) {
	var zero O
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lastErr := ErrNoStrategy
	for i, s := range c.Strategies {
		out, err := s.Attempt(ctx, in)
		if err == nil {
			if i > 0 {
				logger.Info("fallback.used", "chain", c.Name, "strategy", s.Name(), "position", i)
			}
			return out, nil
		}
		lastErr = err
		if c.Recoverable != nil && !c.Recoverable(err) {
			logger.Warn("fallback.abort", "chain", c.Name, "strategy", s.Name(), "error", err)
			return zero, err
		}
		logger.Warn("fallback.attempt_failed", "chain", c.Name, "strategy", s.Name(), "error", err)
	}
	return zero, lastErr
}
