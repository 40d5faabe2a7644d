package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

const (
	defaultAttemptTimeout   = 10 * time.Second
	defaultMaxAttempts      = 2
	defaultBreakerFailures  = 5
	defaultBreakerCooldown  = 30 * time.Second
	defaultBreakerHalfOpen  = 1
	defaultBreakerResetSpan = time.Minute
)

// GuardedEmbedder gives an Embedder a bounded-latency contract: every attempt
// has its own timeout, a failed attempt is retried at most once, and a
// circuit breaker rejects calls outright while the provider keeps failing.
type GuardedEmbedder struct {
	inner          Embedder
	attemptTimeout time.Duration
	maxAttempts    int
	failures       uint32
	cooldown       time.Duration
	breaker        *gobreaker.CircuitBreaker
	logger         *slog.Logger
}

var _ Embedder = (*GuardedEmbedder)(nil)

// GuardOption configures a GuardedEmbedder.
type GuardOption func(*GuardedEmbedder) error

// WithAttemptTimeout bounds each call to the wrapped embedder.
func WithAttemptTimeout(d time.Duration) GuardOption {
	return func(g *GuardedEmbedder) error {
		if d <= 0 {
			return errors.New("attempt timeout must be positive")
		}
		g.attemptTimeout = d
		return nil
	}
}

// WithGuardMaxAttempts sets the number of tries per call: 1 disables the retry.
func WithGuardMaxAttempts(n int) GuardOption {
	return func(g *GuardedEmbedder) error {
		if n < 1 || n > 2 {
			return errors.New("max attempts must be 1 or 2")
		}
		g.maxAttempts = n
		return nil
	}
}

// WithBreaker sets how many consecutive failures open the circuit and how
// long it stays open before a trial call is let through.
func WithBreaker(failures uint32, cooldown time.Duration) GuardOption {
	return func(g *GuardedEmbedder) error {
		if failures == 0 {
			return errors.New("breaker failure threshold must be positive")
		}
		g.failures = failures
		g.cooldown = cooldown
		return nil
	}
}

// WithGuardLogger sets the logger. Default: slog.Default().
func WithGuardLogger(logger *slog.Logger) GuardOption {
	return func(g *GuardedEmbedder) error {
		g.logger = logger
		return nil
	}
}

// NewGuardedEmbedder wraps inner.
func NewGuardedEmbedder(inner Embedder, opts ...GuardOption) (*GuardedEmbedder, error) {
	if inner == nil {
		return nil, ErrEmbedderRequired
	}
	g := &GuardedEmbedder{
		inner:          inner,
		attemptTimeout: defaultAttemptTimeout,
		maxAttempts:    defaultMaxAttempts,
		failures:       defaultBreakerFailures,
		cooldown:       defaultBreakerCooldown,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	g.logger = g.logger.With("component", "guarded-embedder")

	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "embedding-provider",
		MaxRequests: defaultBreakerHalfOpen,
		Interval:    defaultBreakerResetSpan,
		Timeout:     g.cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= g.failures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			g.logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		// A caller giving up says nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return g, nil
}

// EmbedText embeds a single text.
func (g *GuardedEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := g.do(ctx, func(ctx context.Context) error {
		v, err := g.inner.EmbedText(ctx, text)
		if err != nil {
			return err
		}
		if len(v) == 0 {
			return ErrEmptyEmbedding
		}
		vector = v
		return nil
	})
	return vector, err
}

// EmbedTexts embeds a batch of texts.
func (g *GuardedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := g.do(ctx, func(ctx context.Context) error {
		vs, err := g.inner.EmbedTexts(ctx, texts)
		if err != nil {
			return err
		}
		if len(vs) != len(texts) {
			return fmt.Errorf("%w: got %d vectors for %d texts", ErrEmptyEmbedding, len(vs), len(texts))
		}
		for _, v := range vs {
			if len(v) == 0 {
				return ErrEmptyEmbedding
			}
		}
		vectors = vs
		return nil
	})
	return vectors, err
}

// State reports the breaker state, for diagnostics.
func (g *GuardedEmbedder) State() gobreaker.State {
	return g.breaker.State()
}

func (g *GuardedEmbedder) do(ctx context.Context, call func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		_, err = g.breaker.Execute(func() (interface{}, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, g.attemptTimeout)
			defer cancel()
			return nil, call(attemptCtx)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %w", ErrCircuitOpen, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g.logger.Debug("embedding attempt failed", "attempt", attempt, "of", g.maxAttempts, "err", err)
	}
	return err
}
