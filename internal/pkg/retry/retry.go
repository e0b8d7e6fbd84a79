package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/fritz-collector/internal/pkg/metrics"
)

// Policy bounds a retried operation. MaxAttempts <= 0 retries forever.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Fixed is used for single-record writes and the speedtest: three attempts,
// ten seconds apart.
var Fixed = Policy{MaxAttempts: 3, InitialDelay: 10 * time.Second, MaxDelay: 10 * time.Second}

// Base returns min(InitialDelay * 2^attempt, MaxDelay) for the zero-based
// attempt that just failed.
func (p Policy) Base(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	ceiling := p.MaxDelay
	if ceiling <= 0 {
		ceiling = time.Duration(math.MaxInt64)
	}
	d := p.InitialDelay
	for i := 0; i < attempt; i++ {
		if d > ceiling/2 {
			return ceiling
		}
		d *= 2
	}
	return min(d, ceiling)
}

type notifier interface {
	NotifyAll(message string)
}

type Executor struct {
	name     string
	policy   Policy
	logger   *zap.Logger
	notifier notifier
	sleep    func(ctx context.Context, d time.Duration) error
	jitter   func(limit time.Duration) time.Duration
}

type Option func(*Executor)

// WithNotifier sends a message for every failed attempt.
func WithNotifier(n notifier) Option {
	return func(e *Executor) {
		e.notifier = n
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

func WithSleep(f func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) {
		e.sleep = f
	}
}

func WithJitter(f func(limit time.Duration) time.Duration) Option {
	return func(e *Executor) {
		e.jitter = f
	}
}

func New(name string, policy Policy, opts ...Option) *Executor {
	e := &Executor{
		name:   name,
		policy: policy,
		logger: zap.L(),
		sleep:  sleepCtx,
		jitter: randomJitter,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Delay is the wait after the zero-based attempt failed: the base delay plus
// up to 10% jitter, never more than MaxDelay.
func (e *Executor) Delay(attempt int) time.Duration {
	base := e.policy.Base(attempt)
	d := base + e.jitter(base/10)
	if e.policy.MaxDelay > 0 && d > e.policy.MaxDelay {
		return e.policy.MaxDelay
	}
	return d
}

// Wait sleeps Delay(attempt) or until ctx is done.
func (e *Executor) Wait(ctx context.Context, attempt int) error {
	return e.sleep(ctx, e.Delay(attempt))
}

// Do runs op until it succeeds, the attempts are exhausted or ctx is done.
// Each attempt is a full, independent invocation of op.
func (e *Executor) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; e.policy.MaxAttempts <= 0 || attempt < e.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%s: %w (last error: %v)", e.name, err, lastErr)
			}
			return err
		}
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		metrics.RetryAttempts.WithLabelValues(e.name).Inc()
		e.logger.Error("attempt failed",
			zap.String("operation", e.name),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", e.policy.MaxAttempts),
			zap.Error(lastErr),
		)
		if e.notifier != nil {
			e.notifier.NotifyAll(e.describe(attempt+1, lastErr))
		}
		if e.policy.MaxAttempts > 0 && attempt+1 >= e.policy.MaxAttempts {
			break
		}
		if err := e.sleep(ctx, e.Delay(attempt)); err != nil {
			return fmt.Errorf("%s: %w (last error: %v)", e.name, err, lastErr)
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", e.name, e.policy.MaxAttempts, lastErr)
}

// Value is Do for operations that return a result.
func Value[T any](ctx context.Context, e *Executor, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := e.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (e *Executor) describe(attempt int, err error) string {
	if e.policy.MaxAttempts > 0 {
		return fmt.Sprintf("%s failed (attempt %d/%d): %v", e.name, attempt, e.policy.MaxAttempts, err)
	}
	return fmt.Sprintf("%s failed (attempt %d): %v", e.name, attempt, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return rand.N(limit)
}
