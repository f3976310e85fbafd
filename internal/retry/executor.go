package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrRateLimited is recorded when admission was refused before the
// remote call could even be attempted.
var ErrRateLimited = errors.New("rate limiter refused admission")

// Limiter is the admission-control surface the executor needs.
type Limiter interface {
	AcquireAll(ctx context.Context) bool
	MarkAllExhausted()
}

// QuotaSignal is implemented by errors that represent a 429-class
// quota/overload response from the remote service.
type QuotaSignal interface {
	error
	QuotaExceeded() bool
}

type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	Multiplier     float64
}

// Executor wraps a fallible remote call with bounded exponential
// backoff, acquiring the rate limiter before every attempt.
type Executor struct {
	limiter Limiter
	cfg     Config
	log     *zap.SugaredLogger

	sleep func(ctx context.Context, d time.Duration) error
}

func New(limiter Limiter, cfg Config, log *zap.SugaredLogger) *Executor {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 2
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 2 * time.Second
	}
	return &Executor{limiter: limiter, cfg: cfg, log: log, sleep: sleepCtx}
}

// Execute runs fn at most MaxRetries+1 times. A rate-limiter refusal
// consumes an attempt and is retried with backoff rather than failing
// outright; a quota-class error additionally trips the limiter's
// cooldown latch. The last error is returned once the budget is spent.
func (e *Executor) Execute(ctx context.Context, fn func(ctx context.Context) (string, error)) (string, error) {
	var lastErr error

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			return "", lastErr
		}

		if !e.limiter.AcquireAll(ctx) {
			lastErr = ErrRateLimited
			e.log.Debugw("admission refused", "attempt", attempt)
		} else {
			res, err := fn(ctx)
			if err == nil {
				return res, nil
			}
			lastErr = err
			if IsQuotaError(err) {
				e.log.Warnw("quota exhausted signal from remote service", "attempt", attempt)
				e.limiter.MarkAllExhausted()
			}
		}

		if attempt >= e.cfg.MaxRetries {
			break
		}

		wait := e.backoff(attempt)
		e.log.Debugw("retrying after backoff", "attempt", attempt, "wait", wait, "err", lastErr)
		if e.sleep(ctx, wait) != nil {
			return "", lastErr
		}
	}

	return "", fmt.Errorf("retries exhausted after %d attempts: %w", e.cfg.MaxRetries+1, lastErr)
}

func (e *Executor) backoff(attempt int) time.Duration {
	return time.Duration(float64(e.cfg.InitialBackoff) * math.Pow(e.cfg.Multiplier, float64(attempt)))
}

// IsQuotaError classifies an error as a quota/overload condition,
// either through the QuotaSignal interface or by the usual markers in
// provider error strings.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	var qs QuotaSignal
	if errors.As(err, &qs) {
		return qs.QuotaExceeded()
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "resource exhausted") ||
		strings.Contains(msg, "rate limit")
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
