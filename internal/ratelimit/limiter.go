package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Bucket names used by the scan pipeline. A remote call must acquire
// both before it may proceed.
const (
	BucketMinute = "rpm"
	BucketDay    = "rpd"
)

const (
	// cooldownDuration is how long a bucket refuses tokens after the
	// remote service signaled quota exhaustion.
	cooldownDuration = 60 * time.Second
	// While cooling down, Acquire polls at this interval, at most
	// cooldownAttempts times, before giving up.
	cooldownPoll     = 5 * time.Second
	cooldownAttempts = 3

	heavyCautionSleep = 3 * time.Second
	lightCautionSleep = 1 * time.Second

	// maxTokenWait bounds the wait for a single token to accrue. A
	// drained day bucket would otherwise block for close to a minute
	// per token; past this bound the caller is told to skip instead.
	maxTokenWait = 30 * time.Second
)

type bucket struct {
	tokens          float64
	capacity        float64
	refillPerSecond float64
	lastRefill      time.Time
	exhausted       bool
	exhaustedAt     time.Time
}

// Limiter is a set of named token buckets shared by all scan jobs in
// the process. All state is guarded by mu; clock and sleep are
// swappable for tests.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a limiter with the standard minute and day buckets.
func New(perMinute, perDay int) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
		sleep:   sleepCtx,
	}
	start := l.now()
	l.buckets[BucketMinute] = &bucket{
		tokens:          float64(perMinute),
		capacity:        float64(perMinute),
		refillPerSecond: float64(perMinute) / 60.0,
		lastRefill:      start,
	}
	l.buckets[BucketDay] = &bucket{
		tokens:          float64(perDay),
		capacity:        float64(perDay),
		refillPerSecond: float64(perDay) / 86400.0,
		lastRefill:      start,
	}
	return l
}

// Acquire blocks until a token from the named bucket is granted or the
// bucket cannot serve one within bounds. A false return means the
// caller should skip or fail this unit of work, not crash.
func (l *Limiter) Acquire(ctx context.Context, name string) bool {
	attemptsLeft := cooldownAttempts

	for {
		if ctx.Err() != nil {
			return false
		}

		l.mu.Lock()
		b, ok := l.buckets[name]
		if !ok {
			// Unknown bucket means no limit was configured for it.
			l.mu.Unlock()
			return true
		}
		now := l.now()
		b.refill(now)

		if b.exhausted {
			if now.Sub(b.exhaustedAt) >= cooldownDuration {
				b.exhausted = false
			} else {
				l.mu.Unlock()
				if attemptsLeft == 0 {
					return false
				}
				attemptsLeft--
				if l.sleep(ctx, cooldownPoll) != nil {
					return false
				}
				continue
			}
		}

		// Low-water caution: slow callers down before the bucket runs
		// dry. The sleep happens without the lock; refill afterwards
		// picks up whatever accrued.
		var caution time.Duration
		switch {
		case b.tokens < 0.2*b.capacity:
			caution = heavyCautionSleep
		case b.tokens < 0.5*b.capacity:
			caution = lightCautionSleep
		}
		if caution > 0 {
			l.mu.Unlock()
			if l.sleep(ctx, caution) != nil {
				return false
			}
			l.mu.Lock()
			b.refill(l.now())
		}

		if b.tokens >= 1 {
			b.tokens--
			l.mu.Unlock()
			return true
		}

		// Not even one token. Wait exactly until one accrues, bounded.
		wait := time.Duration((1 - b.tokens) / b.refillPerSecond * float64(time.Second))
		l.mu.Unlock()
		if wait > maxTokenWait {
			return false
		}
		if l.sleep(ctx, wait) != nil {
			return false
		}

		l.mu.Lock()
		b.refill(l.now())
		if b.tokens > 1 {
			b.tokens--
		} else {
			b.tokens = 0
		}
		l.mu.Unlock()
		return true
	}
}

// AcquireAll takes one token from every bucket, minute first. Failure
// on either aborts the call attempt.
func (l *Limiter) AcquireAll(ctx context.Context) bool {
	if !l.Acquire(ctx, BucketMinute) {
		return false
	}
	return l.Acquire(ctx, BucketDay)
}

// MarkExhausted trips the cooldown latch for a bucket. Called when the
// remote service reports a quota error; the bucket refuses all tokens
// for the cooldown window regardless of nominal refill.
func (l *Limiter) MarkExhausted(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[name]; ok {
		b.exhausted = true
		b.exhaustedAt = l.now()
	}
}

// MarkAllExhausted trips every bucket, used when the quota signal does
// not say which window was exceeded.
func (l *Limiter) MarkAllExhausted() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for _, b := range l.buckets {
		b.exhausted = true
		b.exhaustedAt = now
	}
}

// Exhausted reports whether a bucket is currently in cooldown.
func (l *Limiter) Exhausted(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[name]
	if !ok {
		return false
	}
	return b.exhausted && l.now().Sub(b.exhaustedAt) < cooldownDuration
}

// AnyExhausted reports whether any bucket is in cooldown. The
// orchestrator uses it to tell a persistent quota outage apart from an
// ordinary per-file failure.
func (l *Limiter) AnyExhausted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for _, b := range l.buckets {
		if b.exhausted && now.Sub(b.exhaustedAt) < cooldownDuration {
			return true
		}
	}
	return false
}

// Tokens returns the current token count after a lazy refill, for
// status reporting and tests.
func (l *Limiter) Tokens(name string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[name]
	if !ok {
		return 0
	}
	b.refill(l.now())
	return b.tokens
}

func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillPerSecond
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
