package scheduler

import (
	"context"
	rand "math/rand/v2"
	"time"
)

// backoffMultiplier grows the upper bound of each idle wait.
const backoffMultiplier = 2.0

// backoff produces decorrelated jitter delays between base and cap.
// See: https://aws.amazon.com/blogs/architecture/exponential-backoff-and-jitter/
//
// Not safe for concurrent use; each loop owns its own backoff.
type backoff struct {
	base    time.Duration
	ceiling time.Duration
	prev    time.Duration
	rng     *rand.Rand
}

func newBackoff(base, capDur time.Duration, seed int64) *backoff {
	return &backoff{base: base, ceiling: capDur, rng: newRetryRNG(seed)}
}

// Next returns the next delay and remembers it.
func (b *backoff) Next() time.Duration {
	b.prev = jitterBackoff(b.prev, b.base, backoffMultiplier, b.ceiling, b.rng)
	return b.prev
}

// Reset restarts the sequence from base.
func (b *backoff) Reset() {
	b.prev = 0
}

// jitterBackoff computes next = min(cap, base + rand[0, prev*mult-base)).
//
// Behavior:
//   - If prev <= 0, start from base
//   - Multiplier < 1.0 falls back to 1.0 (no growth)
//   - Cap below base returns cap
func jitterBackoff(prev, base time.Duration, mult float64, capDur time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	if mult < 1.0 {
		mult = 1.0
	}
	if capDur > 0 && capDur < base {
		return capDur
	}
	if prev <= 0 {
		return base
	}

	maxDuration := time.Duration(float64(prev)*mult) - base
	if maxDuration <= 0 {
		maxDuration = base
	}

	var jitter int64
	if rng != nil {
		jitter = rng.Int64N(int64(maxDuration))
	} else {
		jitter = rand.Int64N(int64(maxDuration)) //nolint:gosec // non-crypto backoff jitter
	}

	next := base + time.Duration(jitter)
	if capDur > 0 && next > capDur {
		return capDur
	}

	return next
}

// newRetryRNG returns a deterministic RNG only when a non-zero seed is provided.
// When seed == 0 it returns nil so callers use the package-level PRNG.
//
//nolint:gosec
func newRetryRNG(seed int64) *rand.Rand {
	if seed == 0 {
		return nil
	}
	s1 := uint64(seed)
	s2 := s1 ^ 0x9e3779b97f4a7c15

	return rand.New(rand.NewPCG(s1, s2))
}

// sleep waits for d or until ctx is done.
//
// Returns:
//   - bool: false if ctx was cancelled first
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
