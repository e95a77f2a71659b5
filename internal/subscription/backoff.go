package subscription

import (
	"math/rand/v2"
	"time"
)

const (
	DefaultBaseDelay      = 2 * time.Second
	DefaultMaxDelay       = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultConnectTimeout = 10 * time.Second
)

// Backoff is min(max, base·2^retry). Jitter is added by the caller.
func Backoff(retry int, base, max time.Duration) time.Duration {
	if retry < 0 {
		retry = 0
	}
	if retry > 30 {
		return max
	}
	d := base << uint(retry)
	if d <= 0 || d > max {
		return max
	}
	return d
}

// DefaultJitter spreads reconnects over [0, 1s).
func DefaultJitter() time.Duration {
	return rand.N(time.Second)
}

// Timer is the part of *time.Timer the manager needs.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d. Tests swap in a manual one.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
