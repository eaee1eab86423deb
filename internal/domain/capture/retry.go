package capture

import "time"

// DefaultRetryInterval is the fixed pause between a failed attempt and the next start.
const DefaultRetryInterval = 3 * time.Second

// RetryPolicy bounds automatic restarts after acquisition or detection failures.
// Zero MaxAttempts or MaxElapsed means that bound is not applied.
type RetryPolicy struct {
	Interval    time.Duration
	MaxAttempts int
	MaxElapsed  time.Duration
}

// DefaultRetryPolicy retries every three seconds, up to ten times.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Interval: DefaultRetryInterval, MaxAttempts: 10}
}

// Delay returns the pause before retry number attempt (1-based).
// The interval is fixed; attempt only matters for exhaustion.
func (p RetryPolicy) Delay(int) time.Duration {
	if p.Interval <= 0 {
		return DefaultRetryInterval
	}
	return p.Interval
}

// Exhausted reports whether scheduling retry number attempt would exceed the policy,
// given the time elapsed since the sequence of failures began.
func (p RetryPolicy) Exhausted(attempt int, elapsed time.Duration) bool {
	if p.MaxAttempts > 0 && attempt > p.MaxAttempts {
		return true
	}
	if p.MaxElapsed > 0 && elapsed+p.Delay(attempt) > p.MaxElapsed {
		return true
	}
	return false
}
