package sessions

import "time"

const maxBackoffShift = 30

// Backoff is the refresh retry schedule: delay(attempt) = Base * 2^attempt,
// with at most MaxRetries retries after the first call.
type Backoff struct {
	Base       time.Duration
	MaxRetries int
}

// Delay returns the wait before retry number attempt, starting at zero: Base * 2^attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxBackoffShift {
		attempt = maxBackoffShift
	}
	return b.Base * time.Duration(1<<attempt)
}

// Schedule lists every delay a fully failing refresh would wait.
func (b Backoff) Schedule() []time.Duration {
	delays := make([]time.Duration, 0, b.MaxRetries)
	for attempt := 0; attempt < b.MaxRetries; attempt++ {
		delays = append(delays, b.Delay(attempt))
	}
	return delays
}
