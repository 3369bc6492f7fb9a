package worker

import (
	"math/rand"
	"time"
)

const (
	minBackoffBaseMs = 500
	maxBackoffBaseMs = 60000
	maxBackoff       = 10 * time.Minute
	maxJitterMs      = 500
)

// RetryBackoff computes the delay before the next attempt: base delay times
// min(attempts, 10), plus 0-500ms of jitter so rescheduled items don't all
// wake at once, never more than ten minutes total.
func RetryBackoff(attempts, baseMs int) time.Duration {
	if baseMs < minBackoffBaseMs {
		baseMs = minBackoffBaseMs
	}
	if baseMs > maxBackoffBaseMs {
		baseMs = maxBackoffBaseMs
	}

	mult := attempts
	if mult < 1 {
		mult = 1
	}
	if mult > 10 {
		mult = 10
	}

	delay := time.Duration(baseMs*mult) * time.Millisecond
	delay += time.Duration(rand.Intn(maxJitterMs+1)) * time.Millisecond
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}
