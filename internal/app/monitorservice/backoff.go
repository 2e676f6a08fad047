package monitorservice

import "time"

// BackoffDelay returns the wait before the next retry when retryCount retries
// have already been scheduled in the current failure streak: base·2^retryCount,
// capped at max.
func BackoffDelay(retryCount int, base, max time.Duration) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	d := base
	for i := 0; i < retryCount; i++ {
		if d >= max {
			return max
		}
		d *= 2
	}
	if d > max {
		return max
	}
	return d
}
