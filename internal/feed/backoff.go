package feed

import "time"

const (
	BaseDelay = 1 * time.Second
	MaxDelay  = 60 * time.Second
)

// CalculateBackoff returns the reconnect delay for a retry count: 1s, 2s, 4s ... capped at 60s.
func CalculateBackoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount >= 6 { // 2^6s already exceeds the cap
		return MaxDelay
	}
	delay := BaseDelay << uint(retryCount)
	if delay > MaxDelay {
		return MaxDelay
	}
	return delay
}
