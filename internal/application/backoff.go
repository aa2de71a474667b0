package application

import "time"

// BackoffPolicy is a capped exponential delay between reconnect attempts.
type BackoffPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{Initial: time.Second, Max: 30 * time.Second}
}

// Delay returns the wait before reconnect attempt n (1-based): Initial,
// 2*Initial, 4*Initial, ... never above Max.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if p.Initial <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}

	delay := p.Initial
	for i := 1; i < attempt; i++ {
		if p.Max > 0 && delay >= p.Max {
			break
		}
		delay *= 2
	}
	if p.Max > 0 && delay > p.Max {
		delay = p.Max
	}
	return delay
}
