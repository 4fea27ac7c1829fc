package job

import "time"

// BackoffPolicy computes retry delays for failed job attempts. Delays grow
// exponentially with the attempt number and are capped at Max.
type BackoffPolicy struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff mirrors the queue defaults: 30s base, 30m cap.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{Base: 30 * time.Second, Max: 30 * time.Minute}
}

// Delay returns the wait before retry attempt n (0-based: the delay after
// the first failure is Delay(0) == Base).
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = 30 * time.Second
	}
	if attempt < 0 {
		attempt = 0
	}

	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if p.Max > 0 && delay >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && delay > p.Max {
		return p.Max
	}
	return delay
}
