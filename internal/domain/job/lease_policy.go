package job

import (
	"errors"
	"math"
	"time"
)

// ErrInvalidDefaultLease indicates the configured default lease duration is not positive.
var ErrInvalidDefaultLease = errors.New("default lease must be positive")

// LeasePolicy normalises lease durations for job reservations and heartbeats.
type LeasePolicy struct {
	defaultLease time.Duration
}

// NewLeasePolicy constructs a LeasePolicy with the provided default lease duration.
func NewLeasePolicy(defaultLease time.Duration) (*LeasePolicy, error) {
	if defaultLease <= 0 {
		return nil, ErrInvalidDefaultLease
	}
	return &LeasePolicy{defaultLease: defaultLease}, nil
}

// Default returns the configured default lease duration.
func (p *LeasePolicy) Default() time.Duration {
	if p == nil {
		return 0
	}
	return p.defaultLease
}

// LeaseDecision captures the outcome of resolving a lease request.
type LeaseDecision struct {
	Seconds   int
	Requested time.Duration
	clamped   bool
}

// Clamped reports whether the requested value was clamped to the minimum supported duration.
func (d LeaseDecision) Clamped() bool {
	return d.clamped
}

// Resolve normalises the requested duration to a whole number of seconds.
// Non-positive requests fall back to the default; sub-second requests are
// clamped to one second because the queue stores leases with second precision.
func (p *LeasePolicy) Resolve(request time.Duration) LeaseDecision {
	d := LeaseDecision{Requested: request}

	effective := request
	if effective <= 0 {
		effective = p.Default()
	}

	seconds := int(math.Ceil(effective.Seconds()))
	if seconds < 1 {
		seconds = 1
		d.clamped = effective > 0 && effective < time.Second
	} else if effective < time.Second {
		d.clamped = true
	}

	d.Seconds = seconds
	return d
}
