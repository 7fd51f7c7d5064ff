// Package policy composes the blocking-enabled flag, the blocking
// schedule, and a bypass deadline into the single predicate the DNS
// frontend consults for every query: is blocking active right now.
package policy

import (
	"time"

	"github.com/lc/blockandfocus/internal/schedule"
)

// Clock abstracts time.Now for testability.
type Clock func() time.Time

// Evaluator decides whether blocking is currently active.
type Evaluator struct {
	schedule *schedule.Engine
	now      Clock
}

// New creates an Evaluator over the given schedule engine, using the real
// wall clock.
func New(sched *schedule.Engine) *Evaluator {
	return &Evaluator{schedule: sched, now: time.Now}
}

// WithClock overrides the clock used for "now", for deterministic tests.
func (e *Evaluator) WithClock(now Clock) *Evaluator {
	e.now = now
	return e
}

// IsBlockingActive short-circuits through, in order:
//  1. blocking.enabled == false -> false
//  2. a bypass deadline is set and in the future -> false
//  3. schedule enabled -> schedule.IsBlockingTime(now)
//  4. otherwise -> true
func (e *Evaluator) IsBlockingActive(blockingEnabled bool, bypassDeadline *time.Time) bool {
	if !blockingEnabled {
		return false
	}

	now := e.now()
	if bypassDeadline != nil && now.Before(*bypassDeadline) {
		return false
	}

	if e.schedule.Enabled() {
		return e.schedule.IsBlockingTime(now)
	}
	return true
}

// BypassDeadline computes the deadline for a bypass activated now for the
// given duration.
func (e *Evaluator) BypassDeadline(duration time.Duration) time.Time {
	return e.now().Add(duration)
}
