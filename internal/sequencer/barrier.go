package sequencer

import "time"

// BarrierResult is the outcome of polling a Barrier.
type BarrierResult int

const (
	Pending BarrierResult = iota
	Satisfied
	TimedOut
)

func (r BarrierResult) String() string {
	switch r {
	case Satisfied:
		return "satisfied"
	case TimedOut:
		return "timed_out"
	default:
		return "pending"
	}
}

// Barrier is a bounded wait on a condition, polled once per tick.
type Barrier struct {
	deadline time.Time
}

// NewBarrier starts a wait at now that expires after timeout.
func NewBarrier(now time.Time, timeout time.Duration) Barrier {
	return Barrier{deadline: now.Add(timeout)}
}

// Poll reports the wait state. A condition that holds on the deadline tick
// still counts as satisfied.
func (b Barrier) Poll(now time.Time, satisfied bool) BarrierResult {
	if satisfied {
		return Satisfied
	}
	if !now.Before(b.deadline) {
		return TimedOut
	}
	return Pending
}

// Deadline returns when the wait expires.
func (b Barrier) Deadline() time.Time {
	return b.deadline
}
