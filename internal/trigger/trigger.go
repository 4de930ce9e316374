// Package trigger re-runs destination reconciliation after the host
// reports an area change.
package trigger

import (
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/stasher/internal/sequencer"
)

// NameSource reports the live tab names. ok is false while they are not
// yet available.
type NameSource interface {
	ContainerNames() (names []string, ok bool)
}

// Reconciler is the registry surface the trigger drives.
type Reconciler interface {
	Stale(live []string) bool
	Reconcile(live []string) (bool, error)
}

// Trigger is armed by an area change and fires once the names arrive.
type Trigger struct {
	names    NameSource
	reg      Reconciler
	timeout  time.Duration
	onChange func(live []string)
	logger   *zap.Logger

	armed   bool
	barrier sequencer.Barrier
}

// New creates a disarmed trigger. onChange runs after every successful
// reconcile of a stale list.
func New(names NameSource, reg Reconciler, timeout time.Duration, onChange func(live []string), logger *zap.Logger) *Trigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trigger{names: names, reg: reg, timeout: timeout, onChange: onChange, logger: logger}
}

// Arm starts waiting for the tab names. Re-arming restarts the wait.
func (t *Trigger) Arm(now time.Time) {
	t.armed = true
	t.barrier = sequencer.NewBarrier(now, t.timeout)
}

// Armed reports whether a reconcile is pending.
func (t *Trigger) Armed() bool {
	return t.armed
}

// Tick polls the name source and reconciles when the list is stale. It
// reports whether a reconcile ran.
func (t *Trigger) Tick(now time.Time) bool {
	if !t.armed {
		return false
	}

	live, ok := t.names.ContainerNames()
	switch t.barrier.Poll(now, ok) {
	case sequencer.Pending:
		return false
	case sequencer.TimedOut:
		t.armed = false
		t.logger.Warn("tab names unavailable after area change", zap.Duration("timeout", t.timeout))
		return false
	}

	t.armed = false
	if !t.reg.Stale(live) {
		t.logger.Debug("tab names unchanged", zap.Int("tabs", len(live)))
		return false
	}
	changed, err := t.reg.Reconcile(live)
	if err != nil {
		t.logger.Warn("reconcile failed", zap.Error(err))
		return false
	}
	t.logger.Info("tab names reconciled", zap.Int("tabs", len(live)), zap.Bool("changed", changed))
	if t.onChange != nil {
		t.onChange(live)
	}
	return true
}
