// Package sequencer executes an execution plan as a cooperative state
// machine advanced once per host frame.
package sequencer

import (
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/stasher/internal/errors"
	"github.com/hpungsan/stasher/internal/input"
	"github.com/hpungsan/stasher/internal/stash"
)

// State is the sequencer's position in a batch.
type State int

const (
	Idle State = iota
	ValidatingInitialView
	Planning
	AcquiringInputLock
	SwitchingView
	VerifyingView
	Clicking
	Failed
)

var stateNames = [...]string{
	Idle:                  "idle",
	ValidatingInitialView: "validating_initial_view",
	Planning:              "planning",
	AcquiringInputLock:    "acquiring_input_lock",
	SwitchingView:         "switching_view",
	VerifyingView:         "verifying_view",
	Clicking:              "clicking",
	Failed:                "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Outcome is how a batch ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeNoop    Outcome = "noop"
)

// Result summarises a finished batch.
type Result struct {
	Outcome  Outcome
	Initial  int
	Planned  int
	Clicked  int
	Skipped  int
	Started  time.Time
	Finished time.Time

	// Err is set for failed batches
	Err error
}

// Status is returned by every Tick.
type Status struct {
	State   State
	Running bool

	// Result is set on the tick a batch finishes
	Result *Result
}

// ViewSource reports the visible storage tab.
type ViewSource interface {
	VisibleIndex() int
	VisibleReady() bool
}

// PlanFunc builds the plan for a batch starting on initial. ready is false
// while the held-item list is not yet available.
type PlanFunc func(initial int) (plan stash.Plan, ready bool, err error)

// Config holds the sequencer's timing and key settings.
type Config struct {
	SwitchTimeout time.Duration
	ReadyTimeout  time.Duration
	ItemsTimeout  time.Duration
	SettleMin     time.Duration
	SettleMax     time.Duration
	Modifier      input.Key
	Secondary     input.Key
	Owner         string
}

// DefaultConfig returns the standard timings.
func DefaultConfig() Config {
	return Config{
		SwitchTimeout: 5 * time.Second,
		ReadyTimeout:  5 * time.Second,
		ItemsTimeout:  5 * time.Second,
		SettleMin:     80 * time.Millisecond,
		SettleMax:     150 * time.Millisecond,
		Modifier:      input.KeyCtrl,
		Secondary:     input.KeyShift,
		Owner:         "stasher",
	}
}

// Sequencer runs at most one batch at a time. It is not safe for
// concurrent use; the host drives it from a single frame loop.
type Sequencer struct {
	cfg      Config
	view     ViewSource
	plan     PlanFunc
	provider input.Provider
	rng      *rand.Rand
	logger   *zap.Logger

	state State
	b     *batch
}

type batch struct {
	started time.Time
	initial int
	plan    stash.Plan
	pos     int

	ctrl input.Controller
	held []input.Key

	barrier  Barrier
	resumeAt time.Time

	target   int
	presses  int
	pressKey input.Key
	step     int

	clicked int
	skipped int
}

// New creates an idle sequencer. A nil rng uses a randomly seeded source;
// a nil logger discards events.
func New(cfg Config, view ViewSource, plan PlanFunc, provider input.Provider, rng *rand.Rand, logger *zap.Logger) *Sequencer {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Owner == "" {
		cfg.Owner = "stasher"
	}
	return &Sequencer{
		cfg:      cfg,
		view:     view,
		plan:     plan,
		provider: provider,
		rng:      rng,
		logger:   logger,
	}
}

// State returns the current state.
func (s *Sequencer) State() State {
	return s.state
}

// Idle reports whether no batch is in flight.
func (s *Sequencer) Idle() bool {
	return s.state == Idle || s.state == Failed
}

// Tick advances the machine as far as it can at now. startRequested begins
// a batch when idle and is ignored while one is running.
func (s *Sequencer) Tick(now time.Time, startRequested bool) Status {
	if s.state == Failed {
		s.state = Idle
		return Status{State: Idle}
	}
	if s.state == Idle {
		if !startRequested {
			return Status{State: Idle}
		}
		s.b = &batch{started: now}
		s.state = ValidatingInitialView
		s.logger.Debug("batch requested")
	}

	for {
		if now.Before(s.b.resumeAt) {
			return Status{State: s.state, Running: true}
		}
		suspend, res := s.advance(now)
		if res != nil {
			return Status{State: s.state, Result: res}
		}
		if suspend {
			return Status{State: s.state, Running: true}
		}
	}
}

// Abort ends any running batch, releasing held keys and the controller.
// It returns nil when idle.
func (s *Sequencer) Abort(now time.Time, reason string) *Result {
	if s.Idle() || s.b == nil {
		return nil
	}
	res := s.finish(now, OutcomeFailed, errors.NewConflict("batch aborted: "+reason))
	s.state = Idle
	return res
}

// advance runs one state step. It returns suspend when the machine must
// wait for a later tick, or a result when the batch ended.
func (s *Sequencer) advance(now time.Time) (bool, *Result) {
	b := s.b
	switch s.state {
	case ValidatingInitialView:
		idx := s.view.VisibleIndex()
		if idx < 0 {
			return false, s.fail(now, errors.NewNoVisibleTab())
		}
		b.initial = idx
		b.barrier = NewBarrier(now, s.cfg.ItemsTimeout)
		s.state = Planning
		return false, nil

	case Planning:
		plan, ready, err := s.plan(b.initial)
		if err != nil {
			return false, s.fail(now, err)
		}
		if !ready {
			if b.barrier.Poll(now, false) == TimedOut {
				return false, s.fail(now, errors.NewItemsUnavailable())
			}
			return true, nil
		}
		if len(plan) == 0 {
			s.logger.Info("no items to stash", zap.Int("initial", b.initial))
			return false, s.finish(now, OutcomeNoop, nil)
		}
		b.plan = plan
		s.state = AcquiringInputLock
		return false, nil

	case AcquiringInputLock:
		ctrl, err := s.provider.Acquire(s.cfg.Owner)
		if err != nil {
			if !errors.Is(err, errors.ErrInputUnavailable) {
				err = errors.NewInputUnavailable(err.Error())
			}
			return false, s.fail(now, err)
		}
		b.ctrl = ctrl
		if err := s.keyDown(s.cfg.Modifier); err != nil {
			return false, s.fail(now, err)
		}
		s.logger.Info("batch started",
			zap.Int("initial", b.initial),
			zap.Int("planned", len(b.plan)),
			zap.Int("switches", b.plan.Switches(b.initial)),
		)
		return s.next(now)

	case SwitchingView:
		if b.presses > 0 {
			if err := s.press(b.pressKey); err != nil {
				return false, s.fail(now, err)
			}
			b.presses--
			if b.presses == 0 {
				b.barrier = NewBarrier(now, s.cfg.SwitchTimeout)
			}
			return true, nil
		}
		visible := s.view.VisibleIndex()
		switch b.barrier.Poll(now, visible == b.target) {
		case Satisfied:
			b.resumeAt = now.Add(s.settle())
			b.barrier = NewBarrier(b.resumeAt, s.cfg.ReadyTimeout)
			s.state = VerifyingView
			return false, nil
		case TimedOut:
			s.logger.Warn("skipping item",
				zap.Error(errors.NewSwitchTimeout(b.target, visible)),
				zap.String("rule", b.plan[b.pos].Rule),
			)
			b.skipped++
			b.pos++
			return s.next(now)
		default:
			return true, nil
		}

	case VerifyingView:
		switch b.barrier.Poll(now, s.view.VisibleReady()) {
		case Satisfied:
			s.state = Clicking
			b.step = 0
			return false, nil
		case TimedOut:
			return false, s.fail(now, errors.NewTabNotLoaded(b.target))
		default:
			return true, nil
		}

	case Clicking:
		m := b.plan[b.pos]
		switch b.step {
		case 0:
			if err := b.ctrl.MoveTo(m.Click); err != nil {
				return false, s.fail(now, errors.NewInputFailed("move", err))
			}
			b.resumeAt = now.Add(b.ctrl.Delay())
			b.step = 1
			return false, nil
		case 1:
			if err := s.click(m.Shift); err != nil {
				return false, s.fail(now, err)
			}
			b.resumeAt = now.Add(b.ctrl.Delay())
			b.step = 2
			return false, nil
		default:
			b.clicked++
			b.pos++
			return s.next(now)
		}
	}

	return false, s.fail(now, errors.NewInternal(fmt.Errorf("unexpected state %s", s.state)))
}

// next selects the state for the item at the current position.
func (s *Sequencer) next(now time.Time) (bool, *Result) {
	b := s.b
	if b.pos >= len(b.plan) {
		return false, s.finish(now, OutcomeSuccess, nil)
	}

	m := b.plan[b.pos]
	b.step = 0
	if m.NoSwitch {
		s.state = Clicking
		return false, nil
	}

	current := s.view.VisibleIndex()
	if current < 0 {
		return false, s.fail(now, errors.NewNoVisibleTab())
	}
	if m.Destination == current {
		s.state = Clicking
		return false, nil
	}

	b.target = m.Destination
	b.presses = m.Destination - current
	b.pressKey = input.KeyRight
	if b.presses < 0 {
		b.presses = -b.presses
		b.pressKey = input.KeyLeft
	}
	s.state = SwitchingView
	s.logger.Debug("switching tab", zap.Int("from", current), zap.Int("to", m.Destination))
	return false, nil
}

func (s *Sequencer) press(k input.Key) error {
	if err := s.b.ctrl.KeyDown(k); err != nil {
		return errors.NewInputFailed("key down "+string(k), err)
	}
	if err := s.b.ctrl.KeyUp(k); err != nil {
		return errors.NewInputFailed("key up "+string(k), err)
	}
	return nil
}

func (s *Sequencer) click(shift bool) error {
	if shift {
		if err := s.keyDown(s.cfg.Secondary); err != nil {
			return err
		}
	}
	if err := s.b.ctrl.Click(input.ButtonLeft); err != nil {
		return errors.NewInputFailed("click", err)
	}
	if shift {
		return s.keyUp(s.cfg.Secondary)
	}
	return nil
}

func (s *Sequencer) keyDown(k input.Key) error {
	if err := s.b.ctrl.KeyDown(k); err != nil {
		return errors.NewInputFailed("key down "+string(k), err)
	}
	s.b.held = append(s.b.held, k)
	return nil
}

func (s *Sequencer) keyUp(k input.Key) error {
	if err := s.b.ctrl.KeyUp(k); err != nil {
		return errors.NewInputFailed("key up "+string(k), err)
	}
	for i := len(s.b.held) - 1; i >= 0; i-- {
		if s.b.held[i] == k {
			s.b.held = append(s.b.held[:i], s.b.held[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Sequencer) settle() time.Duration {
	lo, hi := s.cfg.SettleMin, s.cfg.SettleMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(s.rng.Int64N(int64(hi-lo)+1))
}

func (s *Sequencer) fail(now time.Time, err error) *Result {
	res := s.finish(now, OutcomeFailed, err)
	s.state = Failed
	return res
}

// finish releases every held key and the controller, then reports.
func (s *Sequencer) finish(now time.Time, outcome Outcome, err error) *Result {
	b := s.b
	if b.ctrl != nil {
		for i := len(b.held) - 1; i >= 0; i-- {
			if uerr := b.ctrl.KeyUp(b.held[i]); uerr != nil {
				s.logger.Warn("failed to release key", zap.String("key", string(b.held[i])), zap.Error(uerr))
			}
		}
		b.held = nil
		if rerr := b.ctrl.Release(); rerr != nil {
			s.logger.Warn("failed to release input controller", zap.Error(rerr))
		}
		b.ctrl = nil
	}

	res := &Result{
		Outcome:  outcome,
		Initial:  b.initial,
		Planned:  len(b.plan),
		Clicked:  b.clicked,
		Skipped:  b.skipped,
		Started:  b.started,
		Finished: now,
		Err:      err,
	}
	s.b = nil
	s.state = Idle

	fields := []zap.Field{
		zap.String("outcome", string(outcome)),
		zap.Int("planned", res.Planned),
		zap.Int("clicked", res.Clicked),
		zap.Int("skipped", res.Skipped),
		zap.Duration("elapsed", now.Sub(b.started)),
	}
	if err != nil {
		s.logger.Error("batch failed", append(fields, zap.Error(err))...)
	} else {
		s.logger.Info("batch finished", fields...)
	}
	return res
}
