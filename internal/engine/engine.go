// Package engine composes the classifier, registry, planner, sequencer and
// reconciliation trigger into a host-driven component.
package engine

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/stasher/internal/config"
	"github.com/hpungsan/stasher/internal/errors"
	"github.com/hpungsan/stasher/internal/input"
	"github.com/hpungsan/stasher/internal/planner"
	"github.com/hpungsan/stasher/internal/registry"
	"github.com/hpungsan/stasher/internal/rules"
	"github.com/hpungsan/stasher/internal/sequencer"
	"github.com/hpungsan/stasher/internal/stash"
	"github.com/hpungsan/stasher/internal/trigger"
)

// Activatable is a component the host starts, stops, and ticks once per frame.
type Activatable interface {
	Start(ctx context.Context) error
	Stop()
	Tick(now time.Time, startRequested bool) sequencer.Status
}

// Host is everything the engine reads from the running application.
type Host interface {
	stash.ItemSource
	stash.ContainerSource
}

// Engine implements Activatable.
type Engine struct {
	cfg      *config.Config
	host     Host
	store    ConfigStore
	recorder Recorder
	logger   *zap.Logger
	rng      *rand.Rand
	sim      bool

	reg  *registry.Registry
	seq  *sequencer.Sequencer
	trig *trigger.Trigger

	mu    sync.RWMutex
	rules *rules.RuleSet
	mask  stash.CellMask

	ctx  context.Context
	last *sequencer.Result

	// armOnTick reconciles against the live tab list on the first tick
	// after Start, using the host's clock.
	armOnTick bool
}

var _ Activatable = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithRecorder records every finished batch.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithRand fixes the source used for click jitter and settle delays.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) { e.rng = rng }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Simulated marks recorded batches as simulated.
func Simulated() Option {
	return func(e *Engine) { e.sim = true }
}

// New creates an engine. Call Start before the first Tick.
func New(cfg *config.Config, host Host, store ConfigStore, provider input.Provider, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	modifier, err := input.ParseKey(cfg.ModifierKey)
	if err != nil {
		return nil, errors.NewInvalidRequest("modifier_key: " + err.Error())
	}
	secondary, err := input.ParseKey(cfg.SecondaryModifierKey)
	if err != nil {
		return nil, errors.NewInvalidRequest("secondary_modifier_key: " + err.Error())
	}

	e := &Engine{
		cfg:    cfg,
		host:   host,
		store:  store,
		logger: zap.NewNop(),
		reg:    registry.New(registry.WithMinTabs(cfg.MinTabs)),
		ctx:    context.Background(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	settleMin, settleMax := cfg.SettleRange()
	e.seq = sequencer.New(sequencer.Config{
		SwitchTimeout: cfg.SwitchTimeout(),
		ReadyTimeout:  cfg.ReadyTimeout(),
		ItemsTimeout:  cfg.ItemsTimeout(),
		SettleMin:     settleMin,
		SettleMax:     settleMax,
		Modifier:      modifier,
		Secondary:     secondary,
		Owner:         "stasher",
	}, host, e.prepare, provider, e.rng, e.logger.Named("sequencer"))

	e.trig = trigger.New(host, e.reg, cfg.TriggerTimeout(), e.persistReconcile, e.logger.Named("trigger"))
	return e, nil
}

// Start loads persisted state and, if configured, the rule file.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx = ctx

	bindings, err := e.store.LoadBindings(ctx)
	if err != nil {
		return err
	}
	names, err := e.store.LoadContainerNames(ctx)
	if err != nil {
		return err
	}
	mask, err := e.store.LoadIgnoredCells(ctx)
	if err != nil {
		return err
	}
	e.reg.Load(bindings, names)

	e.mu.Lock()
	e.mask = mask
	e.mu.Unlock()

	if e.cfg.RulesFile != "" {
		set, err := rules.ParseFile(e.cfg.RulesFile)
		if err != nil {
			return err
		}
		if _, err := e.LoadRules(ctx, set); err != nil {
			return err
		}
	}

	e.armOnTick = true

	e.logger.Info("engine started",
		zap.Int("bindings", len(bindings)),
		zap.Int("tabs", len(names)),
		zap.Int("ignored_cells", mask.Count()),
	)
	return nil
}

// Stop aborts a running batch, releasing any held input.
func (e *Engine) Stop() {
	if res := e.seq.Abort(time.Now(), "engine stopped"); res != nil {
		e.record(res)
	}
	e.logger.Info("engine stopped")
}

// Tick advances the engine one frame. Closing the storage panel aborts a
// running batch; otherwise nothing happens while it is closed. Area-change
// reconciliation only runs between batches.
func (e *Engine) Tick(now time.Time, startRequested bool) sequencer.Status {
	if !e.host.PanelOpen() {
		if res := e.seq.Abort(now, "storage panel closed"); res != nil {
			e.logger.Warn("storage panel closed during batch", zap.Int("clicked", res.Clicked))
			e.record(res)
			return sequencer.Status{State: e.seq.State(), Result: res}
		}
		return sequencer.Status{State: e.seq.State()}
	}
	if e.armOnTick {
		e.armOnTick = false
		e.trig.Arm(now)
	}
	if e.seq.Idle() {
		e.trig.Tick(now)
	}
	st := e.seq.Tick(now, startRequested)
	if st.Result != nil {
		e.record(st.Result)
	}
	return st
}

// AreaChanged arms the reconciliation trigger.
func (e *Engine) AreaChanged(now time.Time) {
	e.trig.Arm(now)
}

// LoadRules installs a rule set. New rules start bound to Ignore; bindings
// of rules no longer present are deleted. It returns the dropped identities.
func (e *Engine) LoadRules(ctx context.Context, set *rules.RuleSet) ([]string, error) {
	removed, err := SyncBindings(ctx, e.reg, e.store, set)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.rules = set
	e.mu.Unlock()

	e.logger.Info("rules loaded",
		zap.String("source", set.Source),
		zap.Int("rules", len(set.Rules())),
		zap.Strings("removed", removed),
	)
	return removed, nil
}

// SyncBindings registers every rule of set with reg, new rules bound to
// Ignore, and persists the result in one store call. Bindings of rules no
// longer in set are deleted from store and returned.
func SyncBindings(ctx context.Context, reg *registry.Registry, store ConfigStore, set *rules.RuleSet) ([]string, error) {
	defaults := make([]stash.Binding, 0)
	for _, r := range set.Rules() {
		defaults = append(defaults, stash.NewIgnoreBinding(r.Group, r.Name))
	}
	removed := reg.Register(defaults)

	if err := store.ReplaceBindings(ctx, reg.Bindings()); err != nil {
		return nil, err
	}
	return removed, nil
}

// SetIgnoredCells replaces and persists the ignored-cell mask.
func (e *Engine) SetIgnoredCells(ctx context.Context, mask stash.CellMask) error {
	if err := e.store.SaveIgnoredCells(ctx, mask); err != nil {
		return err
	}
	e.mu.Lock()
	e.mask = mask
	e.mu.Unlock()
	return nil
}

// IgnoreHeldItems replaces the ignored-cell mask with every cell the
// currently held items occupy.
func (e *Engine) IgnoreHeldItems(ctx context.Context) (stash.CellMask, error) {
	items, ok := e.host.Items()
	if !ok {
		return stash.CellMask{}, errors.NewItemsUnavailable()
	}
	mask := stash.MaskFromItems(items)
	if err := e.SetIgnoredCells(ctx, mask); err != nil {
		return stash.CellMask{}, err
	}
	e.logger.Info("ignored cells copied from inventory",
		zap.Int("items", len(items)),
		zap.Int("cells", mask.Count()),
	)
	return mask, nil
}

// Registry exposes the destination registry.
func (e *Engine) Registry() *registry.Registry {
	return e.reg
}

// LastResult returns the most recent finished batch, if any.
func (e *Engine) LastResult() *sequencer.Result {
	return e.last
}

// Preview returns the plan a batch starting on initial would execute.
// ok is false while the held-item list is unavailable.
func (e *Engine) Preview(initial int) (plan stash.Plan, ok bool) {
	items, ok := e.host.Items()
	if !ok {
		return nil, false
	}

	e.mu.RLock()
	set, mask := e.rules, e.mask
	e.mu.RUnlock()
	if set == nil {
		return stash.Plan{}, true
	}

	c := rules.NewClassifier(set, e.reg, mask, e.logger.Named("rules"))
	matches := c.ClassifyAll(items, e.host.InventoryRect(), e.cfg.ClickJitterPx, e.rng)
	return planner.Order(matches, initial), true
}

func (e *Engine) prepare(initial int) (stash.Plan, bool, error) {
	plan, ok := e.Preview(initial)
	return plan, ok, nil
}

func (e *Engine) persistReconcile(live []string) {
	if err := e.store.SaveBindings(e.ctx, e.reg.Bindings()); err != nil {
		e.logger.Error("failed to save bindings", zap.Error(err))
	}
	if err := e.store.SaveContainerNames(e.ctx, live); err != nil {
		e.logger.Error("failed to save tab names", zap.Error(err))
	}
}

func (e *Engine) record(res *sequencer.Result) {
	e.last = res
	if e.recorder == nil {
		return
	}
	rec := stash.BatchRecord{
		StartedAt:  res.Started.Unix(),
		FinishedAt: res.Finished.Unix(),
		Outcome:    string(res.Outcome),
		Initial:    res.Initial,
		Planned:    res.Planned,
		Clicked:    res.Clicked,
		Skipped:    res.Skipped,
		Simulated:  e.sim,
	}
	if res.Err != nil {
		rec.Message = res.Err.Error()
		if sErr, ok := errors.As(res.Err); ok {
			rec.Code = string(sErr.Code)
			rec.Message = sErr.Message
		}
	}
	if _, err := e.recorder.RecordBatch(e.ctx, rec); err != nil {
		e.logger.Error("failed to record batch", zap.Error(err))
	}
}
