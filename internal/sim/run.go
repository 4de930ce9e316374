package sim

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/stasher/internal/config"
	"github.com/hpungsan/stasher/internal/engine"
	"github.com/hpungsan/stasher/internal/errors"
	"github.com/hpungsan/stasher/internal/input"
	"github.com/hpungsan/stasher/internal/rules"
	"github.com/hpungsan/stasher/internal/stash"
)

// Options configures a simulation run.
type Options struct {
	Config   *config.Config
	Store    engine.ConfigStore
	Recorder engine.Recorder

	// LockPath guards the simulated input with a file lock when set.
	LockPath string

	Logger *zap.Logger
	Seed   uint64
}

// Report is the outcome of a simulation run.
type Report struct {
	Scenario     string            `json:"scenario,omitempty"`
	Outcome      string            `json:"outcome"`
	Code         string            `json:"code,omitempty"`
	Message      string            `json:"message,omitempty"`
	Planned      int               `json:"planned"`
	Clicked      int               `json:"clicked"`
	Skipped      int               `json:"skipped"`
	Frames       int               `json:"frames"`
	ElapsedMs    int64             `json:"elapsed_ms"`
	DisplayNames []string          `json:"display_names"`
	Plan         stash.Plan        `json:"plan"`
	Placements   []Placement       `json:"placements"`
	Remaining    []stash.Item      `json:"remaining"`
	Actions      []Action          `json:"actions"`
	HeldAfter    []input.Key       `json:"held_after"`
	Bindings     map[string]string `json:"bindings"`
}

// Run plays one batch of sc through a fresh engine. The engine starts from
// the store's state; scenario bindings and ignored cells override it.
func Run(ctx context.Context, sc *Scenario, opts Options) (*Report, error) {
	if opts.Store == nil {
		opts.Store = engine.NewMemoryStore(nil, stash.CellMask{}, nil)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	cfg := config.DefaultConfig()
	if opts.Config != nil {
		copied := *opts.Config
		cfg = &copied
	}
	if sc.Rules != "" {
		cfg.RulesFile = ""
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	host := NewHost(sc, rng)

	var provider input.Provider = host
	if opts.LockPath != "" {
		provider = input.NewLockedProvider(host, opts.LockPath)
	}

	engOpts := []engine.Option{engine.WithRand(rng), engine.WithLogger(opts.Logger), engine.Simulated()}
	if opts.Recorder != nil {
		engOpts = append(engOpts, engine.WithRecorder(opts.Recorder))
	}
	eng, err := engine.New(cfg, host, opts.Store, provider, engOpts...)
	if err != nil {
		return nil, err
	}
	if err := eng.Start(ctx); err != nil {
		return nil, err
	}
	defer eng.Stop()

	if sc.Rules != "" {
		set, err := rules.Parse(sc.Name+".rules", []byte(sc.Rules))
		if err != nil {
			return nil, err
		}
		if _, err := eng.LoadRules(ctx, set); err != nil {
			return nil, err
		}
	} else if cfg.RulesFile == "" {
		return nil, errors.NewInvalidRequest("scenario has no rules and no rules_file is configured")
	}

	frame := time.Duration(sc.FrameMs) * time.Millisecond
	start := time.Unix(0, 0)

	// The first frame is an area change so the registry sees the scenario's tabs.
	eng.AreaChanged(start)
	eng.Tick(start, false)

	for identity, name := range sc.Bindings {
		if _, err := eng.Registry().Set(identity, name); err != nil {
			return nil, err
		}
	}
	if len(sc.IgnoredCells) > 0 {
		var mask stash.CellMask
		for _, c := range sc.IgnoredCells {
			mask.Set(c.X, c.Y, true)
		}
		if err := eng.SetIgnoredCells(ctx, mask); err != nil {
			return nil, err
		}
	}

	report := &Report{Scenario: sc.Name, DisplayNames: eng.Registry().DisplayNames()}
	if plan, ok := eng.Preview(max(sc.Visible, 0)); ok {
		report.Plan = plan
	}

	for n := 1; n <= sc.MaxFrames; n++ {
		if n%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		now := start.Add(time.Duration(n) * frame)
		host.Advance(n)
		st := eng.Tick(now, n == 1)
		if st.Result == nil {
			continue
		}

		res := st.Result
		report.Outcome = string(res.Outcome)
		report.Planned = res.Planned
		report.Clicked = res.Clicked
		report.Skipped = res.Skipped
		report.Frames = n
		report.ElapsedMs = res.Finished.Sub(res.Started).Milliseconds()
		if sErr, ok := errors.As(res.Err); ok {
			report.Code = string(sErr.Code)
			report.Message = sErr.Message
		} else if res.Err != nil {
			report.Message = res.Err.Error()
		}
		report.Placements = host.Placements
		report.Remaining = host.Remaining()
		report.Actions = host.Actions
		report.HeldAfter = host.Held()
		report.Bindings = make(map[string]string)
		for _, b := range eng.Registry().Bindings() {
			report.Bindings[b.Identity] = b.Name
		}
		opts.Logger.Info("simulation finished",
			zap.String("scenario", sc.Name),
			zap.String("outcome", report.Outcome),
			zap.Int("frames", n),
		)
		return report, nil
	}

	return nil, errors.NewInternal(fmt.Errorf("scenario %q did not finish within %d frames", sc.Name, sc.MaxFrames))
}
