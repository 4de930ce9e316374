package ops

import (
	"context"
	"database/sql"
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/stasher/internal/config"
	"github.com/hpungsan/stasher/internal/db"
	"github.com/hpungsan/stasher/internal/engine"
	"github.com/hpungsan/stasher/internal/errors"
	"github.com/hpungsan/stasher/internal/sim"
)

// SimulateInput contains parameters for the Simulate operation.
// Exactly one of Path and Scenario is required.
type SimulateInput struct {
	Path     string // scenario YAML file
	Scenario string // inline scenario YAML
	Seed     uint64

	// LockPath guards the simulated input with the same file lock a live
	// batch takes. Empty disables the lock.
	LockPath string

	Logger *zap.Logger
}

// Simulate runs one batch of a scenario against the persisted bindings and
// ignored cells. Binding changes made by the run stay in memory; the batch
// itself is recorded in history as simulated.
func Simulate(ctx context.Context, database *sql.DB, cfg *config.Config, input SimulateInput) (*sim.Report, error) {
	path := strings.TrimSpace(input.Path)
	hasPath := path != ""
	hasInline := strings.TrimSpace(input.Scenario) != ""
	if hasPath == hasInline {
		return nil, errors.NewInvalidRequest("must specify exactly one of path or scenario")
	}

	var (
		sc  *sim.Scenario
		err error
	)
	if hasPath {
		sc, err = sim.LoadScenario(path)
	} else {
		sc, err = sim.ParseScenario([]byte(input.Scenario))
	}
	if err != nil {
		return nil, err
	}

	store := db.NewStore(database)
	bindings, err := store.LoadBindings(ctx)
	if err != nil {
		return nil, err
	}
	names, err := store.LoadContainerNames(ctx)
	if err != nil {
		return nil, err
	}
	mask, err := store.LoadIgnoredCells(ctx)
	if err != nil {
		return nil, err
	}

	return sim.Run(ctx, sc, sim.Options{
		Config:   cfg,
		Store:    engine.NewMemoryStore(bindings, mask, names),
		Recorder: store,
		LockPath: input.LockPath,
		Logger:   input.Logger,
		Seed:     input.Seed,
	})
}
