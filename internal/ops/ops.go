// Package ops implements the operations behind the CLI and MCP surfaces.
// Each operation opens the persisted state, applies one change, and saves it.
package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/stasher/internal/config"
	"github.com/hpungsan/stasher/internal/db"
	"github.com/hpungsan/stasher/internal/errors"
	"github.com/hpungsan/stasher/internal/registry"
	"github.com/hpungsan/stasher/internal/rules"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// page applies limit defaults and bounds and clamps offset.
func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return limit, max(offset, 0)
}

// openRegistry builds a registry from the persisted bindings and the last
// reconciled tab names.
func openRegistry(ctx context.Context, store *db.Store, cfg *config.Config) (*registry.Registry, error) {
	bindings, err := store.LoadBindings(ctx)
	if err != nil {
		return nil, err
	}
	names, err := store.LoadContainerNames(ctx)
	if err != nil {
		return nil, err
	}

	reg := registry.New(registry.WithMinTabs(cfg.MinTabs))
	reg.Load(bindings, names)
	return reg, nil
}

// loadRuleSet parses path, falling back to the configured rule file.
func loadRuleSet(cfg *config.Config, path string) (*rules.RuleSet, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = cfg.RulesFile
	}
	if path == "" {
		return nil, errors.NewInvalidRequest("no rule file given and rules_file is not configured")
	}
	return rules.ParseFile(path)
}
