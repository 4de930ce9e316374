package ops

import (
	"context"
	"database/sql"
	"slices"

	"github.com/hpungsan/stasher/internal/config"
	"github.com/hpungsan/stasher/internal/db"
	"github.com/hpungsan/stasher/internal/engine"
)

// RulesInput contains parameters for the Rules and SyncRules operations.
type RulesInput struct {
	Path string // default: config rules_file
}

// RuleView is one rule with its current destination.
type RuleView struct {
	Identity string `json:"identity"`
	Group    string `json:"group"`
	Name     string `json:"name"`
	Expr     string `json:"expr"`
	Shift    bool   `json:"shift,omitempty"`
	NoSwitch bool   `json:"no_switch,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
	Line     int    `json:"line"`

	// Tab is the bound display name; empty when the rule has not been synced
	Tab string `json:"tab,omitempty"`
}

// RulesOutput contains the result of the Rules operation.
type RulesOutput struct {
	Source string     `json:"source"`
	Rules  []RuleView `json:"rules"`
}

// Rules parses the rule file and reports every rule in evaluation order.
func Rules(ctx context.Context, database *sql.DB, cfg *config.Config, input RulesInput) (*RulesOutput, error) {
	set, err := loadRuleSet(cfg, input.Path)
	if err != nil {
		return nil, err
	}

	reg, err := openRegistry(ctx, db.NewStore(database), cfg)
	if err != nil {
		return nil, err
	}

	views := make([]RuleView, 0)
	for _, r := range set.Rules() {
		v := RuleView{
			Identity: r.Identity(),
			Group:    r.Group,
			Name:     r.Name,
			Expr:     r.Expr,
			Shift:    r.Shift,
			NoSwitch: r.NoSwitch,
			Disabled: r.Disabled,
			Line:     r.Line,
		}
		if b, ok := reg.Get(v.Identity); ok {
			v.Tab = b.Name
		}
		views = append(views, v)
	}

	return &RulesOutput{Source: set.Source, Rules: views}, nil
}

// SyncRulesOutput contains the result of the SyncRules operation.
type SyncRulesOutput struct {
	Source  string   `json:"source"`
	Rules   int      `json:"rules"`
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

// SyncRules aligns persisted bindings with the rule file: new rules are
// bound to Ignore, bindings of deleted rules are dropped.
func SyncRules(ctx context.Context, database *sql.DB, cfg *config.Config, input RulesInput) (*SyncRulesOutput, error) {
	set, err := loadRuleSet(cfg, input.Path)
	if err != nil {
		return nil, err
	}

	store := db.NewStore(database)
	reg, err := openRegistry(ctx, store, cfg)
	if err != nil {
		return nil, err
	}

	before := make([]string, 0)
	for _, b := range reg.Bindings() {
		before = append(before, b.Identity)
	}

	removed, err := engine.SyncBindings(ctx, reg, store, set)
	if err != nil {
		return nil, err
	}

	added := make([]string, 0)
	for _, id := range set.Identities() {
		if !slices.Contains(before, id) {
			added = append(added, id)
		}
	}
	if removed == nil {
		removed = []string{}
	}

	return &SyncRulesOutput{
		Source:  set.Source,
		Rules:   len(set.Rules()),
		Added:   added,
		Removed: removed,
	}, nil
}
