package ops

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hpungsan/stasher/internal/errors"
)

func TestRules_ListsWithDestinations(t *testing.T) {
	ctx := context.Background()
	database, cfg := testSetup(t)

	output, err := Rules(ctx, database, cfg, RulesInput{})
	if err != nil {
		t.Fatalf("Rules failed: %v", err)
	}
	if len(output.Rules) != 3 {
		t.Fatalf("len(Rules) = %d, want 3", len(output.Rules))
	}
	if output.Rules[0].Tab != "" {
		t.Errorf("unsynced rule Tab = %q, want empty", output.Rules[0].Tab)
	}
	if !output.Rules[1].Shift || output.Rules[1].Identity != "CurrencyScrolls" {
		t.Errorf("Rules[1] = %+v, want shift CurrencyScrolls", output.Rules[1])
	}

	if _, err := SyncRules(ctx, database, cfg, RulesInput{}); err != nil {
		t.Fatalf("SyncRules failed: %v", err)
	}
	output, err = Rules(ctx, database, cfg, RulesInput{})
	if err != nil {
		t.Fatalf("Rules failed: %v", err)
	}
	if output.Rules[2].Tab != "Ignore" {
		t.Errorf("synced rule Tab = %q, want Ignore", output.Rules[2].Tab)
	}
}

func TestRules_NoRuleFile(t *testing.T) {
	database, cfg := testSetup(t)
	cfg.RulesFile = ""

	_, err := Rules(context.Background(), database, cfg, RulesInput{})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("Rules error = %v, want INVALID_REQUEST", err)
	}

	_, err = Rules(context.Background(), database, cfg, RulesInput{Path: filepath.Join(t.TempDir(), "missing.md")})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Rules error = %v, want NOT_FOUND", err)
	}
}

func TestSyncRules_AddsAndRemoves(t *testing.T) {
	ctx := context.Background()
	database, cfg := testSetup(t)

	first, err := SyncRules(ctx, database, cfg, RulesInput{})
	if err != nil {
		t.Fatalf("SyncRules failed: %v", err)
	}
	if len(first.Added) != 3 || len(first.Removed) != 0 {
		t.Errorf("first sync = %+v, want 3 added", first)
	}

	if _, err := Reconcile(ctx, database, cfg, ReconcileInput{Names: []string{"Currency", "Maps"}}); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if _, err := SetBinding(ctx, database, cfg, SetBindingInput{Identity: "CurrencyChaos", Tab: "Currency"}); err != nil {
		t.Fatalf("SetBinding failed: %v", err)
	}

	path := writeRules(t, t.TempDir(), "## Currency\n\n- Chaos: `name == \"Chaos Orb\"`\n\n## Gems\n\n- All: `class == \"Gem\"`\n")
	second, err := SyncRules(ctx, database, cfg, RulesInput{Path: path})
	if err != nil {
		t.Fatalf("SyncRules failed: %v", err)
	}
	if len(second.Added) != 1 || second.Added[0] != "GemsAll" {
		t.Errorf("Added = %v, want [GemsAll]", second.Added)
	}
	if len(second.Removed) != 2 {
		t.Errorf("Removed = %v, want CurrencyScrolls and MapsAny", second.Removed)
	}

	list, err := ListBindings(ctx, database, cfg, ListBindingsInput{})
	if err != nil {
		t.Fatalf("ListBindings failed: %v", err)
	}
	if len(list.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(list.Items))
	}
	// Surviving rules keep their destination.
	if list.Items[0].Identity != "CurrencyChaos" || list.Items[0].Name != "Currency" {
		t.Errorf("Items[0] = %+v, want CurrencyChaos on Currency", list.Items[0])
	}
}

func TestSyncRules_ParseError(t *testing.T) {
	database, cfg := testSetup(t)
	path := writeRules(t, t.TempDir(), "- Orphan: `x == 1`\n")

	_, err := SyncRules(context.Background(), database, cfg, RulesInput{Path: path})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("SyncRules error = %v, want INVALID_REQUEST", err)
	}
}
