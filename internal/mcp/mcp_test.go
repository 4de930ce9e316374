package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/hpungsan/stasher/internal/config"
	"github.com/hpungsan/stasher/internal/db"
	"github.com/hpungsan/stasher/internal/errors"
	"github.com/hpungsan/stasher/internal/ops"
)

const testRules = "## Currency\n\n- Chaos: `name == \"Chaos Orb\"`\n\n## Maps\n\n- Any: `class == \"Map\"`\n"

// testSetup creates a temporary database, rule file, and config for testing.
func testSetup(t *testing.T) (*sql.DB, *config.Config) {
	t.Helper()

	tmpDir := t.TempDir()
	database, err := db.Init(tmpDir)
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	rulesPath := filepath.Join(tmpDir, "rules.md")
	if err := os.WriteFile(rulesPath, []byte(testRules), 0600); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.RulesFile = rulesPath
	return database, cfg
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func TestHandleRulesSyncAndBindings(t *testing.T) {
	database, cfg := testSetup(t)
	h := NewHandlers(database, cfg, Options{})
	ctx := context.Background()

	result, err := h.HandleRulesSync(ctx, makeRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("HandleRulesSync error: %v", err)
	}
	out := parseOutput(t, result)
	if out["rules"].(float64) != 2 {
		t.Errorf("rules = %v, want 2", out["rules"])
	}

	result, _ = h.HandleTabsReconcile(ctx, makeRequest(map[string]any{"names": []any{"Currency", "Maps"}}))
	out = parseOutput(t, result)
	if out["changed"] != true {
		t.Errorf("changed = %v, want true", out["changed"])
	}

	result, _ = h.HandleBindingSet(ctx, makeRequest(map[string]any{"identity": "MapsAny", "tab": "Maps"}))
	out = parseOutput(t, result)
	binding := out["binding"].(map[string]any)
	if binding["index"].(float64) != 1 {
		t.Errorf("index = %v, want 1", binding["index"])
	}

	result, _ = h.HandleBindingList(ctx, makeRequest(map[string]any{"limit": 1}))
	out = parseOutput(t, result)
	items := out["items"].([]any)
	if len(items) != 1 {
		t.Errorf("len(items) = %d, want 1", len(items))
	}
	if out["pagination"].(map[string]any)["has_more"] != true {
		t.Error("has_more = false, want true")
	}

	result, _ = h.HandleRulesList(ctx, makeRequest(nil))
	out = parseOutput(t, result)
	rules := out["rules"].([]any)
	if rules[1].(map[string]any)["tab"] != "Maps" {
		t.Errorf("rules[1].tab = %v, want Maps", rules[1].(map[string]any)["tab"])
	}
}

func TestHandleBindingSet_Errors(t *testing.T) {
	database, cfg := testSetup(t)
	h := NewHandlers(database, cfg, Options{})

	result, _ := h.HandleBindingSet(context.Background(), makeRequest(map[string]any{"identity": "Nope", "tab": "Ignore"}))
	assertErrorCode(t, result, "NOT_FOUND")

	result, _ = h.HandleBindingSet(context.Background(), makeRequest(map[string]any{"identity": "x", "tabb": "y"}))
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestHandleTabsReconcile_TooFew(t *testing.T) {
	database, cfg := testSetup(t)
	cfg.MinTabs = 3
	h := NewHandlers(database, cfg, Options{})

	result, _ := h.HandleTabsReconcile(context.Background(), makeRequest(map[string]any{"names": []any{"A"}}))
	assertErrorCode(t, result, "INVALID_TAB_NAMES")
}

func TestHandleCells(t *testing.T) {
	database, cfg := testSetup(t)
	h := NewHandlers(database, cfg, Options{})
	ctx := context.Background()

	result, _ := h.HandleCellsSet(ctx, makeRequest(map[string]any{
		"cells": []any{map[string]any{"x": 0, "y": 0}, map[string]any{"x": 3, "y": 2}},
	}))
	out := parseOutput(t, result)
	if out["count"].(float64) != 2 {
		t.Errorf("count = %v, want 2", out["count"])
	}

	result, _ = h.HandleCellsSet(ctx, makeRequest(map[string]any{
		"cells": []any{map[string]any{"x": 0, "y": 0}},
		"mode":  "remove",
	}))
	parseOutput(t, result)

	result, _ = h.HandleCellsGet(ctx, makeRequest(nil))
	out = parseOutput(t, result)
	cells := out["cells"].([]any)
	if len(cells) != 1 || cells[0].(map[string]any)["x"].(float64) != 3 {
		t.Errorf("cells = %v, want [(3,2)]", cells)
	}

	result, _ = h.HandleCellsSet(ctx, makeRequest(map[string]any{
		"cells": []any{map[string]any{"x": 99, "y": 0}},
	}))
	assertErrorCode(t, result, "INVALID_REQUEST")

	result, _ = h.HandleCellsSet(ctx, makeRequest(map[string]any{
		"mode":  "from_items",
		"items": []any{map[string]any{"x": 4, "y": 1, "w": 2, "h": 3}},
	}))
	out = parseOutput(t, result)
	if out["count"].(float64) != 6 {
		t.Errorf("count from items = %v, want 6", out["count"])
	}
}

func TestHandleBatchSimulateAndHistory(t *testing.T) {
	database, cfg := testSetup(t)
	h := NewHandlers(database, cfg, Options{LockPath: filepath.Join(t.TempDir(), "input.lock")})
	ctx := context.Background()

	scenario := "name: mcp\ntabs: [Currency, Maps]\nvisible: 0\nbindings:\n  CurrencyChaos: Currency\n  MapsAny: Maps\n" +
		"items:\n  - {x: 0, y: 0, attrs: {class: Map}}\n  - {x: 1, y: 0, attrs: {name: Chaos Orb}}\n"

	result, _ := h.HandleBatchSimulate(ctx, makeRequest(map[string]any{"scenario": scenario, "seed": 3}))
	out := parseOutput(t, result)
	if out["outcome"] != "success" {
		t.Fatalf("outcome = %v, want success", out["outcome"])
	}
	if out["clicked"].(float64) != 2 {
		t.Errorf("clicked = %v, want 2", out["clicked"])
	}

	result, _ = h.HandleBatchHistory(ctx, makeRequest(map[string]any{"outcome": "success"}))
	out = parseOutput(t, result)
	items := out["items"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["simulated"] != true {
		t.Errorf("history = %v, want one simulated batch", items)
	}

	result, _ = h.HandleBatchSimulate(ctx, makeRequest(map[string]any{}))
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestWatchRules_SyncsOnChange(t *testing.T) {
	database, cfg := testSetup(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	synced := make(chan *ops.SyncRulesOutput, 4)
	done := make(chan error, 1)
	go func() {
		done <- watchRules(ctx, database, cfg, zap.NewNop(), 20*time.Millisecond, func(out *ops.SyncRulesOutput) {
			synced <- out
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	updated := testRules + "\n## Gems\n\n- All: `class == \"Gem\"`\n"
	if err := os.WriteFile(cfg.RulesFile, []byte(updated), 0600); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	select {
	case out := <-synced:
		if out.Rules != 3 {
			t.Errorf("rules = %d, want 3", out.Rules)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("rule file change was not synced")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("watchRules returned %v, want nil after cancel", err)
	}
}

func TestServerRegistration(t *testing.T) {
	database, cfg := testSetup(t)

	s := NewServer(database, cfg, "test", Options{})
	tools := s.ListTools()
	if tools == nil {
		t.Fatal("expected tools to be registered, got nil")
	}

	expectedTools := []string{
		"binding_list",
		"binding_set",
		"tabs_reconcile",
		"rules_list",
		"rules_sync",
		"cells_get",
		"cells_set",
		"batch_history",
		"batch_simulate",
	}

	if len(tools) != len(expectedTools) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expectedTools))
	}

	for _, name := range expectedTools {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledToolsAndTypes(t *testing.T) {
	database, cfg := testSetup(t)

	cfg.DisabledTools = []string{"batch_simulate", "batch_simulate"}
	cfg.DisabledTypes = []string{"cells"}
	s := NewServer(database, cfg, "test", Options{})
	tools := s.ListTools()

	// 9 - batch_simulate - cells_get - cells_set
	if len(tools) != 6 {
		t.Errorf("registered tool count = %d, want 6", len(tools))
	}
	for _, name := range []string{"batch_simulate", "cells_get", "cells_set"} {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %q should not be registered", name)
		}
	}
}

func TestServerRegistration_AllToolsDisabled(t *testing.T) {
	database, cfg := testSetup(t)

	cfg.DisabledTools = AllToolNames()
	s := NewServer(database, cfg, "test", Options{})

	if tools := s.ListTools(); len(tools) != 0 {
		t.Errorf("registered tool count = %d, want 0 (all disabled)", len(tools))
	}
}

func TestValidateDisabled(t *testing.T) {
	if unknown := ValidateDisabledTools([]string{"binding_set", "fake_tool"}); len(unknown) != 1 {
		t.Errorf("ValidateDisabledTools unknown = %v, want [fake_tool]", unknown)
	}
	if unknown := ValidateDisabledTypes([]string{"rules", "capsule"}); len(unknown) != 1 {
		t.Errorf("ValidateDisabledTypes unknown = %v, want [capsule]", unknown)
	}
	if typ := GetTypeForTool("tabs_reconcile"); typ != "tabs" {
		t.Errorf("GetTypeForTool = %q, want tabs", typ)
	}
	if len(AllToolNames()) != 9 {
		t.Errorf("AllToolNames() returned %d names, want 9", len(AllToolNames()))
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(errors.NewInternal(fmt.Errorf("sql error: open /tmp/secret.db: permission denied")))
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	errObj := errorObject(t, r)
	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if strings.Contains(errObj["message"].(string), "secret") {
		t.Errorf("INTERNAL message leaked: %v", errObj["message"])
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
}

func TestErrorResult_WrappedErrorPreservesContext(t *testing.T) {
	wrapped := fmt.Errorf("cells[2]: %w", errors.NewInvalidRequest("out of grid"))

	errObj := errorObject(t, errorResult(wrapped))
	if errObj["code"] != string(errors.ErrInvalidRequest) {
		t.Errorf("code=%v, want %v", errObj["code"], errors.ErrInvalidRequest)
	}
	if msg := errObj["message"].(string); !strings.Contains(msg, "cells[2]") {
		t.Errorf("message should contain wrapper context, got: %s", msg)
	}
}

func TestErrorResult_NonInternalIncludesDetails(t *testing.T) {
	errObj := errorObject(t, errorResult(errors.NewNotFound("tab", "Dump")))
	if errObj["code"] != string(errors.ErrNotFound) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrNotFound)
	}
	if _, ok := errObj["details"]; !ok {
		t.Fatal("expected non-INTERNAL errors to include details when present")
	}
}

// Helper functions

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func errorObject(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Fatal("no error object in payload")
	}
	return errObj
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()
	if !result.IsError {
		t.Errorf("expected error %s, got success", expectedCode)
		return
	}
	if code, _ := errorObject(t, result)["code"].(string); code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}

	return text.Text
}
