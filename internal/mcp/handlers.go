package mcp

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/hpungsan/stasher/internal/config"
	"github.com/hpungsan/stasher/internal/errors"
	"github.com/hpungsan/stasher/internal/ops"
	"github.com/hpungsan/stasher/internal/stash"
)

// Options carries the server's process-level dependencies.
type Options struct {
	// LockPath is the input lock taken by simulated batches; empty disables it
	LockPath string

	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db   *sql.DB
	cfg  *config.Config
	opts Options
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, cfg *config.Config, opts Options) *Handlers {
	return &Handlers{db: db, cfg: cfg, opts: opts.withDefaults()}
}

// Request types for each tool

// PageRequest represents the arguments for binding_list.
type PageRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// BindingSetRequest represents the arguments for binding_set.
type BindingSetRequest struct {
	Identity string `json:"identity"`
	Tab      string `json:"tab"`
}

// TabsReconcileRequest represents the arguments for tabs_reconcile.
type TabsReconcileRequest struct {
	Names []string `json:"names"`
}

// RulesRequest represents the arguments for rules_list and rules_sync.
type RulesRequest struct {
	Path string `json:"path,omitempty"`
}

// CellsSetRequest represents the arguments for cells_set.
type CellsSetRequest struct {
	Cells []stash.Cell `json:"cells"`
	Mode  string       `json:"mode,omitempty"`
	Items []stash.Item `json:"items,omitempty"`
}

// BatchHistoryRequest represents the arguments for batch_history.
type BatchHistoryRequest struct {
	Outcome string `json:"outcome,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

// BatchSimulateRequest represents the arguments for batch_simulate.
type BatchSimulateRequest struct {
	Path     string `json:"path,omitempty"`
	Scenario string `json:"scenario,omitempty"`
	Seed     uint64 `json:"seed,omitempty"`
}

// Handler implementations

// HandleBindingList handles the binding_list tool call.
func (h *Handlers) HandleBindingList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PageRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ListBindings(ctx, h.db, h.cfg, ops.ListBindingsInput{
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleBindingSet handles the binding_set tool call.
func (h *Handlers) HandleBindingSet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[BindingSetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SetBinding(ctx, h.db, h.cfg, ops.SetBindingInput{
		Identity: input.Identity,
		Tab:      input.Tab,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleTabsReconcile handles the tabs_reconcile tool call.
func (h *Handlers) HandleTabsReconcile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TabsReconcileRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Reconcile(ctx, h.db, h.cfg, ops.ReconcileInput{Names: input.Names})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleRulesList handles the rules_list tool call.
func (h *Handlers) HandleRulesList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RulesRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Rules(ctx, h.db, h.cfg, ops.RulesInput{Path: input.Path})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleRulesSync handles the rules_sync tool call.
func (h *Handlers) HandleRulesSync(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RulesRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SyncRules(ctx, h.db, h.cfg, ops.RulesInput{Path: input.Path})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleCellsGet handles the cells_get tool call.
func (h *Handlers) HandleCellsGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.GetCells(ctx, h.db)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleCellsSet handles the cells_set tool call.
func (h *Handlers) HandleCellsSet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CellsSetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SetCells(ctx, h.db, ops.SetCellsInput{
		Cells: input.Cells,
		Mode:  ops.CellsMode(input.Mode),
		Items: input.Items,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleBatchHistory handles the batch_history tool call.
func (h *Handlers) HandleBatchHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[BatchHistoryRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.History(ctx, h.db, ops.HistoryInput{
		Outcome: input.Outcome,
		Limit:   input.Limit,
		Offset:  input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleBatchSimulate handles the batch_simulate tool call.
func (h *Handlers) HandleBatchSimulate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[BatchSimulateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Simulate(ctx, h.db, h.cfg, ops.SimulateInput{
		Path:     input.Path,
		Scenario: input.Scenario,
		Seed:     input.Seed,
		LockPath: h.opts.LockPath,
		Logger:   h.opts.Logger.Named("sim"),
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if sErr, ok := errors.As(err); ok {
		// Wrapped errors keep their context, e.g. "cells[2]: ..."
		message := err.Error()
		if err == error(sErr) {
			message = sErr.Message
		}
		if sErr.Code == errors.ErrInternal {
			message = "an internal error occurred"
		}
		errorObj := map[string]any{
			"code":    sErr.Code,
			"message": message,
			"status":  sErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or SQL errors
		if sErr.Code != errors.ErrInternal && sErr.Details != nil {
			errorObj["details"] = sErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
