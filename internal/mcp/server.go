package mcp

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/stasher/internal/config"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"binding", "tabs", "rules", "cells", "batch"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"binding_list": {
		def:     bindingListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBindingList },
	},
	"binding_set": {
		def:     bindingSetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBindingSet },
	},
	"tabs_reconcile": {
		def:     tabsReconcileToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTabsReconcile },
	},
	"rules_list": {
		def:     rulesListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRulesList },
	},
	"rules_sync": {
		def:     rulesSyncToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRulesSync },
	},
	"cells_get": {
		def:     cellsGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCellsGet },
	},
	"cells_set": {
		def:     cellsSetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCellsSet },
	},
	"batch_history": {
		def:     batchHistoryToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBatchHistory },
	},
	"batch_simulate": {
		def:     batchSimulateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBatchSimulate },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "binding_set" → "binding").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	// Build set of types for O(1) lookup
	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	// Collect tools belonging to disabled types
	tools := make([]string, 0)
	for name := range toolRegistry {
		typ := GetTypeForTool(name)
		if typeSet[typ] {
			tools = append(tools, name)
		}
	}
	return tools
}

// NewServer creates a new MCP server with stasher tools registered.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration.
func NewServer(db *sql.DB, cfg *config.Config, version string, opts Options) *server.MCPServer {
	s := server.NewMCPServer(
		"stasher",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(db, cfg, opts)

	// Build set of disabled tools: first expand types, then add individual tools
	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	// Register tools (skip disabled)
	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run serves MCP over stdio until ctx is cancelled or stdin closes. When a
// rule file is configured it is watched and bindings are re-synced on change.
func Run(ctx context.Context, db *sql.DB, cfg *config.Config, version string, opts Options) error {
	opts = opts.withDefaults()
	s := NewServer(db, cfg, version, opts)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return server.NewStdioServer(s).Listen(ctx, os.Stdin, os.Stdout)
	})
	if cfg.RulesFile != "" {
		g.Go(func() error {
			return WatchRules(ctx, db, cfg, opts.Logger)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
