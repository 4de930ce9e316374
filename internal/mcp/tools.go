package mcp

import "github.com/mark3labs/mcp-go/mcp"

var bindingListToolDef = mcp.NewTool("binding_list",
	mcp.WithDescription("List rule destination bindings in rule order, with the tab names a binding can point at."),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
)

var bindingSetToolDef = mcp.NewTool("binding_set",
	mcp.WithDescription("Bind a rule to a tab by its display name. \"Ignore\" unbinds it."),
	mcp.WithString("identity", mcp.Required(), mcp.Description("Rule identity: group name followed by rule name")),
	mcp.WithString("tab", mcp.Required(), mcp.Description("Display name of the destination tab, or Ignore")),
)

var tabsReconcileToolDef = mcp.NewTool("tabs_reconcile",
	mcp.WithDescription("Re-resolve every binding against the live tab names. Bindings follow their tab by name, then by position, else fall back to Ignore."),
	mcp.WithArray("names", mcp.Required(), mcp.Description("Live tab names in tab order"), mcp.Items(map[string]any{"type": "string"})),
)

var rulesListToolDef = mcp.NewTool("rules_list",
	mcp.WithDescription("Parse the rule file and list its rules in evaluation order with their current destination."),
	mcp.WithString("path", mcp.Description("Rule file (default: rules_file from config)")),
)

var rulesSyncToolDef = mcp.NewTool("rules_sync",
	mcp.WithDescription("Align bindings with the rule file: new rules start on Ignore, bindings of deleted rules are dropped."),
	mcp.WithString("path", mcp.Description("Rule file (default: rules_file from config)")),
)

var cellsGetToolDef = mcp.NewTool("cells_get",
	mcp.WithDescription("Get the inventory cells whose items are never stashed."),
)

var cellsSetToolDef = mcp.NewTool("cells_set",
	mcp.WithDescription("Update the ignored inventory cells."),
	mcp.WithArray("cells", mcp.Description("Cells as {x, y}; x is the column (0-11), y the row (0-4)"),
		mcp.Items(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"x": map[string]any{"type": "integer"},
				"y": map[string]any{"type": "integer"},
			},
			"required": []string{"x", "y"},
		})),
	mcp.WithString("mode", mcp.Description("replace (default), add, remove, or from_items"), mcp.Enum("replace", "add", "remove", "from_items")),
	mcp.WithArray("items", mcp.Description("With mode from_items: the held items; every cell they occupy becomes ignored"),
		mcp.Items(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"x": map[string]any{"type": "integer"},
				"y": map[string]any{"type": "integer"},
				"w": map[string]any{"type": "integer"},
				"h": map[string]any{"type": "integer"},
			},
			"required": []string{"x", "y"},
		})),
)

var batchHistoryToolDef = mcp.NewTool("batch_history",
	mcp.WithDescription("List recorded batches, newest first."),
	mcp.WithString("outcome", mcp.Description("Filter by outcome"), mcp.Enum("success", "failed", "noop")),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
)

var batchSimulateToolDef = mcp.NewTool("batch_simulate",
	mcp.WithDescription("Run one batch against a scripted host scenario using the persisted bindings and ignored cells. Returns every input primitive issued."),
	mcp.WithString("path", mcp.Description("Scenario YAML file")),
	mcp.WithString("scenario", mcp.Description("Inline scenario YAML")),
	mcp.WithNumber("seed", mcp.Description("Random seed for jitter and delays")),
)
