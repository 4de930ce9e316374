package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/stasher/internal/config"
	"github.com/hpungsan/stasher/internal/errors"
	"github.com/hpungsan/stasher/internal/ops"
	"github.com/hpungsan/stasher/internal/sim"
	"github.com/hpungsan/stasher/internal/stash"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(db *sql.DB, cfg *config.Config, e *env) *cli.App {
	if e == nil {
		e = &env{logger: zap.NewNop()}
	}
	app := &cli.App{
		Name:    "stasher",
		Usage:   "Rule-driven stash sorting",
		Version: Version,
		Commands: []*cli.Command{
			bindingsCmd(db, cfg),
			bindCmd(db, cfg),
			reconcileCmd(db, cfg),
			rulesCmd(db, cfg),
			syncRulesCmd(db, cfg),
			cellsCmd(db),
			historyCmd(db),
			simulateCmd(db, cfg, e),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// bindingsCmd creates the bindings command.
func bindingsCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "bindings",
		Usage: "List rule destinations",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Max results"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Results to skip"},
			&cli.BoolFlag{Name: "table", Aliases: []string{"t"}, Usage: "Render as a table"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.ListBindings(c.Context, db, cfg, ops.ListBindingsInput{
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}

			if c.Bool("table") {
				rows := make([][]string, 0, len(output.Items))
				for _, b := range output.Items {
					rows = append(rows, []string{b.Group, b.Rule, b.Name, tabIndex(b)})
				}
				return outputText(renderTable(
					[]string{"Group", "Rule", "Tab", "Index"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
				))
			}
			return outputJSON(output)
		},
	}
}

// bindCmd creates the bind command.
func bindCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "bind",
		Usage:     "Bind a rule to a tab by display name (\"Ignore\" unbinds)",
		ArgsUsage: "<identity> <tab>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return outputError(errors.NewInvalidRequest("usage: stasher bind <identity> <tab>"))
			}

			output, err := ops.SetBinding(c.Context, db, cfg, ops.SetBindingInput{
				Identity: c.Args().Get(0),
				Tab:      c.Args().Get(1),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// reconcileCmd creates the reconcile command.
func reconcileCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "reconcile",
		Usage:     "Re-resolve bindings against the live tab names",
		ArgsUsage: "<tab name>...",
		Action: func(c *cli.Context) error {
			output, err := ops.Reconcile(c.Context, db, cfg, ops.ReconcileInput{
				Names: c.Args().Slice(),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// rulesCmd creates the rules command.
func rulesCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "rules",
		Usage: "List rules in evaluation order",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Rule file (default: rules_file from config)"},
			&cli.BoolFlag{Name: "table", Aliases: []string{"t"}, Usage: "Render as a table"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Rules(c.Context, db, cfg, ops.RulesInput{Path: c.String("path")})
			if err != nil {
				return outputError(err)
			}

			if c.Bool("table") {
				rows := make([][]string, 0, len(output.Rules))
				for _, r := range output.Rules {
					rows = append(rows, []string{strconv.Itoa(r.Line), r.Group, r.Name, r.Expr, ruleFlags(r), r.Tab})
				}
				return outputText(renderTable(
					[]string{"Line", "Group", "Rule", "Predicate", "Flags", "Tab"},
					rows,
					[]columnAlignment{alignRight},
				))
			}
			return outputJSON(output)
		},
	}
}

// syncRulesCmd creates the sync-rules command.
func syncRulesCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "sync-rules",
		Usage: "Align bindings with the rule file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Rule file (default: rules_file from config)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.SyncRules(c.Context, db, cfg, ops.RulesInput{Path: c.String("path")})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// cellsCmd creates the cells command.
func cellsCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "cells",
		Usage: "Show or update the ignored inventory cells",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "cell", Aliases: []string{"c"}, Usage: "Cell as col:row (repeatable)"},
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "replace", Usage: "With --cell: replace|add|remove"},
			&cli.BoolFlag{Name: "clear", Usage: "Clear every ignored cell"},
			&cli.StringFlag{Name: "from-inventory", Usage: "Ignore exactly the cells held items occupy, read from an inventory or scenario YAML file"},
		},
		Action: func(c *cli.Context) error {
			specs := c.StringSlice("cell")
			if path := c.String("from-inventory"); path != "" {
				if len(specs) > 0 || c.Bool("clear") {
					return outputError(errors.NewInvalidRequest("--from-inventory cannot be combined with --cell or --clear"))
				}
				items, err := sim.LoadInventory(path)
				if err != nil {
					return outputError(err)
				}
				output, err := ops.SetCells(c.Context, db, ops.SetCellsInput{Items: items, Mode: ops.CellsModeFromItems})
				if err != nil {
					return outputError(err)
				}
				return outputJSON(output)
			}
			if len(specs) == 0 && !c.Bool("clear") {
				output, err := ops.GetCells(c.Context, db)
				if err != nil {
					return outputError(err)
				}
				return outputJSON(output)
			}

			cells := make([]stash.Cell, 0, len(specs))
			for _, s := range specs {
				cell, err := parseCell(s)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				cells = append(cells, cell)
			}

			mode := ops.CellsMode(c.String("mode"))
			if c.Bool("clear") {
				if len(cells) > 0 {
					return outputError(errors.NewInvalidRequest("--clear cannot be combined with --cell"))
				}
				mode = ops.CellsModeReplace
			}

			output, err := ops.SetCells(c.Context, db, ops.SetCellsInput{Cells: cells, Mode: mode})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// historyCmd creates the history command.
func historyCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recorded batches, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "outcome", Usage: "Filter: success|failed|noop"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Max results"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Results to skip"},
			&cli.BoolFlag{Name: "table", Aliases: []string{"t"}, Usage: "Render as a table"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.History(c.Context, db, ops.HistoryInput{
				Outcome: c.String("outcome"),
				Limit:   c.Int("limit"),
				Offset:  c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}

			if c.Bool("table") {
				rows := make([][]string, 0, len(output.Items))
				for _, r := range output.Items {
					outcome := r.Outcome
					if r.Simulated {
						outcome += " (sim)"
					}
					rows = append(rows, []string{
						r.ID,
						time.Unix(r.StartedAt, 0).Format(time.DateTime),
						outcome,
						strconv.Itoa(r.Planned),
						strconv.Itoa(r.Clicked),
						strconv.Itoa(r.Skipped),
						r.Code,
					})
				}
				return outputText(renderTable(
					[]string{"ID", "Started", "Outcome", "Planned", "Clicked", "Skipped", "Code"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
				))
			}
			return outputJSON(output)
		},
	}
}

// simulateCmd creates the simulate command.
func simulateCmd(db *sql.DB, cfg *config.Config, e *env) *cli.Command {
	return &cli.Command{
		Name:      "simulate",
		Usage:     "Run one batch against a scripted scenario",
		ArgsUsage: "<scenario.yaml>",
		Flags: []cli.Flag{
			&cli.Uint64Flag{Name: "seed", Aliases: []string{"s"}, Value: 1, Usage: "Random seed for jitter and delays"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(errors.NewInvalidRequest("usage: stasher simulate <scenario.yaml>"))
			}

			report, err := ops.Simulate(c.Context, db, cfg, ops.SimulateInput{
				Path:     c.Args().First(),
				Seed:     c.Uint64("seed"),
				LockPath: e.lockPath,
				Logger:   e.logger.Named("sim"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(report)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputText writes s and a trailing newline to stdout.
func outputText(s string) error {
	_, err := fmt.Fprintln(os.Stdout, s)
	return err
}

// outputError formats error for CLI.
func outputError(err error) error {
	if sErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", sErr.Code, sErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// parseCell parses "col:row".
func parseCell(s string) (stash.Cell, error) {
	colStr, rowStr, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return stash.Cell{}, fmt.Errorf("invalid cell %q: want col:row", s)
	}
	col, err := strconv.Atoi(strings.TrimSpace(colStr))
	if err != nil {
		return stash.Cell{}, fmt.Errorf("invalid cell column %q", colStr)
	}
	row, err := strconv.Atoi(strings.TrimSpace(rowStr))
	if err != nil {
		return stash.Cell{}, fmt.Errorf("invalid cell row %q", rowStr)
	}
	return stash.Cell{X: col, Y: row}, nil
}

func tabIndex(b stash.Binding) string {
	if b.Ignored() {
		return "-"
	}
	return strconv.Itoa(b.Index)
}

func ruleFlags(r ops.RuleView) string {
	var flags []string
	if r.Shift {
		flags = append(flags, "shift")
	}
	if r.NoSwitch {
		flags = append(flags, "noswitch")
	}
	if r.Disabled {
		flags = append(flags, "disabled")
	}
	return strings.Join(flags, ",")
}
