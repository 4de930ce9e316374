package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/stasher/internal/config"
	"github.com/hpungsan/stasher/internal/db"
	"github.com/hpungsan/stasher/internal/errors"
	"github.com/hpungsan/stasher/internal/stash"
)

// ListBindingsInput contains parameters for the ListBindings operation.
type ListBindingsInput struct {
	Limit  int // default: 20, max: 100
	Offset int // default: 0
}

// ListBindingsOutput contains the result of the ListBindings operation.
type ListBindingsOutput struct {
	Items        []stash.Binding `json:"items"`
	DisplayNames []string        `json:"display_names"`
	Pagination   Pagination      `json:"pagination"`
}

// ListBindings returns bindings in rule registration order alongside the
// destination names a binding can be set to.
func ListBindings(ctx context.Context, database *sql.DB, cfg *config.Config, input ListBindingsInput) (*ListBindingsOutput, error) {
	limit, offset := page(input.Limit, input.Offset)

	reg, err := openRegistry(ctx, db.NewStore(database), cfg)
	if err != nil {
		return nil, err
	}

	all := reg.Bindings()
	total := len(all)
	items := []stash.Binding{}
	if offset < total {
		items = all[offset:min(offset+limit, total)]
	}

	return &ListBindingsOutput{
		Items:        items,
		DisplayNames: reg.DisplayNames(),
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
	}, nil
}

// SetBindingInput contains parameters for the SetBinding operation.
type SetBindingInput struct {
	Identity string // required, group name + rule name
	Tab      string // required, a display name or "Ignore"
}

// SetBindingOutput contains the result of the SetBinding operation.
type SetBindingOutput struct {
	Binding stash.Binding `json:"binding"`
}

// SetBinding points one rule at the tab currently displayed as Tab.
func SetBinding(ctx context.Context, database *sql.DB, cfg *config.Config, input SetBindingInput) (*SetBindingOutput, error) {
	identity := strings.TrimSpace(input.Identity)
	if identity == "" {
		return nil, errors.NewInvalidRequest("identity is required")
	}
	if input.Tab == "" {
		return nil, errors.NewInvalidRequest("tab is required")
	}

	store := db.NewStore(database)
	reg, err := openRegistry(ctx, store, cfg)
	if err != nil {
		return nil, err
	}

	b, err := reg.Set(identity, input.Tab)
	if err != nil {
		return nil, err
	}
	if err := store.SaveBindings(ctx, []stash.Binding{b}); err != nil {
		return nil, err
	}

	return &SetBindingOutput{Binding: b}, nil
}

// ReconcileInput contains parameters for the Reconcile operation.
type ReconcileInput struct {
	Names []string // the live tab names, in tab order
}

// ReconcileOutput contains the result of the Reconcile operation.
type ReconcileOutput struct {
	Changed      bool            `json:"changed"`
	DisplayNames []string        `json:"display_names"`
	Bindings     []stash.Binding `json:"bindings"`
}

// Reconcile re-resolves every binding against a new live tab list and
// persists both. A list shorter than min_tabs is rejected and nothing is
// written.
func Reconcile(ctx context.Context, database *sql.DB, cfg *config.Config, input ReconcileInput) (*ReconcileOutput, error) {
	store := db.NewStore(database)
	reg, err := openRegistry(ctx, store, cfg)
	if err != nil {
		return nil, err
	}

	changed, err := reg.Reconcile(input.Names)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := store.SaveBindings(ctx, reg.Bindings()); err != nil {
			return nil, err
		}
	}
	if err := store.SaveContainerNames(ctx, input.Names); err != nil {
		return nil, err
	}

	return &ReconcileOutput{
		Changed:      changed,
		DisplayNames: reg.DisplayNames(),
		Bindings:     reg.Bindings(),
	}, nil
}
