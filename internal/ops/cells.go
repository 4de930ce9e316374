package ops

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hpungsan/stasher/internal/db"
	"github.com/hpungsan/stasher/internal/errors"
	"github.com/hpungsan/stasher/internal/stash"
)

// CellsMode controls how SetCells combines the given cells with the mask.
type CellsMode string

const (
	CellsModeReplace CellsMode = "replace" // default
	CellsModeAdd     CellsMode = "add"
	CellsModeRemove  CellsMode = "remove"

	// CellsModeFromItems replaces the mask with every cell the given items
	// occupy, protecting whatever is currently held.
	CellsModeFromItems CellsMode = "from_items"
)

// CellsOutput contains the ignored-cell mask.
type CellsOutput struct {
	Cells []stash.Cell `json:"cells"`
	Count int          `json:"count"`
	Rows  int          `json:"rows"`
	Cols  int          `json:"cols"`
}

// GetCells returns the persisted ignored-cell mask.
func GetCells(ctx context.Context, database *sql.DB) (*CellsOutput, error) {
	mask, err := db.NewStore(database).LoadIgnoredCells(ctx)
	if err != nil {
		return nil, err
	}
	return cellsOutput(mask), nil
}

// SetCellsInput contains parameters for the SetCells operation.
type SetCellsInput struct {
	Cells []stash.Cell
	Mode  CellsMode // default: replace

	// Items is the held-item snapshot used by CellsModeFromItems
	Items []stash.Item
}

// SetCells updates the ignored-cell mask. Cells outside the grid are rejected.
func SetCells(ctx context.Context, database *sql.DB, input SetCellsInput) (*CellsOutput, error) {
	if input.Mode == "" {
		input.Mode = CellsModeReplace
	}
	switch input.Mode {
	case CellsModeReplace, CellsModeAdd, CellsModeRemove:
		if len(input.Items) > 0 {
			return nil, errors.NewInvalidRequest("items are only accepted with mode from_items")
		}
	case CellsModeFromItems:
		if len(input.Cells) > 0 {
			return nil, errors.NewInvalidRequest("cells cannot be combined with mode from_items")
		}
	default:
		return nil, errors.NewInvalidRequest("mode must be one of: replace, add, remove, from_items")
	}
	for i, c := range input.Cells {
		if !inGrid(c.X, c.Y) {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("cells[%d]: (%d,%d) is outside the %dx%d grid", i, c.X, c.Y, stash.GridCols, stash.GridRows))
		}
	}
	for i, it := range input.Items {
		w, h := max(it.Width, 1), max(it.Height, 1)
		if !inGrid(it.X, it.Y) || !inGrid(it.X+w-1, it.Y+h-1) {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("items[%d]: %dx%d at (%d,%d) does not fit the %dx%d grid", i, w, h, it.X, it.Y, stash.GridCols, stash.GridRows))
		}
	}

	store := db.NewStore(database)
	if input.Mode == CellsModeFromItems {
		mask := stash.MaskFromItems(input.Items)
		if err := store.SaveIgnoredCells(ctx, mask); err != nil {
			return nil, err
		}
		return cellsOutput(mask), nil
	}

	var mask stash.CellMask
	if input.Mode != CellsModeReplace {
		var err error
		if mask, err = store.LoadIgnoredCells(ctx); err != nil {
			return nil, err
		}
	}
	for _, c := range input.Cells {
		mask.Set(c.X, c.Y, input.Mode != CellsModeRemove)
	}

	if err := store.SaveIgnoredCells(ctx, mask); err != nil {
		return nil, err
	}
	return cellsOutput(mask), nil
}

func inGrid(x, y int) bool {
	return x >= 0 && x < stash.GridCols && y >= 0 && y < stash.GridRows
}

func cellsOutput(mask stash.CellMask) *CellsOutput {
	return &CellsOutput{
		Cells: mask.Cells(),
		Count: mask.Count(),
		Rows:  stash.GridRows,
		Cols:  stash.GridCols,
	}
}
