package stash

import (
	"cmp"
	"math/rand/v2"
	"slices"
)

// Inventory grid dimensions.
const (
	GridRows = 5
	GridCols = 12
)

// Attributes is the opaque per-item data rule predicates read.
// Values are strings, numbers (int or float64), or booleans.
type Attributes map[string]any

// Item is an immutable per-tick snapshot of one held item.
type Item struct {
	// X and Y are the grid column and row of the item's top-left cell
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`

	// Width and Height are the item's size in cells
	Width  int `json:"w" yaml:"w"`
	Height int `json:"h" yaml:"h"`

	// Attrs is the attribute data used by rule predicates
	Attrs Attributes `json:"attrs,omitempty" yaml:"attrs"`
}

// SortByCell orders items column-major (X, then Y), the order the host
// reports inventory slots in.
func SortByCell(items []Item) []Item {
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b Item) int {
		if c := cmp.Compare(a.X, b.X); c != 0 {
			return c
		}
		return cmp.Compare(a.Y, b.Y)
	})
	return sorted
}

// Point is a screen coordinate in pixels.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Rect is a screen-space pixel rectangle.
type Rect struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	W float64 `json:"w" yaml:"w"`
	H float64 `json:"h" yaml:"h"`
}

// ClickPoint maps the item's top-left cell centre into rect and perturbs it by
// independent uniform integer offsets in [-jitter, jitter] on each axis.
func ClickPoint(rect Rect, item Item, jitter int, rng *rand.Rand) Point {
	cellW := rect.W / GridCols
	cellH := rect.H / GridRows

	p := Point{
		X: rect.X + cellW/2 + float64(item.X)*cellW,
		Y: rect.Y + cellH/2 + float64(item.Y)*cellH,
	}
	if jitter <= 0 || rng == nil {
		return p
	}
	p.X += float64(rng.IntN(2*jitter+1) - jitter)
	p.Y += float64(rng.IntN(2*jitter+1) - jitter)
	return p
}

// CellMask marks inventory cells whose items are never stashed.
// Indexed [row][col].
type CellMask [GridRows][GridCols]bool

// Ignored reports whether the cell at column x, row y is masked.
// Cells outside the grid are always ignored.
func (m *CellMask) Ignored(x, y int) bool {
	if x < 0 || x >= GridCols || y < 0 || y >= GridRows {
		return true
	}
	return m[y][x]
}

// Set marks or clears the cell at column x, row y. Out-of-grid cells are ignored.
func (m *CellMask) Set(x, y int, ignored bool) {
	if x < 0 || x >= GridCols || y < 0 || y >= GridRows {
		return
	}
	m[y][x] = ignored
}

// Count returns the number of masked cells.
func (m *CellMask) Count() int {
	n := 0
	for y := range GridRows {
		for x := range GridCols {
			if m[y][x] {
				n++
			}
		}
	}
	return n
}

// Cells returns the masked cells in row-major order.
func (m *CellMask) Cells() []Cell {
	cells := make([]Cell, 0, m.Count())
	for y := range GridRows {
		for x := range GridCols {
			if m[y][x] {
				cells = append(cells, Cell{X: x, Y: y})
			}
		}
	}
	return cells
}

// Cell addresses one inventory grid cell.
type Cell struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// MaskFromItems builds a mask covering every cell the given items occupy,
// so whatever is currently held is protected from future batches.
func MaskFromItems(items []Item) CellMask {
	var m CellMask
	for _, it := range items {
		w, h := max(it.Width, 1), max(it.Height, 1)
		for dy := range h {
			for dx := range w {
				m.Set(it.X+dx, it.Y+dy, true)
			}
		}
	}
	return m
}
