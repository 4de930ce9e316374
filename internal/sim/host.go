package sim

import (
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/hpungsan/stasher/internal/errors"
	"github.com/hpungsan/stasher/internal/input"
	"github.com/hpungsan/stasher/internal/stash"
)

// Action is one input primitive the host received.
type Action struct {
	Frame int     `json:"frame"`
	Kind  string  `json:"kind"`
	Key   string  `json:"key,omitempty"`
	X     float64 `json:"x,omitempty"`
	Y     float64 `json:"y,omitempty"`
}

// Placement records an item moved into a tab.
type Placement struct {
	Item stash.Item `json:"item"`
	Tab  int        `json:"tab"`
	Name string     `json:"name"`
}

type pendingSwitch struct {
	at  int
	tab int
}

// Host is a scripted application: item source, container source, and input
// provider in one. Advance moves it to the next frame.
type Host struct {
	sc  *Scenario
	rng *rand.Rand

	frame   int
	visible int
	cursor  int
	pending []pendingSwitch
	items   []stash.Item
	pointer stash.Point

	acquired bool
	held     map[input.Key]bool

	Actions    []Action
	Placements []Placement
}

// NewHost creates a host in the scenario's initial state.
func NewHost(sc *Scenario, rng *rand.Rand) *Host {
	return &Host{
		sc:      sc,
		rng:     rng,
		visible: sc.Visible,
		cursor:  sc.Visible,
		items:   slices.Clone(sc.Items),
		held:    make(map[input.Key]bool),
	}
}

// Advance moves to frame, landing any tab switches that are due.
func (h *Host) Advance(frame int) {
	h.frame = frame
	kept := h.pending[:0]
	for _, p := range h.pending {
		if p.at > frame {
			kept = append(kept, p)
			continue
		}
		if slices.Contains(h.sc.StuckTabs, p.tab) {
			h.cursor = h.visible
			continue
		}
		h.visible = p.tab
	}
	h.pending = kept
}

// Items implements stash.ItemSource.
func (h *Host) Items() ([]stash.Item, bool) {
	if h.frame < h.sc.ItemsDelayFrames {
		return nil, false
	}
	return slices.Clone(h.items), true
}

// InventoryRect implements stash.ItemSource.
func (h *Host) InventoryRect() stash.Rect {
	return h.sc.InventoryRect
}

// ContainerNames implements stash.ContainerSource.
func (h *Host) ContainerNames() ([]string, bool) {
	return slices.Clone(h.sc.Tabs), true
}

// VisibleIndex implements stash.ContainerSource.
func (h *Host) VisibleIndex() int {
	return h.visible
}

// VisibleReady implements stash.ContainerSource.
func (h *Host) VisibleReady() bool {
	return h.visible >= 0 && !slices.Contains(h.sc.UnloadedTabs, h.visible)
}

// PanelOpen implements stash.ContainerSource.
func (h *Host) PanelOpen() bool {
	return true
}

// Held reports the keys currently down.
func (h *Host) Held() []input.Key {
	keys := make([]input.Key, 0, len(h.held))
	for k := range h.held {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Remaining returns the items still held.
func (h *Host) Remaining() []stash.Item {
	return slices.Clone(h.items)
}

// Acquire implements input.Provider.
func (h *Host) Acquire(owner string) (input.Controller, error) {
	if h.sc.InputUnavailable {
		return nil, errors.NewInputUnavailable("input service not running")
	}
	if h.acquired {
		return nil, errors.NewInputUnavailable("held by another owner")
	}
	h.acquired = true
	h.record(Action{Kind: "acquire", Key: owner})
	return h, nil
}

// MoveTo implements input.Controller.
func (h *Host) MoveTo(p stash.Point) error {
	h.pointer = p
	h.record(Action{Kind: "move", X: p.X, Y: p.Y})
	return nil
}

// KeyDown implements input.Controller.
func (h *Host) KeyDown(k input.Key) error {
	h.held[k] = true
	h.record(Action{Kind: "key_down", Key: string(k)})
	return nil
}

// KeyUp implements input.Controller. Arrow releases move the tab cursor;
// the visible tab follows after the switch latency.
func (h *Host) KeyUp(k input.Key) error {
	delete(h.held, k)
	h.record(Action{Kind: "key_up", Key: string(k)})

	step := 0
	switch k {
	case input.KeyRight:
		step = 1
	case input.KeyLeft:
		step = -1
	default:
		return nil
	}
	h.cursor = min(max(h.cursor+step, 0), len(h.sc.Tabs)-1)
	h.pending = append(h.pending, pendingSwitch{at: h.frame + h.sc.SwitchLatencyFrames, tab: h.cursor})
	if h.sc.SwitchLatencyFrames == 0 {
		h.Advance(h.frame)
	}
	return nil
}

// Click implements input.Controller. A modified click on an item moves it
// into the visible tab.
func (h *Host) Click(b input.Button) error {
	h.record(Action{Kind: "click", Key: b.String(), X: h.pointer.X, Y: h.pointer.Y})
	if len(h.held) == 0 || h.visible < 0 {
		return nil
	}

	rect := h.sc.InventoryRect
	col := int(math.Floor((h.pointer.X - rect.X) / (rect.W / stash.GridCols)))
	row := int(math.Floor((h.pointer.Y - rect.Y) / (rect.H / stash.GridRows)))
	for i, it := range h.items {
		if col >= it.X && col < it.X+it.Width && row >= it.Y && row < it.Y+it.Height {
			h.Placements = append(h.Placements, Placement{Item: it, Tab: h.visible, Name: h.sc.Tabs[h.visible]})
			h.items = slices.Delete(h.items, i, i+1)
			break
		}
	}
	return nil
}

// Delay implements input.Controller.
func (h *Host) Delay() time.Duration {
	lo, hi := h.sc.DelayMinMs, h.sc.DelayMaxMs
	ms := lo
	if hi > lo {
		ms += h.rng.IntN(hi - lo + 1)
	}
	return time.Duration(ms) * time.Millisecond
}

// Release implements input.Controller.
func (h *Host) Release() error {
	h.acquired = false
	h.record(Action{Kind: "release"})
	return nil
}

func (h *Host) record(a Action) {
	a.Frame = h.frame
	h.Actions = append(h.Actions, a)
}
