// Package sim drives the engine against a scripted host described by a YAML
// scenario.
package sim

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hpungsan/stasher/internal/errors"
	"github.com/hpungsan/stasher/internal/stash"
)

// Scenario describes the host state and behaviour for one simulated batch.
type Scenario struct {
	Name string `yaml:"name"`

	// Tabs are the live tab names; Visible is the tab shown at start (-1 for none)
	Tabs    []string `yaml:"tabs"`
	Visible int      `yaml:"visible"`

	InventoryRect stash.Rect   `yaml:"inventory_rect"`
	Items         []stash.Item `yaml:"items"`

	// Rules is inline rule-file Markdown. When empty the configured rule file is used.
	Rules string `yaml:"rules"`

	// Bindings maps rule identity to a tab display name.
	Bindings map[string]string `yaml:"bindings"`

	IgnoredCells []stash.Cell `yaml:"ignored_cells"`

	// SwitchLatencyFrames is how many frames a tab switch takes to show.
	SwitchLatencyFrames int `yaml:"switch_latency_frames"`

	// StuckTabs never become visible; UnloadedTabs never report ready.
	StuckTabs    []int `yaml:"stuck_tabs"`
	UnloadedTabs []int `yaml:"unloaded_tabs"`

	InputUnavailable bool `yaml:"input_unavailable"`
	ItemsDelayFrames int  `yaml:"items_delay_frames"`

	// DelayMinMs and DelayMaxMs bound the host delay after each move and click.
	DelayMinMs int `yaml:"delay_min_ms"`
	DelayMaxMs int `yaml:"delay_max_ms"`

	FrameMs   int `yaml:"frame_ms"`
	MaxFrames int `yaml:"max_frames"`
}

// LoadScenario reads a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("scenario", path)
		}
		return nil, errors.NewInternal(err)
	}
	return ParseScenario(data)
}

// LoadInventory reads the items list of an inventory snapshot. Scenario files
// qualify, since only their items key is read.
func LoadInventory(path string) ([]stash.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("inventory", path)
		}
		return nil, errors.NewInternal(err)
	}
	var snapshot struct {
		Items []stash.Item `yaml:"items"`
	}
	if err := yaml.Unmarshal(data, &snapshot); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid inventory: %v", err))
	}
	return snapshot.Items, nil
}

// ParseScenario decodes and validates scenario YAML, filling defaults.
func ParseScenario(data []byte) (*Scenario, error) {
	sc := &Scenario{}
	if err := yaml.Unmarshal(data, sc); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid scenario: %v", err))
	}
	if err := sc.normalize(); err != nil {
		return nil, err
	}
	return sc, nil
}

func (sc *Scenario) normalize() error {
	if sc.Visible < -1 || sc.Visible >= len(sc.Tabs) {
		return errors.NewInvalidRequest(fmt.Sprintf("visible tab %d out of range for %d tabs", sc.Visible, len(sc.Tabs)))
	}
	if sc.InventoryRect.W <= 0 || sc.InventoryRect.H <= 0 {
		sc.InventoryRect = stash.Rect{X: 1270, Y: 590, W: 630, H: 262}
	}
	for i, it := range sc.Items {
		if it.Width <= 0 {
			sc.Items[i].Width = 1
		}
		if it.Height <= 0 {
			sc.Items[i].Height = 1
		}
	}
	if sc.FrameMs <= 0 {
		sc.FrameMs = 16
	}
	if sc.MaxFrames <= 0 {
		sc.MaxFrames = 3000
	}
	if sc.SwitchLatencyFrames < 0 {
		sc.SwitchLatencyFrames = 0
	}
	if sc.DelayMaxMs < sc.DelayMinMs {
		sc.DelayMinMs, sc.DelayMaxMs = sc.DelayMaxMs, sc.DelayMinMs
	}
	return nil
}
