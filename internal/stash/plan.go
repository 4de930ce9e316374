package stash

// MatchedItem pairs an item with its resolved destination and click geometry.
type MatchedItem struct {
	Item Item `json:"item"`

	// Rule is the identity of the rule that matched
	Rule string `json:"rule"`

	// Destination is the 0-based tab index to stash into
	Destination int `json:"destination"`

	// Click is the jittered screen point to click
	Click Point `json:"click"`

	// Shift holds the secondary modifier while clicking
	Shift bool `json:"shift,omitempty"`

	// NoSwitch clicks without switching the visible tab
	NoSwitch bool `json:"no_switch,omitempty"`
}

// Plan is the ordered sequence of matched items a batch executes.
type Plan []MatchedItem

// Destinations returns the distinct destinations in plan order.
func (p Plan) Destinations() []int {
	seen := make(map[int]bool)
	out := make([]int, 0)
	for _, m := range p {
		if !seen[m.Destination] {
			seen[m.Destination] = true
			out = append(out, m.Destination)
		}
	}
	return out
}

// Switches counts the tab switches executing the plan needs when the view
// starts on initial, assuming every switch succeeds.
func (p Plan) Switches(initial int) int {
	current := initial
	n := 0
	for _, m := range p {
		if m.NoSwitch || m.Destination == current {
			continue
		}
		current = m.Destination
		n++
	}
	return n
}
