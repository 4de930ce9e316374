package stash

// Sentinel "no destination" values. Display position 0 is always IgnoreName.
const (
	IgnoreIndex = -1
	IgnoreName  = "Ignore"
)

// Binding is the persisted destination of one rule.
type Binding struct {
	// Identity is the rule's group name concatenated with its rule name
	Identity string `json:"identity"`

	// Group and Rule are the components of Identity, kept for display
	Group string `json:"group"`
	Rule  string `json:"rule"`

	// Index is the 0-based tab index, or IgnoreIndex
	Index int `json:"index"`

	// Name is the last known display name of the tab at Index
	Name string `json:"name"`
}

// Ignored reports whether the binding is the sentinel.
func (b Binding) Ignored() bool {
	return b.Index < 0
}

// NewIgnoreBinding returns the sentinel binding for a rule.
func NewIgnoreBinding(group, rule string) Binding {
	return Binding{
		Identity: Identity(group, rule),
		Group:    group,
		Rule:     rule,
		Index:    IgnoreIndex,
		Name:     IgnoreName,
	}
}

// Identity returns the binding key for a rule.
func Identity(group, rule string) string {
	return group + rule
}
