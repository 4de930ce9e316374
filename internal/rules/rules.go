// Package rules loads the Markdown rule file and classifies held items
// against it.
package rules

import (
	"github.com/hpungsan/stasher/internal/stash"
)

// Rule is one named predicate inside a group.
type Rule struct {
	Group string `json:"group"`
	Name  string `json:"name"`

	// Expr is the predicate source as written in the rule file
	Expr string `json:"expr"`

	// Shift holds the secondary modifier while clicking matched items
	Shift bool `json:"shift,omitempty"`

	// NoSwitch clicks matched items without switching the visible tab
	NoSwitch bool `json:"no_switch,omitempty"`

	// Disabled rules are kept for their binding but never evaluated
	Disabled bool `json:"disabled,omitempty"`

	// Line is the 1-based line the rule was declared on
	Line int `json:"line"`

	pred Predicate
}

// Identity returns the binding key of the rule.
func (r *Rule) Identity() string {
	return stash.Identity(r.Group, r.Name)
}

// Eval runs the rule's predicate against attrs.
func (r *Rule) Eval(attrs stash.Attributes) (bool, error) {
	return r.pred.Eval(attrs)
}

// Group is an ordered list of rules under one heading.
type Group struct {
	Name  string  `json:"name"`
	Rules []*Rule `json:"rules"`
}

// RuleSet is a loaded rule file. Groups and their rules keep file order.
type RuleSet struct {
	Source string   `json:"source"`
	Groups []*Group `json:"groups"`
}

// Rules returns every rule in evaluation order.
func (s *RuleSet) Rules() []*Rule {
	if s == nil {
		return nil
	}
	var out []*Rule
	for _, g := range s.Groups {
		out = append(out, g.Rules...)
	}
	return out
}

// Identities returns every rule identity in evaluation order.
func (s *RuleSet) Identities() []string {
	rules := s.Rules()
	ids := make([]string, len(rules))
	for i, r := range rules {
		ids[i] = r.Identity()
	}
	return ids
}

// Lookup finds a rule by identity.
func (s *RuleSet) Lookup(identity string) (*Rule, bool) {
	for _, r := range s.Rules() {
		if r.Identity() == identity {
			return r, true
		}
	}
	return nil, false
}
