// Package planner orders matched items into an execution plan.
package planner

import (
	"cmp"
	"slices"

	"github.com/hpungsan/stasher/internal/stash"
)

// Order returns matches as a plan that minimises tab switches. Items that
// need no switch from initial come first, then ascending destination. Ties
// keep their input order.
func Order(matches []stash.MatchedItem, initial int) stash.Plan {
	plan := make(stash.Plan, len(matches))
	copy(plan, matches)

	key := func(m stash.MatchedItem) int {
		if m.NoSwitch || m.Destination == initial {
			return 0
		}
		return 1
	}
	slices.SortStableFunc(plan, func(a, b stash.MatchedItem) int {
		if c := cmp.Compare(key(a), key(b)); c != 0 {
			return c
		}
		return cmp.Compare(a.Destination, b.Destination)
	})
	return plan
}
