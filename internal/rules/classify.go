package rules

import (
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/hpungsan/stasher/internal/errors"
	"github.com/hpungsan/stasher/internal/stash"
)

// BindingLookup resolves a rule identity to its destination.
type BindingLookup interface {
	Get(identity string) (stash.Binding, bool)
}

// Classifier matches items to destinations. First match wins.
type Classifier struct {
	set      *RuleSet
	bindings BindingLookup
	mask     stash.CellMask
	logger   *zap.Logger
}

// NewClassifier creates a classifier over set. A nil logger discards events.
func NewClassifier(set *RuleSet, bindings BindingLookup, mask stash.CellMask, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{set: set, bindings: bindings, mask: mask, logger: logger}
}

// Match returns the first enabled rule whose predicate holds for item,
// regardless of its binding. Items in ignored cells never match.
func (c *Classifier) Match(item stash.Item) (*Rule, bool) {
	if c.mask.Ignored(item.X, item.Y) {
		return nil, false
	}
	for _, g := range c.set.Groups {
		for _, r := range g.Rules {
			if r.Disabled {
				continue
			}
			ok, err := r.Eval(item.Attrs)
			if err != nil {
				c.logger.Warn("rule evaluation failed",
					zap.Error(errors.NewRuleEval(r.Identity(), err)),
					zap.Int("x", item.X),
					zap.Int("y", item.Y),
				)
				continue
			}
			if ok {
				return r, true
			}
		}
	}
	return nil, false
}

// Classify resolves item to a matched item clicked at click. A winning rule
// bound to Ignore (or not bound at all) stops evaluation without a match.
func (c *Classifier) Classify(item stash.Item, click stash.Point) (stash.MatchedItem, bool) {
	r, ok := c.Match(item)
	if !ok {
		return stash.MatchedItem{}, false
	}
	b, ok := c.bindings.Get(r.Identity())
	if !ok || b.Ignored() {
		return stash.MatchedItem{}, false
	}
	return stash.MatchedItem{
		Item:        item,
		Rule:        r.Identity(),
		Destination: b.Index,
		Click:       click,
		Shift:       r.Shift,
		NoSwitch:    r.NoSwitch,
	}, true
}

// ClassifyAll visits items column-major, computing a fresh click point per
// item inside rect, and returns the matches in visit order.
func (c *Classifier) ClassifyAll(items []stash.Item, rect stash.Rect, jitter int, rng *rand.Rand) []stash.MatchedItem {
	var matches []stash.MatchedItem
	for _, it := range stash.SortByCell(items) {
		click := stash.ClickPoint(rect, it, jitter, rng)
		if m, ok := c.Classify(it, click); ok {
			matches = append(matches, m)
		}
	}
	return matches
}
