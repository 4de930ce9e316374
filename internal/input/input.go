// Package input defines the exclusive input-injection capability a batch
// drives, and the cross-process lock that guards it.
package input

import (
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/stasher/internal/stash"
)

// Key names a keyboard key.
type Key string

const (
	KeyCtrl  Key = "ctrl"
	KeyShift Key = "shift"
	KeyAlt   Key = "alt"
	KeyLeft  Key = "left"
	KeyRight Key = "right"
)

// ParseKey validates a configured modifier or arrow key name.
func ParseKey(s string) (Key, error) {
	switch k := Key(strings.ToLower(strings.TrimSpace(s))); k {
	case KeyCtrl, KeyShift, KeyAlt, KeyLeft, KeyRight:
		return k, nil
	default:
		return "", fmt.Errorf("unknown key %q", s)
	}
}

// Button names a mouse button.
type Button int

const (
	ButtonLeft Button = iota
	ButtonRight
)

func (b Button) String() string {
	if b == ButtonRight {
		return "right"
	}
	return "left"
}

// Controller issues input primitives. It is held by one batch at a time.
type Controller interface {
	MoveTo(p stash.Point) error
	KeyDown(k Key) error
	KeyUp(k Key) error
	Click(b Button) error

	// Delay returns the pause to observe after a move or click.
	Delay() time.Duration

	// Release gives the capability back. It must be called exactly once.
	Release() error
}

// Provider hands out the controller.
type Provider interface {
	// Acquire returns the controller, or an INPUT_UNAVAILABLE error when
	// another owner holds it.
	Acquire(owner string) (Controller, error)
}
