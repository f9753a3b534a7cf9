package input

import (
	"strings"

	"github.com/okian/ovation/internal/domain/model"
)

// Device is the kind of physical device that produced a raw event.
type Device uint8

const (
	Keyboard Device = iota
	Pointer
)

func (d Device) String() string {
	if d == Pointer {
		return "pointer"
	}
	return "keyboard"
}

// Lane actions used by the default keymap and the 4-lane importer.
const (
	ActionLeft  model.Action = "left"
	ActionDown  model.Action = "down"
	ActionUp    model.Action = "up"
	ActionRight model.Action = "right"
	ActionTap   model.Action = "tap"
)

// Keymap maps physical key names to abstract actions. Names are compared
// case-insensitively.
type Keymap map[string]model.Action

// DefaultKeymap binds D/F/J/K and the arrow keys to the four lanes and
// space or a primary click to a lane-less tap.
func DefaultKeymap() Keymap {
	return Keymap{
		"d":       ActionLeft,
		"f":       ActionDown,
		"j":       ActionUp,
		"k":       ActionRight,
		"left":    ActionLeft,
		"down":    ActionDown,
		"up":      ActionUp,
		"right":   ActionRight,
		"space":   ActionTap,
		"pointer": ActionTap,
	}
}

// Lookup returns the action bound to physical.
func (k Keymap) Lookup(physical string) (model.Action, bool) {
	a, ok := k[strings.ToLower(physical)]
	return a, ok
}
