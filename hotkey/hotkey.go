// Package hotkey registers a global key chord that toggles recording.
package hotkey

import (
	"fmt"
	"strings"
)

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

// Binding is a key chord such as ctrl+shift+space.
type Binding struct {
	Ctrl  bool
	Shift bool
	Key   string
}

var Default = Binding{Ctrl: true, Shift: true, Key: "space"}

var keys = []string{"space", "f8", "f9", "f10"}

// Parse reads a chord like "ctrl+shift+space". Modifiers may be given in
// any order; at least one modifier and exactly one key are required.
func Parse(s string) (Binding, error) {
	if strings.TrimSpace(s) == "" {
		return Default, nil
	}
	var b Binding
	for _, part := range strings.Split(strings.ToLower(s), "+") {
		part = strings.TrimSpace(part)
		switch part {
		case "ctrl", "control":
			b.Ctrl = true
		case "shift":
			b.Shift = true
		default:
			if b.Key != "" {
				return Binding{}, fmt.Errorf("hotkey %q: more than one key", s)
			}
			if !knownKey(part) {
				return Binding{}, fmt.Errorf("hotkey %q: unsupported key %q (use one of %s)", s, part, strings.Join(keys, ", "))
			}
			b.Key = part
		}
	}
	if b.Key == "" {
		return Binding{}, fmt.Errorf("hotkey %q: missing key", s)
	}
	if !b.Ctrl && !b.Shift {
		// the listener is global, so a bare key would also fire while typing
		return Binding{}, fmt.Errorf("hotkey %q: needs ctrl or shift", s)
	}
	return b, nil
}

func knownKey(k string) bool {
	for _, known := range keys {
		if k == known {
			return true
		}
	}
	return false
}

func (b Binding) String() string {
	var parts []string
	if b.Ctrl {
		parts = append(parts, "Ctrl")
	}
	if b.Shift {
		parts = append(parts, "Shift")
	}
	key := b.Key
	if key == "space" {
		key = "Space"
	} else {
		key = strings.ToUpper(key)
	}
	return strings.Join(append(parts, key), "+")
}
