// Package keys describes key combinations and injects them into the focused
// application through the platform's native automation tool.
package keys

import (
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"
)

// Modifier is a canonical modifier name.
type Modifier string

const (
	ModCtrl  Modifier = "ctrl"
	ModAlt   Modifier = "alt"
	ModShift Modifier = "shift"
	ModCmd   Modifier = "cmd"
)

// modifierOrder fixes the order modifiers are rendered and pressed in.
var modifierOrder = []Modifier{ModCtrl, ModAlt, ModShift, ModCmd}

var modifierAliases = map[string]Modifier{
	"ctrl":    ModCtrl,
	"control": ModCtrl,
	"ctl":     ModCtrl,
	"alt":     ModAlt,
	"option":  ModAlt,
	"opt":     ModAlt,
	"shift":   ModShift,
	"cmd":     ModCmd,
	"command": ModCmd,
	"super":   ModCmd,
	"win":     ModCmd,
	"meta":    ModCmd,
}

// Named keys understood by every backend. Letters and digits are added in init.
var namedKeys = map[string]string{
	"insert":    "insert",
	"ins":       "insert",
	"delete":    "delete",
	"del":       "delete",
	"home":      "home",
	"end":       "end",
	"pageup":    "pageup",
	"pgup":      "pageup",
	"pagedown":  "pagedown",
	"pgdn":      "pagedown",
	"enter":     "enter",
	"return":    "enter",
	"tab":       "tab",
	"escape":    "escape",
	"esc":       "escape",
	"space":     "space",
	"backspace": "backspace",
	"up":        "up",
	"down":      "down",
	"left":      "left",
	"right":     "right",
	"numlock":   "numlock",
}

func init() {
	for c := 'a'; c <= 'z'; c++ {
		namedKeys[string(c)] = string(c)
	}
	for c := '0'; c <= '9'; c++ {
		namedKeys[string(c)] = string(c)
	}
	for i := 1; i <= 12; i++ {
		name := fmt.Sprintf("f%d", i)
		namedKeys[name] = name
	}
}

// Combo is a parsed key combination such as ctrl+shift+v.
type Combo struct {
	Mods []Modifier
	Key  string
}

// Well-known combos.
var (
	NumLock = Combo{Key: "numlock"}
	Enter   = Combo{Key: "enter"}
)

// Has reports whether the combo holds modifier m.
func (c Combo) Has(m Modifier) bool {
	for _, have := range c.Mods {
		if have == m {
			return true
		}
	}
	return false
}

// String renders the combo in canonical form ("ctrl+shift+v").
func (c Combo) String() string {
	parts := make([]string, 0, len(c.Mods)+1)
	for _, m := range c.Mods {
		parts = append(parts, string(m))
	}
	parts = append(parts, c.Key)
	return strings.Join(parts, "+")
}

// ParseCombo parses a "+"-separated combination. Modifiers may appear in any
// order and are normalized; exactly one non-modifier key is required.
// Unknown names yield an error with the closest known spelling.
func ParseCombo(s string) (Combo, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Combo{}, fmt.Errorf("empty key combination")
	}

	seen := make(map[Modifier]bool)
	var key string
	for _, part := range strings.Split(s, "+") {
		part = strings.TrimSpace(part)
		if part == "" {
			return Combo{}, fmt.Errorf("key combination %q has an empty part", s)
		}
		if m, ok := modifierAliases[part]; ok {
			seen[m] = true
			continue
		}
		canonical, ok := namedKeys[part]
		if !ok {
			return Combo{}, unknownKeyError(part)
		}
		if key != "" {
			return Combo{}, fmt.Errorf("key combination %q names two keys (%s, %s)", s, key, canonical)
		}
		key = canonical
	}
	if key == "" {
		return Combo{}, fmt.Errorf("key combination %q has no key, only modifiers", s)
	}

	c := Combo{Key: key}
	for _, m := range modifierOrder {
		if seen[m] {
			c.Mods = append(c.Mods, m)
		}
	}
	return c, nil
}

// MustParse is ParseCombo for compile-time constants.
func MustParse(s string) Combo {
	c, err := ParseCombo(s)
	if err != nil {
		panic(err)
	}
	return c
}

func unknownKeyError(name string) error {
	if s := Suggest(name); s != "" {
		return fmt.Errorf("unknown key %q (did you mean %q?)", name, s)
	}
	return fmt.Errorf("unknown key %q", name)
}

// Suggest returns the best fuzzy match for name among known key and
// modifier names, or "" if nothing is close.
func Suggest(name string) string {
	vocab := make([]string, 0, len(namedKeys)+len(modifierAliases))
	for k := range namedKeys {
		if len(k) > 1 {
			vocab = append(vocab, k)
		}
	}
	for k := range modifierAliases {
		vocab = append(vocab, k)
	}
	matches := fuzzy.Find(name, vocab)
	if len(matches) == 0 {
		return ""
	}
	best := matches[0]
	for _, m := range matches[1:] {
		// Equal scores: prefer the shorter, then alphabetical, so the
		// answer does not depend on map iteration order.
		if m.Score > best.Score ||
			(m.Score == best.Score && (len(m.Str) < len(best.Str) ||
				(len(m.Str) == len(best.Str) && m.Str < best.Str))) {
			best = m
		}
	}
	return best.Str
}
