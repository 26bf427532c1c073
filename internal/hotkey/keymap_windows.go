package hotkey

import (
	"golang.design/x/hotkey"

	"github.com/asheshgoplani/snapdeck/internal/keys"
)

var modifiers = map[keys.Modifier]hotkey.Modifier{
	keys.ModCtrl:  hotkey.ModCtrl,
	keys.ModShift: hotkey.ModShift,
	keys.ModAlt:   hotkey.ModAlt,
	keys.ModCmd:   hotkey.ModWin,
}

// Windows virtual-key codes.
var keyCodes = map[string]uint16{
	"insert":    0x2D,
	"delete":    0x2E,
	"home":      0x24,
	"end":       0x23,
	"pageup":    0x21,
	"pagedown":  0x22,
	"enter":     0x0D,
	"tab":       0x09,
	"escape":    0x1B,
	"space":     0x20,
	"backspace": 0x08,
	"left":      0x25,
	"up":        0x26,
	"right":     0x27,
	"down":      0x28,
	"numlock":   0x90,
}

func init() {
	for c := 'a'; c <= 'z'; c++ {
		keyCodes[string(c)] = uint16(c - 'a' + 'A')
	}
	for c := '0'; c <= '9'; c++ {
		keyCodes[string(c)] = uint16(c)
	}
	for i := 0; i < 12; i++ {
		keyCodes[fKey(i+1)] = 0x70 + uint16(i)
	}
}
