package hotkey

import (
	"golang.design/x/hotkey"

	"github.com/asheshgoplani/snapdeck/internal/keys"
)

// X11 modifier masks. Alt is Mod1 and Super is Mod4 on every common layout.
var modifiers = map[keys.Modifier]hotkey.Modifier{
	keys.ModCtrl:  hotkey.ModCtrl,
	keys.ModShift: hotkey.ModShift,
	keys.ModAlt:   hotkey.Mod1,
	keys.ModCmd:   hotkey.Mod4,
}

// X11 keysyms.
var keyCodes = map[string]uint16{
	"insert":    0xff63,
	"delete":    0xffff,
	"home":      0xff50,
	"end":       0xff57,
	"pageup":    0xff55,
	"pagedown":  0xff56,
	"enter":     0xff0d,
	"tab":       0xff09,
	"escape":    0xff1b,
	"space":     0x0020,
	"backspace": 0xff08,
	"left":      0xff51,
	"up":        0xff52,
	"right":     0xff53,
	"down":      0xff54,
	"numlock":   0xff7f,
}

func init() {
	for c := 'a'; c <= 'z'; c++ {
		keyCodes[string(c)] = uint16(c)
	}
	for c := '0'; c <= '9'; c++ {
		keyCodes[string(c)] = uint16(c)
	}
	for i := 0; i < 12; i++ {
		keyCodes[fKey(i+1)] = 0xffbe + uint16(i)
	}
}
