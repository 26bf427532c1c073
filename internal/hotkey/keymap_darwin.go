package hotkey

import (
	"golang.design/x/hotkey"

	"github.com/asheshgoplani/snapdeck/internal/keys"
)

var modifiers = map[keys.Modifier]hotkey.Modifier{
	keys.ModCtrl:  hotkey.ModCtrl,
	keys.ModShift: hotkey.ModShift,
	keys.ModAlt:   hotkey.ModOption,
	keys.ModCmd:   hotkey.ModCmd,
}

// macOS virtual key codes (ANSI layout). Insert is the Help key, which
// sits in the same place on Apple extended keyboards. There is no Num Lock.
var keyCodes = map[string]uint16{
	"insert":    0x72,
	"delete":    0x75,
	"home":      0x73,
	"end":       0x77,
	"pageup":    0x74,
	"pagedown":  0x79,
	"enter":     0x24,
	"tab":       0x30,
	"escape":    0x35,
	"space":     0x31,
	"backspace": 0x33,
	"left":      0x7B,
	"right":     0x7C,
	"down":      0x7D,
	"up":        0x7E,

	"a": 0x00, "s": 0x01, "d": 0x02, "f": 0x03, "h": 0x04, "g": 0x05,
	"z": 0x06, "x": 0x07, "c": 0x08, "v": 0x09, "b": 0x0B, "q": 0x0C,
	"w": 0x0D, "e": 0x0E, "r": 0x0F, "y": 0x10, "t": 0x11, "o": 0x1F,
	"u": 0x20, "i": 0x22, "p": 0x23, "l": 0x25, "j": 0x26, "k": 0x28,
	"n": 0x2D, "m": 0x2E,

	"1": 0x12, "2": 0x13, "3": 0x14, "4": 0x15, "6": 0x16, "5": 0x17,
	"9": 0x19, "7": 0x1A, "8": 0x1C, "0": 0x1D,

	"f1": 0x7A, "f2": 0x78, "f3": 0x63, "f4": 0x76, "f5": 0x60, "f6": 0x61,
	"f7": 0x62, "f8": 0x64, "f9": 0x65, "f10": 0x6D, "f11": 0x67, "f12": 0x6F,
}
