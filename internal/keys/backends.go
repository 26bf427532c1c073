package keys

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"
)

// Xdotool injects input on X11 (and XWayland).
type Xdotool struct {
	run Runner
	bin string
}

// NewXdotool returns an xdotool backend using run to execute commands.
func NewXdotool(run Runner) *Xdotool { return &Xdotool{run: run, bin: "xdotool"} }

var xdotoolKeys = map[string]string{
	"insert": "Insert", "delete": "Delete", "home": "Home", "end": "End",
	"pageup": "Prior", "pagedown": "Next", "enter": "Return", "tab": "Tab",
	"escape": "Escape", "space": "space", "backspace": "BackSpace",
	"up": "Up", "down": "Down", "left": "Left", "right": "Right",
	"numlock": "Num_Lock",
}

var xdotoolMods = map[Modifier]string{
	ModCtrl: "ctrl", ModAlt: "alt", ModShift: "shift", ModCmd: "super",
}

func (x *Xdotool) Name() string { return "xdotool" }

func (x *Xdotool) Press(ctx context.Context, c Combo) error {
	parts := make([]string, 0, len(c.Mods)+1)
	for _, m := range c.Mods {
		parts = append(parts, xdotoolMods[m])
	}
	parts = append(parts, keysymName(c.Key, xdotoolKeys))
	return x.run(ctx, x.bin, "key", "--clearmodifiers", strings.Join(parts, "+"))
}

func (x *Xdotool) Type(ctx context.Context, text string, perChar time.Duration) error {
	return x.run(ctx, x.bin, "type", "--clearmodifiers", "--delay", strconv.FormatInt(perChar.Milliseconds(), 10), "--", text)
}

// Wtype injects input on wlroots-based Wayland compositors.
type Wtype struct {
	run Runner
	bin string
}

// NewWtype returns a wtype backend using run to execute commands.
func NewWtype(run Runner) *Wtype { return &Wtype{run: run, bin: "wtype"} }

var wtypeMods = map[Modifier]string{
	ModCtrl: "ctrl", ModAlt: "alt", ModShift: "shift", ModCmd: "logo",
}

func (w *Wtype) Name() string { return "wtype" }

func (w *Wtype) Press(ctx context.Context, c Combo) error {
	var args []string
	for _, m := range c.Mods {
		args = append(args, "-M", wtypeMods[m])
	}
	args = append(args, "-k", keysymName(c.Key, xdotoolKeys))
	for i := len(c.Mods) - 1; i >= 0; i-- {
		args = append(args, "-m", wtypeMods[c.Mods[i]])
	}
	return w.run(ctx, w.bin, args...)
}

func (w *Wtype) Type(ctx context.Context, text string, perChar time.Duration) error {
	return w.run(ctx, w.bin, "-d", strconv.FormatInt(perChar.Milliseconds(), 10), "--", text)
}

// keysymName maps a canonical key to its X keysym; F-keys are upper-cased,
// letters and digits pass through.
func keysymName(key string, table map[string]string) string {
	if name, ok := table[key]; ok {
		return name
	}
	if len(key) > 1 && key[0] == 'f' {
		return strings.ToUpper(key)
	}
	return key
}

// AppleScript injects input on macOS through System Events.
type AppleScript struct {
	run Runner
	bin string
}

// NewAppleScript returns an osascript backend using run to execute commands.
func NewAppleScript(run Runner) *AppleScript { return &AppleScript{run: run, bin: "osascript"} }

var appleKeyCodes = map[string]int{
	"insert": 114, "delete": 117, "home": 115, "end": 119,
	"pageup": 116, "pagedown": 121, "enter": 36, "tab": 48,
	"escape": 53, "space": 49, "backspace": 51,
	"up": 126, "down": 125, "left": 123, "right": 124,
	"f1": 122, "f2": 120, "f3": 99, "f4": 118, "f5": 96, "f6": 97,
	"f7": 98, "f8": 100, "f9": 101, "f10": 109, "f11": 103, "f12": 111,
}

var appleMods = map[Modifier]string{
	ModCtrl: "control down", ModAlt: "option down", ModShift: "shift down", ModCmd: "command down",
}

func (a *AppleScript) Name() string { return "osascript" }

func (a *AppleScript) Press(ctx context.Context, c Combo) error {
	if c.Key == "numlock" {
		return fmt.Errorf("%w: %s", ErrUnsupportedKey, c.Key)
	}
	var action string
	if code, ok := appleKeyCodes[c.Key]; ok {
		action = fmt.Sprintf("key code %d", code)
	} else {
		action = fmt.Sprintf("keystroke %s", appleQuote(c.Key))
	}
	if len(c.Mods) > 0 {
		mods := make([]string, 0, len(c.Mods))
		for _, m := range c.Mods {
			mods = append(mods, appleMods[m])
		}
		action += " using {" + strings.Join(mods, ", ") + "}"
	}
	return a.run(ctx, a.bin, "-e", `tell application "System Events" to `+action)
}

func (a *AppleScript) Type(ctx context.Context, text string, perChar time.Duration) error {
	script := fmt.Sprintf(`tell application "System Events"
repeat with ch in characters of %s
keystroke ch
delay %s
end repeat
end tell`, appleQuote(text), strconv.FormatFloat(perChar.Seconds(), 'f', 3, 64))
	return a.run(ctx, a.bin, "-e", script)
}

func appleQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// SendKeys injects input on Windows (and from WSL) via
// System.Windows.Forms.SendKeys in PowerShell.
type SendKeys struct {
	run Runner
	bin string
}

// NewSendKeys returns a PowerShell SendKeys backend using run to execute commands.
func NewSendKeys(run Runner) *SendKeys { return &SendKeys{run: run, bin: "powershell.exe"} }

var sendKeysNames = map[string]string{
	"insert": "{INSERT}", "delete": "{DELETE}", "home": "{HOME}", "end": "{END}",
	"pageup": "{PGUP}", "pagedown": "{PGDN}", "enter": "{ENTER}", "tab": "{TAB}",
	"escape": "{ESC}", "space": " ", "backspace": "{BACKSPACE}",
	"up": "{UP}", "down": "{DOWN}", "left": "{LEFT}", "right": "{RIGHT}",
	"numlock": "{NUMLOCK}",
}

var sendKeysMods = map[Modifier]string{
	ModCtrl: "^", ModAlt: "%", ModShift: "+",
}

func (s *SendKeys) Name() string { return "sendkeys" }

// Sequence renders a combo in SendKeys notation ("^+v").
func (s *SendKeys) Sequence(c Combo) (string, error) {
	var b strings.Builder
	for _, m := range c.Mods {
		prefix, ok := sendKeysMods[m]
		if !ok {
			return "", fmt.Errorf("%w: modifier %s", ErrUnsupportedKey, m)
		}
		b.WriteString(prefix)
	}
	if name, ok := sendKeysNames[c.Key]; ok {
		b.WriteString(name)
	} else if len(c.Key) > 1 && c.Key[0] == 'f' {
		b.WriteString("{" + strings.ToUpper(c.Key) + "}")
	} else {
		b.WriteString(c.Key)
	}
	return b.String(), nil
}

func (s *SendKeys) Press(ctx context.Context, c Combo) error {
	seq, err := s.Sequence(c)
	if err != nil {
		return err
	}
	script := "Add-Type -AssemblyName System.Windows.Forms;" +
		"[System.Windows.Forms.SendKeys]::SendWait(" + psQuote(seq) + ")"
	return s.powershell(ctx, script)
}

func (s *SendKeys) Type(ctx context.Context, text string, perChar time.Duration) error {
	tokens := sendKeysLiteral(text)
	if len(tokens) == 0 {
		return nil
	}
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = psQuote(t)
	}
	script := "Add-Type -AssemblyName System.Windows.Forms;" +
		"foreach ($k in @(" + strings.Join(quoted, ",") + ")) {" +
		"[System.Windows.Forms.SendKeys]::SendWait($k);" +
		"Start-Sleep -Milliseconds " + strconv.FormatInt(perChar.Milliseconds(), 10) + "}"
	return s.powershell(ctx, script)
}

func (s *SendKeys) powershell(ctx context.Context, script string) error {
	return s.run(ctx, s.bin, "-NoProfile", "-NonInteractive", "-EncodedCommand", encodePowerShell(script))
}

// sendKeysLiteral splits text into SendKeys tokens, escaping the characters
// SendKeys treats as syntax.
func sendKeysLiteral(text string) []string {
	var out []string
	for _, r := range text {
		switch r {
		case '+', '^', '%', '~', '(', ')', '{', '}', '[', ']':
			out = append(out, "{"+string(r)+"}")
		case '\n':
			out = append(out, "{ENTER}")
		case '\r':
		case '\t':
			out = append(out, "{TAB}")
		default:
			out = append(out, string(r))
		}
	}
	return out
}

func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// encodePowerShell produces the base64 UTF-16LE form -EncodedCommand expects.
func encodePowerShell(script string) string {
	units := utf16.Encode([]rune(script))
	buf := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(buf[i*2:], u)
	}
	return base64.StdEncoding.EncodeToString(buf)
}
