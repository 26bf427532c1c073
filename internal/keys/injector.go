package keys

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/asheshgoplani/snapdeck/internal/platform"
)

// Injector sends synthetic keyboard input to whatever application has focus.
type Injector interface {
	// Press taps a key combination: modifiers down, key down/up, modifiers up.
	Press(ctx context.Context, c Combo) error

	// Type enters text literally, pausing perChar between characters.
	Type(ctx context.Context, text string, perChar time.Duration) error

	// Name identifies the backend in logs ("xdotool", "wtype", ...).
	Name() string
}

// ErrNoBackend is returned by Detect when no injection tool is usable.
var ErrNoBackend = errors.New("no keystroke injection tool available (install xdotool or wtype)")

// ErrUnsupportedKey is returned when a backend cannot express a key.
var ErrUnsupportedKey = errors.New("key not supported by this backend")

// Runner executes an external command. Swapped in tests.
type Runner func(ctx context.Context, name string, args ...string) error

// ExecRunner runs the command and folds stderr into the error.
func ExecRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Detect picks the injection backend for the current platform.
func Detect() (Injector, error) {
	p := platform.Detect()
	switch p {
	case platform.PlatformMacOS:
		return &AppleScript{run: ExecRunner, bin: "osascript"}, nil
	case platform.PlatformWindows:
		return &SendKeys{run: ExecRunner, bin: "powershell.exe"}, nil
	case platform.PlatformWSL1, platform.PlatformWSL2:
		if path, ok := platform.FirstAvailable("powershell.exe"); ok {
			return &SendKeys{run: ExecRunner, bin: path}, nil
		}
		return nil, ErrNoBackend
	}

	switch platform.Display() {
	case platform.DisplayWayland:
		if path, ok := platform.FirstAvailable("wtype"); ok {
			return &Wtype{run: ExecRunner, bin: path}, nil
		}
		// XWayland apps still accept xdotool input.
		if path, ok := platform.FirstAvailable("xdotool"); ok {
			return &Xdotool{run: ExecRunner, bin: path}, nil
		}
	case platform.DisplayX11:
		if path, ok := platform.FirstAvailable("xdotool"); ok {
			return &Xdotool{run: ExecRunner, bin: path}, nil
		}
	}
	return nil, ErrNoBackend
}

// Blink flashes the Num Lock LED count times. Each blink is two toggles so
// the lock state ends where it started.
func Blink(ctx context.Context, inj Injector, count int, delay time.Duration) error {
	for i := 0; i < count; i++ {
		if err := inj.Press(ctx, NumLock); err != nil {
			return err
		}
		if err := Sleep(ctx, delay); err != nil {
			return err
		}
		if err := inj.Press(ctx, NumLock); err != nil {
			return err
		}
		if i < count-1 {
			if err := Sleep(ctx, delay); err != nil {
				return err
			}
		}
	}
	return nil
}

// Sleep waits for d or until ctx is done. Non-positive durations return at once.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
