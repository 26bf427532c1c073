// Package hotkey registers the agent's global key bindings and dispatches
// presses to a handler.
package hotkey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.design/x/hotkey"

	"github.com/asheshgoplani/snapdeck/internal/keys"
	"github.com/asheshgoplani/snapdeck/internal/logging"
	"github.com/asheshgoplani/snapdeck/internal/platform"
)

var hkLog = logging.ForComponent(logging.CompHotkey)

// ErrNoDisplay is returned by Register when there is no graphical session
// to grab keys from.
var ErrNoDisplay = errors.New("no display server: global hotkeys need X11, macOS or Windows")

// Action is what a binding triggers.
type Action int

const (
	ActionCapture Action = iota
	ActionPasteNext
	ActionPasteNextAlt
	ActionExit
)

func (a Action) String() string {
	switch a {
	case ActionCapture:
		return "capture"
	case ActionPasteNext:
		return "paste_next"
	case ActionPasteNextAlt:
		return "paste_next_alt"
	case ActionExit:
		return "exit"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Binding ties a combo to an action.
type Binding struct {
	Action Action
	Combo  keys.Combo
}

// Handler runs an action. Each press gets its own goroutine, so a handler
// that is still busy does not hold back other bindings.
type Handler func(ctx context.Context, a Action)

// Listener owns the registered hotkeys.
type Listener struct {
	bindings []Binding
	dispatch dispatcher

	mu         sync.Mutex
	registered []registered
}

type registered struct {
	binding Binding
	hk      *hotkey.Hotkey
}

// NewListener prepares a listener for bindings. Nothing is grabbed until
// Register.
func NewListener(bindings []Binding, handler Handler) *Listener {
	return &Listener{
		bindings: append([]Binding(nil), bindings...),
		dispatch: dispatcher{handler: handler},
	}
}

// Register grabs every binding. If one fails, the ones already grabbed are
// released and the error names the combo.
func (l *Listener) Register() error {
	if platform.Display() == platform.DisplayNone {
		return ErrNoDisplay
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, b := range l.bindings {
		mods, key, err := convert(b.Combo)
		if err != nil {
			l.unregisterLocked()
			return fmt.Errorf("hotkey %s (%s): %w", b.Combo, b.Action, err)
		}
		hk := hotkey.New(mods, key)
		if err := hk.Register(); err != nil {
			l.unregisterLocked()
			return fmt.Errorf("hotkey %s (%s): %w", b.Combo, b.Action, err)
		}
		l.registered = append(l.registered, registered{binding: b, hk: hk})
		hkLog.Debug("hotkey_registered",
			slog.String("combo", b.Combo.String()),
			slog.String("action", b.Action.String()))
	}
	return nil
}

// Run dispatches key presses until ctx is done, then releases the hotkeys
// and waits for running handlers.
func (l *Listener) Run(ctx context.Context) error {
	l.mu.Lock()
	regs := append([]registered(nil), l.registered...)
	l.mu.Unlock()
	if len(regs) == 0 {
		return errors.New("hotkey: Run before Register")
	}

	srcs := make([]source[hotkey.Event], 0, len(regs))
	for _, r := range regs {
		srcs = append(srcs, source[hotkey.Event]{action: r.binding.Action, down: r.hk.Keydown()})
	}

	err := serve(ctx, &l.dispatch, srcs)
	if uerr := l.Unregister(); uerr != nil {
		hkLog.Warn("hotkey_unregister_failed", slog.String("error", uerr.Error()))
	}
	l.dispatch.wait()
	return err
}

// Unregister releases every grabbed hotkey. Safe to call more than once.
func (l *Listener) Unregister() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.unregisterLocked()
}

func (l *Listener) unregisterLocked() error {
	var errs []error
	for _, r := range l.registered {
		if err := r.hk.Unregister(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.binding.Combo, err))
		}
	}
	l.registered = nil
	return errors.Join(errs...)
}

// Bindings returns the configured bindings in registration order.
func (l *Listener) Bindings() []Binding {
	return append([]Binding(nil), l.bindings...)
}

// convert maps a combo onto the platform's modifier and key codes.
func convert(c keys.Combo) ([]hotkey.Modifier, hotkey.Key, error) {
	code, ok := keyCodes[c.Key]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", keys.ErrUnsupportedKey, c.Key)
	}
	mods := make([]hotkey.Modifier, 0, len(c.Mods))
	for _, m := range c.Mods {
		mod, ok := modifiers[m]
		if !ok {
			return nil, 0, fmt.Errorf("%w: modifier %s", keys.ErrUnsupportedKey, m)
		}
		mods = append(mods, mod)
	}
	return mods, hotkey.Key(code), nil
}

func fKey(n int) string { return fmt.Sprintf("f%d", n) }
