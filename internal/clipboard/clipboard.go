// Package clipboard exchanges plain text with the OS clipboard and captures
// the user's selection with a marker-verified copy.
package clipboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/asheshgoplani/snapdeck/internal/keys"
	"github.com/asheshgoplani/snapdeck/internal/logging"
)

var clipLog = logging.ForComponent(logging.CompClipboard)

// ErrNothingCopied means the copy keystroke did not replace the clipboard:
// nothing was selected or the focused application ignored the command.
var ErrNothingCopied = errors.New("nothing copied")

// MarkerPrefix starts every capture sentinel.
const MarkerPrefix = "__SNAP__"

// NewMarker returns a fresh capture sentinel.
func NewMarker() string {
	return MarkerPrefix + uuid.NewString() + "__"
}

// Presser taps key combinations in the focused application.
type Presser interface {
	Press(ctx context.Context, c keys.Combo) error
}

// Clipboard serializes access to a Transport. Every read-modify sequence
// runs inside Transaction so two of our own sequences never interleave.
type Clipboard struct {
	mu sync.Mutex
	t  Transport
}

// New wraps t.
func New(t Transport) *Clipboard {
	return &Clipboard{t: t}
}

// Transaction runs fn with exclusive use of the transport. The lock is
// released on every path, including a panic in fn.
func (c *Clipboard) Transaction(fn func(t Transport) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn(c.t)
}

// Read returns the clipboard text. Errors are logged and read as "".
func (c *Clipboard) Read() string {
	var text string
	_ = c.Transaction(func(t Transport) error {
		text = read(t)
		return nil
	})
	return text
}

// Write replaces the clipboard text.
func (c *Clipboard) Write(text string) error {
	return c.Transaction(func(t Transport) error {
		return t.Write(text)
	})
}

// WriteIfChanged writes text unless the clipboard already holds it.
// It reports whether a write happened.
func (c *Clipboard) WriteIfChanged(text string) (bool, error) {
	var wrote bool
	err := c.Transaction(func(t Transport) error {
		if read(t) == text {
			return nil
		}
		if err := t.Write(text); err != nil {
			return err
		}
		wrote = true
		return nil
	})
	return wrote, err
}

func read(t Transport) string {
	text, err := t.Read()
	if err != nil {
		clipLog.Debug("read_failed", slog.String("error", err.Error()))
		return ""
	}
	return text
}

// CaptureSelection copies the current selection and returns it trimmed.
//
// The clipboard is seeded with a fresh marker before copy is pressed; only a
// non-empty value different from the marker counts as a copied selection.
// On failure the previous clipboard content is put back and the error wraps
// ErrNothingCopied.
func (c *Clipboard) CaptureSelection(ctx context.Context, p Presser, copyCombo keys.Combo, settle time.Duration) (string, error) {
	var captured string
	err := c.Transaction(func(t Transport) error {
		original := read(t)
		marker := NewMarker()
		if err := t.Write(marker); err != nil {
			return fmt.Errorf("%w: seed marker: %v", ErrNothingCopied, err)
		}

		restore := func() {
			if err := t.Write(original); err != nil {
				clipLog.Warn("restore_failed", slog.String("error", err.Error()))
			}
		}

		if err := p.Press(ctx, copyCombo); err != nil {
			restore()
			return fmt.Errorf("%w: press %s: %v", ErrNothingCopied, copyCombo, err)
		}
		if err := keys.Sleep(ctx, settle); err != nil {
			restore()
			return fmt.Errorf("%w: %v", ErrNothingCopied, err)
		}

		got := read(t)
		if got == "" || got == marker {
			restore()
			return ErrNothingCopied
		}
		captured = strings.TrimSpace(got)
		return nil
	})
	if err != nil {
		return "", err
	}

	clipLog.Debug("selection_captured",
		slog.Int("bytes", len(captured)),
		slog.Int("lines", countLines(captured)))
	return captured, nil
}

// countLines counts lines in text. A trailing newline does not add a line.
func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
