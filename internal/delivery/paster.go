package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/asheshgoplani/snapdeck/internal/clipboard"
	"github.com/asheshgoplani/snapdeck/internal/keys"
	"github.com/asheshgoplani/snapdeck/internal/logging"
)

var deliverLog = logging.ForComponent(logging.CompDeliver)

// ErrAllStrategiesFailed is returned when no strategy delivered a chunk.
var ErrAllStrategiesFailed = errors.New("all paste strategies failed")

// Strategy is one way of getting a chunk into the focused application.
type Strategy interface {
	Name() string

	// NeedsClipboard reports whether the strategy pastes from the
	// clipboard rather than typing the chunk itself.
	NeedsClipboard() bool

	Deliver(ctx context.Context, chunk string) error
}

// ComboPaste presses a paste key combination, then waits After.
type ComboPaste struct {
	Injector keys.Injector
	Combo    keys.Combo
	After    time.Duration
}

func (c ComboPaste) Name() string         { return "paste:" + c.Combo.String() }
func (c ComboPaste) NeedsClipboard() bool { return true }

func (c ComboPaste) Deliver(ctx context.Context, _ string) error {
	if err := c.Injector.Press(ctx, c.Combo); err != nil {
		return err
	}
	return keys.Sleep(ctx, c.After)
}

// TypeOut types the chunk character by character.
type TypeOut struct {
	Injector keys.Injector
	PerChar  time.Duration
}

func (t TypeOut) Name() string         { return "type" }
func (t TypeOut) NeedsClipboard() bool { return false }

func (t TypeOut) Deliver(ctx context.Context, chunk string) error {
	return t.Injector.Type(ctx, chunk, t.PerChar)
}

// DefaultStrategies is the usual fallback order: each paste combo in turn,
// then typing the text out.
func DefaultStrategies(inj keys.Injector, pastes []keys.Combo, after, perChar time.Duration) []Strategy {
	out := make([]Strategy, 0, len(pastes)+1)
	for _, c := range pastes {
		out = append(out, ComboPaste{Injector: inj, Combo: c, After: after})
	}
	return append(out, TypeOut{Injector: inj, PerChar: perChar})
}

// Paster delivers one chunk through the clipboard and a strategy chain.
type Paster struct {
	Clipboard  *clipboard.Clipboard
	Strategies []Strategy

	// Prep is the settle time between the clipboard write and the paste.
	Prep     time.Duration
	Compress bool
}

// Result reports how a chunk was delivered.
type Result struct {
	Strategy string
	Attempts int
}

// Paste normalizes chunk, makes sure the clipboard holds it and runs the
// strategies in order until one succeeds. If the clipboard cannot be
// written, only strategies that type the text are tried.
func (p *Paster) Paste(ctx context.Context, chunk string) (Result, error) {
	if p.Compress {
		chunk = CompressBlankLines(chunk)
	}

	clipboardOK := true
	if _, err := p.Clipboard.WriteIfChanged(chunk); err != nil {
		clipboardOK = false
		deliverLog.Warn("clipboard_write_failed", slog.String("error", err.Error()))
	}
	if err := keys.Sleep(ctx, p.Prep); err != nil {
		return Result{}, err
	}

	var (
		res  Result
		errs []error
	)
	for _, s := range p.Strategies {
		if s.NeedsClipboard() && !clipboardOK {
			continue
		}
		res.Attempts++
		err := s.Deliver(ctx, chunk)
		if err == nil {
			res.Strategy = s.Name()
			return res, nil
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		deliverLog.Warn("paste_strategy_failed",
			slog.String("strategy", s.Name()),
			slog.String("error", err.Error()))
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
	}
	if len(errs) == 0 {
		return res, ErrAllStrategiesFailed
	}
	return res, fmt.Errorf("%w: %w", ErrAllStrategiesFailed, errors.Join(errs...))
}
