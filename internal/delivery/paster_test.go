package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/snapdeck/internal/clipboard"
	"github.com/asheshgoplani/snapdeck/internal/keys"
)

// scriptedInjector fails the listed combos and records what it was asked to do.
type scriptedInjector struct {
	fail     map[string]bool
	failType bool
	pressed  []string
	typed    []string
}

func (s *scriptedInjector) Name() string { return "scripted" }

func (s *scriptedInjector) Press(_ context.Context, c keys.Combo) error {
	s.pressed = append(s.pressed, c.String())
	if s.fail[c.String()] {
		return errors.New("intercepted")
	}
	return nil
}

func (s *scriptedInjector) Type(_ context.Context, text string, _ time.Duration) error {
	s.typed = append(s.typed, text)
	if s.failType {
		return errors.New("no focus")
	}
	return nil
}

func newPaster(mem *clipboard.Memory, inj keys.Injector) *Paster {
	return &Paster{
		Clipboard:  clipboard.New(mem),
		Strategies: DefaultStrategies(inj, []keys.Combo{keys.MustParse("shift+insert"), keys.MustParse("ctrl+v")}, 0, 0),
		Compress:   true,
	}
}

func TestPaste_PrimaryComboWins(t *testing.T) {
	mem := clipboard.NewMemory("")
	inj := &scriptedInjector{}
	res, err := newPaster(mem, inj).Paste(context.Background(), "a\n\n\n\nb")

	require.NoError(t, err)
	assert.Equal(t, "paste:shift+insert", res.Strategy)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, "a\n\nb", mem.Text())
	assert.Equal(t, []string{"shift+insert"}, inj.pressed)
}

func TestPaste_FallsBackToAlternateCombo(t *testing.T) {
	mem := clipboard.NewMemory("")
	inj := &scriptedInjector{fail: map[string]bool{"shift+insert": true}}
	res, err := newPaster(mem, inj).Paste(context.Background(), "chunk")

	require.NoError(t, err)
	assert.Equal(t, "paste:ctrl+v", res.Strategy)
	assert.Equal(t, []string{"shift+insert", "ctrl+v"}, inj.pressed)
	assert.Empty(t, inj.typed)
}

func TestDefaultStrategies_NoCombosTypesOnly(t *testing.T) {
	mem := clipboard.NewMemory("")
	inj := &scriptedInjector{}
	p := &Paster{Clipboard: clipboard.New(mem), Strategies: DefaultStrategies(inj, nil, 0, 0)}

	require.Len(t, p.Strategies, 1)
	res, err := p.Paste(context.Background(), "typed")
	require.NoError(t, err)
	assert.Equal(t, "type", res.Strategy)
	assert.Empty(t, inj.pressed)
	assert.Equal(t, []string{"typed"}, inj.typed)
}

func TestPaste_FallsBackToTyping(t *testing.T) {
	mem := clipboard.NewMemory("")
	inj := &scriptedInjector{fail: map[string]bool{"shift+insert": true, "ctrl+v": true}}
	res, err := newPaster(mem, inj).Paste(context.Background(), "x\n\n\ny")

	require.NoError(t, err)
	assert.Equal(t, "type", res.Strategy)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []string{"x\n\ny"}, inj.typed)
}

func TestPaste_AllStrategiesFail(t *testing.T) {
	mem := clipboard.NewMemory("")
	inj := &scriptedInjector{fail: map[string]bool{"shift+insert": true, "ctrl+v": true}, failType: true}
	_, err := newPaster(mem, inj).Paste(context.Background(), "chunk")

	assert.ErrorIs(t, err, ErrAllStrategiesFailed)
	assert.Contains(t, err.Error(), "no focus")
}

func TestPaste_SkipsWriteWhenClipboardAlreadyHoldsChunk(t *testing.T) {
	mem := clipboard.NewMemory("staged")
	_, err := newPaster(mem, &scriptedInjector{}).Paste(context.Background(), "staged")
	require.NoError(t, err)
	assert.Empty(t, mem.Writes())
}

func TestPaste_ClipboardFailureGoesStraightToTyping(t *testing.T) {
	mem := clipboard.NewMemory("")
	mem.WriteErr = errors.New("locked")
	inj := &scriptedInjector{}
	res, err := newPaster(mem, inj).Paste(context.Background(), "chunk")

	require.NoError(t, err)
	assert.Equal(t, "type", res.Strategy)
	assert.Empty(t, inj.pressed)
}

func TestPaste_CompressionOptional(t *testing.T) {
	mem := clipboard.NewMemory("")
	p := newPaster(mem, &scriptedInjector{})
	p.Compress = false
	_, err := p.Paste(context.Background(), "a\n\n\nb")
	require.NoError(t, err)
	assert.Equal(t, "a\n\n\nb", mem.Text())
}
