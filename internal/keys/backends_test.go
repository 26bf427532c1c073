package keys

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	name string
	args []string
}

type recorder struct {
	calls []recordedCall
	err   error
}

func (r *recorder) run(_ context.Context, name string, args ...string) error {
	r.calls = append(r.calls, recordedCall{name: name, args: append([]string(nil), args...)})
	return r.err
}

func TestXdotoolPress(t *testing.T) {
	rec := &recorder{}
	x := NewXdotool(rec.run)

	require.NoError(t, x.Press(context.Background(), MustParse("shift+insert")))
	require.NoError(t, x.Press(context.Background(), MustParse("ctrl+pagedown")))
	require.NoError(t, x.Press(context.Background(), MustParse("f5")))

	require.Len(t, rec.calls, 3)
	assert.Equal(t, []string{"key", "--clearmodifiers", "shift+Insert"}, rec.calls[0].args)
	assert.Equal(t, []string{"key", "--clearmodifiers", "ctrl+Next"}, rec.calls[1].args)
	assert.Equal(t, []string{"key", "--clearmodifiers", "F5"}, rec.calls[2].args)
}

func TestXdotoolType(t *testing.T) {
	rec := &recorder{}
	x := NewXdotool(rec.run)

	require.NoError(t, x.Type(context.Background(), "-rf /", 6*time.Millisecond))
	assert.Equal(t, []string{"type", "--clearmodifiers", "--delay", "6", "--", "-rf /"}, rec.calls[0].args)
}

func TestWtypeReleasesModifiersInReverse(t *testing.T) {
	rec := &recorder{}
	w := NewWtype(rec.run)

	require.NoError(t, w.Press(context.Background(), MustParse("ctrl+shift+v")))
	assert.Equal(t, []string{"-M", "ctrl", "-M", "shift", "-k", "v", "-m", "shift", "-m", "ctrl"}, rec.calls[0].args)
}

func TestAppleScriptPress(t *testing.T) {
	rec := &recorder{}
	a := NewAppleScript(rec.run)

	require.NoError(t, a.Press(context.Background(), MustParse("cmd+v")))
	require.NoError(t, a.Press(context.Background(), MustParse("shift+insert")))

	assert.Equal(t, `tell application "System Events" to keystroke "v" using {command down}`, rec.calls[0].args[1])
	assert.Equal(t, `tell application "System Events" to key code 114 using {shift down}`, rec.calls[1].args[1])

	err := a.Press(context.Background(), NumLock)
	assert.True(t, errors.Is(err, ErrUnsupportedKey))
}

func TestAppleScriptTypeQuotes(t *testing.T) {
	rec := &recorder{}
	a := NewAppleScript(rec.run)

	require.NoError(t, a.Type(context.Background(), `say "hi" \o/`, 6*time.Millisecond))
	script := rec.calls[0].args[1]
	assert.Contains(t, script, `characters of "say \"hi\" \\o/"`)
	assert.Contains(t, script, "delay 0.006")
}

func TestSendKeysSequence(t *testing.T) {
	s := NewSendKeys(nil)

	seq, err := s.Sequence(MustParse("ctrl+shift+v"))
	require.NoError(t, err)
	assert.Equal(t, "^+v", seq)

	seq, err = s.Sequence(MustParse("shift+insert"))
	require.NoError(t, err)
	assert.Equal(t, "+{INSERT}", seq)

	seq, err = s.Sequence(MustParse("f12"))
	require.NoError(t, err)
	assert.Equal(t, "{F12}", seq)

	_, err = s.Sequence(MustParse("cmd+v"))
	assert.True(t, errors.Is(err, ErrUnsupportedKey))
}

func TestSendKeysLiteralEscapes(t *testing.T) {
	got := sendKeysLiteral("a+b{c}\r\n%")
	assert.Equal(t, []string{"a", "{+}", "b", "{{}", "c", "{}}", "{ENTER}", "{%}"}, got)
}

func decodePowerShell(t *testing.T, enc string) string {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(enc)
	require.NoError(t, err)
	units := make([]uint16, len(raw)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(raw[i*2:])
	}
	return string(utf16.Decode(units))
}

func TestSendKeysPressScript(t *testing.T) {
	rec := &recorder{}
	s := NewSendKeys(rec.run)

	require.NoError(t, s.Press(context.Background(), MustParse("ctrl+c")))
	args := rec.calls[0].args
	require.Equal(t, "-EncodedCommand", args[2])

	script := decodePowerShell(t, args[3])
	assert.True(t, strings.HasSuffix(script, "SendWait('^c')"), script)
}

func TestSendKeysTypeQuotesApostrophes(t *testing.T) {
	rec := &recorder{}
	s := NewSendKeys(rec.run)

	require.NoError(t, s.Type(context.Background(), "it's", 6*time.Millisecond))
	script := decodePowerShell(t, rec.calls[0].args[3])
	assert.Contains(t, script, "@('i','t','''','s')")
	assert.Contains(t, script, "Start-Sleep -Milliseconds 6")
}

func TestBlinkTogglesTwicePerCount(t *testing.T) {
	rec := &recorder{}
	x := NewXdotool(rec.run)

	require.NoError(t, Blink(context.Background(), x, 3, 0))
	require.Len(t, rec.calls, 6)
	for _, c := range rec.calls {
		assert.Equal(t, "Num_Lock", c.args[len(c.args)-1])
	}
}

func TestBlinkStopsOnError(t *testing.T) {
	rec := &recorder{err: errors.New("no display")}
	err := Blink(context.Background(), NewXdotool(rec.run), 2, 0)
	assert.Error(t, err)
	assert.Len(t, rec.calls, 1)
}

func TestSleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), 0))
}
