package clipboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	atotto "github.com/atotto/clipboard"

	"github.com/asheshgoplani/snapdeck/internal/platform"
)

// Transport is plain-text access to a clipboard store.
// Read on an empty or non-text clipboard returns "", nil.
type Transport interface {
	Read() (string, error)
	Write(text string) error
}

// ErrNoMethod is returned when neither the library nor any native
// clipboard command can reach the clipboard.
var ErrNoMethod = errors.New("no clipboard method available (install xclip, xsel or wl-clipboard)")

// nativeTimeout bounds each native clipboard command so a hung helper
// (xclip waiting on a dead X server) cannot stall a hotkey handler.
const nativeTimeout = 2 * time.Second

type command struct {
	name string
	args []string
}

// System is the OS clipboard. It tries github.com/atotto/clipboard first
// and falls back to the platform's clipboard commands, recording which
// method last succeeded.
type System struct {
	mu     sync.Mutex
	method string

	// library can be disabled in tests or when atotto reports Unsupported.
	library bool
	lookup  func(name string) (string, bool)
	exec    func(ctx context.Context, c command, stdin string) (string, error)
}

// NewSystem returns the OS clipboard transport.
func NewSystem() *System {
	return &System{
		library: !atotto.Unsupported,
		lookup:  func(name string) (string, bool) { return platform.FirstAvailable(name) },
		exec:    runCommand,
	}
}

// Method reports how the clipboard was last accessed ("atotto", "xclip", ...).
func (s *System) Method() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.method
}

func (s *System) setMethod(m string) {
	s.mu.Lock()
	s.method = m
	s.mu.Unlock()
}

func (s *System) Read() (string, error) {
	var libErr error
	if s.library {
		text, err := atotto.ReadAll()
		if err == nil {
			s.setMethod("atotto")
			return text, nil
		}
		libErr = err
	}

	for _, c := range pasteCommands() {
		path, ok := s.lookup(c.name)
		if !ok {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), nativeTimeout)
		out, err := s.exec(ctx, command{name: path, args: c.args}, "")
		cancel()
		if err != nil {
			// xclip and wl-paste exit non-zero when the clipboard holds
			// nothing they can render as text.
			clipLog.Debug("native_read_failed", "cmd", c.name, "error", err)
			continue
		}
		s.setMethod(c.name)
		return normalizeNative(c.name, out), nil
	}

	if libErr != nil {
		// The library reached the clipboard but found no text.
		clipLog.Debug("library_read_empty", "error", libErr)
		return "", nil
	}
	return "", ErrNoMethod
}

func (s *System) Write(text string) error {
	var libErr error
	if s.library {
		if libErr = atotto.WriteAll(text); libErr == nil {
			s.setMethod("atotto")
			return nil
		}
	}

	for _, c := range copyCommands() {
		path, ok := s.lookup(c.name)
		if !ok {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), nativeTimeout)
		_, err := s.exec(ctx, command{name: path, args: c.args}, text)
		cancel()
		if err != nil {
			clipLog.Debug("native_write_failed", "cmd", c.name, "error", err)
			continue
		}
		s.setMethod(c.name)
		return nil
	}

	if libErr != nil {
		return fmt.Errorf("clipboard write: %w", libErr)
	}
	return ErrNoMethod
}

// copyCommands lists native writers in preference order for this platform.
func copyCommands() []command {
	switch platform.Detect() {
	case platform.PlatformMacOS:
		return []command{{name: "pbcopy"}}
	case platform.PlatformWindows, platform.PlatformWSL1, platform.PlatformWSL2:
		return []command{{name: "clip.exe"}}
	}
	var cmds []command
	if platform.Display() == platform.DisplayWayland {
		cmds = append(cmds, command{name: "wl-copy"})
	}
	return append(cmds,
		command{name: "xclip", args: []string{"-selection", "clipboard"}},
		command{name: "xsel", args: []string{"--clipboard", "--input"}},
	)
}

// pasteCommands lists native readers in preference order for this platform.
func pasteCommands() []command {
	switch platform.Detect() {
	case platform.PlatformMacOS:
		return []command{{name: "pbpaste"}}
	case platform.PlatformWindows, platform.PlatformWSL1, platform.PlatformWSL2:
		return []command{{name: "powershell.exe", args: []string{"-NoProfile", "-NonInteractive", "-Command", "Get-Clipboard -Raw"}}}
	}
	var cmds []command
	if platform.Display() == platform.DisplayWayland {
		cmds = append(cmds, command{name: "wl-paste", args: []string{"--no-newline", "--type", "text/plain"}})
	}
	return append(cmds,
		command{name: "xclip", args: []string{"-selection", "clipboard", "-o"}},
		command{name: "xsel", args: []string{"--clipboard", "--output"}},
	)
}

// normalizeNative undoes the line-ending mangling of the Windows tools.
func normalizeNative(name, out string) string {
	if name != "powershell.exe" {
		return out
	}
	out = strings.ReplaceAll(out, "\r\n", "\n")
	return strings.TrimSuffix(out, "\n")
}

func runCommand(ctx context.Context, c command, stdin string) (string, error) {
	cmd := exec.CommandContext(ctx, c.name, c.args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s: %w: %s", c.name, err, msg)
		}
		return "", fmt.Errorf("%s: %w", c.name, err)
	}
	return stdout.String(), nil
}

// Memory is an in-process clipboard. It records every write.
type Memory struct {
	mu     sync.Mutex
	text   string
	writes []string

	// ReadErr and WriteErr, when set, are returned by the next calls.
	ReadErr  error
	WriteErr error
}

// NewMemory returns a Memory clipboard holding initial.
func NewMemory(initial string) *Memory {
	return &Memory{text: initial}
}

func (m *Memory) Read() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return "", m.ReadErr
	}
	return m.text, nil
}

func (m *Memory) Write(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.text = text
	m.writes = append(m.writes, text)
	return nil
}

// Set replaces the content without recording a write, the way another
// application copying would.
func (m *Memory) Set(text string) {
	m.mu.Lock()
	m.text = text
	m.mu.Unlock()
}

// Text returns the current content.
func (m *Memory) Text() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text
}

// Writes returns a copy of every value written through Write.
func (m *Memory) Writes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.writes...)
}
