// Package notify shows short-lived on-screen notices. Every call returns
// at once; display happens in the background.
package notify

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
	"unicode/utf16"

	"github.com/mattn/go-runewidth"

	"github.com/asheshgoplani/snapdeck/internal/logging"
	"github.com/asheshgoplani/snapdeck/internal/platform"
)

var notifyLog = logging.ForComponent(logging.CompNotify)

// Notifier displays a notice for roughly d without blocking the caller.
type Notifier interface {
	// Answer shows a short multi-line text block.
	Answer(text string, d time.Duration)

	// Letter shows a single character.
	Letter(letter string, d time.Duration)
}

// Nop discards every notice.
type Nop struct{}

func (Nop) Answer(string, time.Duration) {}
func (Nop) Letter(string, time.Duration) {}

const (
	// Title heads every desktop notification.
	Title = "snapdeck"

	maxLineWidth = 60
	maxLines     = 4
)

type runner func(ctx context.Context, name string, args ...string) error

// Desktop shows notices through the OS notification service.
type Desktop struct {
	run    runner
	lookup func(name string) (string, bool)
	wg     sync.WaitGroup
}

// NewDesktop returns a Desktop notifier for the current platform.
func NewDesktop() *Desktop {
	return &Desktop{
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
		lookup: func(name string) (string, bool) { return platform.FirstAvailable(name) },
	}
}

func (d *Desktop) Answer(text string, dur time.Duration) {
	d.show(Format(text), dur)
}

func (d *Desktop) Letter(letter string, dur time.Duration) {
	letter = strings.ToUpper(strings.TrimSpace(letter))
	if letter == "" {
		return
	}
	d.show(string([]rune(letter)[:1]), dur)
}

// Wait blocks until notices started so far have been handed to the OS.
func (d *Desktop) Wait() { d.wg.Wait() }

func (d *Desktop) show(body string, dur time.Duration) {
	if body == "" {
		return
	}
	name, args, ok := d.command(body, dur)
	if !ok {
		notifyLog.Debug("no_notifier_available")
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), dur+5*time.Second)
		defer cancel()
		if err := d.run(ctx, name, args...); err != nil {
			notifyLog.Debug("notify_failed", slog.String("cmd", name), slog.String("error", err.Error()))
		}
	}()
}

func (d *Desktop) command(body string, dur time.Duration) (string, []string, bool) {
	ms := dur.Milliseconds()
	switch platform.Detect() {
	case platform.PlatformMacOS:
		script := fmt.Sprintf("display notification %s with title %s", appleQuote(body), appleQuote(Title))
		return "osascript", []string{"-e", script}, true
	case platform.PlatformWindows, platform.PlatformWSL1, platform.PlatformWSL2:
		path, ok := d.lookup("powershell.exe")
		if !ok {
			return "", nil, false
		}
		return path, []string{"-NoProfile", "-NonInteractive", "-EncodedCommand", encodePowerShell(balloonScript(body, ms))}, true
	}
	path, ok := d.lookup("notify-send")
	if !ok {
		return "", nil, false
	}
	return path, []string{"-a", Title, "-t", fmt.Sprint(ms), "-u", "low", Title, body}, true
}

// Format clips text to a few lines of bounded display width.
func Format(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) > maxLines {
		lines = append(lines[:maxLines-1], "…")
	}
	for i, l := range lines {
		lines[i] = runewidth.Truncate(strings.TrimRight(l, " \t\r"), maxLineWidth, "…")
	}
	return strings.Join(lines, "\n")
}

func appleQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

func balloonScript(body string, ms int64) string {
	q := func(s string) string { return "'" + strings.ReplaceAll(s, "'", "''") + "'" }
	return "Add-Type -AssemblyName System.Windows.Forms;" +
		"$n = New-Object System.Windows.Forms.NotifyIcon;" +
		"$n.Icon = [System.Drawing.SystemIcons]::Information;" +
		"$n.Visible = $true;" +
		"$n.ShowBalloonTip(" + fmt.Sprint(ms) + "," + q(Title) + "," + q(body) + ",'None');" +
		"Start-Sleep -Milliseconds " + fmt.Sprint(ms) + ";" +
		"$n.Dispose()"
}

func encodePowerShell(script string) string {
	units := utf16.Encode([]rune(script))
	buf := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(buf[i*2:], u)
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// Recorder keeps notices in memory. Used by tests and the ask command.
type Recorder struct {
	mu      sync.Mutex
	Notices []Notice
}

// Notice is one recorded call.
type Notice struct {
	Letter   bool
	Text     string
	Duration time.Duration
}

func (r *Recorder) Answer(text string, d time.Duration) {
	r.mu.Lock()
	r.Notices = append(r.Notices, Notice{Text: text, Duration: d})
	r.mu.Unlock()
}

func (r *Recorder) Letter(letter string, d time.Duration) {
	r.mu.Lock()
	r.Notices = append(r.Notices, Notice{Letter: true, Text: letter, Duration: d})
	r.mu.Unlock()
}

// All returns a copy of the recorded notices.
func (r *Recorder) All() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.Notices...)
}
