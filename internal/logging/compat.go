package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
)

// BridgeWriter wraps slog as an io.Writer so that stdlib log.Printf calls
// (ours and those of libraries that log through the default logger) flow
// through the structured logging system. A leading "[CATEGORY] " prefix is
// lifted into the "component" field.
type BridgeWriter struct {
	component string
}

// NewBridgeWriter creates a writer that forwards writes to slog.
// The defaultComponent is used when no [CATEGORY] prefix is found.
func NewBridgeWriter(defaultComponent string) *BridgeWriter {
	return &BridgeWriter{component: defaultComponent}
}

// Write implements io.Writer. Each write is treated as one log line.
func (bw *BridgeWriter) Write(p []byte) (int, error) {
	n := len(p)
	msg := string(bytes.TrimSpace(p))
	if msg == "" {
		return n, nil
	}

	msg = stripLogTimestamp(msg)

	component := bw.component
	level := slog.LevelInfo
	if strings.HasPrefix(msg, "[") {
		if idx := strings.Index(msg, "] "); idx > 0 {
			component = strings.ToLower(msg[1:idx])
			msg = msg[idx+2:]
		}
	}
	component, level = canonicalComponent(component, level)

	Logger().Log(context.Background(), level, msg, slog.String("component", component))
	return n, nil
}

// stripLogTimestamp removes the time prefix added by log.SetFlags(log.Ltime|log.Lmicroseconds).
func stripLogTimestamp(s string) string {
	// "15:04:05.000000 "
	if len(s) > 16 && s[2] == ':' && s[5] == ':' && s[8] == '.' && s[15] == ' ' {
		return s[16:]
	}
	// "15:04:05 "
	if len(s) > 9 && s[2] == ':' && s[5] == ':' && s[8] == ' ' {
		return s[9:]
	}
	return s
}

// canonicalComponent maps legacy prefixes to component names. The severity
// prefixes used by older scripts ([WARN], [ERROR]) become levels instead.
func canonicalComponent(cat string, level slog.Level) (string, slog.Level) {
	switch cat {
	case "warn", "warning":
		return "legacy", slog.LevelWarn
	case "error", "err":
		return "legacy", slog.LevelError
	case "info":
		return "legacy", slog.LevelInfo
	case "debug":
		return "legacy", slog.LevelDebug
	case "copy", "capture":
		return CompCapture, level
	case "paste", "deliver", "chunk":
		return CompDeliver, level
	case "ai", "query", "gemini":
		return CompQuery, level
	case "hotkey", "keys":
		return CompHotkey, level
	case "clip", "clipboard":
		return CompClipboard, level
	default:
		return cat, level
	}
}
