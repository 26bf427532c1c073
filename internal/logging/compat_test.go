package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeWriterParsesCategory(t *testing.T) {
	Shutdown()

	dir := t.TempDir()
	Init(Config{Diagnostics: true, LogDir: dir, Level: "debug"})
	defer Shutdown()

	bw := NewBridgeWriter("legacy")

	tests := []struct {
		input     string
		wantComp  string
		wantMsg   string
		wantLevel string
	}{
		{"[COPY] selection captured\n", CompCapture, "selection captured", "INFO"},
		{"[PASTE] chunk 1/3\n", CompDeliver, "chunk 1/3", "INFO"},
		{"[WARN] clipboard busy\n", "legacy", "clipboard busy", "WARN"},
		{"[ERROR] request failed\n", "legacy", "request failed", "ERROR"},
		{"plain message without category\n", "legacy", "plain message without category", "INFO"},
		{"[GEMINI] status 429\n", CompQuery, "status 429", "INFO"},
	}

	for _, tt := range tests {
		_, _ = bw.Write([]byte(tt.input))
	}

	records := readRecords(t, filepath.Join(dir, LogFileName))
	require.Len(t, records, len(tests))

	for i, tt := range tests {
		assert.Equal(t, tt.wantComp, records[i]["component"], tt.input)
		assert.Equal(t, tt.wantMsg, records[i]["msg"], tt.input)
		assert.Equal(t, tt.wantLevel, records[i]["level"], tt.input)
	}
}

func TestBridgeWriterStripsTimestamp(t *testing.T) {
	Shutdown()

	dir := t.TempDir()
	Init(Config{Diagnostics: true, LogDir: dir})
	defer Shutdown()

	_, _ = NewBridgeWriter("legacy").Write([]byte("15:04:05.000000 [HOTKEY] registered\n"))

	records := readRecords(t, filepath.Join(dir, LogFileName))
	require.Len(t, records, 1)
	assert.Equal(t, "registered", records[0]["msg"])
	assert.Equal(t, CompHotkey, records[0]["component"])
}

func TestBridgeWriterEmptyInput(t *testing.T) {
	Shutdown()

	dir := t.TempDir()
	Init(Config{Diagnostics: true, LogDir: dir})
	defer Shutdown()

	n, err := NewBridgeWriter("legacy").Write([]byte("   \n"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	data, _ := os.ReadFile(filepath.Join(dir, LogFileName))
	assert.Empty(t, data)
}

func TestStripLogTimestamp(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"15:04:05.000000 hello", "hello"},
		{"15:04:05 hello", "hello"},
		{"no timestamp here", "no timestamp here"},
		{"12:34:56.789012 [COPY] msg", "[COPY] msg"},
	}

	for _, tt := range tests {
		if got := stripLogTimestamp(tt.input); got != tt.want {
			t.Errorf("stripLogTimestamp(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
