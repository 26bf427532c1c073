package config

import (
	"errors"
	"fmt"
	"os"
)

// ExampleConfig is the commented config written by `snapdeck init-config`.
// Every value shown is the default.
const ExampleConfig = `# snapdeck configuration
# Edit and save: classifier patterns and prompts reload automatically.
# Hotkeys and the API settings are read at start.

[api]
# The key is read from GEMINI_API_KEY (or a .env file next to the
# executable or in the working directory). Setting it here also works.
# key = ""
base_url = "https://generativelanguage.googleapis.com/v1beta"
model = "gemini-1.5-flash-latest"
temperature = 0.1
# Minimum spacing between requests, in milliseconds (0 = no pacing)
min_interval_ms = 500
# Identical prompts within this window reuse the previous answer (0 = off)
cache_ttl_seconds = 300

[hotkeys]
capture = "ctrl+insert"
paste_next = "shift+insert"
paste_next_alt = "ctrl+shift+v"
exit = "ctrl+alt+end"

[delivery]
# Sent to the focused application to copy the selection
copy_combo = "ctrl+c"
# Paste fallbacks, tried in order before typing the text out. A combo that
# is also under [hotkeys] is skipped: the agent would catch its own paste.
paste_combo = "ctrl+v"
alt_paste_combo = "shift+insert"
capture_settle_ms = 200
paste_prep_ms = 120
paste_after_ms = 80
type_char_ms = 6
compress_blank_lines = true
# Short answers below this many characters are staged as a single chunk
short_answer_max = 120
# Selections shorter than this are ignored
min_capture_chars = 5

[signals]
# Num Lock LED blinks: 1 = one chunk staged, 2 = several staged or all
# pasted, 3 = the query failed. Skipped where there is no Num Lock.
blink_delay_ms = 120
error_blink_count = 3
error_blink_delay_ms = 150
toasts = true
answer_toast_ms = 2000
letter_toast_ms = 1200

# [classifier]
# Replace a category's patterns (case-insensitive regular expressions).
# Lists left out keep the built-in patterns.
# short = ['\bin\s+one\s+word\b', '\bbriefly\b']
# multiple_choice = ['\(a\)', '\b[a-e]\)']
# lab_keywords = ["skeleton", "template"]

# [prompts]
# lab = '''Complete the skeleton below.
# {{.Question}}'''
#
# [prompts.styles]
# short = "Answer briefly in 1-2 sentences:"

[instance]
heartbeat_seconds = 10
stale_after_seconds = 30

[logs]
# Nothing is written anywhere unless diagnostics are on (or SNAPDECK_DEBUG=1)
diagnostics = false
level = "info"
format = "json"
max_size_mb = 10
max_backups = 5
max_age_days = 10
compress = true
ring_buffer_mb = 2
aggregate_interval_seconds = 30
pprof_enabled = false
`

// CreateExampleConfig writes ExampleConfig unless a config file exists.
// It returns the path and whether a file was written.
func CreateExampleConfig() (string, bool, error) {
	configPath, err := Path()
	if err != nil {
		return "", false, err
	}

	// Don't overwrite existing config
	if _, err := os.Stat(configPath); err == nil {
		return configPath, false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return configPath, false, fmt.Errorf("stat config: %w", err)
	}

	if err := writeFileAtomic(configPath, []byte(ExampleConfig)); err != nil {
		return configPath, false, err
	}
	return configPath, true, nil
}
