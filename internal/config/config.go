// Package config loads ~/.snapdeck/config.toml and the .env credentials file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/asheshgoplani/snapdeck/internal/classifier"
	"github.com/asheshgoplani/snapdeck/internal/keys"
	"github.com/asheshgoplani/snapdeck/internal/logging"
	"github.com/asheshgoplani/snapdeck/internal/prompt"
)

var cfgLog = logging.ForComponent(logging.CompConfig)

// FileName is the TOML config file inside the state directory.
const FileName = "config.toml"

// Environment variables read by the agent.
const (
	EnvHome   = "SNAPDECK_HOME"
	EnvAPIKey = "GEMINI_API_KEY"
	EnvDebug  = "SNAPDECK_DEBUG"
	EnvColor  = "SNAPDECK_COLOR"
)

// Config is the user configuration.
type Config struct {
	API        APISettings       `toml:"api"`
	Hotkeys    HotkeySettings    `toml:"hotkeys"`
	Delivery   DeliverySettings  `toml:"delivery"`
	Signals    SignalSettings    `toml:"signals"`
	Classifier classifier.Source `toml:"classifier"`
	Prompts    PromptSettings    `toml:"prompts"`
	Instance   InstanceSettings  `toml:"instance"`
	Logs       LogSettings       `toml:"logs"`
}

// APISettings configures the completion endpoint.
type APISettings struct {
	// Key is the API key. GEMINI_API_KEY takes precedence.
	Key         string  `toml:"key"`
	BaseURL     string  `toml:"base_url"`
	Model       string  `toml:"model"`
	Temperature float64 `toml:"temperature"`

	// MinIntervalMS spaces consecutive requests. 0 disables pacing.
	MinIntervalMS int `toml:"min_interval_ms"`

	// CacheTTLSeconds keeps answers for identical prompts. 0 disables the cache.
	CacheTTLSeconds int `toml:"cache_ttl_seconds"`
}

// HotkeySettings are the global bindings. Read once at start.
type HotkeySettings struct {
	Capture      string `toml:"capture"`
	PasteNext    string `toml:"paste_next"`
	PasteNextAlt string `toml:"paste_next_alt"`
	Exit         string `toml:"exit"`
}

// Bindings are parsed HotkeySettings.
type Bindings struct {
	Capture      keys.Combo
	PasteNext    keys.Combo
	PasteNextAlt keys.Combo
	Exit         keys.Combo
}

type boundCombo struct {
	field string
	combo keys.Combo
}

func (b Bindings) entries() []boundCombo {
	return []boundCombo{
		{"capture", b.Capture}, {"paste_next", b.PasteNext},
		{"paste_next_alt", b.PasteNextAlt}, {"exit", b.Exit},
	}
}

// Lookup returns the hotkey field bound to c, if any.
func (b Bindings) Lookup(c keys.Combo) (string, bool) {
	for _, e := range b.entries() {
		if e.combo.String() == c.String() {
			return e.field, true
		}
	}
	return "", false
}

// DeliverySettings tune capture and paste.
type DeliverySettings struct {
	CopyCombo     string `toml:"copy_combo"`
	PasteCombo    string `toml:"paste_combo"`
	AltPasteCombo string `toml:"alt_paste_combo"`

	CaptureSettleMS int `toml:"capture_settle_ms"`
	PastePrepMS     int `toml:"paste_prep_ms"`
	PasteAfterMS    int `toml:"paste_after_ms"`
	TypeCharMS      int `toml:"type_char_ms"`

	// CompressBlankLines collapses runs of blank lines before pasting.
	// Default: true (pointer to distinguish "not set" from "explicitly false")
	CompressBlankLines *bool `toml:"compress_blank_lines"`

	ShortAnswerMax  int `toml:"short_answer_max"`
	MinCaptureChars int `toml:"min_capture_chars"`
}

// GetCompressBlankLines returns whether blank-line runs are collapsed, defaulting to true
func (d *DeliverySettings) GetCompressBlankLines() bool {
	if d.CompressBlankLines == nil {
		return true
	}
	return *d.CompressBlankLines
}

// DeliveryCombos are parsed DeliverySettings combos.
type DeliveryCombos struct {
	Copy     keys.Combo
	Paste    keys.Combo
	AltPaste keys.Combo
}

// PasteCombos returns the paste combos in fallback order, leaving out any
// that is also one of the agent's hotkeys. A keystroke the agent sends
// itself lands on its own grab, not in the focused window, so such a combo
// would read as another paste-next press. skipped names the dropped fields.
func (d DeliveryCombos) PasteCombos(b Bindings) (usable []keys.Combo, skipped []string) {
	for _, e := range []boundCombo{{"paste_combo", d.Paste}, {"alt_paste_combo", d.AltPaste}} {
		if hk, bound := b.Lookup(e.combo); bound {
			skipped = append(skipped, fmt.Sprintf("delivery.%s (%s is hotkeys.%s)", e.field, e.combo, hk))
			continue
		}
		usable = append(usable, e.combo)
	}
	return usable, skipped
}

// SignalSettings control the Num Lock blinks and toasts.
type SignalSettings struct {
	BlinkDelayMS      int `toml:"blink_delay_ms"`
	ErrorBlinkCount   int `toml:"error_blink_count"`
	ErrorBlinkDelayMS int `toml:"error_blink_delay_ms"`

	// Toasts shows answer and letter notifications.
	// Default: true
	Toasts *bool `toml:"toasts"`

	AnswerToastMS int `toml:"answer_toast_ms"`
	LetterToastMS int `toml:"letter_toast_ms"`
}

// GetToasts returns whether toasts are shown, defaulting to true
func (s *SignalSettings) GetToasts() bool {
	if s.Toasts == nil {
		return true
	}
	return *s.Toasts
}

// PromptSettings override prompt templates.
type PromptSettings struct {
	// Styles maps a style name (ultra_short, short, detailed, lab_completion,
	// multiple_choice, step_by_step, general) to its instruction line.
	Styles map[string]string `toml:"styles"`

	// Lab replaces the skeleton-completion template (text/template syntax,
	// fields .Question and .Indicators).
	Lab string `toml:"lab"`
}

// InstanceSettings tune the single-instance lease.
type InstanceSettings struct {
	HeartbeatSeconds  int `toml:"heartbeat_seconds"`
	StaleAfterSeconds int `toml:"stale_after_seconds"`
}

// LogSettings defines diagnostics output.
type LogSettings struct {
	// Diagnostics turns on logging. SNAPDECK_DEBUG=1 does the same.
	// Default: false (the agent leaves no trace)
	Diagnostics bool `toml:"diagnostics"`

	// Level sets the minimum log level: "debug", "info", "warn", "error"
	Level string `toml:"level"`

	// Format sets the log format: "json" (default) or "text"
	Format string `toml:"format"`

	MaxSizeMB  int `toml:"max_size_mb"`
	MaxBackups int `toml:"max_backups"`
	MaxAgeDays int `toml:"max_age_days"`

	// Compress enables gzip compression for rotated logs
	// Default: true
	Compress *bool `toml:"compress"`

	// RingBufferMB is the in-memory ring buffer size in MB for crash dumps
	RingBufferMB int `toml:"ring_buffer_mb"`

	AggregateIntervalSeconds int `toml:"aggregate_interval_seconds"`

	// PprofEnabled starts a pprof server on localhost:6060 when diagnostics are on
	PprofEnabled bool `toml:"pprof_enabled"`
}

// GetCompress returns whether rotated logs are compressed, defaulting to true
func (l *LogSettings) GetCompress() bool {
	if l.Compress == nil {
		return true
	}
	return *l.Compress
}

// Default returns a config holding every default value.
func Default() *Config {
	return &Config{
		API: APISettings{
			BaseURL:         "https://generativelanguage.googleapis.com/v1beta",
			Model:           "gemini-1.5-flash-latest",
			Temperature:     0.1,
			MinIntervalMS:   500,
			CacheTTLSeconds: 300,
		},
		Hotkeys: HotkeySettings{
			Capture:      "ctrl+insert",
			PasteNext:    "shift+insert",
			PasteNextAlt: "ctrl+shift+v",
			Exit:         "ctrl+alt+end",
		},
		Delivery: DeliverySettings{
			CopyCombo:       "ctrl+c",
			PasteCombo:      "ctrl+v",
			AltPasteCombo:   "shift+insert",
			CaptureSettleMS: 200,
			PastePrepMS:     120,
			PasteAfterMS:    80,
			TypeCharMS:      6,
			ShortAnswerMax:  120,
			MinCaptureChars: 5,
		},
		Signals: SignalSettings{
			BlinkDelayMS:      120,
			ErrorBlinkCount:   3,
			ErrorBlinkDelayMS: 150,
			AnswerToastMS:     2000,
			LetterToastMS:     1200,
		},
		Instance: InstanceSettings{
			HeartbeatSeconds:  10,
			StaleAfterSeconds: 30,
		},
		Logs: LogSettings{
			Level:                    "info",
			Format:                   "json",
			MaxSizeMB:                10,
			MaxBackups:               5,
			MaxAgeDays:               10,
			RingBufferMB:             2,
			AggregateIntervalSeconds: 30,
		},
	}
}

// Dir returns the state directory: $SNAPDECK_HOME, or ~/.snapdeck.
func Dir() (string, error) {
	if d := os.Getenv(EnvHome); d != "" {
		return d, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".snapdeck"), nil
}

// Path returns the path to the config file
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Cache for the config (loaded once per process)
var (
	configCache   *Config
	configCacheMu sync.RWMutex
)

// Load returns the configuration, reading it on first use.
// A missing file yields the defaults. A file that fails to parse or
// validate yields the defaults plus the error, and the defaults stay cached
// so the error is not re-reported on every call.
func Load() (*Config, error) {
	configCacheMu.RLock()
	if configCache != nil {
		defer configCacheMu.RUnlock()
		return configCache, nil
	}
	configCacheMu.RUnlock()

	configCacheMu.Lock()
	defer configCacheMu.Unlock()

	// Double-check after acquiring write lock
	if configCache != nil {
		return configCache, nil
	}

	path, err := Path()
	if err != nil {
		configCache = withEnv(Default())
		return configCache, nil
	}

	cfg, err := LoadFile(path)
	if err != nil {
		configCache = withEnv(Default())
		return configCache, err
	}
	configCache = cfg
	return configCache, nil
}

// Reload forces a reload of the config
func Reload() (*Config, error) {
	ClearCache()
	return Load()
}

// ClearCache drops the cached config. The next Load reads from disk.
func ClearCache() {
	configCacheMu.Lock()
	configCache = nil
	configCacheMu.Unlock()
}

// LoadFile reads path over the defaults, applies environment overrides and
// validates the result. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return withEnv(cfg), nil
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config.toml parse error: %w", err)
	}
	for _, key := range md.Undecoded() {
		cfgLog.Warn("unknown_config_key", slog.String("key", key.String()))
	}

	withEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func withEnv(cfg *Config) *Config {
	if k := strings.TrimSpace(os.Getenv(EnvAPIKey)); k != "" {
		cfg.API.Key = k
	}
	if v := os.Getenv(EnvDebug); v != "" && v != "0" && !strings.EqualFold(v, "false") {
		cfg.Logs.Diagnostics = true
	}
	return cfg
}

// LoadEnvFiles loads .env next to the executable, then in the working
// directory. Variables already set are never overwritten, so the first
// file to define a name wins. Returns the files that were loaded.
func LoadEnvFiles() []string {
	var candidates []string
	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), ".env"))
	}
	if wd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(wd, ".env"))
	}
	return loadEnv(candidates)
}

func loadEnv(candidates []string) []string {
	var loaded []string
	seen := make(map[string]bool)
	for _, p := range candidates {
		if seen[p] {
			continue
		}
		seen[p] = true
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			cfgLog.Warn("env_file_unreadable", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		loaded = append(loaded, p)
	}
	return loaded
}

// Validate checks every key combination, pattern and template.
func (c *Config) Validate() error {
	var errs []error
	bindings, herr := c.Hotkeys.Parse()
	if herr != nil {
		errs = append(errs, herr)
	}
	combos, derr := c.Delivery.Parse()
	if derr != nil {
		errs = append(errs, derr)
	}
	if herr == nil && derr == nil {
		// Capture has no fallback for a copy that never reaches the app.
		if hk, bound := bindings.Lookup(combos.Copy); bound {
			errs = append(errs, fmt.Errorf("delivery.copy_combo: %s is bound to hotkeys.%s", combos.Copy, hk))
		}
	}
	if _, err := c.Catalog(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.PromptBuilder(); err != nil {
		errs = append(errs, err)
	}
	for name := range c.Prompts.Styles {
		if !knownStyle(name) {
			errs = append(errs, fmt.Errorf("prompts.styles: unknown style %q", name))
		}
	}
	if c.Delivery.MinCaptureChars < 0 || c.Delivery.ShortAnswerMax < 0 {
		errs = append(errs, errors.New("delivery: negative length limit"))
	}
	return errors.Join(errs...)
}

func knownStyle(name string) bool {
	for _, s := range classifier.Styles {
		if string(s) == name {
			return true
		}
	}
	return false
}

// Parse validates and parses the hotkey bindings.
func (h HotkeySettings) Parse() (Bindings, error) {
	var (
		b    Bindings
		errs []error
	)
	parse := func(field, s string, dst *keys.Combo) {
		c, err := keys.ParseCombo(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("hotkeys.%s: %w", field, err))
			return
		}
		*dst = c
	}
	parse("capture", h.Capture, &b.Capture)
	parse("paste_next", h.PasteNext, &b.PasteNext)
	parse("paste_next_alt", h.PasteNextAlt, &b.PasteNextAlt)
	parse("exit", h.Exit, &b.Exit)
	if err := errors.Join(errs...); err != nil {
		return Bindings{}, err
	}

	seen := make(map[string]string)
	for _, e := range b.entries() {
		if other, dup := seen[e.combo.String()]; dup {
			return Bindings{}, fmt.Errorf("hotkeys.%s: %s is already bound to %s", e.field, e.combo, other)
		}
		seen[e.combo.String()] = e.field
	}
	return b, nil
}

// Parse validates and parses the delivery combos.
func (d DeliverySettings) Parse() (DeliveryCombos, error) {
	var (
		out  DeliveryCombos
		errs []error
	)
	parse := func(field, s string, dst *keys.Combo) {
		c, err := keys.ParseCombo(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("delivery.%s: %w", field, err))
			return
		}
		*dst = c
	}
	parse("copy_combo", d.CopyCombo, &out.Copy)
	parse("paste_combo", d.PasteCombo, &out.Paste)
	parse("alt_paste_combo", d.AltPasteCombo, &out.AltPaste)
	if err := errors.Join(errs...); err != nil {
		return DeliveryCombos{}, err
	}
	return out, nil
}

// Catalog compiles the classifier tables with the [classifier] overrides.
func (c *Config) Catalog() (classifier.Catalog, error) {
	return classifier.CompileCatalog(c.Classifier)
}

// PromptBuilder builds the prompt templates with the [prompts] overrides.
func (c *Config) PromptBuilder() (*prompt.Builder, error) {
	overrides := make(map[classifier.Style]string, len(c.Prompts.Styles))
	for k, v := range c.Prompts.Styles {
		overrides[classifier.Style(k)] = v
	}
	b := prompt.NewBuilder(overrides, c.Prompts.Lab)
	if err := b.LabErr(); err != nil {
		return nil, fmt.Errorf("prompts.lab: %w", err)
	}
	return b, nil
}

// Duration converts a millisecond setting.
func Duration(ms int) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// LogConfig maps [logs] onto the logging package for a state directory.
func (c *Config) LogConfig(dir string) logging.Config {
	ls := c.Logs
	return logging.Config{
		LogDir:                dir,
		Level:                 ls.Level,
		Format:                ls.Format,
		MaxSizeMB:             ls.MaxSizeMB,
		MaxBackups:            ls.MaxBackups,
		MaxAgeDays:            ls.MaxAgeDays,
		Compress:              ls.GetCompress(),
		RingBufferSize:        ls.RingBufferMB * 1024 * 1024,
		AggregateIntervalSecs: ls.AggregateIntervalSeconds,
		PprofEnabled:          ls.PprofEnabled,
		Diagnostics:           ls.Diagnostics,
	}
}

// Save writes the config to config.toml using atomic write pattern.
// The API key is never written; it belongs in .env.
// This clears the cache so next Load reads fresh values.
func Save(cfg *Config) error {
	configPath, err := Path()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	out := *cfg
	out.API.Key = ""

	var buf bytes.Buffer
	buf.WriteString("# snapdeck configuration\n")
	buf.WriteString("# The API key is read from GEMINI_API_KEY (or a .env file).\n\n")
	if err := toml.NewEncoder(&buf).Encode(&out); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := writeFileAtomic(configPath, buf.Bytes()); err != nil {
		return err
	}
	ClearCache()
	return nil
}

// writeFileAtomic writes to a temp file, fsyncs it and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := syncFile(tmpPath); err != nil {
		cfgLog.Warn("config_fsync_failed", slog.String("error", err.Error()))
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize config save: %w", err)
	}
	return nil
}

func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
