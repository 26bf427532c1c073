package main

import (
	"log/slog"
	"time"

	"github.com/asheshgoplani/snapdeck/internal/classifier"
	"github.com/asheshgoplani/snapdeck/internal/clipboard"
	"github.com/asheshgoplani/snapdeck/internal/config"
	"github.com/asheshgoplani/snapdeck/internal/delivery"
	"github.com/asheshgoplani/snapdeck/internal/hotkey"
	"github.com/asheshgoplani/snapdeck/internal/keys"
	"github.com/asheshgoplani/snapdeck/internal/query"
	"github.com/asheshgoplani/snapdeck/internal/session"
	"github.com/asheshgoplani/snapdeck/internal/statedb"
)

// pipelineFrom compiles the reloadable part of the config.
func pipelineFrom(cfg *config.Config) (*session.Pipeline, error) {
	cat, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}
	prompts, err := cfg.PromptBuilder()
	if err != nil {
		return nil, err
	}
	return &session.Pipeline{
		Classifier: classifier.New(cat),
		Prompts:    prompts,
	}, nil
}

func settingsFrom(cfg *config.Config, combos config.DeliveryCombos, blinks bool) session.Settings {
	d, s := cfg.Delivery, cfg.Signals
	return session.Settings{
		CopyCombo:       combos.Copy,
		CaptureSettle:   config.Duration(d.CaptureSettleMS),
		MinCaptureChars: d.MinCaptureChars,
		ShortAnswerMax:  d.ShortAnswerMax,
		Blinks:          blinks,
		BlinkDelay:      config.Duration(s.BlinkDelayMS),
		ErrorBlinkCount: s.ErrorBlinkCount,
		ErrorBlinkDelay: config.Duration(s.ErrorBlinkDelayMS),
		Toasts:          s.GetToasts(),
		AnswerToast:     config.Duration(s.AnswerToastMS),
		LetterToast:     config.Duration(s.LetterToastMS),
	}
}

// pasterFrom builds the paste chain. Paste combos that are also hotkeys are
// left out so the agent never pastes into its own grab.
func pasterFrom(cfg *config.Config, bindings config.Bindings, combos config.DeliveryCombos, clip *clipboard.Clipboard, inj keys.Injector) *delivery.Paster {
	d := cfg.Delivery
	pastes, skipped := combos.PasteCombos(bindings)
	for _, s := range skipped {
		mainLog.Info("paste_combo_skipped", slog.String("combo", s))
	}
	return &delivery.Paster{
		Clipboard: clip,
		Strategies: delivery.DefaultStrategies(inj, pastes,
			config.Duration(d.PasteAfterMS), config.Duration(d.TypeCharMS)),
		Prep:     config.Duration(d.PastePrepMS),
		Compress: d.GetCompressBlankLines(),
	}
}

func queryOptions(cfg *config.Config) []query.Option {
	a := cfg.API
	opts := []query.Option{
		query.WithTemperature(a.Temperature),
		query.WithMinInterval(config.Duration(a.MinIntervalMS)),
		query.WithCacheTTL(time.Duration(a.CacheTTLSeconds) * time.Second),
	}
	if a.BaseURL != "" {
		opts = append(opts, query.WithBaseURL(a.BaseURL))
	}
	if a.Model != "" {
		opts = append(opts, query.WithModel(a.Model))
	}
	return opts
}

func bindingsFrom(b config.Bindings) []hotkey.Binding {
	return []hotkey.Binding{
		{Action: hotkey.ActionCapture, Combo: b.Capture},
		{Action: hotkey.ActionPasteNext, Combo: b.PasteNext},
		{Action: hotkey.ActionPasteNextAlt, Combo: b.PasteNextAlt},
		{Action: hotkey.ActionExit, Combo: b.Exit},
	}
}

func leaseOptions(cfg *config.Config) statedb.LeaseOptions {
	return statedb.LeaseOptions{
		Heartbeat:  time.Duration(cfg.Instance.HeartbeatSeconds) * time.Second,
		StaleAfter: time.Duration(cfg.Instance.StaleAfterSeconds) * time.Second,
	}
}
