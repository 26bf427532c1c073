package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/asheshgoplani/snapdeck/internal/clipboard"
	"github.com/asheshgoplani/snapdeck/internal/config"
	"github.com/asheshgoplani/snapdeck/internal/hotkey"
	"github.com/asheshgoplani/snapdeck/internal/keys"
	"github.com/asheshgoplani/snapdeck/internal/logging"
	"github.com/asheshgoplani/snapdeck/internal/notify"
	"github.com/asheshgoplani/snapdeck/internal/platform"
	"github.com/asheshgoplani/snapdeck/internal/query"
	"github.com/asheshgoplani/snapdeck/internal/session"
	"github.com/asheshgoplani/snapdeck/internal/statedb"
)

var mainLog = logging.ForComponent("main")

func handleRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	debug := fs.Bool("debug", false, "Write diagnostics (same as SNAPDECK_DEBUG=1)")
	fs.Usage = func() {
		fmt.Println("Usage: snapdeck run [options]")
		fmt.Println()
		fmt.Println("Start the agent. It runs without a window until the exit hotkey.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		return 2
	}

	envFiles := config.LoadEnvFiles()
	loaded, cfgErr := config.Load()
	cfg := *loaded
	if *debug {
		cfg.Logs.Diagnostics = true
	}

	dir, err := config.Dir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logCfg := cfg.LogConfig(dir)
	if cfg.Logs.Diagnostics && term.IsTerminal(int(os.Stderr.Fd())) {
		logCfg.Console = os.Stderr
	}
	logging.Init(logCfg)
	defer logging.Shutdown()

	// Route stdlib log output (ours and libraries') through slog
	log.SetFlags(0)
	log.SetOutput(logging.NewBridgeWriter("main"))

	if cfgErr != nil {
		mainLog.Warn("config_invalid_using_defaults", slog.String("error", cfgErr.Error()))
	}
	for _, f := range envFiles {
		mainLog.Debug("env_file_loaded", slog.String("path", f))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lease, err := statedb.Acquire(ctx, filepath.Join(dir, statedb.FileName), leaseOptions(&cfg))
	if errors.Is(err, statedb.ErrAlreadyRunning) {
		// Another agent owns the hotkeys; leave quietly.
		mainLog.Info("instance_already_running")
		return 0
	}
	if err != nil {
		mainLog.Error("instance_lease_failed", slog.String("error", err.Error()))
		return 1
	}
	defer lease.Release()

	startDumpOnSignal(ctx, dir)

	agent, err := newAgent(&cfg)
	if err != nil {
		mainLog.Error("agent_setup_failed", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer agent.notifier.Wait()

	if path, err := config.Path(); err == nil {
		if w, err := config.NewWatcher(path, agent.reload); err == nil {
			if err := w.Start(); err == nil {
				defer w.Stop()
			} else {
				mainLog.Warn("config_watch_unavailable", slog.String("error", err.Error()))
			}
		}
	}

	listener := hotkey.NewListener(bindingsFrom(agent.bindings), agent.handle)
	if err := listener.Register(); err != nil {
		mainLog.Error("hotkey_register_failed", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	agent.logBanner(listener.Bindings())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-agent.ctrl.Done():
		case <-ctx.Done():
			agent.ctrl.OnExit(ctx)
		}
		cancel()
	}()

	if err := listener.Run(runCtx); err != nil {
		mainLog.Error("hotkey_listener_failed", slog.String("error", err.Error()))
	}
	agent.ctrl.WaitSignals()
	mainLog.Info("agent_stopped")
	return 0
}

// agent holds the long-lived collaborators of `snapdeck run`.
type agent struct {
	ctrl      *session.Controller
	injector  keys.Injector
	transport *clipboard.System
	notifier  *notify.Desktop
	client    *query.Client
	bindings  config.Bindings
}

func newAgent(cfg *config.Config) (*agent, error) {
	bindings, err := cfg.Hotkeys.Parse()
	if err != nil {
		return nil, err
	}
	combos, err := cfg.Delivery.Parse()
	if err != nil {
		return nil, err
	}
	pipeline, err := pipelineFrom(cfg)
	if err != nil {
		return nil, err
	}

	inj, err := keys.Detect()
	if err != nil {
		return nil, err
	}
	if cfg.API.Key == "" {
		// Not fatal: every query fails with ErrMissingAPIKey and the error
		// blink, which is how the user finds out.
		mainLog.Warn("api_key_missing", slog.String("env", config.EnvAPIKey))
	}

	a := &agent{
		injector:  inj,
		transport: clipboard.NewSystem(),
		notifier:  notify.NewDesktop(),
		client:    query.New(cfg.API.Key, queryOptions(cfg)...),
		bindings:  bindings,
	}
	clip := clipboard.New(a.transport)

	a.ctrl = session.NewController(session.Deps{
		Clipboard: clip,
		Injector:  inj,
		Querier:   a.client,
		Notifier:  a.notifier,
		Paster:    pasterFrom(cfg, bindings, combos, clip, inj),
		Pipeline:  pipeline,
	}, settingsFrom(cfg, combos, platform.HasNumLock()))
	return a, nil
}

// handle is the hotkey callback. Every press runs in its own goroutine.
func (a *agent) handle(ctx context.Context, act hotkey.Action) {
	start := time.Now()
	var r session.Result
	switch act {
	case hotkey.ActionCapture:
		r = a.ctrl.OnCaptureAndSubmit(ctx)
	case hotkey.ActionPasteNext, hotkey.ActionPasteNextAlt:
		r = a.ctrl.OnPasteNext(ctx)
	case hotkey.ActionExit:
		r = a.ctrl.OnExit(ctx)
	default:
		return
	}

	attrs := []any{
		slog.String("action", act.String()),
		slog.String("outcome", r.Outcome.String()),
		slog.Duration("took", time.Since(start)),
		slog.String("clipboard", a.transport.Method()),
	}
	if r.Err != nil {
		attrs = append(attrs, slog.String("error", r.Err.Error()))
	}
	mainLog.Debug("hotkey_handled", attrs...)
}

// reload swaps in a new classifier and prompt set after a config edit.
func (a *agent) reload(cfg *config.Config, err error) {
	if err != nil {
		return
	}
	p, err := pipelineFrom(cfg)
	if err != nil {
		mainLog.Warn("pipeline_rebuild_failed", slog.String("error", err.Error()))
		return
	}
	a.ctrl.SetPipeline(p)
	mainLog.Info("pipeline_reloaded")
}

func (a *agent) logBanner(bindings []hotkey.Binding) {
	attrs := []any{
		slog.String("version", Version),
		slog.String("platform", platform.Detect().String()),
		slog.String("display", string(platform.Display())),
		slog.String("injector", a.injector.Name()),
		slog.String("model", a.client.Model()),
		slog.Int("pid", os.Getpid()),
	}
	for _, b := range bindings {
		attrs = append(attrs, slog.String(b.Action.String(), b.Combo.String()))
	}
	mainLog.Info("agent_started", attrs...)
}
