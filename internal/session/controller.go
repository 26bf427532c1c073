package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/asheshgoplani/snapdeck/internal/classifier"
	"github.com/asheshgoplani/snapdeck/internal/clipboard"
	"github.com/asheshgoplani/snapdeck/internal/delivery"
	"github.com/asheshgoplani/snapdeck/internal/keys"
	"github.com/asheshgoplani/snapdeck/internal/logging"
	"github.com/asheshgoplani/snapdeck/internal/notify"
	"github.com/asheshgoplani/snapdeck/internal/prompt"
)

var sessionLog = logging.ForComponent(logging.CompSession)

// Querier answers a prompt.
type Querier interface {
	Query(ctx context.Context, prompt string) (string, error)
}

// Pipeline is the part of the flow that can be swapped on config reload.
type Pipeline struct {
	Classifier *classifier.Classifier
	Prompts    *prompt.Builder
}

// DefaultPipeline uses the built-in catalog and templates.
func DefaultPipeline() *Pipeline {
	return &Pipeline{
		Classifier: classifier.NewDefault(),
		Prompts:    prompt.NewBuilder(nil, ""),
	}
}

// Settings are the controller's timing and signalling knobs.
type Settings struct {
	CopyCombo       keys.Combo
	CaptureSettle   time.Duration
	MinCaptureChars int
	ShortAnswerMax  int

	// Blinks toggles Num Lock LED signals. Off where there is no Num Lock.
	Blinks          bool
	BlinkDelay      time.Duration
	ErrorBlinkCount int
	ErrorBlinkDelay time.Duration

	Toasts      bool
	AnswerToast time.Duration
	LetterToast time.Duration
}

// DefaultSettings matches the shipped config defaults.
func DefaultSettings() Settings {
	return Settings{
		CopyCombo:       keys.MustParse("ctrl+c"),
		CaptureSettle:   200 * time.Millisecond,
		MinCaptureChars: 5,
		ShortAnswerMax:  delivery.DefaultShortMax,
		Blinks:          true,
		BlinkDelay:      120 * time.Millisecond,
		ErrorBlinkCount: 3,
		ErrorBlinkDelay: 150 * time.Millisecond,
		Toasts:          true,
		AnswerToast:     2000 * time.Millisecond,
		LetterToast:     1200 * time.Millisecond,
	}
}

// Deps are the collaborators a Controller drives.
type Deps struct {
	State     *State
	Clipboard *clipboard.Clipboard
	Injector  keys.Injector
	Querier   Querier
	Notifier  notify.Notifier
	Paster    *delivery.Paster
	Pipeline  *Pipeline
}

// Controller is the single entry point for hotkey events. Its handlers
// never return errors: every failure is handled where it happens and
// reported in the Result.
type Controller struct {
	state    *State
	clip     *clipboard.Clipboard
	inj      keys.Injector
	querier  Querier
	notifier notify.Notifier
	paster   *delivery.Paster
	settings Settings

	pipeline atomic.Pointer[Pipeline]

	// pasteMu orders deliveries so chunks reach the target in queue order.
	pasteMu sync.Mutex

	// signals tracks fire-and-forget toasts.
	signals sync.WaitGroup
}

// NewController wires a controller. Nil State, Notifier and Pipeline get
// defaults.
func NewController(d Deps, s Settings) *Controller {
	c := &Controller{
		state:    d.State,
		clip:     d.Clipboard,
		inj:      d.Injector,
		querier:  d.Querier,
		notifier: d.Notifier,
		paster:   d.Paster,
		settings: s,
	}
	if c.state == nil {
		c.state = NewState()
	}
	if c.notifier == nil {
		c.notifier = notify.Nop{}
	}
	p := d.Pipeline
	if p == nil {
		p = DefaultPipeline()
	}
	c.pipeline.Store(p)
	return c
}

// State exposes the session state.
func (c *Controller) State() *State { return c.state }

// SetPipeline swaps the classifier and prompt builder. Cycles already
// running keep the pipeline they started with.
func (c *Controller) SetPipeline(p *Pipeline) {
	if p != nil {
		c.pipeline.Store(p)
	}
}

// Outcome is what a handler did.
type Outcome int

const (
	OutcomeStaged        Outcome = iota // answer queued, first chunk on the clipboard
	OutcomeBusy                         // capture dropped, a cycle is running
	OutcomeNothingCopied                // selection copy failed, clipboard restored
	OutcomeTooShort                     // captured text below the minimum
	OutcomeQueryFailed                  // remote query failed
	OutcomeNoChunks                     // answer had no usable chunk
	OutcomePasted                       // one chunk delivered
	OutcomeNothingStaged                // paste-next with an empty queue
	OutcomeExhausted                    // paste-next after the last chunk
	OutcomeExiting                      // exit requested
)

var outcomeNames = map[Outcome]string{
	OutcomeStaged:        "staged",
	OutcomeBusy:          "busy",
	OutcomeNothingCopied: "nothing_copied",
	OutcomeTooShort:      "too_short",
	OutcomeQueryFailed:   "query_failed",
	OutcomeNoChunks:      "no_chunks",
	OutcomePasted:        "pasted",
	OutcomeNothingStaged: "nothing_staged",
	OutcomeExhausted:     "exhausted",
	OutcomeExiting:       "exiting",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return "unknown"
}

// Result describes one handler call.
type Result struct {
	Outcome  Outcome
	Category classifier.Category
	Kind     delivery.Kind
	Chunks   int    // chunks staged, or total when pasting
	Index    int    // 0-based chunk pasted
	Strategy string // paste strategy that worked
	Err      error
}

// OnCaptureAndSubmit runs capture, classify, query and stage. A call made
// while another is running returns OutcomeBusy without touching anything.
func (c *Controller) OnCaptureAndSubmit(ctx context.Context) Result {
	if !c.state.TryBegin() {
		logging.Aggregate(logging.CompSession, "capture_dropped_busy")
		return Result{Outcome: OutcomeBusy}
	}
	defer c.state.End()

	text, err := c.clip.CaptureSelection(ctx, c.inj, c.settings.CopyCombo, c.settings.CaptureSettle)
	if err != nil {
		sessionLog.Info("capture_failed", slog.String("error", err.Error()))
		return Result{Outcome: OutcomeNothingCopied, Err: err}
	}
	if utf8.RuneCountInString(text) < c.settings.MinCaptureChars {
		sessionLog.Info("capture_too_short", slog.Int("chars", utf8.RuneCountInString(text)))
		return Result{Outcome: OutcomeTooShort}
	}

	p := c.pipeline.Load()
	cls := p.Classifier.Classify(text)
	sessionLog.Info("question_classified",
		slog.String("category", cls.Category.String()),
		slog.Float64("confidence", cls.Confidence),
		slog.String("style", string(cls.Style)),
		slog.Bool("lab_prompt", prompt.UseLab(cls)))

	answer, err := c.querier.Query(ctx, p.Prompts.Build(cls, text))
	if err != nil {
		sessionLog.Error("query_failed", slog.String("error", err.Error()))
		c.blink(ctx, c.settings.ErrorBlinkCount, c.settings.ErrorBlinkDelay)
		return Result{Outcome: OutcomeQueryFailed, Category: cls.Category, Err: err}
	}

	plan, err := delivery.PlanResponse(cls.Category, answer, c.settings.ShortAnswerMax)
	if err != nil {
		c.state.Reset()
		sessionLog.Warn("split_failed", slog.Int("answer_len", len(answer)))
		return Result{Outcome: OutcomeNoChunks, Category: cls.Category, Err: err}
	}

	c.state.Stage(plan.Chunks)
	if err := c.clip.Write(plan.Chunks[0]); err != nil {
		// Paste-next rewrites the chunk before pasting, so this is recoverable.
		sessionLog.Warn("prestage_failed", slog.String("error", err.Error()))
	}
	sessionLog.Info("answer_staged",
		slog.String("kind", plan.Kind.String()),
		slog.Int("chunks", len(plan.Chunks)))

	blinks := 1
	if len(plan.Chunks) > 1 {
		blinks = 2
	}
	c.blink(ctx, blinks, c.settings.BlinkDelay)

	switch plan.Kind {
	case delivery.KindLetter:
		c.toast(func() { c.notifier.Letter(plan.Chunks[0], c.settings.LetterToast) })
	case delivery.KindShort:
		c.toast(func() { c.notifier.Answer(plan.Chunks[0], c.settings.AnswerToast) })
	}

	return Result{
		Outcome:  OutcomeStaged,
		Category: cls.Category,
		Kind:     plan.Kind,
		Chunks:   len(plan.Chunks),
	}
}

// OnPasteNext delivers the chunk at the cursor and pre-stages the next one.
// It does not wait for a running capture cycle.
func (c *Controller) OnPasteNext(ctx context.Context) Result {
	c.pasteMu.Lock()
	defer c.pasteMu.Unlock()

	claim, st := c.state.ClaimNext()
	switch st {
	case Idle:
		logging.Aggregate(logging.CompDeliver, "paste_next_empty")
		return Result{Outcome: OutcomeNothingStaged}
	case Exhausted:
		sessionLog.Info("queue_exhausted")
		c.blink(ctx, 2, c.settings.BlinkDelay)
		return Result{Outcome: OutcomeExhausted}
	}

	res, err := c.paster.Paste(ctx, claim.Chunk)
	if err != nil {
		// Typing was the last resort; the chunk counts as delivered.
		sessionLog.Warn("paste_failed",
			slog.Int("chunk", claim.Index+1),
			slog.String("error", err.Error()))
	} else {
		sessionLog.Info("chunk_pasted",
			slog.Int("chunk", claim.Index+1),
			slog.Int("total", claim.Total),
			slog.String("strategy", res.Strategy))
	}

	if claim.HasNext {
		// Checked under the clipboard lock: a capture that stages after the
		// check waits here for its own write, so its first chunk lands last.
		werr := c.clip.Transaction(func(t clipboard.Transport) error {
			if !c.state.Current(claim) {
				return nil
			}
			return t.Write(claim.Next)
		})
		if werr != nil {
			sessionLog.Warn("prestage_failed", slog.String("error", werr.Error()))
		}
	} else {
		c.blink(ctx, 2, c.settings.BlinkDelay)
	}

	return Result{
		Outcome:  OutcomePasted,
		Chunks:   claim.Total,
		Index:    claim.Index,
		Strategy: res.Strategy,
		Err:      err,
	}
}

// OnExit asks the main loop to shut down.
func (c *Controller) OnExit(context.Context) Result {
	sessionLog.Info("exit_requested")
	c.state.RequestExit()
	return Result{Outcome: OutcomeExiting}
}

// Done is closed once exit has been requested.
func (c *Controller) Done() <-chan struct{} { return c.state.Done() }

// WaitSignals waits for toasts started so far.
func (c *Controller) WaitSignals() { c.signals.Wait() }

func (c *Controller) blink(ctx context.Context, n int, delay time.Duration) {
	if !c.settings.Blinks || n <= 0 {
		return
	}
	if err := keys.Blink(ctx, c.inj, n, delay); err != nil && !errors.Is(err, context.Canceled) {
		sessionLog.Debug("blink_failed", slog.String("error", err.Error()))
	}
}

func (c *Controller) toast(show func()) {
	if !c.settings.Toasts {
		return
	}
	c.signals.Add(1)
	go func() {
		defer c.signals.Done()
		show()
	}()
}
