package completion

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/shehryarbajwa/browserbase-chat/internal/browser"
	"github.com/shehryarbajwa/browserbase-chat/pkg/models"
)

// Config bounds the polling heuristics
type Config struct {
	PollInterval time.Duration
	// IdlePolls is how many unchanged polls without a busy indicator
	// count as a finished answer
	IdlePolls int
	// Timeout bounds a whole run, from model selection to the last poll
	Timeout        time.Duration
	ElementTimeout time.Duration
	SendRetries    int
	RetryDelay     time.Duration
	// MaxObserveErrors is how many consecutive failed polls abort the run
	MaxObserveErrors int
}

// DefaultConfig returns the recommended polling policy
func DefaultConfig() Config {
	return Config{
		PollInterval:     500 * time.Millisecond,
		IdlePolls:        10,
		Timeout:          60 * time.Second,
		ElementTimeout:   15 * time.Second,
		SendRetries:      3,
		RetryDelay:       300 * time.Millisecond,
		MaxObserveErrors: 5,
	}
}

// Prompt is what one run types into the page
type Prompt struct {
	Group       string
	Model       string
	Text        string
	Temperature *float64
}

// Progress receives the growing answer while the remote UI renders it
type Progress func(text, reasoning string)

// Watcher drives a page from model selection to a finished answer
type Watcher struct {
	cfg      Config
	sel      Selectors
	observer Observer
	log      zerolog.Logger
}

// NewWatcher creates a watcher. A nil observer uses the DOM observer.
func NewWatcher(cfg Config, sel Selectors, observer Observer, log zerolog.Logger) *Watcher {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.IdlePolls <= 0 {
		cfg.IdlePolls = def.IdlePolls
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.ElementTimeout <= 0 {
		cfg.ElementTimeout = def.ElementTimeout
	}
	if cfg.SendRetries <= 0 {
		cfg.SendRetries = 1
	}
	if cfg.MaxObserveErrors <= 0 {
		cfg.MaxObserveErrors = def.MaxObserveErrors
	}
	if observer == nil {
		observer = NewDOMObserver(sel)
	}
	return &Watcher{
		cfg:      cfg,
		sel:      sel,
		observer: observer,
		log:      log.With().Str("component", "watcher").Logger(),
	}
}

type run struct {
	w      *Watcher
	page   browser.Page
	prompt Prompt
	state  State
	log    zerolog.Logger
}

func (r *run) to(s State) {
	r.log.Debug().Stringer("from", r.state).Stringer("to", s).Msg("transition")
	r.state = s
}

// fail converts a step error into the error the caller sees. Cancellation
// stays a context error so the session is not thrown away for it.
func (r *run) fail(ctx context.Context, step string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.to(Failed)
	return &models.AutomationFailure{Group: r.prompt.Group, Step: step, Err: err}
}

// Run selects the model, sends the prompt and polls until the answer is
// complete, the overall timeout passes, or ctx is cancelled. The timeout
// covers the whole run, element waits included. The page must already show
// the group's chat UI.
func (w *Watcher) Run(ctx context.Context, page browser.Page, p Prompt, progress Progress) (models.CompletionResult, error) {
	r := &run{
		w:      w,
		page:   page,
		prompt: p,
		state:  Navigating,
		log:    w.log.With().Str("group", p.Group).Str("model", p.Model).Logger(),
	}

	runCtx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	res, err := w.drive(runCtx, r, progress)
	if err != nil && ctx.Err() == nil && runCtx.Err() != nil {
		// the run deadline passed with no answer on screen
		r.to(TimedOut)
		return models.CompletionResult{}, w.timeoutErr(r)
	}
	return res, err
}

func (w *Watcher) drive(ctx context.Context, r *run, progress Progress) (models.CompletionResult, error) {
	page, p := r.page, r.prompt

	if err := page.WaitFor(ctx, w.sel.ModelSelect, w.cfg.ElementTimeout); err != nil {
		return models.CompletionResult{}, r.fail(ctx, "wait for model selector", err)
	}
	if err := page.Select(ctx, w.sel.ModelSelect, p.Model); err != nil {
		return models.CompletionResult{}, r.fail(ctx, "select model", err)
	}
	r.to(ModelSelected)

	if p.Temperature != nil {
		applied, err := w.ApplyTemperature(ctx, page, *p.Temperature)
		switch {
		case ctx.Err() != nil:
			return models.CompletionResult{}, ctx.Err()
		case err != nil:
			r.log.Warn().Err(err).Msg("temperature control unavailable, using remote default")
		case !applied:
			r.log.Debug().Float64("temperature", *p.Temperature).Msg("temperature outside control range, left unset")
		}
	}

	baseline, err := w.observer.Baseline(ctx, page)
	if err != nil {
		return models.CompletionResult{}, r.fail(ctx, "count responses", err)
	}

	if err := w.send(ctx, r); err != nil {
		return models.CompletionResult{}, err
	}
	r.to(MessageSent)

	return w.await(ctx, r, baseline, progress)
}

func (w *Watcher) timeoutErr(r *run) error {
	return &models.AutomationTimeoutError{Group: r.prompt.Group, After: w.cfg.Timeout.String()}
}

func (w *Watcher) send(ctx context.Context, r *run) error {
	page := r.page
	if err := page.WaitFor(ctx, w.sel.MessageInput, w.cfg.ElementTimeout); err != nil {
		return r.fail(ctx, "wait for message input", err)
	}
	if err := page.Type(ctx, w.sel.MessageInput, r.prompt.Text); err != nil {
		return r.fail(ctx, "type message", err)
	}

	var clickErr error
	for attempt := 1; attempt <= w.cfg.SendRetries; attempt++ {
		if clickErr = page.Click(ctx, w.sel.SendButton); clickErr == nil {
			return nil
		}
		r.log.Debug().Err(clickErr).Int("attempt", attempt).Msg("send click failed")
		if attempt < w.cfg.SendRetries {
			if err := sleep(ctx, w.cfg.RetryDelay); err != nil {
				return err
			}
		}
	}

	r.log.Warn().Err(clickErr).Msg("send button unusable, submitting with Enter")
	if err := page.Submit(ctx, w.sel.MessageInput); err != nil {
		return r.fail(ctx, "send message", errors.Join(clickErr, err))
	}
	return nil
}

// await polls until the answer completes. ctx carries the run deadline;
// when it expires with text on screen the text is returned as partial.
func (w *Watcher) await(ctx context.Context, r *run, baseline int, progress Progress) (models.CompletionResult, error) {
	r.to(AwaitingResponse)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	var last Observation
	stable, observeErrs := 0, 0

	for {
		select {
		case <-ctx.Done():
			if !errors.Is(ctx.Err(), context.DeadlineExceeded) || (last.Text == "" && last.Reasoning == "") {
				return models.CompletionResult{}, ctx.Err()
			}
			r.to(TimedOut)
			r.log.Warn().Int("chars", len([]rune(last.Text))).Msg("completion timed out, returning partial answer")
			return models.CompletionResult{Content: last.Text, Reasoning: last.Reasoning, Partial: true}, nil

		case <-ticker.C:
			obs, err := w.observer.Observe(ctx, r.page, baseline)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				observeErrs++
				r.log.Debug().Err(err).Int("consecutive", observeErrs).Msg("observe failed")
				if observeErrs >= w.cfg.MaxObserveErrors {
					return models.CompletionResult{}, r.fail(ctx, "observe response", err)
				}
				continue
			}
			observeErrs = 0

			hasAnswer := obs.Text != "" || obs.Reasoning != ""
			if hasAnswer && r.state == AwaitingResponse {
				r.to(Streaming)
			}

			changed := obs.Text != last.Text || obs.Reasoning != last.Reasoning
			switch {
			case changed:
				stable = 0
				if progress != nil && hasAnswer {
					progress(obs.Text, obs.Reasoning)
				}
			case hasAnswer && !obs.Busy:
				stable++
			default:
				stable = 0
			}
			last = obs

			if !hasAnswer {
				continue
			}
			if obs.Done || stable >= w.cfg.IdlePolls {
				r.to(Complete)
				r.log.Debug().Bool("copy_marker", obs.Done).Int("stable_polls", stable).Msg("answer complete")
				return models.CompletionResult{Content: obs.Text, Reasoning: obs.Reasoning}, nil
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
