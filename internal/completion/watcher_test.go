package completion

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/browserbase-chat/pkg/models"
)

var testSelectors = Selectors{
	ModelSelect:  "select#model-select",
	Temperature:  "input#temperature",
	MessageInput: "textarea#message-input",
	SendButton:   "button#send-button",
	Response:     ".message.assistant",
	Reasoning:    ".reasoning-content",
	CopyButton:   "button.copy-button",
	Busy:         ".loading",
}

func fastConfig() Config {
	return Config{
		PollInterval:   time.Millisecond,
		IdlePolls:      3,
		Timeout:        2 * time.Second,
		ElementTimeout: time.Second,
		SendRetries:    2,
	}
}

func newTestWatcher(cfg Config, obs Observer) *Watcher {
	return NewWatcher(cfg, testSelectors, obs, zerolog.Nop())
}

func prompt() Prompt {
	return Prompt{Group: "chatgpt", Model: "gpt-4", Text: "user:hi"}
}

func TestWatcher_CompletesOnCopyMarker(t *testing.T) {
	page := newFakePage()
	obs := &scriptObserver{steps: []Observation{
		{},
		{Text: "Hel", Busy: true},
		{Text: "Hello there", Reasoning: "thinking", Done: true},
	}}

	res, err := newTestWatcher(fastConfig(), obs).Run(context.Background(), page, prompt(), nil)
	require.NoError(t, err)

	assert.Equal(t, "Hello there", res.Content)
	assert.Equal(t, "thinking", res.Reasoning)
	assert.False(t, res.Partial)
	assert.Equal(t, "gpt-4", page.selected)
	assert.Equal(t, "user:hi", page.typed)
	assert.Equal(t, 1, page.clicks)
	assert.Equal(t, 0, page.submits)
}

func TestWatcher_CompletesWhenIdle(t *testing.T) {
	obs := &scriptObserver{steps: []Observation{{Text: "steady answer"}}}

	res, err := newTestWatcher(fastConfig(), obs).Run(context.Background(), newFakePage(), prompt(), nil)
	require.NoError(t, err)

	assert.Equal(t, "steady answer", res.Content)
	// first poll sees a change, the next three are unchanged
	assert.Equal(t, 4, obs.polls)
}

func TestWatcher_BusyIndicatorBlocksIdleDetection(t *testing.T) {
	cfg := fastConfig()
	cfg.Timeout = 60 * time.Millisecond
	partial := strings.Repeat("x", 40)
	obs := &scriptObserver{steps: []Observation{{Text: partial, Busy: true}}}

	res, err := newTestWatcher(cfg, obs).Run(context.Background(), newFakePage(), prompt(), nil)
	require.NoError(t, err)

	assert.True(t, res.Partial)
	assert.Equal(t, partial, res.Content)
	assert.Len(t, res.Content, 40)
}

func TestWatcher_TimeoutWithoutContent(t *testing.T) {
	cfg := fastConfig()
	cfg.Timeout = 30 * time.Millisecond
	obs := &scriptObserver{}

	_, err := newTestWatcher(cfg, obs).Run(context.Background(), newFakePage(), prompt(), nil)

	var te *models.AutomationTimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "chatgpt", te.Group)
	assert.False(t, models.IsAutomationFailure(err))
}

func TestWatcher_TimeoutCoversElementWaits(t *testing.T) {
	cfg := fastConfig()
	cfg.Timeout = 50 * time.Millisecond
	cfg.ElementTimeout = 10 * time.Second
	page := newFakePage()
	page.hang[testSelectors.MessageInput] = true

	started := time.Now()
	_, err := newTestWatcher(cfg, &scriptObserver{}).Run(context.Background(), page, prompt(), nil)

	var te *models.AutomationTimeoutError
	require.ErrorAs(t, err, &te)
	assert.False(t, models.IsAutomationFailure(err))
	assert.Less(t, time.Since(started), 2*time.Second)
	assert.Empty(t, page.typed)
}

func TestWatcher_CancellationStopsPolling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	obs := &scriptObserver{}
	done := make(chan error, 1)

	go func() {
		_, err := newTestWatcher(fastConfig(), obs).Run(ctx, newFakePage(), prompt(), nil)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, models.IsAutomationFailure(err), "cancellation must not invalidate the session")
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop after cancellation")
	}
}

func TestWatcher_SendFallsBackToSubmit(t *testing.T) {
	page := newFakePage()
	page.clickErr = errors.New("button covered")
	obs := &scriptObserver{steps: []Observation{{Text: "ok", Done: true}}}

	res, err := newTestWatcher(fastConfig(), obs).Run(context.Background(), page, prompt(), nil)
	require.NoError(t, err)

	assert.Equal(t, "ok", res.Content)
	assert.Equal(t, 2, page.clicks)
	assert.Equal(t, 1, page.submits)
}

func TestWatcher_MissingElementFails(t *testing.T) {
	page := newFakePage()
	page.missing[testSelectors.ModelSelect] = true

	_, err := newTestWatcher(fastConfig(), &scriptObserver{}).Run(context.Background(), page, prompt(), nil)

	require.Error(t, err)
	assert.True(t, models.IsAutomationFailure(err))
	var af *models.AutomationFailure
	require.ErrorAs(t, err, &af)
	assert.Equal(t, "wait for model selector", af.Step)
}

func TestWatcher_RepeatedObserveErrorsFail(t *testing.T) {
	boom := errors.New("execution context destroyed")
	obs := &scriptObserver{errs: []error{boom, boom, boom, boom, boom}}

	_, err := newTestWatcher(fastConfig(), obs).Run(context.Background(), newFakePage(), prompt(), nil)

	assert.True(t, models.IsAutomationFailure(err))
	assert.ErrorIs(t, err, boom)
}

func TestWatcher_TransientObserveErrorIsTolerated(t *testing.T) {
	obs := &scriptObserver{
		errs:  []error{errors.New("navigation in progress")},
		steps: []Observation{{}, {Text: "fine", Done: true}},
	}

	res, err := newTestWatcher(fastConfig(), obs).Run(context.Background(), newFakePage(), prompt(), nil)
	require.NoError(t, err)
	assert.Equal(t, "fine", res.Content)
}

func TestWatcher_ReportsProgress(t *testing.T) {
	obs := &scriptObserver{steps: []Observation{
		{Text: "one", Busy: true},
		{Text: "one two", Busy: true},
		{Text: "one two three", Done: true},
	}}
	var seen []string

	_, err := newTestWatcher(fastConfig(), obs).Run(context.Background(), newFakePage(), prompt(),
		func(text, _ string) { seen = append(seen, text) })
	require.NoError(t, err)

	assert.Equal(t, []string{"one", "one two", "one two three"}, seen)
}

func boundsPage(min, max any) *fakePage {
	page := newFakePage()
	page.eval = func(js string, args []any) (any, error) {
		switch {
		case strings.Contains(js, `getAttribute("min")`):
			return map[string]any{"found": true, "min": min, "max": max}, nil
		case strings.Contains(js, "desc.set"):
			return true, nil
		}
		return nil, errors.New("unexpected script")
	}
	return page
}

func TestApplyTemperature(t *testing.T) {
	w := newTestWatcher(fastConfig(), &scriptObserver{})
	ctx := context.Background()

	t.Run("inside range", func(t *testing.T) {
		page := boundsPage("0", "1")
		applied, err := w.ApplyTemperature(ctx, page, 0.7)
		require.NoError(t, err)
		assert.True(t, applied)
		assert.True(t, page.evaluated("desc.set"))
	})

	t.Run("above max leaves control unset", func(t *testing.T) {
		page := boundsPage("0", "1")
		applied, err := w.ApplyTemperature(ctx, page, 1.5)
		require.NoError(t, err)
		assert.False(t, applied)
		assert.False(t, page.evaluated("desc.set"))
	})

	t.Run("undeclared bounds", func(t *testing.T) {
		page := boundsPage(nil, "2")
		applied, err := w.ApplyTemperature(ctx, page, 0.5)
		require.NoError(t, err)
		assert.False(t, applied)
	})

	t.Run("missing control", func(t *testing.T) {
		page := newFakePage()
		page.eval = func(string, []any) (any, error) { return map[string]any{"found": false}, nil }
		_, err := w.ApplyTemperature(ctx, page, 0.5)
		assert.Error(t, err)
	})
}

func TestWatcher_TemperatureFailureDoesNotAbort(t *testing.T) {
	page := newFakePage()
	page.eval = func(string, []any) (any, error) { return nil, errors.New("no control") }
	temp := 0.3
	p := prompt()
	p.Temperature = &temp
	obs := &scriptObserver{steps: []Observation{{Text: "done", Done: true}}}

	res, err := newTestWatcher(fastConfig(), obs).Run(context.Background(), page, p, nil)
	require.NoError(t, err)
	assert.Equal(t, "done", res.Content)
}

func TestState_Terminal(t *testing.T) {
	for _, s := range []State{Complete, TimedOut, Failed} {
		assert.True(t, s.Terminal(), s.String())
	}
	for _, s := range []State{Idle, Navigating, ModelSelected, MessageSent, AwaitingResponse, Streaming} {
		assert.False(t, s.Terminal(), s.String())
	}
	assert.Equal(t, "awaiting_response", AwaitingResponse.String())
}
