package completion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shehryarbajwa/browserbase-chat/internal/browser"
)

// fakePage records interactions and answers Evaluate from a handler
type fakePage struct {
	mu       sync.Mutex
	missing  map[string]bool
	hang     map[string]bool
	clickErr error
	submits  int
	clicks   int
	selected string
	typed    string
	evals    []string
	eval     func(js string, args []any) (any, error)
}

func newFakePage() *fakePage {
	return &fakePage{missing: map[string]bool{}, hang: map[string]bool{}}
}

func (p *fakePage) Navigate(ctx context.Context, url string) error { return nil }

func (p *fakePage) Location(ctx context.Context) (string, error) { return "", nil }

func (p *fakePage) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if p.missing[selector] {
		return errors.New("element never appeared")
	}
	if p.hang[selector] {
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for %q: %w", selector, ctx.Err())
		case <-t.C:
			return errors.New("element never appeared")
		}
	}
	return ctx.Err()
}

func (p *fakePage) Select(ctx context.Context, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selected = value
	return nil
}

func (p *fakePage) Type(ctx context.Context, selector, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typed = text
	return nil
}

func (p *fakePage) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks++
	return p.clickErr
}

func (p *fakePage) Submit(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submits++
	return nil
}

func (p *fakePage) Evaluate(ctx context.Context, js string, out any, args ...any) error {
	p.mu.Lock()
	p.evals = append(p.evals, js)
	h := p.eval
	p.mu.Unlock()
	if h == nil {
		return errors.New("no evaluator")
	}
	v, err := h(js, args)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func (p *fakePage) Screenshot(ctx context.Context) ([]byte, error) { return nil, nil }

func (p *fakePage) Close() error { return nil }

func (p *fakePage) evaluated(fragment string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, js := range p.evals {
		if strings.Contains(js, fragment) {
			return true
		}
	}
	return false
}

// scriptObserver replays observations, repeating the last one
type scriptObserver struct {
	mu       sync.Mutex
	steps    []Observation
	errs     []error
	polls    int
	baseline int
}

func (o *scriptObserver) Baseline(ctx context.Context, page browser.Page) (int, error) {
	return o.baseline, nil
}

func (o *scriptObserver) Observe(ctx context.Context, page browser.Page, baseline int) (Observation, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	i := o.polls
	o.polls++
	if i < len(o.errs) && o.errs[i] != nil {
		return Observation{}, o.errs[i]
	}
	if len(o.steps) == 0 {
		return Observation{}, nil
	}
	if i >= len(o.steps) {
		i = len(o.steps) - 1
	}
	return o.steps[i], nil
}
