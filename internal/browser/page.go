package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// Page is the automation surface the completion watcher drives.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)
	// WaitFor blocks until selector matches an element or timeout elapses.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	// Select picks the <option> whose value equals value.
	Select(ctx context.Context, selector, value string) error
	// Type replaces the content of an input with text.
	Type(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error
	// Submit presses Enter inside the element.
	Submit(ctx context.Context, selector string) error
	// Evaluate runs a JS function expression and decodes its JSON result into out.
	Evaluate(ctx context.Context, js string, out any, args ...any) error
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// ErrOptionMissing is returned by Select when no option carries the value
var ErrOptionMissing = errors.New("option not found")

const selectOptionJS = `(v) => {
	const opt = Array.from(this.options || []).find(o => o.value === v);
	if (!opt) return false;
	this.value = v;
	this.dispatchEvent(new Event('input', { bubbles: true }));
	this.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
}`

// RodPage implements Page over a CDP connection
type RodPage struct {
	page    *rod.Page
	onClose func() error
}

// NewRodPage wraps a rod page. onClose runs after the page itself is closed.
func NewRodPage(page *rod.Page, onClose func() error) *RodPage {
	return &RodPage{page: page, onClose: onClose}
}

func (p *RodPage) Navigate(ctx context.Context, url string) error {
	pg := p.page.Context(ctx)
	if err := pg.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return pg.WaitLoad()
}

func (p *RodPage) Location(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (p *RodPage) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := p.page.Context(tctx).Element(selector); err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

func (p *RodPage) Select(ctx context.Context, selector, value string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("element %q: %w", selector, err)
	}
	res, err := el.Eval(selectOptionJS, value)
	if err != nil {
		return fmt.Errorf("select %q: %w", value, err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("%w: %q in %q", ErrOptionMissing, value, selector)
	}
	return nil
}

func (p *RodPage) Type(ctx context.Context, selector, text string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("element %q: %w", selector, err)
	}
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(text)
}

func (p *RodPage) Click(ctx context.Context, selector string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("element %q: %w", selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (p *RodPage) Submit(ctx context.Context, selector string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("element %q: %w", selector, err)
	}
	return el.Type(input.Enter)
}

func (p *RodPage) Evaluate(ctx context.Context, js string, out any, args ...any) error {
	res, err := p.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal([]byte(res.Value.JSON("", "")), out)
}

// HTML returns the serialized DOM of the page
func (p *RodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

func (p *RodPage) Screenshot(ctx context.Context) ([]byte, error) {
	return p.page.Context(ctx).Screenshot(false, nil)
}

func (p *RodPage) Close() error {
	err := p.page.Close()
	if p.onClose != nil {
		if cerr := p.onClose(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
