package completion

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shehryarbajwa/browserbase-chat/internal/browser"
)

const temperatureBoundsJS = `(sel) => {
	const el = document.querySelector(sel);
	if (!el) return { found: false };
	return { found: true, min: el.getAttribute("min"), max: el.getAttribute("max") };
}`

// Uses the native value setter so frameworks that track input state see
// the change.
const setTemperatureJS = `(sel, v) => {
	const el = document.querySelector(sel);
	if (!el) return false;
	const proto = Object.getPrototypeOf(el);
	const desc = Object.getOwnPropertyDescriptor(proto, "value");
	if (desc && desc.set) desc.set.call(el, v); else el.value = v;
	el.dispatchEvent(new Event("input", { bubbles: true }));
	el.dispatchEvent(new Event("change", { bubbles: true }));
	return true;
}`

type temperatureBounds struct {
	Found bool    `json:"found"`
	Min   *string `json:"min"`
	Max   *string `json:"max"`
}

// ApplyTemperature sets the remote temperature control when the value is
// within the range the control itself declares. It reports false when the
// value is out of range or the control declares no range.
func (w *Watcher) ApplyTemperature(ctx context.Context, page browser.Page, t float64) (bool, error) {
	if w.sel.Temperature == "" {
		return false, nil
	}

	var b temperatureBounds
	if err := page.Evaluate(ctx, temperatureBoundsJS, &b, w.sel.Temperature); err != nil {
		return false, fmt.Errorf("read temperature bounds: %w", err)
	}
	if !b.Found {
		return false, fmt.Errorf("temperature control %q not found", w.sel.Temperature)
	}

	lo, hi, ok := parseBounds(b)
	if !ok || t < lo || t > hi {
		return false, nil
	}

	var set bool
	v := strconv.FormatFloat(t, 'f', -1, 64)
	if err := page.Evaluate(ctx, setTemperatureJS, &set, w.sel.Temperature, v); err != nil {
		return false, fmt.Errorf("set temperature: %w", err)
	}
	return set, nil
}

func parseBounds(b temperatureBounds) (float64, float64, bool) {
	if b.Min == nil || b.Max == nil {
		return 0, 0, false
	}
	lo, err := strconv.ParseFloat(*b.Min, 64)
	if err != nil {
		return 0, 0, false
	}
	hi, err := strconv.ParseFloat(*b.Max, 64)
	if err != nil || hi < lo {
		return 0, 0, false
	}
	return lo, hi, true
}
