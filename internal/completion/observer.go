package completion

import (
	"context"
	"strings"

	"github.com/shehryarbajwa/browserbase-chat/internal/browser"
)

// Selectors locate the remote UI controls
type Selectors struct {
	ModelSelect  string
	Temperature  string
	MessageInput string
	SendButton   string
	Response     string
	Reasoning    string
	CopyButton   string
	Busy         string
}

// Observation is one poll of the remote UI
type Observation struct {
	// Count is the number of response elements on the page
	Count     int
	Text      string
	Reasoning string
	// Done is set when the copy affordance of the latest response exists
	Done bool
	// Busy is set while a loading or typing indicator is visible
	Busy bool
}

// Observer reads the reply state from a page. It is the only place that
// knows how the remote site marks a finished answer.
type Observer interface {
	// Baseline counts the responses already on the page before sending
	Baseline(ctx context.Context, page browser.Page) (int, error)
	// Observe reads the newest response after baseline
	Observe(ctx context.Context, page browser.Page, baseline int) (Observation, error)
}

const countJS = `(sel) => document.querySelectorAll(sel).length`

const observeJS = `(sel, baseline) => {
	const out = { count: 0, text: "", reasoning: "", done: false, busy: false, labels: [] };
	const nodes = document.querySelectorAll(sel.response);
	out.count = nodes.length;
	if (sel.busy) out.busy = !!document.querySelector(sel.busy);
	if (out.count <= baseline) return out;

	const last = nodes[out.count - 1];

	// Read the answer from a copy without controls or reasoning. The copy is
	// attached off screen so innerText keeps the rendered line breaks.
	const clone = last.cloneNode(true);
	clone.querySelectorAll("button, [role=button]").forEach(n => n.remove());
	if (sel.reasoning) clone.querySelectorAll(sel.reasoning).forEach(n => n.remove());
	const holder = document.createElement("div");
	holder.style.cssText = "position:fixed;left:-100000px;top:0;width:" + (last.clientWidth || 800) + "px";
	holder.appendChild(clone);
	document.body.appendChild(holder);
	out.text = clone.innerText || clone.textContent || "";
	holder.remove();

	if (sel.copy) {
		out.done = !!(last.querySelector(sel.copy) ||
			(last.parentElement && last.parentElement.lastElementChild &&
				last.parentElement.lastElementChild.matches(sel.copy)));
	}
	out.labels = Array.from(last.querySelectorAll("button, [role=button]"))
		.map(b => (b.innerText || b.textContent || "").trim())
		.filter(Boolean);
	if (sel.reasoning) {
		const r = last.querySelector(sel.reasoning);
		if (r) out.reasoning = r.innerText || r.textContent || "";
	}
	return out;
}`

type rawObservation struct {
	Count     int      `json:"count"`
	Text      string   `json:"text"`
	Reasoning string   `json:"reasoning"`
	Done      bool     `json:"done"`
	Busy      bool     `json:"busy"`
	Labels    []string `json:"labels"`
}

// DOMObserver observes responses through CSS selectors
type DOMObserver struct {
	sel Selectors
}

// NewDOMObserver creates the default observer
func NewDOMObserver(sel Selectors) *DOMObserver {
	return &DOMObserver{sel: sel}
}

func (o *DOMObserver) Baseline(ctx context.Context, page browser.Page) (int, error) {
	var n int
	if err := page.Evaluate(ctx, countJS, &n, o.sel.Response); err != nil {
		return 0, err
	}
	return n, nil
}

func (o *DOMObserver) Observe(ctx context.Context, page browser.Page, baseline int) (Observation, error) {
	var raw rawObservation
	args := map[string]string{
		"response":  o.sel.Response,
		"reasoning": o.sel.Reasoning,
		"copy":      o.sel.CopyButton,
		"busy":      o.sel.Busy,
	}
	if err := page.Evaluate(ctx, observeJS, &raw, args, baseline); err != nil {
		return Observation{}, err
	}

	reasoning := strings.TrimSpace(raw.Reasoning)
	return Observation{
		Count:     raw.Count,
		Text:      CleanContent(raw.Text, reasoning, raw.Labels),
		Reasoning: reasoning,
		Done:      raw.Done,
		Busy:      raw.Busy,
	}, nil
}

// CleanContent removes a reasoning region and whole lines holding control
// captions that survived the DOM read. Caption words inside the answer text
// are kept.
func CleanContent(text, reasoning string, labels []string) string {
	if reasoning != "" {
		text = strings.Replace(text, reasoning, "", 1)
	}

	isLabel := func(s string) bool {
		for _, l := range labels {
			if s == strings.TrimSpace(l) {
				return true
			}
		}
		return false
	}

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if t := strings.TrimSpace(line); t != "" && isLabel(t) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
