package completion

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanContent(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		reasoning string
		labels    []string
		want      string
	}{
		{
			name:   "caption on its own line",
			text:   "The answer is 4.\nCopy",
			labels: []string{"Copy"},
			want:   "The answer is 4.",
		},
		{
			name:   "answer ending in a caption word is kept whole",
			text:   "To duplicate the row, press Copy",
			labels: []string{"Copy"},
			want:   "To duplicate the row, press Copy",
		},
		{
			name:   "several caption lines",
			text:   "The answer is 4.\nCopy\n  Regenerate  ",
			labels: []string{"Copy", "Regenerate"},
			want:   "The answer is 4.",
		},
		{
			name:      "reasoning region removed",
			text:      "Let me think\nThe answer is 4.",
			reasoning: "Let me think",
			want:      "The answer is 4.",
		},
		{
			name:   "caption text inside a sentence is kept",
			text:   "Copy the file first.\nCopy",
			labels: []string{"Copy"},
			want:   "Copy the file first.",
		},
		{
			name: "plain text untouched",
			text: "  hello world  ",
			want: "hello world",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanContent(tt.text, tt.reasoning, tt.labels))
		})
	}
}

func TestDOMObserver_Observe(t *testing.T) {
	page := newFakePage()
	var gotArgs []any
	page.eval = func(js string, args []any) (any, error) {
		gotArgs = args
		return map[string]any{
			"count":     3,
			"text":      "thinking hard\nIt is 4.\nCopy",
			"reasoning": " thinking hard ",
			"done":      true,
			"busy":      false,
			"labels":    []string{"Copy"},
		}, nil
	}

	obs, err := NewDOMObserver(testSelectors).Observe(context.Background(), page, 2)
	require.NoError(t, err)

	assert.Equal(t, 3, obs.Count)
	assert.Equal(t, "It is 4.", obs.Text)
	assert.Equal(t, "thinking hard", obs.Reasoning)
	assert.True(t, obs.Done)
	require.Len(t, gotArgs, 2)
	assert.Equal(t, 2, gotArgs[1])
	sel, ok := gotArgs[0].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, testSelectors.CopyButton, sel["copy"])
}

func TestDOMObserver_ReadsAnswerWithoutControls(t *testing.T) {
	page := newFakePage()
	var script string
	page.eval = func(js string, args []any) (any, error) {
		script = js
		return map[string]any{
			"count":  1,
			"text":   "To duplicate the row, press Copy",
			"done":   true,
			"labels": []string{"Copy"},
		}, nil
	}

	obs, err := NewDOMObserver(testSelectors).Observe(context.Background(), page, 0)
	require.NoError(t, err)

	assert.Equal(t, "To duplicate the row, press Copy", obs.Text)
	assert.Contains(t, script, "cloneNode(true)")
	assert.Contains(t, script, `querySelectorAll("button, [role=button]")`)
}

func TestDOMObserver_Baseline(t *testing.T) {
	page := newFakePage()
	page.eval = func(js string, args []any) (any, error) {
		if !strings.Contains(js, "querySelectorAll") {
			return nil, assert.AnError
		}
		return 5, nil
	}

	n, err := NewDOMObserver(testSelectors).Baseline(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}
