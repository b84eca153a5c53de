package catalog

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// simpleSelector matches the subset of CSS the model selector needs:
// an optional tag, an optional #id, any number of .classes and [attr] or
// [attr=value] conditions.
type simpleSelector struct {
	tag     string
	id      string
	classes []string
	attrs   []attrCond
}

type attrCond struct {
	key    string
	val    string
	hasVal bool
}

func parseSelector(sel string) (simpleSelector, error) {
	sel = strings.TrimSpace(sel)
	if sel == "" {
		return simpleSelector{}, fmt.Errorf("unsupported selector %q", sel)
	}

	var s simpleSelector
	var cur strings.Builder
	kind := byte('t')
	flush := func() {
		v := cur.String()
		cur.Reset()
		if v == "" {
			return
		}
		switch kind {
		case 't':
			s.tag = strings.ToLower(v)
		case '#':
			s.id = v
		case '.':
			s.classes = append(s.classes, v)
		}
	}
	for i := 0; i < len(sel); i++ {
		c := sel[i]
		switch {
		case c == '#' || c == '.':
			flush()
			kind = c
		case c == '[':
			flush()
			end := strings.IndexByte(sel[i:], ']')
			if end < 0 {
				return simpleSelector{}, fmt.Errorf("unsupported selector %q", sel)
			}
			cond, err := parseAttrCond(sel[i+1 : i+end])
			if err != nil {
				return simpleSelector{}, fmt.Errorf("unsupported selector %q: %w", sel, err)
			}
			s.attrs = append(s.attrs, cond)
			i += end
			kind = 0
		case strings.IndexByte(" >+~,:]", c) >= 0:
			return simpleSelector{}, fmt.Errorf("unsupported selector %q", sel)
		default:
			if kind == 0 {
				return simpleSelector{}, fmt.Errorf("unsupported selector %q", sel)
			}
			cur.WriteByte(c)
		}
	}
	flush()
	return s, nil
}

func parseAttrCond(body string) (attrCond, error) {
	key, val, hasVal := strings.Cut(body, "=")
	key = strings.TrimSpace(key)
	if key == "" || strings.ContainsAny(key, "~|^$*") {
		return attrCond{}, fmt.Errorf("attribute condition %q", body)
	}
	val = strings.TrimSpace(val)
	if len(val) >= 2 && (val[0] == '"' || val[0] == '\'') && val[len(val)-1] == val[0] {
		val = val[1 : len(val)-1]
	}
	return attrCond{key: key, val: val, hasVal: hasVal}, nil
}

func (s simpleSelector) match(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if s.tag != "" && !strings.EqualFold(n.Data, s.tag) {
		return false
	}
	if s.id != "" && attr(n, "id") != s.id {
		return false
	}
	for _, a := range s.attrs {
		if !hasAttr(n, a.key) || (a.hasVal && attr(n, a.key) != a.val) {
			return false
		}
	}
	if len(s.classes) > 0 {
		have := strings.Fields(attr(n, "class"))
		for _, want := range s.classes {
			found := false
			for _, h := range have {
				if h == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return true
		}
	}
	return false
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if res := findFirst(c, match); res != nil {
			return res
		}
	}
	return nil
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		if cur.Type == html.TextNode {
			b.WriteString(cur.Data)
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// ParseModelOptions returns the option values of the first element matching
// selector, in document order. Disabled and empty placeholder options are
// skipped and duplicates collapse to their first occurrence.
func ParseModelOptions(page []byte, selector string) ([]string, error) {
	sel, err := parseSelector(selector)
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	root := findFirst(doc, sel.match)
	if root == nil {
		return nil, fmt.Errorf("model selector %q not found", selector)
	}

	var ids []string
	seen := make(map[string]bool)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && strings.EqualFold(n.Data, "option") {
			if hasAttr(n, "disabled") {
				return
			}
			value := textOf(n)
			if hasAttr(n, "value") {
				value = attr(n, "value")
			}
			value = strings.TrimSpace(value)
			if value != "" && !seen[value] {
				seen[value] = true
				ids = append(ids, value)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return ids, nil
}
