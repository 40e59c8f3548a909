// Package extract locates a watched fragment inside an HTML document using
// a small CSS selector subset and returns its visible text.
//
// Supported selectors:
//   - tag:            "article", "div"
//   - .class:         ".portlet"
//   - #id:            "#main-content"
//   - tag.class:      "div.content"
//   - tag#id:         "div#main"
//   - tag[attr]:      "div[data-content]"
//   - tag[attr=val]:  "div[role=main]"
//   - descendant combinator: "main .news-list"
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// ErrNoMatch is wrapped into the error returned when a selector matches no
// element. Callers distinguish "document fetched but fragment gone" from
// parse failures through it.
var ErrNoMatch = fmt.Errorf("extract: selector matched no element")

// Extractor extracts fragment text from HTML documents.
type Extractor struct{}

// New creates an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract parses content and returns the concatenated visible text of all
// elements matching selector, in document order. Returns an error wrapping
// ErrNoMatch when nothing matches.
func (e *Extractor) Extract(content []byte, selector string) (string, error) {
	sel := strings.TrimSpace(selector)
	if sel == "" {
		return "", fmt.Errorf("extract: empty selector")
	}

	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("extract: parse html: %w", err)
	}

	nodes, err := selectAll(doc, sel)
	if err != nil {
		return "", err
	}
	if len(nodes) == 0 {
		return "", fmt.Errorf("%w: %q", ErrNoMatch, selector)
	}

	parts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if t := nodeText(n); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// selectAll resolves a selector with descendant combinators against doc.
// A malformed selector is an error, distinct from a valid one matching
// nothing.
func selectAll(doc *html.Node, selector string) ([]*html.Node, error) {
	steps := strings.Fields(selector)
	matches := []*html.Node{doc}
	for _, step := range steps {
		m, err := parseStep(step)
		if err != nil {
			return nil, err
		}
		var next []*html.Node
		for _, scope := range matches {
			next = append(next, descendants(scope, m)...)
		}
		matches = next
		if len(matches) == 0 {
			return nil, nil
		}
	}
	return matches, nil
}

// step is one parsed simple selector.
type step struct {
	tag     string
	id      string
	class   string
	attrKey string
	attrVal string
}

// parseStep parses a single simple selector like "div.content" or
// "span[role=status]".
func parseStep(s string) (step, error) {
	var st step

	if i := strings.IndexByte(s, '['); i >= 0 {
		attr, ok := strings.CutSuffix(s[i+1:], "]")
		if !ok {
			return st, fmt.Errorf("extract: malformed attribute selector %q", s)
		}
		s = s[:i]
		if k, v, ok := strings.Cut(attr, "="); ok {
			st.attrKey, st.attrVal = k, strings.Trim(v, `"'`)
		} else {
			st.attrKey = attr
		}
	}
	if i := strings.IndexByte(s, '#'); i >= 0 {
		st.id = s[i+1:]
		s = s[:i]
	}
	if i := strings.IndexByte(s, '.'); i >= 0 {
		st.class = s[i+1:]
		s = s[:i]
	}
	st.tag = s

	if st.tag == "" && st.id == "" && st.class == "" && st.attrKey == "" {
		return st, fmt.Errorf("extract: empty selector step")
	}
	return st, nil
}

// descendants walks the subtree under scope (exclusive) collecting elements
// that match st.
func descendants(scope *html.Node, st step) []*html.Node {
	var out []*html.Node
	for c := scope.FirstChild; c != nil; c = c.NextSibling {
		walk(c, st, &out)
	}
	return out
}

func walk(n *html.Node, st step, out *[]*html.Node) {
	if matches(n, st) {
		*out = append(*out, n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, st, out)
	}
}

func matches(n *html.Node, st step) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if st.tag != "" && n.Data != st.tag {
		return false
	}
	if st.id != "" && attrValue(n, "id") != st.id {
		return false
	}
	if st.class != "" && !hasClass(n, st.class) {
		return false
	}
	if st.attrKey != "" {
		v, ok := lookupAttr(n, st.attrKey)
		if !ok {
			return false
		}
		if st.attrVal != "" && v != st.attrVal {
			return false
		}
	}
	return true
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func attrValue(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attrValue(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// nodeText collects the visible text under n. Script and style contents are
// skipped; whitespace is collapsed per text node.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			t := strings.Join(strings.Fields(n.Data), " ")
			if t != "" {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(t)
			}
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" || n.Data == "noscript" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return b.String()
}
