package static

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/entrhq/pagetrace/pkg/snapshot"
)

// skipTags are never reported and never contribute text.
var skipTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"head":     true,
	"meta":     true,
	"link":     true,
	"title":    true,
}

// nonTextInputs are input types that cannot be filled.
var nonTextInputs = map[string]bool{
	"checkbox": true,
	"radio":    true,
	"submit":   true,
	"button":   true,
	"reset":    true,
	"file":     true,
	"image":    true,
	"hidden":   true,
	"range":    true,
	"color":    true,
}

func isElement(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func attrs(n *html.Node) map[string]string {
	if len(n.Attr) == 0 {
		return nil
	}
	out := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		if a.Namespace == "" {
			out[a.Key] = a.Val
		}
	}
	return out
}

func inputType(n *html.Node) string {
	t, _ := attr(n, "type")
	return strings.ToLower(strings.TrimSpace(t))
}

// walk visits elements depth-first in document order. Returning false from
// visit skips the element's subtree.
func walk(n *html.Node, visit func(*html.Node) bool) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !isElement(c) {
			continue
		}
		if visit(c) {
			walk(c, visit)
		}
	}
}

func findFirst(root *html.Node, match func(*html.Node) bool) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if match(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

func findTag(root *html.Node, tag string) *html.Node {
	return findFirst(root, func(n *html.Node) bool { return n.Data == tag })
}

func findByID(root *html.Node, id string) *html.Node {
	return findFirst(root, func(n *html.Node) bool {
		v, ok := attr(n, "id")
		return ok && v == id
	})
}

func closest(n *html.Node, tag string) *html.Node {
	for cur := n; cur != nil; cur = cur.Parent {
		if isElement(cur) && cur.Data == tag {
			return cur
		}
	}
	return nil
}

// rawText returns the concatenated text of a subtree, skipping non-rendered tags.
func rawText(n *html.Node) string {
	var b strings.Builder
	var rec func(*html.Node)
	rec = func(cur *html.Node) {
		switch cur.Type {
		case html.TextNode:
			b.WriteString(cur.Data)
			b.WriteByte(' ')
			return
		case html.ElementNode:
			if skipTags[cur.Data] {
				return
			}
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(n)
	return b.String()
}

func textOf(n *html.Node) string {
	return snapshot.CollapseWhitespace(rawText(n))
}

func hasOwnText(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode && strings.TrimSpace(c.Data) != "" {
			return true
		}
	}
	return false
}

// pathOf builds the structural nth-of-type path used by the in-page walker.
func pathOf(n *html.Node) string {
	var parts []string
	for cur := n; isElement(cur) && cur.Data != "html"; cur = cur.Parent {
		idx := 1
		for sib := cur.PrevSibling; sib != nil; sib = sib.PrevSibling {
			if isElement(sib) && sib.Data == cur.Data {
				idx++
			}
		}
		parts = append([]string{fmt.Sprintf("%s:nth-of-type(%d)", cur.Data, idx)}, parts...)
	}
	return "html > " + strings.Join(parts, " > ")
}

func styleHides(n *html.Node) bool {
	style, ok := attr(n, "style")
	if !ok {
		return false
	}
	compact := strings.ToLower(strings.Join(strings.Fields(style), ""))
	return strings.Contains(compact, "display:none") || strings.Contains(compact, "visibility:hidden")
}

// isHidden reports whether n or an ancestor is hidden.
func isHidden(n *html.Node) bool {
	if n.Data == "input" && inputType(n) == "hidden" {
		return true
	}
	for cur := n; isElement(cur); cur = cur.Parent {
		if _, ok := attr(cur, "hidden"); ok {
			return true
		}
		if styleHides(cur) {
			return true
		}
	}
	return false
}

var disableable = map[string]bool{
	"button":   true,
	"input":    true,
	"select":   true,
	"textarea": true,
	"option":   true,
	"fieldset": true,
}

func isDisabled(n *html.Node) bool {
	if !disableable[n.Data] {
		return false
	}
	if _, ok := attr(n, "disabled"); ok {
		return true
	}
	for cur := n.Parent; isElement(cur); cur = cur.Parent {
		if cur.Data == "fieldset" {
			if _, ok := attr(cur, "disabled"); ok {
				return true
			}
		}
	}
	return false
}

func isContentEditable(n *html.Node) bool {
	v, ok := attr(n, "contenteditable")
	if !ok {
		return false
	}
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "" || v == "true" || v == "plaintext-only"
}

func isFocusable(n *html.Node) bool {
	v, ok := attr(n, "tabindex")
	if !ok {
		return false
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	return err == nil && i >= 0
}

func isFillable(n *html.Node) bool {
	switch n.Data {
	case "textarea":
		return true
	case "input":
		return !nonTextInputs[inputType(n)]
	}
	return isContentEditable(n)
}

func labelTextOf(doc, n *html.Node) string {
	if id, ok := attr(n, "id"); ok && id != "" {
		label := findFirst(doc, func(c *html.Node) bool {
			v, ok := attr(c, "for")
			return c.Data == "label" && ok && v == id
		})
		if label != nil {
			return textOf(label)
		}
	}
	if wrap := closest(n.Parent, "label"); wrap != nil {
		return textOf(wrap)
	}
	return ""
}

func labelledByTextOf(doc, n *html.Node) string {
	ids, ok := attr(n, "aria-labelledby")
	if !ok {
		return ""
	}
	var parts []string
	for _, id := range strings.Fields(ids) {
		if target := findByID(doc, id); target != nil {
			parts = append(parts, textOf(target))
		}
	}
	return snapshot.CollapseWhitespace(strings.Join(parts, " "))
}

func options(sel *html.Node) []*html.Node {
	var out []*html.Node
	walk(sel, func(n *html.Node) bool {
		if n.Data == "option" {
			out = append(out, n)
			return false
		}
		return true
	})
	return out
}

func optionValue(opt *html.Node) string {
	if v, ok := attr(opt, "value"); ok {
		return v
	}
	return textOf(opt)
}
