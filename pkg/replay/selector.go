package replay

import (
	"regexp"
	"strings"

	"github.com/entrhq/pagetrace/pkg/snapshot"
)

// Selector is a wait selector in the restricted grammar replay can check
// against a snapshot: tag, #id, tag#id, [attr=v], [attr*=v], tag[attr=v]
// and tag[attr*=v]. Attribute values may be quoted.
type Selector struct {
	Tag      string
	ID       string
	Attr     string
	Op       string
	Value    string
	original string
}

var selectorPattern = regexp.MustCompile(
	`^([A-Za-z][A-Za-z0-9-]*)?` +
		`(?:#([A-Za-z_][A-Za-z0-9_-]*))?` +
		`(?:\[\s*([A-Za-z_:][A-Za-z0-9_:.-]*)\s*(\*?=)\s*(?:"([^"]*)"|'([^']*)'|([^\]"'\s]+))\s*\])?$`)

// ParseSelector parses s. ok is false for selectors outside the grammar,
// including attributes snapshots do not capture.
func ParseSelector(s string) (Selector, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Selector{}, false
	}
	m := selectorPattern.FindStringSubmatch(s)
	if m == nil {
		return Selector{}, false
	}
	sel := Selector{
		Tag:      strings.ToLower(m[1]),
		ID:       m[2],
		Attr:     strings.ToLower(m[3]),
		Op:       m[4],
		Value:    m[5] + m[6] + m[7],
		original: s,
	}
	if sel.ID != "" && sel.Attr != "" {
		return Selector{}, false
	}
	if sel.Attr != "" && !snapshot.IsCapturedAttribute(sel.Attr) {
		return Selector{}, false
	}
	return sel, true
}

func (s Selector) String() string {
	return s.original
}

// Matches reports whether n satisfies the selector.
func (s Selector) Matches(n snapshot.Node) bool {
	if s.Tag != "" && !strings.EqualFold(n.Tag, s.Tag) {
		return false
	}
	if s.ID != "" {
		if id, ok := n.Attr("id"); !ok || id != s.ID {
			return false
		}
	}
	if s.Attr != "" {
		v, ok := n.Attr(s.Attr)
		if !ok {
			return false
		}
		if s.Op == "*=" {
			return strings.Contains(v, s.Value)
		}
		return v == s.Value
	}
	return true
}

// Anchored reports whether every element the selector can match is kept in
// snapshots, so a miss means the element is absent from the page.
func (s Selector) Anchored() bool {
	if s.ID != "" {
		return true
	}
	return s.Attr != "" && snapshot.KeepsAttribute(s.Attr)
}

// MatchAny reports whether any node of snap satisfies the selector.
func (s Selector) MatchAny(snap *snapshot.Snapshot) bool {
	if snap == nil {
		return false
	}
	for _, n := range snap.Nodes {
		if s.Matches(n) {
			return true
		}
	}
	return false
}
