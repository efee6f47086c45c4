// Package resolve maps action targets to ranked provider locator candidates.
// Resolution reads only the latest snapshot; it never calls the provider.
package resolve

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/entrhq/pagetrace/pkg/action"
	"github.com/entrhq/pagetrace/pkg/browser"
	"github.com/entrhq/pagetrace/pkg/snapshot"
)

var (
	// ErrNodeNotFound means a nodeId target is absent from the snapshot.
	ErrNodeNotFound = errors.New("node not found in snapshot")

	// ErrStableRefNotFound means no snapshot node carries the stableRef.
	ErrStableRefNotFound = errors.New("stable reference not found in snapshot")

	// ErrNoSnapshot means the target needs a snapshot and none was given.
	ErrNoSnapshot = errors.New("no snapshot to resolve against")
)

// Resolution is the outcome of resolving one target.
type Resolution struct {
	// Label describes the target for logs and traces
	Label string `json:"label"`

	// Candidates are tried in order; the first that succeeds wins
	Candidates []browser.Candidate `json:"candidates"`

	// Node is the best-ranked snapshot node, if any matched
	Node *snapshot.Node `json:"node,omitempty"`
}

// Resolve produces candidates for target against s.
func Resolve(target action.Target, s *snapshot.Snapshot) (*Resolution, error) {
	switch {
	case target.NodeID != "":
		if s == nil {
			return nil, ErrNoSnapshot
		}
		n, ok := s.NodeByID(target.NodeID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, target.NodeID)
		}
		return build(target.String(), []snapshot.Node{n}), nil

	case target.StableRef != "":
		if s == nil {
			return nil, ErrNoSnapshot
		}
		var matches []snapshot.Node
		for _, n := range s.Nodes {
			if n.StableRef == target.StableRef {
				matches = append(matches, n)
			}
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrStableRefNotFound, target.StableRef)
		}
		return build(target.String(), Rank(matches)), nil

	case target.Role != "":
		var matches []snapshot.Node
		if s != nil {
			want := snapshot.NormalizeName(target.Name)
			for _, n := range s.Nodes {
				if n.Role == target.Role && snapshot.NormalizeName(n.Name) == want {
					matches = append(matches, n)
				}
			}
		}
		r := build(target.String(), Rank(matches))
		r.Candidates = appendUnique(r.Candidates,
			browser.RoleCandidate(target.Role, target.Name, true),
			browser.RoleCandidate(target.Role, target.Name, false),
		)
		return r, nil

	case target.Selector != "":
		return &Resolution{
			Label:      target.String(),
			Candidates: []browser.Candidate{browser.CSSCandidate(target.Selector)},
		}, nil
	}
	return nil, &action.ValidationError{Field: "target", Reason: "empty target"}
}

// Score is the interaction-confidence of a node.
func Score(n snapshot.Node) int {
	score := 0
	if n.Visible {
		score += 4
	}
	if n.Enabled {
		score += 2
	}
	if n.Interactive {
		score += 2
	}
	if !n.Box.IsZero() {
		score++
	}
	return score
}

// Rank orders nodes by descending Score, ties by id order.
func Rank(nodes []snapshot.Node) []snapshot.Node {
	out := append([]snapshot.Node(nil), nodes...)
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := Score(out[i]), Score(out[j])
		if si != sj {
			return si > sj
		}
		return snapshot.CompareIDs(out[i].ID, out[j].ID) < 0
	})
	return out
}

// CandidatesFor lists a node's locator candidates in priority order.
func CandidatesFor(n snapshot.Node) []browser.Candidate {
	var out []browser.Candidate
	if v, ok := n.Attr(snapshot.TestIDAttribute); ok && v != "" {
		out = append(out, browser.TestIDCandidate(v))
	}
	if v, ok := n.Attr("id"); ok && v != "" {
		out = append(out, browser.IDCandidate(v))
	}
	if v, ok := n.Attr("href"); ok && v != "" && n.Tag == "a" {
		out = append(out, browser.CSSCandidate(fmt.Sprintf("a[href=%s]", quote(v))))
	}
	if v, ok := n.Attr("name"); ok && v != "" {
		out = append(out, browser.CSSCandidate(fmt.Sprintf("%s[name=%s]", n.Tag, quote(v))))
	}
	if n.Role != "" && n.Role != "generic" && n.Name != "" {
		out = append(out, browser.RoleCandidate(n.Role, n.Name, true))
	}
	if n.Path != "" {
		out = append(out, browser.CSSCandidate(n.Path))
	}
	return out
}

func build(label string, nodes []snapshot.Node) *Resolution {
	r := &Resolution{Label: label}
	for _, n := range nodes {
		r.Candidates = appendUnique(r.Candidates, CandidatesFor(n)...)
	}
	if len(nodes) > 0 {
		best := nodes[0]
		r.Node = &best
		if best.Name != "" {
			r.Label = fmt.Sprintf("%s (%s %q)", label, best.Role, best.Name)
		}
	}
	return r
}

func appendUnique(dst []browser.Candidate, cs ...browser.Candidate) []browser.Candidate {
	for _, c := range cs {
		dup := false
		for _, d := range dst {
			if d.Label == c.Label {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, c)
		}
	}
	return dst
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
