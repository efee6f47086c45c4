package snapshot

// FieldChange is a before/after pair for one node field.
type FieldChange struct {
	Field  string `json:"field"`
	Before any    `json:"before"`
	After  any    `json:"after"`
}

// ChangedNode is a node present in both snapshots with differing fields.
type ChangedNode struct {
	ID      string        `json:"id"`
	Before  Node          `json:"before"`
	After   Node          `json:"after"`
	Changes []FieldChange `json:"changes"`
}

// DiffSummary holds the three diff counts.
type DiffSummary struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
	Changed int `json:"changed"`
}

// Diff is the id-keyed comparison of two snapshots.
type Diff struct {
	Added   []Node        `json:"added"`
	Removed []Node        `json:"removed"`
	Changed []ChangedNode `json:"changed"`
	Summary DiffSummary   `json:"summary"`
}

// Compare diffs two snapshots by node id. Nil snapshots are treated as empty.
func Compare(before, after *Snapshot) Diff {
	var beforeNodes, afterNodes []Node
	if before != nil {
		beforeNodes = before.Nodes
	}
	if after != nil {
		afterNodes = after.Nodes
	}

	prev := make(map[string]Node, len(beforeNodes))
	for _, n := range beforeNodes {
		prev[n.ID] = n
	}
	next := make(map[string]struct{}, len(afterNodes))

	d := Diff{
		Added:   []Node{},
		Removed: []Node{},
		Changed: []ChangedNode{},
	}
	for _, n := range afterNodes {
		next[n.ID] = struct{}{}
		old, ok := prev[n.ID]
		if !ok {
			d.Added = append(d.Added, n)
			continue
		}
		if changes := fieldChanges(old, n); len(changes) > 0 {
			d.Changed = append(d.Changed, ChangedNode{ID: n.ID, Before: old, After: n, Changes: changes})
		}
	}
	for _, n := range beforeNodes {
		if _, ok := next[n.ID]; !ok {
			d.Removed = append(d.Removed, n)
		}
	}

	d.Summary = DiffSummary{Added: len(d.Added), Removed: len(d.Removed), Changed: len(d.Changed)}
	return d
}

func fieldChanges(a, b Node) []FieldChange {
	var out []FieldChange
	if a.Text != b.Text {
		out = append(out, FieldChange{Field: "text", Before: a.Text, After: b.Text})
	}
	if a.Value != b.Value {
		out = append(out, FieldChange{Field: "value", Before: a.Value, After: b.Value})
	}
	if a.Visible != b.Visible {
		out = append(out, FieldChange{Field: "visible", Before: a.Visible, After: b.Visible})
	}
	if a.Enabled != b.Enabled {
		out = append(out, FieldChange{Field: "enabled", Before: a.Enabled, After: b.Enabled})
	}
	if a.Name != b.Name {
		out = append(out, FieldChange{Field: "name", Before: a.Name, After: b.Name})
	}
	return out
}
