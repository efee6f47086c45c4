package snapshot

import "time"

// Box is an element's bounding box in CSS pixels.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// IsZero reports whether the box has no rendered area.
func (b Box) IsZero() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Viewport is the page viewport size at capture time.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Node is one element's projection inside a Snapshot.
// Nodes are value objects and are never mutated after capture.
type Node struct {
	ID          string            `json:"id"`
	StableRef   string            `json:"stableRef"`
	Tag         string            `json:"tag"`
	Role        string            `json:"role"`
	Name        string            `json:"name,omitempty"`
	Text        string            `json:"text,omitempty"`
	Value       string            `json:"value,omitempty"`
	Visible     bool              `json:"visible"`
	Enabled     bool              `json:"enabled"`
	Editable    bool              `json:"editable"`
	Interactive bool              `json:"interactive"`
	Box         Box               `json:"box"`
	Path        string            `json:"path"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// Attr returns the captured value of an attribute.
func (n Node) Attr(name string) (string, bool) {
	v, ok := n.Attributes[name]
	return v, ok
}

// Snapshot is an ordered structural projection of a page.
type Snapshot struct {
	URL              string    `json:"url"`
	Title            string    `json:"title"`
	Viewport         Viewport  `json:"viewport"`
	Nodes            []Node    `json:"nodes"`
	NodeCount        int       `json:"nodeCount"`
	InteractiveCount int       `json:"interactiveCount"`
	DomHash          string    `json:"domHash"`
	CapturedAt       time.Time `json:"capturedAt"`
}

// NodeByID returns the node with the given id.
func (s *Snapshot) NodeByID(id string) (Node, bool) {
	if s == nil {
		return Node{}, false
	}
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// RawElement is what the provider reports about one live element.
// It carries only in-page facts; role, name and identity are derived in Go.
type RawElement struct {
	// Handle is a provider-issued opaque token for the live element.
	Handle          string            `json:"handle"`
	Tag             string            `json:"tag"`
	Attributes      map[string]string `json:"attributes,omitempty"`
	Text            string            `json:"text,omitempty"`
	OwnText         bool              `json:"ownText,omitempty"`
	Value           string            `json:"value,omitempty"`
	LabelText       string            `json:"labelText,omitempty"`
	LabelledByText  string            `json:"labelledByText,omitempty"`
	Path            string            `json:"path"`
	Box             Box               `json:"box"`
	Hidden          bool              `json:"hidden,omitempty"`
	Disabled        bool              `json:"disabled,omitempty"`
	ReadOnly        bool              `json:"readOnly,omitempty"`
	ContentEditable bool              `json:"contentEditable,omitempty"`
	Focusable       bool              `json:"focusable,omitempty"`
}

// RawPage is the full provider report for one capture.
type RawPage struct {
	URL      string       `json:"url"`
	Title    string       `json:"title"`
	Document int          `json:"document,omitempty"`
	Viewport Viewport     `json:"viewport"`
	Elements []RawElement `json:"elements"`
}
