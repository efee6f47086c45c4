package snapshot

import (
	"context"
	"fmt"
	"time"
)

// OverlayAttribute marks in-page control overlay elements that captures skip.
const OverlayAttribute = "data-pagetrace-overlay"

// Source reports the raw state of a live page.
type Source interface {
	RawPage(ctx context.Context) (*RawPage, error)
}

// Capturer turns raw page reports into Snapshots using a session's registry.
type Capturer struct {
	registry *Registry
	now      func() time.Time
}

// NewCapturer creates a capturer bound to a registry.
func NewCapturer(registry *Registry) *Capturer {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Capturer{registry: registry, now: time.Now}
}

// Capture reads the page and builds an immutable Snapshot.
func (c *Capturer) Capture(ctx context.Context, src Source) (*Snapshot, error) {
	raw, err := src.RawPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("page walk failed: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("page walk returned no data")
	}
	return Build(raw, c.registry, c.now()), nil
}

// Build projects a raw page into a Snapshot, assigning ids from the registry.
func Build(raw *RawPage, registry *Registry, at time.Time) *Snapshot {
	kept := make([]RawElement, 0, len(raw.Elements))
	projected := make([]Node, 0, len(raw.Elements))
	for _, el := range raw.Elements {
		if _, overlay := el.Attributes[OverlayAttribute]; overlay {
			continue
		}
		n := Project(el, "")
		if !meaningful(el, n) {
			continue
		}
		kept = append(kept, el)
		projected = append(projected, n)
	}

	handles := make([]string, len(kept))
	for i, el := range kept {
		handles[i] = el.Handle
	}
	ids := registry.Sync(handles)

	interactive := 0
	for i := range projected {
		projected[i].ID = ids[i]
		if projected[i].Interactive {
			interactive++
		}
	}

	return &Snapshot{
		URL:              raw.URL,
		Title:            raw.Title,
		Viewport:         raw.Viewport,
		Nodes:            projected,
		NodeCount:        len(projected),
		InteractiveCount: interactive,
		DomHash:          DomHash(projected),
		CapturedAt:       at,
	}
}
