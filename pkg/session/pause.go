package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Well-known pause sources. Any other non-empty string is accepted.
const (
	SourceOperator   = "operator"
	SourceOverlay    = "overlay"
	SourceRunControl = "run_control"
)

// ControlState is a point-in-time view of a pause controller.
type ControlState struct {
	Paused   bool     `json:"paused"`
	Sources  []string `json:"sources"`
	PausedMs int64    `json:"pausedMs"`
	Waiters  int      `json:"waiters"`
	Queued   int      `json:"queued"`
}

// PauseController suspends callers while any named pause source is active.
// Waiters are released together once the last source is resumed.
type PauseController struct {
	mu          sync.Mutex
	sources     map[string]struct{}
	waiters     []chan struct{}
	pausedSince time.Time
	pausedTotal time.Duration
	now         func() time.Time
}

// NewPauseController creates an idle controller.
func NewPauseController() *PauseController {
	return &PauseController{
		sources: make(map[string]struct{}),
		now:     time.Now,
	}
}

func normalizeSource(source string) string {
	if source == "" {
		return SourceOperator
	}
	return source
}

// Pause activates source. It reports whether the source was newly added.
func (p *PauseController) Pause(source string) bool {
	source = normalizeSource(source)

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.sources[source]; ok {
		return false
	}
	if len(p.sources) == 0 {
		p.pausedSince = p.now()
	}
	p.sources[source] = struct{}{}
	return true
}

// Resume clears source. It reports whether the source was active.
func (p *PauseController) Resume(source string) bool {
	source = normalizeSource(source)

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.sources[source]; !ok {
		return false
	}
	delete(p.sources, source)
	if len(p.sources) == 0 {
		p.pausedTotal += p.now().Sub(p.pausedSince)
		p.pausedSince = time.Time{}
		for _, ch := range p.waiters {
			close(ch)
		}
		p.waiters = nil
	}
	return true
}

// Wait blocks while any source is active.
func (p *PauseController) Wait(ctx context.Context) error {
	p.mu.Lock()
	if len(p.sources) == 0 {
		p.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	p.waiters = append(p.waiters, ch)
	p.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		p.removeWaiter(ch)
		return ctx.Err()
	}
}

func (p *PauseController) removeWaiter(ch chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.waiters {
		if w == ch {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}

// Paused reports whether any source is active.
func (p *PauseController) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sources) > 0
}

// State returns the active sources, waiter count and accumulated pause time.
// The current interval counts towards PausedMs while paused.
func (p *PauseController) State() ControlState {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := p.pausedTotal
	if len(p.sources) > 0 {
		total += p.now().Sub(p.pausedSince)
	}
	sources := make([]string, 0, len(p.sources))
	for s := range p.sources {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	return ControlState{
		Paused:   len(p.sources) > 0,
		Sources:  sources,
		PausedMs: ceilMillis(total),
		Waiters:  len(p.waiters),
	}
}

// ceilMillis rounds up so any completed pause reports at least 1ms.
func ceilMillis(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Millisecond - 1) / time.Millisecond)
}
