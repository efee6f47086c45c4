package snapshot

import (
	"strconv"
	"strings"
	"sync"
)

// Registry maps provider element handles to synthetic node ids so the same
// live element keeps its id across captures within one session.
//
// The registry never owns elements. It only remembers handles the provider
// reported on the latest capture; a handle the provider stops reporting is
// forgotten on the next Sync.
type Registry struct {
	mu   sync.Mutex
	ids  map[string]string
	next int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ids: make(map[string]string)}
}

// Sync assigns ids to the given handles, in order, and drops every handle
// not present in the list. Empty handles always receive a fresh id.
func (r *Registry) Sync(handles []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]string, len(handles))
	out := make([]string, len(handles))
	for i, h := range handles {
		if h != "" {
			if id, ok := seen[h]; ok {
				out[i] = id
				continue
			}
			if id, ok := r.ids[h]; ok {
				seen[h] = id
				out[i] = id
				continue
			}
		}
		r.next++
		id := "n" + strconv.Itoa(r.next)
		if h != "" {
			seen[h] = id
		}
		out[i] = id
	}
	r.ids = seen
	return out
}

// Len returns the number of live handles currently tracked.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

// CompareIDs orders node ids by their allocation sequence.
func CompareIDs(a, b string) int {
	na, errA := strconv.Atoi(strings.TrimPrefix(a, "n"))
	nb, errB := strconv.Atoi(strings.TrimPrefix(b, "n"))
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	switch {
	case na < nb:
		return -1
	case na > nb:
		return 1
	}
	return 0
}
