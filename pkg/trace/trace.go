// Package trace defines the persisted forms of a session: the trace file
// consumed by replay and the manifest used to restore a saved session.
package trace

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/entrhq/pagetrace/pkg/action"
	"github.com/entrhq/pagetrace/pkg/snapshot"
)

// Version is the trace file format version written by Save.
const Version = 1

// SavedTrace is the on-disk form of a session's action history.
type SavedTrace struct {
	Version     int             `json:"version"`
	CreatedAt   time.Time       `json:"createdAt"`
	SessionID   string          `json:"sessionId"`
	Options     Options         `json:"options"`
	Environment Environment     `json:"environment"`
	Origins     []string        `json:"origins,omitempty"`
	Timeline    []TimelineEntry `json:"timeline,omitempty"`
	Records     []Record        `json:"records"`
}

// Options are the session options a replay needs to reproduce a run.
type Options struct {
	Profile           string            `json:"profile,omitempty"`
	MaxActionAttempts int               `json:"maxActionAttempts,omitempty"`
	RetryBackoffMs    int64             `json:"retryBackoffMs,omitempty"`
	Viewport          snapshot.Viewport `json:"viewport"`
	Determinism       bool              `json:"determinism"`
	Headless          bool              `json:"headless"`
}

// Environment describes what a replay needs from the outside world.
type Environment struct {
	RequiredOrigins []string `json:"requiredOrigins,omitempty"`
}

// TimelineEntry is the ordering index of one record.
type TimelineEntry struct {
	Index  int         `json:"index"`
	Kind   action.Kind `json:"kind"`
	Status string      `json:"status"`
	At     time.Time   `json:"at"`
	Label  string      `json:"label,omitempty"`
}

// Record is one executed action and the projection of its result.
type Record struct {
	Index  int             `json:"index"`
	Action action.Envelope `json:"action"`
	Result Result          `json:"result"`
}

// Result is the persisted projection of an action result.
type Result struct {
	Status          string `json:"status"`
	PostDomHash     string `json:"postDomHash"`
	DurationMs      int64  `json:"durationMs"`
	PostURL         string `json:"postUrl"`
	WaitForSelector string `json:"waitForSelector,omitempty"`
	ErrorMessage    string `json:"errorMessage,omitempty"`
	Attempts        int    `json:"attempts,omitempty"`
	HTTPStatus      int    `json:"httpStatus,omitempty"`
	Target          string `json:"target,omitempty"`
}

// Ordered returns records in execution order. A non-empty timeline is
// authoritative; otherwise the record slice order is used.
func (t *SavedTrace) Ordered() []Record {
	if len(t.Timeline) == 0 {
		return append([]Record(nil), t.Records...)
	}

	byIndex := make(map[int]Record, len(t.Records))
	for _, r := range t.Records {
		byIndex[r.Index] = r
	}
	timeline := append([]TimelineEntry(nil), t.Timeline...)
	sort.SliceStable(timeline, func(i, j int) bool { return timeline[i].Index < timeline[j].Index })

	out := make([]Record, 0, len(timeline))
	seen := make(map[int]bool, len(timeline))
	for _, e := range timeline {
		r, ok := byIndex[e.Index]
		if !ok || seen[e.Index] {
			continue
		}
		seen[e.Index] = true
		out = append(out, r)
	}
	return out
}

// RequiredOrigins returns the declared origins, or infers them from
// navigate actions and recorded post URLs.
func (t *SavedTrace) RequiredOrigins() []string {
	if len(t.Environment.RequiredOrigins) > 0 {
		return dedupe(t.Environment.RequiredOrigins)
	}
	var origins []string
	for _, r := range t.Ordered() {
		if nav, ok := r.Action.Action.(*action.Navigate); ok {
			if o, ok := OriginOf(nav.URL); ok {
				origins = append(origins, o)
			}
		}
		if o, ok := OriginOf(r.Result.PostURL); ok {
			origins = append(origins, o)
		}
	}
	return dedupe(origins)
}

// OriginOf returns scheme://host for http(s) URLs.
func OriginOf(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return u.Scheme + "://" + u.Host, true
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Save writes t to path atomically.
func Save(path string, t *SavedTrace) error {
	if t.Version == 0 {
		t.Version = Version
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode trace: %w", err)
	}
	return writeAtomic(path, data)
}

// Load reads and decodes a trace file.
func Load(path string) (*SavedTrace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	var t SavedTrace
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to decode trace %s: %w", path, err)
	}
	if t.Version > Version {
		return nil, fmt.Errorf("trace %s has unsupported version %d", path, t.Version)
	}
	for _, r := range t.Records {
		if r.Action.Action == nil {
			return nil, fmt.Errorf("trace %s: record %d has no action", path, r.Index)
		}
	}
	return &t, nil
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
