package session

import (
	"strings"
	"time"

	"github.com/entrhq/pagetrace/pkg/action"
	"github.com/entrhq/pagetrace/pkg/browser"
	"github.com/entrhq/pagetrace/pkg/snapshot"
	"github.com/entrhq/pagetrace/pkg/trace"
)

// Status is the outcome class of an action.
type Status string

const (
	StatusOK        Status = "ok"
	StatusRetryable Status = "retryable_error"
	StatusFatal     Status = "fatal_error"
)

// ActionResult is the full record of one performed action. Results are
// appended to the session history and never modified afterwards.
type ActionResult struct {
	Status     Status        `json:"status"`
	Index      int           `json:"index"`
	Kind       action.Kind   `json:"kind"`
	Action     action.Action `json:"-"`
	StartedAt  time.Time     `json:"startedAt"`
	DurationMs int64         `json:"durationMs"`

	// URL is the page URL once the action finished
	URL        string `json:"url"`
	HTTPStatus int    `json:"httpStatus,omitempty"`

	Pre  *snapshot.Snapshot `json:"pre,omitempty"`
	Post *snapshot.Snapshot `json:"post,omitempty"`
	Diff *snapshot.Diff     `json:"diff,omitempty"`

	Events         []browser.Event    `json:"events,omitempty"`
	Metrics        map[string]float64 `json:"metrics,omitempty"`
	ScreenshotPath string             `json:"screenshotPath,omitempty"`
	Target         *TargetInfo        `json:"target,omitempty"`
	Error          string             `json:"error,omitempty"`
	Retry          *RetrySummary      `json:"retry,omitempty"`
}

// TargetInfo describes how an action's target was resolved.
type TargetInfo struct {
	Label     string       `json:"label"`
	Candidate string       `json:"candidate,omitempty"`
	NodeID    string       `json:"nodeId,omitempty"`
	Box       snapshot.Box `json:"box"`
}

// AttemptEvidence is what one attempt of an action produced.
type AttemptEvidence struct {
	Attempt    int    `json:"attempt"`
	Status     Status `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// RetrySummary is attached to the final result of an action.
type RetrySummary struct {
	Attempts    int               `json:"attempts"`
	MaxAttempts int               `json:"maxAttempts"`
	Evidence    []AttemptEvidence `json:"evidence"`
}

// OK reports whether the action succeeded.
func (r *ActionResult) OK() bool {
	return r.Status == StatusOK
}

// DomHash is the fingerprint of the post-action snapshot, or empty when
// the capture failed.
func (r *ActionResult) DomHash() string {
	if r.Post == nil {
		return ""
	}
	return r.Post.DomHash
}

// Record projects the result into its trace form.
func (r *ActionResult) Record() trace.Record {
	rec := trace.Record{
		Index:  r.Index,
		Action: action.Envelope{Action: r.Action},
		Result: trace.Result{
			Status:          string(r.Status),
			PostDomHash:     r.DomHash(),
			DurationMs:      r.DurationMs,
			PostURL:         r.URL,
			WaitForSelector: action.WaitSelector(r.Action),
			ErrorMessage:    r.Error,
			HTTPStatus:      r.HTTPStatus,
		},
	}
	if r.Retry != nil {
		rec.Result.Attempts = r.Retry.Attempts
	}
	if r.Target != nil {
		rec.Result.Target = r.Target.Label
	}
	return rec
}

func (r *ActionResult) timelineLabel() string {
	switch a := r.Action.(type) {
	case *action.Checkpoint:
		return a.Name
	case *action.Navigate:
		return a.URL
	}
	if r.Target != nil {
		return r.Target.Label
	}
	return ""
}

var retryableMarkers = []string{
	"timeout",
	"timed out",
	"target closed",
	"navigation failed",
	"net::err_",
	"econnrefused",
	"econnreset",
	"connection refused",
	"connection reset",
	"deadline exceeded",
}

// Classify maps an execution error to a status by its message.
func Classify(err error) Status {
	if err == nil {
		return StatusOK
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range retryableMarkers {
		if strings.Contains(msg, marker) {
			return StatusRetryable
		}
	}
	return StatusFatal
}

func appendError(existing, msg string) string {
	if existing == "" {
		return msg
	}
	return existing + "; " + msg
}
