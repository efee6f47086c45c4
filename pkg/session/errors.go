package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/entrhq/pagetrace/pkg/action"
)

// ErrSessionClosed is returned for operations submitted after Close.
var ErrSessionClosed = errors.New("session is closed")

// CandidateFailure is why one locator candidate could not be used.
type CandidateFailure struct {
	Label  string `json:"label"`
	Reason string `json:"reason"`
}

// LocatorError reports that every candidate for a target failed.
type LocatorError struct {
	Target   string
	Failures []CandidateFailure
}

func (e *LocatorError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "no candidate succeeded for %s", e.Target)
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "; [%s] %s", f.Label, f.Reason)
	}
	return b.String()
}

// AssertionError is a failed assert action. Its message never carries
// provider wording, so assertions classify as fatal.
type AssertionError struct {
	Condition action.Condition
	Message   string
	Detail    string
}

func (e *AssertionError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("assertion failed: %s (%s)", e.Message, e.Detail)
	}
	return "assertion failed: " + e.Detail
}
