// Package action defines the declarative browser actions a session performs.
//
// Actions form a closed set. Every kind implements Action and dispatches
// through Visitor, so adding a kind forces every executor to handle it
// before the module compiles again.
package action

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Kind identifies an action type on the wire.
type Kind string

const (
	KindNavigate    Kind = "navigate"     // KindNavigate loads a URL.
	KindClick       Kind = "click"        // KindClick clicks a target.
	KindFill        Kind = "fill"         // KindFill types a value into a target.
	KindSelect      Kind = "select"       // KindSelect picks options of a select target.
	KindPress       Kind = "press"        // KindPress presses a key, optionally on a target.
	KindWaitFor     Kind = "wait_for"     // KindWaitFor waits for a condition.
	KindAssert      Kind = "assert"       // KindAssert checks a condition without waiting.
	KindConsent     Kind = "consent"      // KindConsent dismisses a cookie/consent banner.
	KindPause       Kind = "pause"        // KindPause suspends the run.
	KindSetViewport Kind = "set_viewport" // KindSetViewport resizes the viewport.
	KindMockNetwork Kind = "mock_network" // KindMockNetwork installs a network fulfilment rule.
	KindCheckpoint  Kind = "checkpoint"   // KindCheckpoint marks a named point in the timeline.
)

// DefaultTimeout applies to actions that do not set TimeoutMs.
const DefaultTimeout = 30 * time.Second

// ErrInvalidAction is matched by every validation failure.
var ErrInvalidAction = errors.New("invalid action")

// ValidationError describes a malformed action.
type ValidationError struct {
	Kind   Kind
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid %s action: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("invalid %s action: %s: %s", e.Kind, e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidAction.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidAction
}

func invalid(kind Kind, field, reason string) error {
	return &ValidationError{Kind: kind, Field: field, Reason: reason}
}

// Action is one declarative browser operation.
type Action interface {
	Kind() Kind
	Validate() error
	Accept(v Visitor) error
}

// Visitor handles each action kind.
type Visitor interface {
	VisitNavigate(a *Navigate) error
	VisitClick(a *Click) error
	VisitFill(a *Fill) error
	VisitSelect(a *Select) error
	VisitPress(a *Press) error
	VisitWaitFor(a *WaitFor) error
	VisitAssert(a *Assert) error
	VisitConsent(a *Consent) error
	VisitPause(a *Pause) error
	VisitSetViewport(a *SetViewport) error
	VisitMockNetwork(a *MockNetwork) error
	VisitCheckpoint(a *Checkpoint) error
}

// Target describes the element an interactive action applies to.
// Exactly one of NodeID, StableRef, Role (with optional Name) or Selector is set.
type Target struct {
	NodeID    string `json:"nodeId,omitempty"`
	StableRef string `json:"stableRef,omitempty"`
	Role      string `json:"role,omitempty"`
	Name      string `json:"name,omitempty"`
	Selector  string `json:"selector,omitempty"`
}

// String renders the target for diagnostics.
func (t Target) String() string {
	switch {
	case t.NodeID != "":
		return "node " + t.NodeID
	case t.StableRef != "":
		return "ref " + t.StableRef
	case t.Role != "":
		return fmt.Sprintf("role %s %q", t.Role, t.Name)
	default:
		return "selector " + t.Selector
	}
}

func (t *Target) validate(kind Kind) error {
	if t == nil {
		return invalid(kind, "target", "is required")
	}
	set := 0
	for _, v := range []string{t.NodeID, t.StableRef, t.Role, t.Selector} {
		if strings.TrimSpace(v) != "" {
			set++
		}
	}
	if set != 1 {
		return invalid(kind, "target", "exactly one of nodeId, stableRef, role or selector must be set")
	}
	if t.Name != "" && t.Role == "" {
		return invalid(kind, "target.name", "requires role")
	}
	return nil
}

// Condition is a page predicate used by wait_for and assert.
type Condition struct {
	Selector      string `json:"selector,omitempty"`
	State         string `json:"state,omitempty"`
	URLContains   string `json:"urlContains,omitempty"`
	TextContains  string `json:"textContains,omitempty"`
	TitleContains string `json:"titleContains,omitempty"`
}

var selectorStates = map[string]bool{"": true, "attached": true, "detached": true, "visible": true, "hidden": true}

func (c Condition) validate(kind Kind) error {
	if c.Selector == "" && c.URLContains == "" && c.TextContains == "" && c.TitleContains == "" {
		return invalid(kind, "condition", "needs selector, urlContains, textContains or titleContains")
	}
	if !selectorStates[c.State] {
		return invalid(kind, "condition.state", fmt.Sprintf("unknown state %q", c.State))
	}
	if c.State != "" && c.Selector == "" {
		return invalid(kind, "condition.state", "requires selector")
	}
	return nil
}

func validateTimeout(kind Kind, ms int) error {
	if ms < 0 {
		return invalid(kind, "timeoutMs", "cannot be negative")
	}
	return nil
}

func timeoutOf(ms int) time.Duration {
	if ms <= 0 {
		return DefaultTimeout
	}
	return time.Duration(ms) * time.Millisecond
}

// Navigate loads a URL.
type Navigate struct {
	URL       string `json:"url"`
	WaitUntil string `json:"waitUntil,omitempty"`
	TimeoutMs int    `json:"timeoutMs,omitempty"`
}

var waitUntilStates = map[string]bool{"": true, "load": true, "domcontentloaded": true, "networkidle": true, "commit": true}

func (a *Navigate) Kind() Kind             { return KindNavigate }
func (a *Navigate) Accept(v Visitor) error { return v.VisitNavigate(a) }

// Validate checks the URL is absolute and the wait state known.
func (a *Navigate) Validate() error {
	if strings.TrimSpace(a.URL) == "" {
		return invalid(KindNavigate, "url", "is required")
	}
	u, err := url.Parse(a.URL)
	if err != nil || u.Scheme == "" {
		return invalid(KindNavigate, "url", "must be an absolute URL")
	}
	if !waitUntilStates[a.WaitUntil] {
		return invalid(KindNavigate, "waitUntil", fmt.Sprintf("unknown state %q", a.WaitUntil))
	}
	return validateTimeout(KindNavigate, a.TimeoutMs)
}

// Click clicks a target.
type Click struct {
	Target     Target `json:"target"`
	Button     string `json:"button,omitempty"`
	ClickCount int    `json:"clickCount,omitempty"`
	TimeoutMs  int    `json:"timeoutMs,omitempty"`
}

func (a *Click) Kind() Kind             { return KindClick }
func (a *Click) Accept(v Visitor) error { return v.VisitClick(a) }

// Validate checks target, button and click count.
func (a *Click) Validate() error {
	if err := a.Target.validate(KindClick); err != nil {
		return err
	}
	switch a.Button {
	case "", "left", "right", "middle":
	default:
		return invalid(KindClick, "button", fmt.Sprintf("unknown button %q", a.Button))
	}
	if a.ClickCount < 0 || a.ClickCount > 3 {
		return invalid(KindClick, "clickCount", "must be between 1 and 3")
	}
	return validateTimeout(KindClick, a.TimeoutMs)
}

// Fill replaces the value of an editable target.
type Fill struct {
	Target    Target `json:"target"`
	Value     string `json:"value"`
	TimeoutMs int    `json:"timeoutMs,omitempty"`
}

func (a *Fill) Kind() Kind             { return KindFill }
func (a *Fill) Accept(v Visitor) error { return v.VisitFill(a) }

// Validate checks the target.
func (a *Fill) Validate() error {
	if err := a.Target.validate(KindFill); err != nil {
		return err
	}
	return validateTimeout(KindFill, a.TimeoutMs)
}

// Select chooses options on a select target.
type Select struct {
	Target    Target   `json:"target"`
	Values    []string `json:"values"`
	TimeoutMs int      `json:"timeoutMs,omitempty"`
}

func (a *Select) Kind() Kind             { return KindSelect }
func (a *Select) Accept(v Visitor) error { return v.VisitSelect(a) }

// Validate checks the target and that at least one value is given.
func (a *Select) Validate() error {
	if err := a.Target.validate(KindSelect); err != nil {
		return err
	}
	if len(a.Values) == 0 {
		return invalid(KindSelect, "values", "at least one value is required")
	}
	return validateTimeout(KindSelect, a.TimeoutMs)
}

// Press presses a key on a target, or on the page when Target is nil.
type Press struct {
	Target    *Target `json:"target,omitempty"`
	Key       string  `json:"key"`
	TimeoutMs int     `json:"timeoutMs,omitempty"`
}

func (a *Press) Kind() Kind             { return KindPress }
func (a *Press) Accept(v Visitor) error { return v.VisitPress(a) }

// Validate checks the key and optional target.
func (a *Press) Validate() error {
	if strings.TrimSpace(a.Key) == "" {
		return invalid(KindPress, "key", "is required")
	}
	if a.Target != nil {
		if err := a.Target.validate(KindPress); err != nil {
			return err
		}
	}
	return validateTimeout(KindPress, a.TimeoutMs)
}

// WaitFor blocks until a condition holds.
type WaitFor struct {
	Condition Condition `json:"condition"`
	TimeoutMs int       `json:"timeoutMs,omitempty"`
}

func (a *WaitFor) Kind() Kind             { return KindWaitFor }
func (a *WaitFor) Accept(v Visitor) error { return v.VisitWaitFor(a) }

// Validate checks the condition.
func (a *WaitFor) Validate() error {
	if err := a.Condition.validate(KindWaitFor); err != nil {
		return err
	}
	return validateTimeout(KindWaitFor, a.TimeoutMs)
}

// Assert checks a condition once.
type Assert struct {
	Condition Condition `json:"condition"`
	Message   string    `json:"message,omitempty"`
}

func (a *Assert) Kind() Kind             { return KindAssert }
func (a *Assert) Accept(v Visitor) error { return v.VisitAssert(a) }

// Validate checks the condition.
func (a *Assert) Validate() error {
	return a.Condition.validate(KindAssert)
}

// Consent dismisses a cookie or consent banner if one is present.
type Consent struct {
	Mode      string `json:"mode,omitempty"`
	TimeoutMs int    `json:"timeoutMs,omitempty"`
}

func (a *Consent) Kind() Kind             { return KindConsent }
func (a *Consent) Accept(v Visitor) error { return v.VisitConsent(a) }

// Validate checks the mode.
func (a *Consent) Validate() error {
	switch a.Mode {
	case "", "accept", "reject":
	default:
		return invalid(KindConsent, "mode", fmt.Sprintf("unknown mode %q", a.Mode))
	}
	return validateTimeout(KindConsent, a.TimeoutMs)
}

// Pause sleeps for DurationMs, or raises a pause source when DurationMs is zero.
type Pause struct {
	DurationMs int    `json:"durationMs,omitempty"`
	Source     string `json:"source,omitempty"`
}

func (a *Pause) Kind() Kind             { return KindPause }
func (a *Pause) Accept(v Visitor) error { return v.VisitPause(a) }

// Validate checks the duration.
func (a *Pause) Validate() error {
	if a.DurationMs < 0 {
		return invalid(KindPause, "durationMs", "cannot be negative")
	}
	return nil
}

// SetViewport resizes the page viewport.
type SetViewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (a *SetViewport) Kind() Kind             { return KindSetViewport }
func (a *SetViewport) Accept(v Visitor) error { return v.VisitSetViewport(a) }

// Validate checks both dimensions are positive.
func (a *SetViewport) Validate() error {
	if a.Width <= 0 || a.Height <= 0 {
		return invalid(KindSetViewport, "size", "width and height must be positive")
	}
	return nil
}

// MockNetwork fulfils matching requests with a canned response.
type MockNetwork struct {
	Pattern     string            `json:"pattern"`
	Method      string            `json:"method,omitempty"`
	Status      int               `json:"status,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        string            `json:"body,omitempty"`
	ContentType string            `json:"contentType,omitempty"`
}

func (a *MockNetwork) Kind() Kind             { return KindMockNetwork }
func (a *MockNetwork) Accept(v Visitor) error { return v.VisitMockNetwork(a) }

// Validate checks pattern and status.
func (a *MockNetwork) Validate() error {
	if strings.TrimSpace(a.Pattern) == "" {
		return invalid(KindMockNetwork, "pattern", "is required")
	}
	if a.Status != 0 && (a.Status < 100 || a.Status > 599) {
		return invalid(KindMockNetwork, "status", "must be a valid HTTP status")
	}
	return nil
}

// Checkpoint marks a named point in the run.
type Checkpoint struct {
	Name string `json:"name"`
}

func (a *Checkpoint) Kind() Kind             { return KindCheckpoint }
func (a *Checkpoint) Accept(v Visitor) error { return v.VisitCheckpoint(a) }

// Validate checks the name.
func (a *Checkpoint) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return invalid(KindCheckpoint, "name", "is required")
	}
	return nil
}

// TargetOf returns the target of an interactive action, if any.
func TargetOf(a Action) *Target {
	switch v := a.(type) {
	case *Click:
		return &v.Target
	case *Fill:
		return &v.Target
	case *Select:
		return &v.Target
	case *Press:
		return v.Target
	}
	return nil
}

// TimeoutOf returns the effective timeout of an action.
func TimeoutOf(a Action) time.Duration {
	switch v := a.(type) {
	case *Navigate:
		return timeoutOf(v.TimeoutMs)
	case *Click:
		return timeoutOf(v.TimeoutMs)
	case *Fill:
		return timeoutOf(v.TimeoutMs)
	case *Select:
		return timeoutOf(v.TimeoutMs)
	case *Press:
		return timeoutOf(v.TimeoutMs)
	case *WaitFor:
		return timeoutOf(v.TimeoutMs)
	case *Consent:
		return timeoutOf(v.TimeoutMs)
	}
	return DefaultTimeout
}

// WaitSelector returns the selector a wait_for action waited on.
func WaitSelector(a Action) string {
	if w, ok := a.(*WaitFor); ok {
		return w.Condition.Selector
	}
	return ""
}

// IsSettling reports whether the action is expected to load or wait on the page.
func IsSettling(a Action) bool {
	switch a.Kind() {
	case KindNavigate, KindWaitFor:
		return true
	}
	return false
}
