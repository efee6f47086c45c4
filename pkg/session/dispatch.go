package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/pagetrace/pkg/action"
	"github.com/entrhq/pagetrace/pkg/browser"
	"github.com/entrhq/pagetrace/pkg/resolve"
	"github.com/entrhq/pagetrace/pkg/snapshot"
)

const (
	// minCandidateTimeout is the floor of the per-candidate share of an action timeout
	minCandidateTimeout = 1500 * time.Millisecond

	conditionPollInterval = 100 * time.Millisecond
	assertProbeTimeout    = time.Second
	consentClickTimeout   = 5 * time.Second
)

// Button names tried, in order, by the consent action.
var (
	consentAcceptNames = []string{"Accept all", "Accept all cookies", "Accept", "Allow all", "I agree", "Agree", "Got it", "OK"}
	consentRejectNames = []string{"Reject all", "Reject", "Decline", "Only necessary", "Necessary only", "Deny"}
)

// CandidateTimeout splits an action timeout across its candidates.
func CandidateTimeout(total time.Duration, candidates int) time.Duration {
	if candidates <= 0 {
		return max(minCandidateTimeout, total)
	}
	return max(minCandidateTimeout, total/time.Duration(candidates))
}

// executor runs one attempt of one action against the page.
type executor struct {
	s      *Session
	ctx    context.Context
	snap   *snapshot.Snapshot
	result *ActionResult
}

var _ action.Visitor = (*executor)(nil)

func (e *executor) page() browser.Page {
	return e.s.page
}

// interact resolves target and runs do against each candidate until one succeeds.
func (e *executor) interact(target action.Target, timeout time.Duration, do func(loc browser.Locator, timeout time.Duration) error) error {
	res, err := resolve.Resolve(target, e.snap)
	if err != nil {
		e.result.Target = &TargetInfo{Label: target.String()}
		return fmt.Errorf("resolve %s: %w", target, err)
	}

	info := &TargetInfo{Label: res.Label}
	if res.Node != nil {
		info.NodeID = res.Node.ID
		info.Box = res.Node.Box
	}
	e.result.Target = info

	per := CandidateTimeout(timeout, len(res.Candidates))
	failures := make([]CandidateFailure, 0, len(res.Candidates))
	for _, c := range res.Candidates {
		err := do(e.page().Locate(c), per)
		if err == nil {
			info.Candidate = c.Label
			return nil
		}
		e.s.log.Debugf("session %s: candidate %s failed: %v", e.s.id, c.Label, err)
		failures = append(failures, CandidateFailure{Label: c.Label, Reason: err.Error()})
		if e.ctx.Err() != nil {
			break
		}
	}
	return &LocatorError{Target: res.Label, Failures: failures}
}

func (e *executor) VisitNavigate(a *action.Navigate) error {
	status, err := e.page().Navigate(e.ctx, a.URL, browser.NavigateOptions{
		WaitUntil: a.WaitUntil,
		Timeout:   action.TimeoutOf(a),
	})
	e.result.HTTPStatus = status
	return err
}

func (e *executor) VisitClick(a *action.Click) error {
	return e.interact(a.Target, action.TimeoutOf(a), func(loc browser.Locator, timeout time.Duration) error {
		return loc.Click(e.ctx, browser.ClickOptions{Button: a.Button, ClickCount: a.ClickCount, Timeout: timeout})
	})
}

func (e *executor) VisitFill(a *action.Fill) error {
	return e.interact(a.Target, action.TimeoutOf(a), func(loc browser.Locator, timeout time.Duration) error {
		return loc.Fill(e.ctx, a.Value, timeout)
	})
}

func (e *executor) VisitSelect(a *action.Select) error {
	return e.interact(a.Target, action.TimeoutOf(a), func(loc browser.Locator, timeout time.Duration) error {
		return loc.SelectOption(e.ctx, a.Values, timeout)
	})
}

func (e *executor) VisitPress(a *action.Press) error {
	if a.Target == nil {
		return e.page().PressKey(e.ctx, a.Key)
	}
	return e.interact(*a.Target, action.TimeoutOf(a), func(loc browser.Locator, timeout time.Duration) error {
		return loc.Press(e.ctx, a.Key, timeout)
	})
}

func (e *executor) VisitWaitFor(a *action.WaitFor) error {
	timeout := action.TimeoutOf(a)
	deadline := time.Now().Add(timeout)
	c := a.Condition

	if c.Selector != "" {
		if err := e.page().WaitForSelector(e.ctx, c.Selector, c.State, timeout); err != nil {
			return err
		}
	}
	for {
		ok, detail, err := e.checkPage(c)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("wait_for: Timeout %dms exceeded: %s", timeout.Milliseconds(), detail)
		}
		if err := sleep(e.ctx, min(conditionPollInterval, time.Until(deadline))); err != nil {
			return err
		}
	}
}

func (e *executor) VisitAssert(a *action.Assert) error {
	c := a.Condition
	if c.Selector != "" {
		if err := e.page().WaitForSelector(e.ctx, c.Selector, c.State, assertProbeTimeout); err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "target closed") {
				return err
			}
			state := c.State
			if state == "" {
				state = "visible"
			}
			return &AssertionError{Condition: c, Message: a.Message, Detail: fmt.Sprintf("selector %q is not %s", c.Selector, state)}
		}
	}
	ok, detail, err := e.checkPage(c)
	if err != nil {
		return err
	}
	if !ok {
		return &AssertionError{Condition: c, Message: a.Message, Detail: detail}
	}
	return nil
}

// checkPage evaluates the URL, title and text parts of a condition.
func (e *executor) checkPage(c action.Condition) (bool, string, error) {
	if c.URLContains != "" {
		if u := e.page().URL(); !strings.Contains(u, c.URLContains) {
			return false, fmt.Sprintf("url %q does not contain %q", u, c.URLContains), nil
		}
	}
	if c.TitleContains != "" {
		title, err := e.page().Title(e.ctx)
		if err != nil {
			return false, "", err
		}
		if !strings.Contains(title, c.TitleContains) {
			return false, fmt.Sprintf("title %q does not contain %q", title, c.TitleContains), nil
		}
	}
	if c.TextContains != "" {
		text, err := e.page().TextContent(e.ctx)
		if err != nil {
			return false, "", err
		}
		if !strings.Contains(text, c.TextContains) {
			return false, fmt.Sprintf("page text does not contain %q", c.TextContains), nil
		}
	}
	return true, "", nil
}

func (e *executor) VisitConsent(a *action.Consent) error {
	mode := a.Mode
	if mode == "" {
		mode = "accept"
	}
	names := consentAcceptNames
	if mode == "reject" {
		names = consentRejectNames
	}

	label := "consent " + mode
	e.result.Target = &TargetInfo{Label: label}
	for _, name := range names {
		c := browser.RoleCandidate("button", name, true)
		loc := e.page().Locate(c)
		visible, err := loc.IsVisible(e.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			continue
		}
		if !visible {
			continue
		}
		timeout := min(action.TimeoutOf(a), consentClickTimeout)
		if err := loc.Click(e.ctx, browser.ClickOptions{Timeout: timeout}); err != nil {
			return fmt.Errorf("consent button %q: %w", name, err)
		}
		e.result.Target.Candidate = c.Label
		return nil
	}
	e.s.log.Infof("session %s: no %s banner found", e.s.id, label)
	return nil
}

func (e *executor) VisitPause(a *action.Pause) error {
	if a.DurationMs > 0 {
		return sleep(e.ctx, time.Duration(a.DurationMs)*time.Millisecond)
	}
	source := a.Source
	if source == "" {
		source = SourceRunControl
	}
	e.s.pause.Pause(source)
	e.s.log.Infof("session %s: paused by %s", e.s.id, source)
	return nil
}

func (e *executor) VisitSetViewport(a *action.SetViewport) error {
	return e.page().SetViewport(e.ctx, a.Width, a.Height)
}

func (e *executor) VisitMockNetwork(a *action.MockNetwork) error {
	return e.page().Route(browser.MockRule{
		Pattern:     a.Pattern,
		Method:      a.Method,
		Status:      a.Status,
		Headers:     a.Headers,
		Body:        a.Body,
		ContentType: a.ContentType,
	})
}

func (e *executor) VisitCheckpoint(a *action.Checkpoint) error {
	e.s.log.Infof("session %s: checkpoint %q", e.s.id, a.Name)
	return nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
