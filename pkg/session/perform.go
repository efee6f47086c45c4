package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/entrhq/pagetrace/pkg/action"
	"github.com/entrhq/pagetrace/pkg/snapshot"
)

const annotateScript = `(box) => {
  const el = document.createElement('div');
  el.setAttribute('data-pagetrace-overlay', 'annotation');
  Object.assign(el.style, {
    position: 'fixed', left: box.x + 'px', top: box.y + 'px',
    width: box.width + 'px', height: box.height + 'px',
    outline: '3px solid #e11d48', pointerEvents: 'none', zIndex: '2147483647',
  });
  document.documentElement.appendChild(el);
  return true;
}`

const clearAnnotationScript = `() => {
  document.querySelectorAll('[data-pagetrace-overlay="annotation"]').forEach((el) => el.remove());
  return true;
}`

// attempt runs a single attempt of a validated action and returns its result.
// Capture, diff, event, metric and screenshot failures never abort the attempt.
func (s *Session) attempt(ctx context.Context, a action.Action, index, n int) *ActionResult {
	started := time.Now()
	res := &ActionResult{
		Status:    StatusOK,
		Index:     index,
		Kind:      a.Kind(),
		Action:    a,
		StartedAt: started,
	}
	defer func() {
		res.DurationMs = time.Since(started).Milliseconds()
	}()

	pre, err := s.preState(ctx)
	if err != nil {
		res.Status = Classify(err)
		res.Error = "pre-snapshot: " + err.Error()
		res.URL = s.page.URL()
		return res
	}
	res.Pre = pre

	exec := &executor{s: s, ctx: ctx, snap: pre, result: res}
	if err := a.Accept(exec); err != nil {
		res.Status = Classify(err)
		res.Error = err.Error()
		s.log.Warnf("session %s: %s #%d attempt %d: %s: %v", s.id, a.Kind(), index, n, res.Status, err)
	} else if needsStability(a) {
		s.waitStable(ctx, a)
	}

	post, err := s.capturer.Capture(ctx, s.page)
	if err != nil {
		if res.Status == StatusOK {
			res.Status = StatusRetryable
		}
		res.Error = appendError(res.Error, "post-snapshot: "+err.Error())
		s.setLast(nil)
	} else {
		res.Post = post
		diff := snapshot.Compare(pre, post)
		res.Diff = &diff
		s.setLast(post)
	}
	res.URL = s.page.URL()

	res.Events = s.page.DrainEvents()
	if m, err := s.page.Metrics(ctx); err != nil {
		res.Error = appendError(res.Error, "metrics: "+err.Error())
	} else {
		res.Metrics = m
	}
	if s.opts.Screenshots {
		s.screenshot(ctx, res)
	}
	return res
}

func needsStability(a action.Action) bool {
	switch a.Kind() {
	case action.KindAssert, action.KindCheckpoint, action.KindPause, action.KindMockNetwork:
		return false
	}
	return true
}

// preState reuses the last snapshot or captures one.
func (s *Session) preState(ctx context.Context) (*snapshot.Snapshot, error) {
	if last := s.lastSnapshot(); last != nil {
		return last, nil
	}
	snap, err := s.capturer.Capture(ctx, s.page)
	if err != nil {
		return nil, err
	}
	s.setLast(snap)
	return snap, nil
}

// screenshot captures the page after the action, outlining the target when
// annotation is on. Failures are appended to the result's error text.
func (s *Session) screenshot(ctx context.Context, res *ActionResult) {
	if err := os.MkdirAll(s.opts.ScreenshotDir, 0750); err != nil {
		res.Error = appendError(res.Error, "screenshot: "+err.Error())
		return
	}
	path := filepath.Join(s.opts.ScreenshotDir, fmt.Sprintf("%s-%03d-%s.png", shortID(s.id), res.Index, res.Kind))

	annotated := false
	if s.opts.Annotate && res.Target != nil && !res.Target.Box.IsZero() {
		if _, err := s.page.Evaluate(ctx, annotateScript, res.Target.Box); err != nil {
			res.Error = appendError(res.Error, "annotate: "+err.Error())
		} else {
			annotated = true
		}
	}

	if err := s.page.Screenshot(ctx, path, false); err != nil {
		res.Error = appendError(res.Error, "screenshot: "+err.Error())
	} else {
		res.ScreenshotPath = path
	}

	if annotated {
		if _, err := s.page.Evaluate(ctx, clearAnnotationScript, nil); err != nil {
			res.Error = appendError(res.Error, "annotate: "+err.Error())
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
