package session

import (
	"context"

	"github.com/entrhq/pagetrace/pkg/action"
	"github.com/entrhq/pagetrace/pkg/trace"
)

// execute attempts a until it succeeds, fails fatally or runs out of
// attempts. Only the final attempt is recorded.
func (s *Session) execute(ctx context.Context, a action.Action) *ActionResult {
	maxAttempts := s.opts.MaxActionAttempts
	index := s.nextIndex()

	var (
		res      *ActionResult
		evidence []AttemptEvidence
	)
	for n := 1; ; n++ {
		res = s.attempt(ctx, a, index, n)
		evidence = append(evidence, AttemptEvidence{
			Attempt:    n,
			Status:     res.Status,
			Error:      res.Error,
			DurationMs: res.DurationMs,
		})
		s.metrics.observeAttempt()

		if res.Status != StatusRetryable || n >= maxAttempts {
			break
		}
		s.log.Infof("session %s: retrying %s #%d in %s (attempt %d of %d)", s.id, a.Kind(), index, s.opts.RetryBackoff, n+1, maxAttempts)
		if err := sleep(ctx, s.opts.RetryBackoff); err != nil {
			res.Error = appendError(res.Error, "retry aborted: "+err.Error())
			break
		}
	}

	res.Retry = &RetrySummary{
		Attempts:    len(evidence),
		MaxAttempts: maxAttempts,
		Evidence:    evidence,
	}
	s.record(res)
	return res
}

func (s *Session) nextIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counter
}

// record appends the final result, its timeline entry and any origins it touched.
func (s *Session) record(res *ActionResult) {
	s.mu.Lock()
	res.Index = s.counter
	s.counter++
	s.results = append(s.results, res)
	s.timeline = append(s.timeline, trace.TimelineEntry{
		Index:  res.Index,
		Kind:   res.Kind,
		Status: string(res.Status),
		At:     res.StartedAt,
		Label:  res.timelineLabel(),
	})
	if nav, ok := res.Action.(*action.Navigate); ok {
		s.trackOrigin(nav.URL)
	}
	s.trackOrigin(res.URL)
	s.mu.Unlock()

	s.metrics.observeResult(res)
	s.log.Infof("session %s: %s #%d %s in %dms", s.id, res.Kind, res.Index, res.Status, res.DurationMs)
}

// trackOrigin adds the origin of raw to the session's origin set. s.mu is held.
func (s *Session) trackOrigin(raw string) {
	origin, ok := trace.OriginOf(raw)
	if !ok || s.originSet[origin] {
		return
	}
	s.originSet[origin] = true
	s.origins = append(s.origins, origin)
}
