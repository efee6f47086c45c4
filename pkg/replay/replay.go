// Package replay re-executes saved traces in a fresh session and reports how
// closely the new run reproduces the recorded one.
package replay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/entrhq/pagetrace/pkg/action"
	"github.com/entrhq/pagetrace/pkg/browser"
	"github.com/entrhq/pagetrace/pkg/logging"
	"github.com/entrhq/pagetrace/pkg/session"
	"github.com/entrhq/pagetrace/pkg/trace"
)

// Mode selects how replayed results are compared with recorded ones.
type Mode string

const (
	// ModeStrict requires the post-action domHash to match exactly.
	ModeStrict Mode = "strict"

	// ModeRelaxed requires matching status, normalized URL and selector invariants.
	ModeRelaxed Mode = "relaxed"
)

// Mismatch reasons.
const (
	ReasonDomHash  = "dom_hash"
	ReasonStatus   = "status"
	ReasonURL      = "url"
	ReasonSelector = "selector"
	ReasonError    = "error"
)

// ParseMode validates a mode name. The empty name is strict.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case "", ModeStrict:
		return ModeStrict, nil
	case ModeRelaxed:
		return ModeRelaxed, nil
	}
	return "", fmt.Errorf("unknown replay mode %q (want strict or relaxed)", s)
}

// Options configures a replay.
type Options struct {
	Mode Mode

	// SkipPreflight disables the origin reachability check
	SkipPreflight    bool
	PreflightTimeout time.Duration
	HTTPClient       *http.Client

	// SkipSelectorInvariants disables relaxed-mode selector checks
	SkipSelectorInvariants bool

	// Stability overrides the stability policy recorded in the trace
	Stability *session.StabilityPolicy

	// Launch overrides the recorded launch options when set
	Launch *browser.LaunchOptions

	Logger  *logging.Logger
	Metrics *session.Metrics
}

// Mismatch is one discrepancy between a recorded and a replayed action.
type Mismatch struct {
	Index    int         `json:"index"`
	Kind     action.Kind `json:"kind"`
	Reason   string      `json:"reason"`
	Expected string      `json:"expected,omitempty"`
	Actual   string      `json:"actual,omitempty"`
}

// Report summarizes one replay. It is derived data and never persisted
// with session state.
type Report struct {
	Mode            Mode       `json:"mode"`
	SessionID       string     `json:"sessionId"`
	Total           int        `json:"total"`
	Matched         int        `json:"matched"`
	Mismatched      int        `json:"mismatched"`
	SelectorChecks  int        `json:"selectorChecks"`
	SelectorSkipped int        `json:"selectorSkipped"`
	Mismatches      []Mismatch `json:"mismatches,omitempty"`
	DurationMs      int64      `json:"durationMs"`
}

// OK reports whether every action matched.
func (r *Report) OK() bool {
	return r.Mismatched == 0
}

// MismatchedIndices returns the distinct indices with at least one mismatch.
func (r *Report) MismatchedIndices() []int {
	seen := make(map[int]bool)
	var out []int
	for _, m := range r.Mismatches {
		if !seen[m.Index] {
			seen[m.Index] = true
			out = append(out, m.Index)
		}
	}
	return out
}

// RunFile loads a trace file and replays it.
func RunFile(ctx context.Context, launcher browser.Launcher, path string, opts Options) (*Report, error) {
	t, err := trace.Load(path)
	if err != nil {
		return nil, err
	}
	return Run(ctx, launcher, t, opts)
}

// Run replays every recorded action in order in a fresh session. Mismatches
// are collected into the report; only preflight failures, session start-up
// failures and cancellation are returned as errors.
func Run(ctx context.Context, launcher browser.Launcher, t *trace.SavedTrace, opts Options) (*Report, error) {
	if t == nil {
		return nil, fmt.Errorf("trace is required")
	}
	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewDiscard("replay")
	}

	if !opts.SkipPreflight {
		origins := t.RequiredOrigins()
		log.Infof("preflight: probing %d origins", len(origins))
		if err := Preflight(ctx, opts.HTTPClient, origins, opts.PreflightTimeout); err != nil {
			log.Errorf("%v", err)
			return nil, err
		}
	}

	s, err := session.New(ctx, launcher, sessionOptions(t, opts, log))
	if err != nil {
		return nil, fmt.Errorf("failed to start replay session: %w", err)
	}
	defer s.Close()

	started := time.Now()
	records := t.Ordered()
	report := &Report{Mode: mode, SessionID: s.ID(), Total: len(records)}
	for _, rec := range records {
		res, err := s.Perform(ctx, rec.Action.Action)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return report, ctxErr
		}

		var found []Mismatch
		if err != nil {
			found = []Mismatch{{Index: rec.Index, Kind: rec.Action.Action.Kind(), Reason: ReasonError, Actual: err.Error()}}
		} else {
			found = compare(mode, rec, res, opts, report)
		}
		if len(found) == 0 {
			report.Matched++
			continue
		}
		report.Mismatched++
		report.Mismatches = append(report.Mismatches, found...)
		for _, m := range found {
			log.Warnf("replay #%d %s: %s mismatch (expected %q, got %q)", m.Index, m.Kind, m.Reason, m.Expected, m.Actual)
		}
	}
	report.DurationMs = time.Since(started).Milliseconds()
	log.Infof("replay %s: %d matched, %d mismatched of %d", mode, report.Matched, report.Mismatched, report.Total)
	return report, nil
}

func sessionOptions(t *trace.SavedTrace, opts Options, log *logging.Logger) session.Options {
	sopts := session.OptionsFromTrace(t.Options)
	if opts.Stability != nil {
		sopts.Stability = opts.Stability
	}
	if opts.Launch != nil {
		sopts.Launch = *opts.Launch
	}
	sopts.Logger = log.With("session")
	sopts.Metrics = opts.Metrics
	return sopts
}

// compare checks one replayed result against its record.
func compare(mode Mode, rec trace.Record, res *session.ActionResult, opts Options, report *Report) []Mismatch {
	kind := rec.Action.Action.Kind()
	mismatch := func(reason, expected, actual string) Mismatch {
		return Mismatch{Index: rec.Index, Kind: kind, Reason: reason, Expected: expected, Actual: actual}
	}

	if mode == ModeStrict {
		if res.DomHash() != rec.Result.PostDomHash {
			return []Mismatch{mismatch(ReasonDomHash, rec.Result.PostDomHash, res.DomHash())}
		}
		return nil
	}

	var out []Mismatch
	if string(res.Status) != rec.Result.Status {
		out = append(out, mismatch(ReasonStatus, rec.Result.Status, string(res.Status)))
	}
	if NormalizeURL(rec.Result.PostURL) != NormalizeURL(res.URL) {
		out = append(out, mismatch(ReasonURL, rec.Result.PostURL, res.URL))
	}
	if raw := rec.Result.WaitForSelector; raw != "" && !opts.SkipSelectorInvariants {
		sel, ok := ParseSelector(raw)
		switch {
		case !ok:
			report.SelectorSkipped++
		case sel.MatchAny(res.Post):
			report.SelectorChecks++
		case !sel.Anchored():
			// the element may exist but fall outside the snapshot
			report.SelectorSkipped++
		default:
			report.SelectorChecks++
			out = append(out, mismatch(ReasonSelector, raw, "no matching node"))
		}
	}
	return out
}

// NormalizeURL drops the query, fragment and trailing slash of raw.
func NormalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.IndexAny(raw, "?#"); i >= 0 {
			raw = raw[:i]
		}
		return strings.TrimRight(raw, "/")
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String()
}

// IsPreflightError reports whether err is a preflight failure.
func IsPreflightError(err error) bool {
	var perr *PreflightError
	return errors.As(err, &perr)
}
