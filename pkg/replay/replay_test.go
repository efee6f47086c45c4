package replay

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/pagetrace/pkg/action"
	"github.com/entrhq/pagetrace/pkg/browser/static"
	"github.com/entrhq/pagetrace/pkg/session"
	"github.com/entrhq/pagetrace/pkg/snapshot"
	"github.com/entrhq/pagetrace/pkg/trace"
)

const loginPage = `<!doctype html>
<html><head><title>Login</title></head><body>
<h1>Sign in</h1>
<form action="/welcome" method="get">
  <label for="email">Email</label><input id="email" name="email" type="email">
  <button type="submit">Continue</button>
</form>
</body></html>`

// site serves a login flow. With counter set, the login page shows a visit
// number so every load has different content.
type site struct {
	srv     *httptest.Server
	visits  atomic.Int32
	counter atomic.Bool
}

func newSite(t *testing.T) *site {
	t.Helper()
	s := &site{}
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		n := s.visits.Add(1)
		body := loginPage
		if s.counter.Load() {
			body = fmt.Sprintf(`<html><head><title>Login</title></head><body><p>Visit %d</p>
<form action="/welcome" method="get"><label for="email">Email</label><input id="email" name="email" type="email">
<button type="submit">Continue</button></form></body></html>`, n)
		}
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("/welcome", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><head><title>Welcome</title></head><body><p id="greeting">Hello %s</p></body></html>`, r.URL.Query().Get("email"))
	})
	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *site) launcher() *static.Launcher {
	return static.NewLauncher().WithClient(s.srv.Client())
}

func (s *site) options() Options {
	return Options{
		HTTPClient: s.srv.Client(),
		Stability:  &session.StabilityPolicy{},
	}
}

// record runs the login flow and returns its saved trace.
func record(t *testing.T, st *site) *trace.SavedTrace {
	t.Helper()
	ctx := context.Background()
	s, err := session.New(ctx, st.launcher(), session.Options{Stability: &session.StabilityPolicy{}})
	require.NoError(t, err)
	defer s.Close()

	steps := []action.Action{
		&action.Navigate{URL: st.srv.URL + "/login"},
		&action.Fill{Target: action.Target{Role: "textbox", Name: "Email"}, Value: "a@b.test"},
		&action.Click{Target: action.Target{Role: "button", Name: "Continue"}},
		&action.WaitFor{Condition: action.Condition{Selector: "p#greeting"}},
	}
	for _, a := range steps {
		res, err := s.Perform(ctx, a)
		require.NoError(t, err)
		require.True(t, res.OK(), "%s: %s", a.Kind(), res.Error)
	}
	return s.Trace()
}

func TestRun_StrictUnmodified(t *testing.T) {
	st := newSite(t)
	tr := record(t, st)
	require.Len(t, tr.Records, 4)
	assert.Equal(t, []string{st.srv.URL}, tr.RequiredOrigins())

	report, err := Run(context.Background(), st.launcher(), tr, st.options())
	require.NoError(t, err)
	assert.Equal(t, ModeStrict, report.Mode)
	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 4, report.Matched)
	assert.Equal(t, 0, report.Mismatched)
	assert.Empty(t, report.Mismatches)
	assert.True(t, report.OK())
}

func TestRun_CorruptedHash(t *testing.T) {
	st := newSite(t)
	tr := record(t, st)
	tr.Records[1].Result.PostDomHash = "0000000000000000"

	report, err := Run(context.Background(), st.launcher(), tr, st.options())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Mismatched)
	require.Len(t, report.Mismatches, 1)
	m := report.Mismatches[0]
	assert.Equal(t, tr.Records[1].Index, m.Index)
	assert.Equal(t, ReasonDomHash, m.Reason)
	assert.Equal(t, action.KindFill, m.Kind)
	assert.Equal(t, "0000000000000000", m.Expected)
	assert.Equal(t, []int{tr.Records[1].Index}, report.MismatchedIndices())
}

func TestDetectFlakes(t *testing.T) {
	st := newSite(t)
	tr := record(t, st)
	tr.Records[1].Result.PostDomHash = "0000000000000000"

	flakes, err := DetectFlakes(context.Background(), st.launcher(), tr, 3, st.options())
	require.NoError(t, err)
	assert.Equal(t, 3, flakes.Runs)
	require.Len(t, flakes.Reports, 3)
	require.Len(t, flakes.Flakes, 1)
	assert.Equal(t, tr.Records[1].Index, flakes.Flakes[0].Index)
	assert.Equal(t, 3, flakes.Flakes[0].MismatchRuns)
	assert.Equal(t, []string{ReasonDomHash}, flakes.Flakes[0].Reasons)

	_, err = DetectFlakes(context.Background(), st.launcher(), tr, 1, st.options())
	assert.ErrorContains(t, err, "at least 2 runs")
}

func TestDetectFlakes_Ordering(t *testing.T) {
	st := newSite(t)
	st.counter.Store(true)
	tr := record(t, st)
	tr.Records[3].Result.PostDomHash = "ffffffffffffffff"

	flakes, err := DetectFlakes(context.Background(), st.launcher(), tr, 2, st.options())
	require.NoError(t, err)
	// the navigate and fill snapshots carry the visit number, so they
	// mismatch every run just like the corrupted wait_for record
	require.Len(t, flakes.Flakes, 3)
	assert.Equal(t, tr.Records[3].Index, flakes.Flakes[2].Index)
	for i, f := range flakes.Flakes {
		assert.Equal(t, 2, f.MismatchRuns)
		if i > 0 {
			assert.Less(t, flakes.Flakes[i-1].Index, f.Index)
		}
	}
}

func TestRun_RelaxedIgnoresContentDrift(t *testing.T) {
	st := newSite(t)
	st.counter.Store(true)
	tr := record(t, st)

	strict, err := Run(context.Background(), st.launcher(), tr, st.options())
	require.NoError(t, err)
	assert.False(t, strict.OK())
	assert.Equal(t, ReasonDomHash, strict.Mismatches[0].Reason)

	opts := st.options()
	opts.Mode = ModeRelaxed
	relaxed, err := Run(context.Background(), st.launcher(), tr, opts)
	require.NoError(t, err)
	assert.True(t, relaxed.OK(), "%+v", relaxed.Mismatches)
	assert.Equal(t, 1, relaxed.SelectorChecks)
	assert.Equal(t, 0, relaxed.SelectorSkipped)
}

func TestRun_RelaxedContainerSelector(t *testing.T) {
	launcher := static.NewLauncher()
	launcher.Serve("https://site.test/search", `<html><body><div id="results"><p>done</p></div><section><p>more</p></section></body></html>`)

	ctx := context.Background()
	s, err := session.New(ctx, launcher, session.Options{Stability: &session.StabilityPolicy{}})
	require.NoError(t, err)
	steps := []action.Action{
		&action.Navigate{URL: "https://site.test/search"},
		&action.WaitFor{Condition: action.Condition{Selector: "#results"}},
		&action.WaitFor{Condition: action.Condition{Selector: "div#results"}},
		&action.WaitFor{Condition: action.Condition{Selector: "section"}},
	}
	for _, a := range steps {
		res, err := s.Perform(ctx, a)
		require.NoError(t, err)
		require.True(t, res.OK(), "%s: %s", a.Kind(), res.Error)
	}
	tr := s.Trace()
	require.NoError(t, s.Close())

	report, err := Run(ctx, launcher, tr, Options{
		Mode:          ModeRelaxed,
		SkipPreflight: true,
		Stability:     &session.StabilityPolicy{},
	})
	require.NoError(t, err)
	assert.True(t, report.OK(), "%+v", report.Mismatches)
	assert.Equal(t, 4, report.Matched)
	assert.Equal(t, 2, report.SelectorChecks)
	assert.Equal(t, 1, report.SelectorSkipped)
}

func TestRunFile(t *testing.T) {
	st := newSite(t)
	tr := record(t, st)
	path := filepath.Join(t.TempDir(), "trace.json")
	require.NoError(t, trace.Save(path, tr))

	report, err := RunFile(context.Background(), st.launcher(), path, st.options())
	require.NoError(t, err)
	assert.True(t, report.OK())

	_, err = RunFile(context.Background(), st.launcher(), filepath.Join(t.TempDir(), "missing.json"), st.options())
	assert.Error(t, err)
}

func TestRun_PreflightFailure(t *testing.T) {
	st := newSite(t)
	tr := record(t, st)
	launcher := st.launcher()
	st.srv.Close()

	_, err := Run(context.Background(), launcher, tr, st.options())
	require.Error(t, err)
	assert.True(t, IsPreflightError(err))
	assert.Contains(t, err.Error(), st.srv.URL)
	assert.Equal(t, 0, launcher.Launches())
}

func TestPreflight(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ok.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()
	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()

	ctx := context.Background()
	require.NoError(t, Preflight(ctx, nil, []string{ok.URL}, 0))
	require.NoError(t, Preflight(ctx, nil, nil, 0))

	err := Preflight(ctx, nil, []string{closed.URL, ok.URL, broken.URL}, 0)
	var perr *PreflightError
	require.ErrorAs(t, err, &perr)
	require.Len(t, perr.Unreachable, 2)
	assert.Equal(t, closed.URL, perr.Unreachable[0].Origin)
	assert.Equal(t, broken.URL, perr.Unreachable[1].Origin)
	assert.Contains(t, perr.Unreachable[1].Reason, "status 502")
	assert.Contains(t, err.Error(), "preflight failed: unreachable origins")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, Preflight(cancelled, nil, []string{ok.URL}, 0), context.Canceled)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeStrict, m)
	m, err = ParseMode("Relaxed")
	require.NoError(t, err)
	assert.Equal(t, ModeRelaxed, m)
	_, err = ParseMode("fuzzy")
	assert.Error(t, err)

	_, err = Run(context.Background(), static.NewLauncher(), &trace.SavedTrace{}, Options{Mode: "fuzzy"})
	assert.Error(t, err)
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://site.test/a/?x=1#top", "https://site.test/a"},
		{"https://site.test/a", "https://site.test/a"},
		{"https://site.test/", "https://site.test"},
		{"https://site.test/welcome?email=a%40b.test", "https://site.test/welcome"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeURL(tt.in))
		})
	}
}

func TestCompare_Relaxed(t *testing.T) {
	post := &snapshot.Snapshot{Nodes: []snapshot.Node{
		{ID: "n1", Tag: "p", Attributes: map[string]string{"id": "greeting"}},
	}}
	res := &session.ActionResult{Status: session.StatusOK, URL: "https://site.test/welcome?x=2", Post: post}
	rec := trace.Record{
		Index:  7,
		Action: action.Envelope{Action: &action.WaitFor{Condition: action.Condition{Selector: "p#greeting"}}},
		Result: trace.Result{Status: "ok", PostURL: "https://site.test/welcome/?x=1", WaitForSelector: "p#greeting"},
	}

	report := &Report{}
	assert.Empty(t, compare(ModeRelaxed, rec, res, Options{}, report))
	assert.Equal(t, 1, report.SelectorChecks)

	rec.Result.WaitForSelector = "p#farewell"
	rec.Result.Status = "retryable_error"
	rec.Result.PostURL = "https://site.test/login"
	found := compare(ModeRelaxed, rec, res, Options{}, report)
	reasons := make([]string, 0, len(found))
	for _, m := range found {
		assert.Equal(t, 7, m.Index)
		reasons = append(reasons, m.Reason)
	}
	assert.Equal(t, []string{ReasonStatus, ReasonURL, ReasonSelector}, reasons)

	rec.Result.WaitForSelector = "div > p.greeting"
	report = &Report{}
	rec.Result.Status = "ok"
	rec.Result.PostURL = res.URL
	assert.Empty(t, compare(ModeRelaxed, rec, res, Options{}, report))
	assert.Equal(t, 1, report.SelectorSkipped)

	report = &Report{}
	assert.Empty(t, compare(ModeRelaxed, rec, res, Options{SkipSelectorInvariants: true}, report))
	assert.Zero(t, report.SelectorSkipped)

	rec.Result.WaitForSelector = "section"
	report = &Report{}
	assert.Empty(t, compare(ModeRelaxed, rec, res, Options{}, report))
	assert.Equal(t, 1, report.SelectorSkipped)
	assert.Zero(t, report.SelectorChecks)

	rec.Result.WaitForSelector = `[data-testid="missing"]`
	report = &Report{}
	require.Len(t, compare(ModeRelaxed, rec, res, Options{}, report), 1)
	assert.Equal(t, 1, report.SelectorChecks)
}

func TestParseSelector(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"button", true},
		{"#email", true},
		{"input#email", true},
		{`[data-testid="remember"]`, true},
		{"a[href*=about]", true},
		{"input[name='email']", true},
		{"div > p", false},
		{".greeting", false},
		{"p#a[name=x]", false},
		{"input[value=x]", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, ok := ParseSelector(tt.in)
			assert.Equal(t, tt.ok, ok)
		})
	}

	sel, ok := ParseSelector("a[href*=about]")
	require.True(t, ok)
	assert.True(t, sel.Matches(snapshot.Node{Tag: "a", Attributes: map[string]string{"href": "/about"}}))
	assert.False(t, sel.Matches(snapshot.Node{Tag: "a", Attributes: map[string]string{"href": "/home"}}))
	assert.False(t, sel.Matches(snapshot.Node{Tag: "button", Attributes: map[string]string{"href": "/about"}}))
	assert.False(t, sel.MatchAny(nil))
}
