package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/entrhq/pagetrace/pkg/browser"
	"github.com/entrhq/pagetrace/pkg/browser/static"
	"github.com/entrhq/pagetrace/pkg/snapshot"
)

const loginURL = "https://site.test/login"

const loginHTML = `<!doctype html>
<html><head><title>Login</title></head><body>
<h1>Sign in</h1>
<form action="/welcome" method="get">
  <label for="email">Email</label><input id="email" name="email" type="email">
  <input type="checkbox" name="remember" data-testid="remember">
  <select name="plan"><option value="free">Free</option><option value="pro">Pro</option></select>
  <button type="submit">Continue</button>
</form>
<a href="/about">About us</a>
<div hidden><button>Ghost</button></div>
<div id="consent"><p>We use cookies</p><button>Accept all</button></div>
</body></html>`

const welcomeURL = "https://site.test/welcome?email=a%40b.test&plan=pro&remember=on"

func newSiteLauncher() *static.Launcher {
	l := static.NewLauncher()
	l.Serve(loginURL, loginHTML)
	l.Serve(welcomeURL, `<html><head><title>Welcome</title></head><body><p>Hello a@b.test</p></body></html>`)
	l.ServeStatus("https://site.test/about", http.StatusNotFound, `<html><body><p>Missing</p></body></html>`)
	return l
}

// quietOptions disables stability waits so tests run fast.
func quietOptions() Options {
	return Options{
		Stability:    &StabilityPolicy{},
		RetryBackoff: time.Millisecond,
	}
}

func newTestSession(t *testing.T, launcher browser.Launcher, opts Options) *Session {
	t.Helper()
	s, err := New(context.Background(), launcher, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// wrapLauncher wraps every launched page.
type wrapLauncher struct {
	inner browser.Launcher
	wrap  func(browser.Page) browser.Page
}

func (l *wrapLauncher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Page, error) {
	p, err := l.inner.Launch(ctx, opts)
	if err != nil {
		return nil, err
	}
	return l.wrap(p), nil
}

// probePage counts provider calls and can fail or slow down page walks.
type probePage struct {
	browser.Page

	locates  atomic.Int32
	walks    atomic.Int32
	failWalk atomic.Bool
	walkTime time.Duration
	tracker  *overlapTracker
}

func (p *probePage) Locate(c browser.Candidate) browser.Locator {
	p.locates.Add(1)
	return p.Page.Locate(c)
}

func (p *probePage) RawPage(ctx context.Context) (*snapshot.RawPage, error) {
	p.walks.Add(1)
	if p.tracker != nil {
		p.tracker.enter()
		defer p.tracker.leave()
	}
	if p.walkTime > 0 {
		time.Sleep(p.walkTime)
	}
	if p.failWalk.Load() {
		return nil, errors.New("evaluation failed: execution context was destroyed")
	}
	return p.Page.RawPage(ctx)
}

func probeLauncher(inner browser.Launcher, configure func(*probePage)) (*wrapLauncher, func() *probePage) {
	var (
		mu    sync.Mutex
		pages []*probePage
	)
	l := &wrapLauncher{inner: inner, wrap: func(p browser.Page) browser.Page {
		pp := &probePage{Page: p}
		if configure != nil {
			configure(pp)
		}
		mu.Lock()
		pages = append(pages, pp)
		mu.Unlock()
		return pp
	}}
	latest := func() *probePage {
		mu.Lock()
		defer mu.Unlock()
		return pages[len(pages)-1]
	}
	return l, latest
}

// overlapTracker records the highest number of concurrent page walks.
type overlapTracker struct {
	mu      sync.Mutex
	active  int
	highest int
}

func (o *overlapTracker) enter() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active++
	o.highest = max(o.highest, o.active)
}

func (o *overlapTracker) leave() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active--
}

func (o *overlapTracker) peak() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.highest
}
