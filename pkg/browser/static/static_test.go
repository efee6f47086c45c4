package static

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/pagetrace/pkg/browser"
	"github.com/entrhq/pagetrace/pkg/snapshot"
)

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
<div data-pagetrace-overlay><button>Overlay</button></div>
</body></html>`

const welcomeURL = "https://site.test/welcome?email=a%40b.test&plan=pro&remember=on"

func newLoginPage(t *testing.T) (browser.Page, *Launcher) {
	t.Helper()
	l := NewLauncher()
	l.Serve("https://site.test/login", loginHTML)
	l.Serve(welcomeURL, `<html><head><title>Welcome</title></head><body><p>Hello a@b.test</p></body></html>`)
	l.ServeStatus("https://site.test/about", http.StatusNotFound, `<html><body><p>Missing</p></body></html>`)

	p, err := l.Launch(context.Background(), browser.LaunchOptions{})
	require.NoError(t, err)
	status, err := p.Navigate(context.Background(), "https://site.test/login", browser.NavigateOptions{})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	return p, l
}

func findNode(s *snapshot.Snapshot, role, name string) (snapshot.Node, bool) {
	for _, n := range s.Nodes {
		if n.Role == role && n.Name == name {
			return n, true
		}
	}
	return snapshot.Node{}, false
}

func TestRawPage_Projection(t *testing.T) {
	p, l := newLoginPage(t)
	ctx := context.Background()
	assert.Equal(t, 1, l.Launches())

	title, err := p.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Login", title)

	s, err := snapshot.NewCapturer(snapshot.NewRegistry()).Capture(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "https://site.test/login", s.URL)

	email, ok := findNode(s, "textbox", "Email")
	require.True(t, ok)
	assert.True(t, email.Visible)
	assert.True(t, email.Editable)
	assert.Equal(t, "id:email", email.StableRef)

	ghost, ok := findNode(s, "button", "Ghost")
	require.True(t, ok)
	assert.False(t, ghost.Visible)

	_, ok = findNode(s, "button", "Overlay")
	assert.False(t, ok)

	link, ok := findNode(s, "link", "About us")
	require.True(t, ok)
	assert.Equal(t, "href:/about", link.StableRef)
}

func TestRawPage_HandlesAreStable(t *testing.T) {
	p, _ := newLoginPage(t)
	ctx := context.Background()

	first, err := p.RawPage(ctx)
	require.NoError(t, err)
	second, err := p.RawPage(ctx)
	require.NoError(t, err)

	require.Equal(t, len(first.Elements), len(second.Elements))
	for i := range first.Elements {
		assert.Equal(t, first.Elements[i].Handle, second.Elements[i].Handle)
	}
}

func TestFormFlow(t *testing.T) {
	p, _ := newLoginPage(t)
	ctx := context.Background()
	timeout := time.Second

	require.NoError(t, p.Locate(browser.IDCandidate("email")).Fill(ctx, "a@b.test", timeout))
	require.NoError(t, p.Locate(browser.CSSCandidate("select[name=plan]")).SelectOption(ctx, []string{"Pro"}, timeout))
	require.NoError(t, p.Locate(browser.TestIDCandidate("remember")).Click(ctx, browser.ClickOptions{Timeout: timeout}))

	raw, err := p.RawPage(ctx)
	require.NoError(t, err)
	var emailValue string
	for _, el := range raw.Elements {
		if el.Attributes["id"] == "email" {
			emailValue = el.Value
		}
	}
	assert.Equal(t, "a@b.test", emailValue)

	require.NoError(t, p.Locate(browser.RoleCandidate("button", "Continue", true)).Click(ctx, browser.ClickOptions{Timeout: timeout}))
	assert.Equal(t, welcomeURL, p.URL())

	text, err := p.TextContent(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Hello a@b.test", text)

	events := p.DrainEvents()
	require.NotEmpty(t, events)
	assert.Equal(t, browser.EventNavigation, events[len(events)-1].Type)
	assert.Empty(t, p.DrainEvents())
}

func TestClick_LinkAndStatus(t *testing.T) {
	p, _ := newLoginPage(t)
	ctx := context.Background()

	err := p.Locate(browser.RoleCandidate("link", "about", false)).Click(ctx, browser.ClickOptions{Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "https://site.test/about", p.URL())
}

func TestLocatorFailures(t *testing.T) {
	p, _ := newLoginPage(t)
	ctx := context.Background()
	opts := browser.ClickOptions{Timeout: 1500 * time.Millisecond}

	err := p.Locate(browser.RoleCandidate("button", "Ghost", true)).Click(ctx, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Timeout 1500ms exceeded")
	assert.Contains(t, err.Error(), "not visible")

	err = p.Locate(browser.IDCandidate("missing")).Click(ctx, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no matching element")

	err = p.Locate(browser.CSSCandidate("h1")).Fill(ctx, "x", time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an <input>")

	err = p.Locate(browser.CSSCandidate("[[")).Click(ctx, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid selector")

	visible, err := p.Locate(browser.IDCandidate("missing")).IsVisible(ctx)
	require.NoError(t, err)
	assert.False(t, visible)
}

func TestWaitForSelector(t *testing.T) {
	p, _ := newLoginPage(t)
	ctx := context.Background()

	assert.NoError(t, p.WaitForSelector(ctx, "h1", "", time.Second))
	assert.NoError(t, p.WaitForSelector(ctx, "#nope", "detached", time.Second))
	assert.NoError(t, p.WaitForSelector(ctx, "div[hidden] button", "hidden", time.Second))
	assert.NoError(t, p.WaitForSelector(ctx, "div[hidden] button", "attached", time.Second))

	err := p.WaitForSelector(ctx, "#nope", "visible", 2*time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Timeout 2000ms exceeded")
}

func TestRoute_Fulfils(t *testing.T) {
	p, _ := newLoginPage(t)
	ctx := context.Background()

	require.NoError(t, p.Route(browser.MockRule{Pattern: "https://site.test/api/*", Status: 202, Body: "<p>mocked</p>"}))
	status, err := p.Navigate(ctx, "https://site.test/api/items", browser.NavigateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 202, status)

	text, err := p.TextContent(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mocked", text)
}

func TestNavigate_Unreachable(t *testing.T) {
	p, err := NewLauncher().Launch(context.Background(), browser.LaunchOptions{})
	require.NoError(t, err)

	_, err = p.Navigate(context.Background(), "https://nowhere.test/", browser.NavigateOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "net::ERR_NAME_NOT_RESOLVED")

	events := p.DrainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, browser.EventRequestFailed, events[0].Type)
}

func TestClosedPage(t *testing.T) {
	p, _ := newLoginPage(t)
	require.NoError(t, p.Close())

	_, err := p.RawPage(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target closed")
}

func TestUnsupported(t *testing.T) {
	p, _ := newLoginPage(t)
	_, err := p.Evaluate(context.Background(), "() => 1", nil)
	assert.True(t, errors.Is(err, ErrUnsupported))
	assert.True(t, errors.Is(p.Screenshot(context.Background(), "x.png", false), ErrUnsupported))
}

func TestStorageStateRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("sid"); err == nil {
			_, _ = w.Write([]byte("<html><body><p>sid=" + c.Value + "</p></body></html>"))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc", Path: "/"})
		_, _ = w.Write([]byte("<html><body><p>new</p></body></html>"))
	}))
	defer srv.Close()

	ctx := context.Background()
	l := NewLauncher().WithClient(srv.Client())

	first, err := l.Launch(ctx, browser.LaunchOptions{})
	require.NoError(t, err)
	_, err = first.Navigate(ctx, srv.URL+"/", browser.NavigateOptions{})
	require.NoError(t, err)
	text, err := first.TextContent(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", text)

	statePath := filepath.Join(t.TempDir(), "state", "storage.json")
	require.NoError(t, first.SaveStorageState(statePath))
	_, err = os.Stat(statePath)
	require.NoError(t, err)

	second, err := l.Launch(ctx, browser.LaunchOptions{StorageStatePath: statePath})
	require.NoError(t, err)
	_, err = second.Navigate(ctx, srv.URL+"/", browser.NavigateOptions{})
	require.NoError(t, err)
	text, err = second.TextContent(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sid=abc", text)

	_, err = l.Launch(ctx, browser.LaunchOptions{StorageStatePath: filepath.Join(t.TempDir(), "missing.json")})
	assert.Error(t, err)
}
