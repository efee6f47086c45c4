package static

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/entrhq/pagetrace/pkg/browser"
	"github.com/entrhq/pagetrace/pkg/snapshot"
)

// ErrUnsupported is returned for operations that need a script engine or renderer.
var ErrUnsupported = errors.New("not supported by the static provider")

const (
	rowHeight    = 24
	maxBodyBytes = 10 << 20
)

type page struct {
	launcher *Launcher
	opts     browser.LaunchOptions
	router   *browser.MockRouter

	mu       sync.Mutex
	closed   bool
	url      string
	doc      *html.Node
	viewport snapshot.Viewport
	cookies  []Cookie
	events   []browser.Event

	handles    map[*html.Node]string
	nextHandle int
	values     map[*html.Node]string
	checked    map[*html.Node]bool
	selected   map[*html.Node][]string
	focused    *html.Node
}

func newPage(l *Launcher, opts browser.LaunchOptions) *page {
	p := &page{
		launcher: l,
		opts:     opts,
		router:   browser.NewMockRouter(),
		url:      "about:blank",
		viewport: opts.Viewport,
	}
	p.setDocument("about:blank", "")
	return p
}

func (p *page) alive(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.closed {
		return fmt.Errorf("target closed: page has been closed")
	}
	return nil
}

func (p *page) push(e browser.Event) {
	e.At = time.Now()
	p.events = append(p.events, e)
}

func (p *page) setDocument(target, body string) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		// html.Parse only fails on reader errors
		doc, _ = html.Parse(strings.NewReader(""))
	}
	p.doc = doc
	p.url = target
	p.handles = make(map[*html.Node]string)
	p.values = make(map[*html.Node]string)
	p.checked = make(map[*html.Node]bool)
	p.selected = make(map[*html.Node][]string)
	p.focused = nil
}

func (p *page) body() *html.Node {
	if b := findTag(p.doc, "body"); b != nil {
		return b
	}
	return p.doc
}

func (p *page) handleOf(n *html.Node) string {
	if h, ok := p.handles[n]; ok {
		return h
	}
	p.nextHandle++
	h := fmt.Sprintf("h%d", p.nextHandle)
	p.handles[n] = h
	return h
}

func stripFragment(target string) string {
	if i := strings.IndexByte(target, '#'); i >= 0 {
		return target[:i]
	}
	return target
}

// load fetches target and replaces the document.
func (p *page) load(ctx context.Context, method, target string, form url.Values) (int, error) {
	status, body, err := p.fetch(ctx, method, target, form)
	if err != nil {
		p.push(browser.Event{Type: browser.EventRequestFailed, URL: target, Text: err.Error()})
		return 0, err
	}
	p.setDocument(target, body)
	p.push(browser.Event{Type: browser.EventNavigation, URL: target})
	return status, nil
}

func (p *page) fetch(ctx context.Context, method, target string, form url.Values) (int, string, error) {
	if rule, ok := p.router.Match(method, target); ok {
		return rule.EffectiveStatus(), rule.Body, nil
	}
	if method == http.MethodGet {
		if doc, ok := p.launcher.lookup(target); ok {
			return doc.Status, doc.HTML, nil
		}
		if doc, ok := p.launcher.lookup(stripFragment(target)); ok {
			return doc.Status, doc.HTML, nil
		}
	}

	client := p.launcher.httpClient()
	if client == nil {
		return 0, "", fmt.Errorf("navigation failed: net::ERR_NAME_NOT_RESOLVED at %s", target)
	}

	var reqBody io.Reader
	if form != nil && method != http.MethodGet {
		reqBody = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, stripFragment(target), reqBody)
	if err != nil {
		return 0, "", fmt.Errorf("navigation failed: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, c := range p.cookiesFor(req.URL) {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("navigation failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, "", fmt.Errorf("navigation failed: reading body: %w", err)
	}
	for _, c := range resp.Cookies() {
		p.storeCookie(req.URL, c)
	}
	return resp.StatusCode, string(data), nil
}

func (p *page) cookiesFor(u *url.URL) []Cookie {
	host := u.Hostname()
	var out []Cookie
	for _, c := range p.cookies {
		domain := strings.TrimPrefix(c.Domain, ".")
		if domain != "" && host != domain && !strings.HasSuffix(host, "."+domain) {
			continue
		}
		if c.Path != "" && !strings.HasPrefix(u.Path, c.Path) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (p *page) storeCookie(u *url.URL, c *http.Cookie) {
	domain := c.Domain
	if domain == "" {
		domain = u.Hostname()
	}
	path := c.Path
	if path == "" {
		path = "/"
	}
	for i, existing := range p.cookies {
		if existing.Name == c.Name && existing.Domain == domain && existing.Path == path {
			p.cookies[i].Value = c.Value
			return
		}
	}
	p.cookies = append(p.cookies, Cookie{Name: c.Name, Value: c.Value, Domain: domain, Path: path})
}

func (p *page) resolveURL(ref string) (string, error) {
	base, err := url.Parse(p.url)
	if err != nil {
		return "", err
	}
	rel, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	return base.ResolveReference(rel).String(), nil
}

func (p *page) Navigate(ctx context.Context, target string, opts browser.NavigateOptions) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.alive(ctx); err != nil {
		return 0, err
	}
	return p.load(ctx, http.MethodGet, target, nil)
}

// layout assigns synthetic boxes: visible elements are stacked in rows.
func (p *page) layout() ([]*html.Node, map[*html.Node]snapshot.Box) {
	var order []*html.Node
	boxes := make(map[*html.Node]snapshot.Box)
	row := 0
	walk(p.body(), func(n *html.Node) bool {
		if skipTags[n.Data] {
			return false
		}
		if _, overlay := attr(n, snapshot.OverlayAttribute); overlay {
			return false
		}
		order = append(order, n)
		if !isHidden(n) {
			boxes[n] = snapshot.Box{X: 0, Y: float64(row * rowHeight), Width: float64(p.viewport.Width), Height: rowHeight}
			row++
		}
		return true
	})
	return order, boxes
}

func (p *page) valueOf(n *html.Node) string {
	switch n.Data {
	case "input":
		if v, ok := p.values[n]; ok {
			return v
		}
		v, ok := attr(n, "value")
		if !ok && (inputType(n) == "checkbox" || inputType(n) == "radio") {
			return "on"
		}
		return v
	case "textarea":
		if v, ok := p.values[n]; ok {
			return v
		}
		return rawText(n)
	case "select":
		if sel := p.selectedValues(n); len(sel) > 0 {
			return sel[0]
		}
	}
	return ""
}

func (p *page) selectedValues(sel *html.Node) []string {
	if v, ok := p.selected[sel]; ok {
		return v
	}
	opts := options(sel)
	var out []string
	for _, o := range opts {
		if _, ok := attr(o, "selected"); ok {
			out = append(out, optionValue(o))
		}
	}
	if len(out) == 0 && len(opts) > 0 {
		if _, multiple := attr(sel, "multiple"); !multiple {
			out = append(out, optionValue(opts[0]))
		}
	}
	return out
}

func (p *page) isChecked(n *html.Node) bool {
	if v, ok := p.checked[n]; ok {
		return v
	}
	_, ok := attr(n, "checked")
	return ok
}

func (p *page) rawElement(n *html.Node, box snapshot.Box) snapshot.RawElement {
	_, readOnly := attr(n, "readonly")
	text := textOf(n)
	if isContentEditable(n) {
		if v, ok := p.values[n]; ok {
			text = v
		}
	}
	return snapshot.RawElement{
		Handle:          p.handleOf(n),
		Tag:             n.Data,
		Attributes:      attrs(n),
		Text:            text,
		OwnText:         hasOwnText(n) || (isContentEditable(n) && text != ""),
		Value:           p.valueOf(n),
		LabelText:       labelTextOf(p.doc, n),
		LabelledByText:  labelledByTextOf(p.doc, n),
		Path:            pathOf(n),
		Box:             box,
		Hidden:          isHidden(n),
		Disabled:        isDisabled(n),
		ReadOnly:        readOnly,
		ContentEditable: isContentEditable(n),
		Focusable:       isFocusable(n),
	}
}

func (p *page) RawPage(ctx context.Context) (*snapshot.RawPage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.alive(ctx); err != nil {
		return nil, err
	}

	order, boxes := p.layout()
	raw := &snapshot.RawPage{
		URL:      p.url,
		Title:    p.title(),
		Viewport: p.viewport,
		Elements: make([]snapshot.RawElement, 0, len(order)),
	}
	for _, n := range order {
		raw.Elements = append(raw.Elements, p.rawElement(n, boxes[n]))
	}
	return raw, nil
}

func (p *page) title() string {
	if t := findTag(p.doc, "title"); t != nil {
		return snapshot.CollapseWhitespace(rawTitle(t))
	}
	return ""
}

func rawTitle(t *html.Node) string {
	var b strings.Builder
	for c := t.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

func (p *page) Locate(c browser.Candidate) browser.Locator {
	return &locator{page: p, cand: c}
}

func (p *page) PressKey(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.alive(ctx); err != nil {
		return err
	}
	return p.pressOn(ctx, p.focused, key)
}

func (p *page) pressOn(ctx context.Context, n *html.Node, key string) error {
	if n == nil || key != "Enter" {
		return nil
	}
	switch {
	case n.Data == "input" && isFillable(n):
		if form := closest(n, "form"); form != nil {
			return p.submit(ctx, form, nil)
		}
	case n.Data == "a" || n.Data == "button" || n.Data == "input":
		return p.activate(ctx, n)
	}
	return nil
}

func (p *page) query(selector string) ([]*html.Node, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	var out []*html.Node
	for _, n := range cascadia.QueryAll(p.doc, sel) {
		if _, overlay := attr(n, snapshot.OverlayAttribute); !overlay {
			out = append(out, n)
		}
	}
	return out, nil
}

func (p *page) WaitForSelector(ctx context.Context, selector, state string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.alive(ctx); err != nil {
		return err
	}
	nodes, err := p.query(selector)
	if err != nil {
		return err
	}

	visible := false
	for _, n := range nodes {
		if !isHidden(n) {
			visible = true
			break
		}
	}

	var met bool
	switch state {
	case "attached":
		met = len(nodes) > 0
	case "detached":
		met = len(nodes) == 0
	case "hidden":
		met = !visible
	default:
		met = visible
	}
	// Static documents never change, so an unmet state cannot become met.
	if !met {
		return fmt.Errorf("wait failed: Timeout %dms exceeded waiting for selector %q to be %s",
			timeout.Milliseconds(), selector, stateOrVisible(state))
	}
	return nil
}

func stateOrVisible(state string) string {
	if state == "" {
		return "visible"
	}
	return state
}

func (p *page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *page) Title(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.alive(ctx); err != nil {
		return "", err
	}
	return p.title(), nil
}

func (p *page) TextContent(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.alive(ctx); err != nil {
		return "", err
	}
	var parts []string
	walk(p.body(), func(n *html.Node) bool {
		if skipTags[n.Data] || isHidden(n) {
			return false
		}
		if hasOwnText(n) {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					parts = append(parts, c.Data)
				}
			}
		}
		return true
	})
	return snapshot.CollapseWhitespace(strings.Join(parts, " ")), nil
}

func (p *page) Evaluate(ctx context.Context, script string, arg any) (any, error) {
	return nil, fmt.Errorf("evaluate: %w", ErrUnsupported)
}

func (p *page) Screenshot(ctx context.Context, path string, fullPage bool) error {
	return fmt.Errorf("screenshot: %w", ErrUnsupported)
}

func (p *page) SetViewport(ctx context.Context, width, height int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.alive(ctx); err != nil {
		return err
	}
	p.viewport = snapshot.Viewport{Width: width, Height: height}
	return nil
}

func (p *page) Route(rule browser.MockRule) error {
	return p.router.Add(rule)
}

func (p *page) WaitForNetworkIdle(ctx context.Context, timeout time.Duration) error {
	return ctx.Err()
}

func (p *page) DrainEvents() []browser.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.events
	p.events = nil
	return out
}

func (p *page) Metrics(ctx context.Context) (map[string]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.alive(ctx); err != nil {
		return nil, err
	}
	order, _ := p.layout()
	return map[string]float64{
		"domNodes":  float64(len(order)),
		"resources": 0,
	}, nil
}

func (p *page) SaveStorageState(path string) error {
	p.mu.Lock()
	state := StorageState{Cookies: append([]Cookie{}, p.cookies...), Origins: []Origin{}}
	if u, err := url.Parse(p.url); err == nil && u.Host != "" {
		state.Origins = append(state.Origins, Origin{Origin: u.Scheme + "://" + u.Host, LocalStorage: []StorageEntry{}})
	}
	p.mu.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode storage state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create storage state directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write storage state: %w", err)
	}
	return nil
}

func (p *page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
