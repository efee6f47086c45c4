package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/pagetrace/pkg/snapshot"
)

// PlaywrightLauncher launches Chromium pages through Playwright.
type PlaywrightLauncher struct {
	mu          sync.Mutex
	playwright  *playwright.Playwright
	initialized bool
}

// NewPlaywrightLauncher creates a launcher. The driver is started lazily.
func NewPlaywrightLauncher() *PlaywrightLauncher {
	return &PlaywrightLauncher{}
}

// Initialize installs and starts the Playwright driver.
func (l *PlaywrightLauncher) Initialize() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.initialized {
		return nil
	}

	// Driver output would interleave with CLI output
	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	l.playwright = pw
	l.initialized = true
	return nil
}

// Launch starts a browser, context and page.
func (l *PlaywrightLauncher) Launch(ctx context.Context, opts LaunchOptions) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := l.Initialize(); err != nil {
		return nil, err
	}
	opts = WithDefaults(opts)

	l.mu.Lock()
	pw := l.playwright
	l.mu.Unlock()

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  opts.Viewport.Width,
			Height: opts.Viewport.Height,
		},
	}
	if opts.StorageStatePath != "" {
		contextOpts.StorageStatePath = playwright.String(opts.StorageStatePath)
	}
	bctx, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	if opts.Determinism {
		if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(DeterminismScript())}); err != nil {
			bctx.Close()
			browser.Close()
			return nil, fmt.Errorf("failed to install determinism hook: %w", err)
		}
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		browser.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(millis(opts.Timeout))

	p := &playwrightPage{
		browser: browser,
		context: bctx,
		page:    page,
		router:  NewMockRouter(),
	}
	p.listen()
	return p, nil
}

// Shutdown stops the Playwright driver.
func (l *PlaywrightLauncher) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.initialized || l.playwright == nil {
		return nil
	}
	if err := l.playwright.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	l.initialized = false
	return nil
}

type playwrightPage struct {
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	router  *MockRouter

	mu     sync.Mutex
	routed bool
	events []Event
	docs   documentSeq
}

// documentSeq numbers the documents a page has walked.
type documentSeq struct {
	mu   sync.Mutex
	next int
}

// offer returns the number a not yet walked document should adopt.
func (d *documentSeq) offer() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.next == 0 {
		d.next = 1
	}
	return d.next
}

// observe records the document number a walk reported.
func (d *documentSeq) observe(doc int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if doc >= d.next {
		d.next = doc + 1
	}
}

func (p *playwrightPage) push(e Event) {
	e.At = time.Now()
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *playwrightPage) listen() {
	p.page.OnConsole(func(m playwright.ConsoleMessage) {
		p.push(Event{Type: EventConsole, Level: m.Type(), Text: m.Text()})
	})
	p.page.OnPageError(func(err error) {
		p.push(Event{Type: EventPageError, Text: err.Error()})
	})
	p.page.OnRequestFailed(func(r playwright.Request) {
		e := Event{Type: EventRequestFailed, URL: r.URL()}
		if failure := r.Failure(); failure != nil {
			e.Text = failure.Error()
		}
		p.push(e)
	})
	p.page.OnFrameNavigated(func(f playwright.Frame) {
		if f.ParentFrame() == nil {
			p.push(Event{Type: EventNavigation, URL: f.URL()})
		}
	})
}

func (p *playwrightPage) RawPage(ctx context.Context) (*snapshot.RawPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := p.page.Evaluate(snapshot.WalkScript, p.docs.offer())
	if err != nil {
		return nil, fmt.Errorf("element walk failed: %w", err)
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("element walk result: %w", err)
	}
	var raw snapshot.RawPage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("element walk result: %w", err)
	}
	p.docs.observe(raw.Document)
	return &raw, nil
}

func (p *playwrightPage) Navigate(ctx context.Context, url string, opts NavigateOptions) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	gotoOpts := playwright.PageGotoOptions{}
	if opts.WaitUntil != "" {
		waitUntil := playwright.WaitUntilState(opts.WaitUntil)
		gotoOpts.WaitUntil = &waitUntil
	}
	if opts.Timeout > 0 {
		gotoOpts.Timeout = playwright.Float(millis(opts.Timeout))
	}

	resp, err := p.page.Goto(url, gotoOpts)
	if err != nil {
		return 0, fmt.Errorf("navigation failed: %w", err)
	}
	if resp == nil {
		return 0, nil
	}
	return resp.Status(), nil
}

func (p *playwrightPage) Locate(c Candidate) Locator {
	var loc playwright.Locator
	switch c.Strategy {
	case StrategyTestID:
		loc = p.page.GetByTestId(c.Value)
	case StrategyID:
		loc = p.page.Locator(fmt.Sprintf("[id=%s]", cssString(c.Value)))
	case StrategyRole:
		loc = p.page.GetByRole(playwright.AriaRole(c.Role), playwright.PageGetByRoleOptions{
			Name:  c.Name,
			Exact: playwright.Bool(c.Exact),
		})
	default:
		loc = p.page.Locator(c.Value)
	}
	return &playwrightLocator{loc: loc.First()}
}

func (p *playwrightPage) PressKey(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.page.Keyboard().Press(key); err != nil {
		return fmt.Errorf("press failed: %w", err)
	}
	return nil
}

func (p *playwrightPage) WaitForSelector(ctx context.Context, selector, state string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	waitOpts := playwright.PageWaitForSelectorOptions{}
	if state != "" {
		s := playwright.WaitForSelectorState(state)
		waitOpts.State = &s
	}
	if timeout > 0 {
		waitOpts.Timeout = playwright.Float(millis(timeout))
	}
	if _, err := p.page.WaitForSelector(selector, waitOpts); err != nil {
		return fmt.Errorf("wait failed: %w", err)
	}
	return nil
}

func (p *playwrightPage) URL() string {
	return p.page.URL()
}

func (p *playwrightPage) Title(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.Title()
}

func (p *playwrightPage) TextContent(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := p.page.Locator("body").InnerText()
	if err != nil {
		return "", fmt.Errorf("text extraction failed: %w", err)
	}
	return text, nil
}

func (p *playwrightPage) Evaluate(ctx context.Context, script string, arg any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if arg == nil {
		return p.page.Evaluate(script)
	}
	return p.page.Evaluate(script, arg)
}

func (p *playwrightPage) Screenshot(ctx context.Context, path string, fullPage bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(fullPage),
	})
	if err != nil {
		return fmt.Errorf("screenshot failed: %w", err)
	}
	return nil
}

func (p *playwrightPage) SetViewport(ctx context.Context, width, height int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.SetViewportSize(width, height)
}

func (p *playwrightPage) Route(rule MockRule) error {
	if err := p.router.Add(rule); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.routed {
		return nil
	}
	if err := p.page.Route("**/*", p.handleRoute); err != nil {
		return fmt.Errorf("failed to install network route: %w", err)
	}
	p.routed = true
	return nil
}

func (p *playwrightPage) handleRoute(route playwright.Route) {
	req := route.Request()
	rule, ok := p.router.Match(req.Method(), req.URL())
	if !ok {
		_ = route.Continue()
		return
	}

	opts := playwright.RouteFulfillOptions{
		Status:  playwright.Int(rule.EffectiveStatus()),
		Headers: rule.Headers,
		Body:    rule.Body,
	}
	if rule.ContentType != "" {
		opts.ContentType = playwright.String(rule.ContentType)
	}
	if err := route.Fulfill(opts); err != nil {
		p.push(Event{Type: EventRequestFailed, URL: req.URL(), Text: "mock fulfil failed: " + err.Error()})
	}
}

func (p *playwrightPage) WaitForNetworkIdle(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	state := playwright.LoadState("networkidle")
	return p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   &state,
		Timeout: playwright.Float(millis(timeout)),
	})
}

func (p *playwrightPage) DrainEvents() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.events
	p.events = nil
	return out
}

const metricsScript = `() => {
  const nav = performance.getEntriesByType("navigation")[0];
  const paint = performance.getEntriesByName("first-contentful-paint")[0];
  const out = { resources: performance.getEntriesByType("resource").length };
  if (nav) {
    out.domContentLoadedMs = nav.domContentLoadedEventEnd - nav.startTime;
    out.loadMs = nav.loadEventEnd - nav.startTime;
    out.responseMs = nav.responseEnd - nav.requestStart;
  }
  if (paint) out.firstContentfulPaintMs = paint.startTime;
  if (performance.memory) out.jsHeapUsedBytes = performance.memory.usedJSHeapSize;
  return out;
}`

func (p *playwrightPage) Metrics(ctx context.Context) (map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := p.page.Evaluate(metricsScript)
	if err != nil {
		return nil, fmt.Errorf("performance metrics failed: %w", err)
	}
	raw, ok := result.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("performance metrics: unexpected result %T", result)
	}
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		switch n := v.(type) {
		case float64:
			out[k] = n
		case int:
			out[k] = float64(n)
		case int64:
			out[k] = float64(n)
		}
	}
	return out, nil
}

func (p *playwrightPage) SaveStorageState(path string) error {
	if _, err := p.context.StorageState(path); err != nil {
		return fmt.Errorf("failed to export storage state: %w", err)
	}
	return nil
}

func (p *playwrightPage) Close() error {
	var errs []string
	if err := p.page.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := p.context.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := p.browser.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing page: %s", strings.Join(errs, "; "))
	}
	return nil
}

type playwrightLocator struct {
	loc playwright.Locator
}

func (l *playwrightLocator) Click(ctx context.Context, opts ClickOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clickOpts := playwright.LocatorClickOptions{}
	if opts.Button != "" {
		button := playwright.MouseButton(opts.Button)
		clickOpts.Button = &button
	}
	if opts.ClickCount > 0 {
		clickOpts.ClickCount = playwright.Int(opts.ClickCount)
	}
	if opts.Timeout > 0 {
		clickOpts.Timeout = playwright.Float(millis(opts.Timeout))
	}
	if err := l.loc.Click(clickOpts); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

func (l *playwrightLocator) Fill(ctx context.Context, value string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.loc.Fill(value, playwright.LocatorFillOptions{Timeout: playwright.Float(millis(timeout))}); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	return nil
}

func (l *playwrightLocator) SelectOption(ctx context.Context, values []string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := l.loc.SelectOption(
		playwright.SelectOptionValues{Values: &values},
		playwright.LocatorSelectOptionOptions{Timeout: playwright.Float(millis(timeout))},
	)
	if err != nil {
		return fmt.Errorf("select failed: %w", err)
	}
	return nil
}

func (l *playwrightLocator) Press(ctx context.Context, key string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.loc.Press(key, playwright.LocatorPressOptions{Timeout: playwright.Float(millis(timeout))}); err != nil {
		return fmt.Errorf("press failed: %w", err)
	}
	return nil
}

func (l *playwrightLocator) BoundingBox(ctx context.Context, timeout time.Duration) (snapshot.Box, error) {
	if err := ctx.Err(); err != nil {
		return snapshot.Box{}, err
	}
	rect, err := l.loc.BoundingBox(playwright.LocatorBoundingBoxOptions{Timeout: playwright.Float(millis(timeout))})
	if err != nil {
		return snapshot.Box{}, fmt.Errorf("bounding box failed: %w", err)
	}
	if rect == nil {
		return snapshot.Box{}, nil
	}
	return snapshot.Box{X: rect.X, Y: rect.Y, Width: rect.Width, Height: rect.Height}, nil
}

func (l *playwrightLocator) IsVisible(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return l.loc.IsVisible()
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// cssString quotes s as a CSS string literal.
func cssString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\a `)
	return `"` + r.Replace(s) + `"`
}
