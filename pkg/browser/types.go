package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/entrhq/pagetrace/pkg/snapshot"
)

// Strategy is how a provider locates an element for a Candidate.
type Strategy string

const (
	// StrategyTestID matches the test-id attribute exactly
	StrategyTestID Strategy = "testid"

	// StrategyID matches the id attribute exactly
	StrategyID Strategy = "id"

	// StrategyCSS evaluates a CSS selector
	StrategyCSS Strategy = "css"

	// StrategyRole matches accessible role and name
	StrategyRole Strategy = "role"
)

// Candidate is one provider-level way to locate an element.
type Candidate struct {
	// Label is the human-readable, unique form of the candidate
	Label string `json:"label"`

	// Strategy selects the locator kind
	Strategy Strategy `json:"strategy"`

	// Value is the test id, element id or CSS selector
	Value string `json:"value,omitempty"`

	// Role and Name are used by StrategyRole
	Role string `json:"role,omitempty"`
	Name string `json:"name,omitempty"`

	// Exact requires a full name match for StrategyRole
	Exact bool `json:"exact,omitempty"`
}

// TestIDCandidate builds a candidate matching a test id.
func TestIDCandidate(id string) Candidate {
	return Candidate{Label: "testid=" + id, Strategy: StrategyTestID, Value: id}
}

// IDCandidate builds a candidate matching an element id.
func IDCandidate(id string) Candidate {
	return Candidate{Label: "id=" + id, Strategy: StrategyID, Value: id}
}

// CSSCandidate builds a candidate from a CSS selector.
func CSSCandidate(selector string) Candidate {
	return Candidate{Label: "css=" + selector, Strategy: StrategyCSS, Value: selector}
}

// RoleCandidate builds a role+name candidate.
func RoleCandidate(role, name string, exact bool) Candidate {
	label := fmt.Sprintf("role=%s[name=%q]", role, name)
	if !exact {
		label = fmt.Sprintf("role=%s[name~=%q]", role, name)
	}
	return Candidate{Label: label, Strategy: StrategyRole, Role: role, Name: name, Exact: exact}
}

// NavigateOptions configures page navigation behavior.
type NavigateOptions struct {
	// WaitUntil specifies when to consider navigation successful
	// Valid values: "load", "domcontentloaded", "networkidle", "commit"
	WaitUntil string

	// Timeout bounds the navigation (0 means DefaultTimeout)
	Timeout time.Duration
}

// ClickOptions configures element clicking behavior.
type ClickOptions struct {
	// Button specifies which mouse button to use (left, right, middle)
	Button string

	// ClickCount is the number of times to click (1 for single, 2 for double)
	ClickCount int

	// Timeout bounds the click
	Timeout time.Duration
}

// LaunchOptions configures a new browser page.
type LaunchOptions struct {
	// Headless controls whether the browser runs without a visible window
	Headless bool

	// Viewport sets the initial viewport size
	Viewport snapshot.Viewport

	// Determinism installs the fixed-clock, seeded-RNG, no-animation hook
	Determinism bool

	// StorageStatePath imports cookies and storage from a previous session
	StorageStatePath string

	// Timeout sets the default timeout for page operations
	Timeout time.Duration
}

// Event is a page-side event observed between two drains.
type Event struct {
	// Type is one of the Event* constants
	Type string `json:"type"`

	// Level is the console level for console events
	Level string `json:"level,omitempty"`

	// Text is the message or failure reason
	Text string `json:"text,omitempty"`

	// URL is the request or frame URL, when relevant
	URL string `json:"url,omitempty"`

	At time.Time `json:"at"`
}

// Event types.
const (
	EventConsole       = "console"
	EventPageError     = "pageerror"
	EventRequestFailed = "requestfailed"
	EventNavigation    = "navigation"
)

// Launcher opens browser pages.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Page, error)
}

// Page is a single live browser page. Implementations are not safe for
// concurrent use; sessions serialize access.
type Page interface {
	snapshot.Source

	// Navigate loads url and returns the HTTP status of the main response (0 if unknown).
	Navigate(ctx context.Context, url string, opts NavigateOptions) (int, error)

	// Locate returns a lazy locator for a candidate.
	Locate(c Candidate) Locator

	// PressKey presses a key on whatever element has focus.
	PressKey(ctx context.Context, key string) error

	// WaitForSelector waits for a selector to reach state (attached, detached, visible, hidden).
	WaitForSelector(ctx context.Context, selector, state string, timeout time.Duration) error

	// URL is the current page URL.
	URL() string

	Title(ctx context.Context) (string, error)

	// TextContent returns the visible text of the document body.
	TextContent(ctx context.Context) (string, error)

	// Evaluate runs a script in the page and returns its JSON-decoded result.
	Evaluate(ctx context.Context, script string, arg any) (any, error)

	Screenshot(ctx context.Context, path string, fullPage bool) error

	SetViewport(ctx context.Context, width, height int) error

	// Route installs a network fulfilment rule. Later rules take precedence.
	Route(rule MockRule) error

	// WaitForNetworkIdle returns once the network is quiet or the timeout passes.
	WaitForNetworkIdle(ctx context.Context, timeout time.Duration) error

	// DrainEvents returns and clears the events buffered since the last drain.
	DrainEvents() []Event

	// Metrics reports page performance timings in milliseconds.
	Metrics(ctx context.Context) (map[string]float64, error)

	// SaveStorageState writes cookies and storage to path.
	SaveStorageState(path string) error

	Close() error
}

// Locator performs actions on the element a Candidate designates.
type Locator interface {
	Click(ctx context.Context, opts ClickOptions) error
	Fill(ctx context.Context, value string, timeout time.Duration) error
	SelectOption(ctx context.Context, values []string, timeout time.Duration) error
	Press(ctx context.Context, key string, timeout time.Duration) error
	BoundingBox(ctx context.Context, timeout time.Duration) (snapshot.Box, error)
	IsVisible(ctx context.Context) (bool, error)
}

// Default values for page operations
const (
	DefaultTimeout        = 30 * time.Second
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
)

// WithDefaults fills unset launch options.
func WithDefaults(opts LaunchOptions) LaunchOptions {
	if opts.Viewport.Width <= 0 || opts.Viewport.Height <= 0 {
		opts.Viewport = snapshot.Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return opts
}
