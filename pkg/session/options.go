package session

import (
	"fmt"
	"time"

	"github.com/entrhq/pagetrace/pkg/browser"
	"github.com/entrhq/pagetrace/pkg/logging"
	"github.com/entrhq/pagetrace/pkg/trace"
)

// Default values for session options
const (
	DefaultMaxActionAttempts = 1
	DefaultRetryBackoff      = 250 * time.Millisecond
)

// Options configures a Session.
type Options struct {
	// ID overrides the generated session id
	ID string

	// Profile selects the stability policy
	Profile Profile

	// Stability replaces the profile's policy when set
	Stability *StabilityPolicy

	// MaxActionAttempts bounds how often a retryable action is attempted
	MaxActionAttempts int

	// RetryBackoff is the wait between attempts
	RetryBackoff time.Duration

	// Screenshots captures a screenshot after every action into ScreenshotDir
	Screenshots   bool
	ScreenshotDir string

	// Annotate outlines the resolved target before each screenshot
	Annotate bool

	// Launch is passed to the provider when the page is opened
	Launch browser.LaunchOptions

	Logger  *logging.Logger
	Metrics *Metrics
}

func (o Options) withDefaults() Options {
	if o.Profile == "" {
		o.Profile = ProfileBalanced
	}
	if o.MaxActionAttempts <= 0 {
		o.MaxActionAttempts = DefaultMaxActionAttempts
	}
	if o.RetryBackoff < 0 {
		o.RetryBackoff = 0
	} else if o.RetryBackoff == 0 {
		o.RetryBackoff = DefaultRetryBackoff
	}
	if o.Screenshots && o.ScreenshotDir == "" {
		o.ScreenshotDir = "screenshots"
	}
	o.Launch = browser.WithDefaults(o.Launch)
	if o.Logger == nil {
		o.Logger = logging.NewDiscard("session")
	}
	return o
}

// Validate checks the options after defaults are applied.
func (o Options) Validate() error {
	if _, err := PolicyFor(o.Profile); err != nil && o.Stability == nil {
		return err
	}
	if o.Stability != nil {
		if o.Stability.Quiet < 0 || o.Stability.Cap < 0 || o.Stability.Multiplier < 0 {
			return fmt.Errorf("stability policy values cannot be negative")
		}
	}
	return nil
}

func (o Options) policy() StabilityPolicy {
	if o.Stability != nil {
		return *o.Stability
	}
	p, _ := PolicyFor(o.Profile)
	return p
}

// TraceOptions is the persisted form of the options a replay needs.
func (o Options) TraceOptions() trace.Options {
	return trace.Options{
		Profile:           string(o.Profile),
		MaxActionAttempts: o.MaxActionAttempts,
		RetryBackoffMs:    o.RetryBackoff.Milliseconds(),
		Viewport:          o.Launch.Viewport,
		Determinism:       o.Launch.Determinism,
		Headless:          o.Launch.Headless,
	}
}

// OptionsFromTrace rebuilds session options recorded in a trace.
func OptionsFromTrace(t trace.Options) Options {
	return Options{
		Profile:           Profile(t.Profile),
		MaxActionAttempts: t.MaxActionAttempts,
		RetryBackoff:      time.Duration(t.RetryBackoffMs) * time.Millisecond,
		Launch: browser.LaunchOptions{
			Headless:    t.Headless,
			Viewport:    t.Viewport,
			Determinism: t.Determinism,
		},
	}
}
