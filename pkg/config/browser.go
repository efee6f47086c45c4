package config

import (
	"fmt"
	"sync"
	"time"
)

const (
	// SectionIDBrowser is the identifier for the browser settings section
	SectionIDBrowser = "browser"

	defaultViewportWidth  = 1280
	defaultViewportHeight = 720
	defaultTraceDir       = "traces"
	defaultSessionsDir    = "sessions"
	defaultMaxSessions    = 5
	defaultIdleTimeout    = 30 * time.Minute
)

// BrowserSection holds how pages are launched and where session artifacts
// are written.
type BrowserSection struct {
	Headless       bool          `json:"headless"`
	ViewportWidth  int           `json:"viewport_width"`
	ViewportHeight int           `json:"viewport_height"`
	Determinism    bool          `json:"determinism"`
	TraceDir       string        `json:"trace_dir"`
	SessionsDir    string        `json:"sessions_dir"`
	MaxSessions    int           `json:"max_sessions"`
	IdleTimeout    time.Duration `json:"idle_timeout"`
	mu             sync.RWMutex
}

// NewBrowserSection creates a browser section with default settings.
func NewBrowserSection() *BrowserSection {
	s := &BrowserSection{}
	s.Reset()
	return s
}

// ID returns the section identifier.
func (s *BrowserSection) ID() string {
	return SectionIDBrowser
}

// Title returns the section title.
func (s *BrowserSection) Title() string {
	return "Browser"
}

// Description returns the section description.
func (s *BrowserSection) Description() string {
	return "Headless mode, viewport, determinism hook and the directories traces and saved sessions are written to."
}

// Data returns the current configuration data.
func (s *BrowserSection) Data() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]any{
		"headless":        s.Headless,
		"viewport_width":  s.ViewportWidth,
		"viewport_height": s.ViewportHeight,
		"determinism":     s.Determinism,
		"trace_dir":       s.TraceDir,
		"sessions_dir":    s.SessionsDir,
		"max_sessions":    s.MaxSessions,
		"idle_timeout":    s.IdleTimeout.String(),
	}
}

// SetData updates the configuration from the provided data.
func (s *BrowserSection) SetData(data map[string]any) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, value := range data {
		var err error
		switch key {
		case "headless":
			s.Headless, err = boolValue(key, value)
		case "viewport_width":
			s.ViewportWidth, err = intValue(key, value)
		case "viewport_height":
			s.ViewportHeight, err = intValue(key, value)
		case "determinism":
			s.Determinism, err = boolValue(key, value)
		case "trace_dir":
			s.TraceDir, err = stringValue(key, value)
		case "sessions_dir":
			s.SessionsDir, err = stringValue(key, value)
		case "max_sessions":
			s.MaxSessions, err = intValue(key, value)
		case "idle_timeout":
			s.IdleTimeout, err = durationValue(key, value)
		default:
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the current configuration.
func (s *BrowserSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ViewportWidth <= 0 || s.ViewportHeight <= 0 {
		return fmt.Errorf("viewport must be positive, got %dx%d", s.ViewportWidth, s.ViewportHeight)
	}
	if s.TraceDir == "" {
		return fmt.Errorf("trace_dir is required")
	}
	if s.SessionsDir == "" {
		return fmt.Errorf("sessions_dir is required")
	}
	if s.MaxSessions < 1 {
		return fmt.Errorf("max_sessions must be at least 1, got %d", s.MaxSessions)
	}
	if s.IdleTimeout < time.Second {
		return fmt.Errorf("idle_timeout must be at least 1s, got %v", s.IdleTimeout)
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *BrowserSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Headless = true
	s.ViewportWidth = defaultViewportWidth
	s.ViewportHeight = defaultViewportHeight
	s.Determinism = true
	s.TraceDir = defaultTraceDir
	s.SessionsDir = defaultSessionsDir
	s.MaxSessions = defaultMaxSessions
	s.IdleTimeout = defaultIdleTimeout
}

// Snapshot returns a copy of the settings that is safe to read without locking.
func (s *BrowserSection) Snapshot() BrowserSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return BrowserSettings{
		Headless:       s.Headless,
		ViewportWidth:  s.ViewportWidth,
		ViewportHeight: s.ViewportHeight,
		Determinism:    s.Determinism,
		TraceDir:       s.TraceDir,
		SessionsDir:    s.SessionsDir,
		MaxSessions:    s.MaxSessions,
		IdleTimeout:    s.IdleTimeout,
	}
}

// SetHeadless sets whether pages run without a window.
func (s *BrowserSection) SetHeadless(headless bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Headless = headless
}

// BrowserSettings is a lock-free copy of BrowserSection.
type BrowserSettings struct {
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	Determinism    bool
	TraceDir       string
	SessionsDir    string
	MaxSessions    int
	IdleTimeout    time.Duration
}
