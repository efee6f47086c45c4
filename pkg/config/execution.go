package config

import (
	"fmt"
	"sync"
	"time"
)

const (
	// SectionIDExecution is the identifier for the action execution section
	SectionIDExecution = "execution"

	defaultProfile           = "balanced"
	defaultMaxActionAttempts = 1
	defaultRetryBackoff      = 250 * time.Millisecond
	defaultActionTimeout     = 30 * time.Second
	defaultScreenshotDir     = "screenshots"
)

var knownProfiles = map[string]bool{"fast": true, "balanced": true, "chatty": true}

// ExecutionSection holds how actions are executed: stability profile,
// retry policy, default timeout and screenshot capture.
type ExecutionSection struct {
	Profile           string        `json:"profile"`
	MaxActionAttempts int           `json:"max_action_attempts"`
	RetryBackoff      time.Duration `json:"retry_backoff"`
	ActionTimeout     time.Duration `json:"action_timeout"`
	Screenshots       bool          `json:"screenshots"`
	ScreenshotDir     string        `json:"screenshot_dir"`
	Annotate          bool          `json:"annotate"`
	mu                sync.RWMutex
}

// NewExecutionSection creates an execution section with default settings.
func NewExecutionSection() *ExecutionSection {
	s := &ExecutionSection{}
	s.Reset()
	return s
}

// ID returns the section identifier.
func (s *ExecutionSection) ID() string {
	return SectionIDExecution
}

// Title returns the section title.
func (s *ExecutionSection) Title() string {
	return "Execution"
}

// Description returns the section description.
func (s *ExecutionSection) Description() string {
	return "Stability profile, retry policy, action timeout and screenshot capture for every action."
}

// Data returns the current configuration data.
func (s *ExecutionSection) Data() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]any{
		"profile":             s.Profile,
		"max_action_attempts": s.MaxActionAttempts,
		"retry_backoff":       s.RetryBackoff.String(),
		"action_timeout":      s.ActionTimeout.String(),
		"screenshots":         s.Screenshots,
		"screenshot_dir":      s.ScreenshotDir,
		"annotate":            s.Annotate,
	}
}

// SetData updates the configuration from the provided data.
func (s *ExecutionSection) SetData(data map[string]any) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, value := range data {
		var err error
		switch key {
		case "profile":
			s.Profile, err = stringValue(key, value)
		case "max_action_attempts":
			s.MaxActionAttempts, err = intValue(key, value)
		case "retry_backoff":
			s.RetryBackoff, err = durationValue(key, value)
		case "action_timeout":
			s.ActionTimeout, err = durationValue(key, value)
		case "screenshots":
			s.Screenshots, err = boolValue(key, value)
		case "screenshot_dir":
			s.ScreenshotDir, err = stringValue(key, value)
		case "annotate":
			s.Annotate, err = boolValue(key, value)
		default:
			// Ignore unknown keys for forward compatibility
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the current configuration.
func (s *ExecutionSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !knownProfiles[s.Profile] {
		return fmt.Errorf("unknown stability profile %q", s.Profile)
	}
	if s.MaxActionAttempts < 1 || s.MaxActionAttempts > 10 {
		return fmt.Errorf("max_action_attempts must be between 1 and 10, got %d", s.MaxActionAttempts)
	}
	if s.RetryBackoff < 0 {
		return fmt.Errorf("retry_backoff must not be negative, got %v", s.RetryBackoff)
	}
	if s.ActionTimeout < 100*time.Millisecond {
		return fmt.Errorf("action_timeout must be at least 100ms, got %v", s.ActionTimeout)
	}
	if s.Screenshots && s.ScreenshotDir == "" {
		return fmt.Errorf("screenshot_dir is required when screenshots are enabled")
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *ExecutionSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Profile = defaultProfile
	s.MaxActionAttempts = defaultMaxActionAttempts
	s.RetryBackoff = defaultRetryBackoff
	s.ActionTimeout = defaultActionTimeout
	s.Screenshots = false
	s.ScreenshotDir = defaultScreenshotDir
	s.Annotate = false
}

// Snapshot returns a copy of the settings that is safe to read without locking.
func (s *ExecutionSection) Snapshot() ExecutionSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ExecutionSettings{
		Profile:           s.Profile,
		MaxActionAttempts: s.MaxActionAttempts,
		RetryBackoff:      s.RetryBackoff,
		ActionTimeout:     s.ActionTimeout,
		Screenshots:       s.Screenshots,
		ScreenshotDir:     s.ScreenshotDir,
		Annotate:          s.Annotate,
	}
}

// ExecutionSettings is a lock-free copy of ExecutionSection.
type ExecutionSettings struct {
	Profile           string
	MaxActionAttempts int
	RetryBackoff      time.Duration
	ActionTimeout     time.Duration
	Screenshots       bool
	ScreenshotDir     string
	Annotate          bool
}

func stringValue(key string, value any) (string, error) {
	if v, ok := value.(string); ok {
		return v, nil
	}
	return "", fmt.Errorf("invalid value type for %s: expected string, got %T", key, value)
}

func boolValue(key string, value any) (bool, error) {
	if v, ok := value.(bool); ok {
		return v, nil
	}
	return false, fmt.Errorf("invalid value type for %s: expected bool, got %T", key, value)
}

func intValue(key string, value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		// JSON numbers come as float64
		return int(v), nil
	}
	return 0, fmt.Errorf("invalid value type for %s: expected number, got %T", key, value)
}

// durationValue accepts duration strings and nanosecond counts.
func durationValue(key string, value any) (time.Duration, error) {
	switch v := value.(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid duration string for %s: %w", key, err)
		}
		return d, nil
	case float64:
		return time.Duration(v), nil
	case int64:
		return time.Duration(v), nil
	case int:
		return time.Duration(v), nil
	}
	return 0, fmt.Errorf("invalid value type for %s: expected string or number, got %T", key, value)
}
