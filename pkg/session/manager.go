package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/entrhq/pagetrace/pkg/action"
	"github.com/entrhq/pagetrace/pkg/browser"
	"github.com/entrhq/pagetrace/pkg/trace"
)

// Default limits for a Manager
const (
	DefaultMaxSessions = 5
	DefaultIdleTimeout = 30 * time.Minute
)

// Manager tracks named sessions that share one launcher.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	launcher    browser.Launcher
	defaults    Options
	maxSessions int
	idleTimeout time.Duration
}

// NewManager creates a manager. defaults are applied to every session it starts.
func NewManager(launcher browser.Launcher, defaults Options) *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		launcher:    launcher,
		defaults:    defaults,
		maxSessions: DefaultMaxSessions,
		idleTimeout: DefaultIdleTimeout,
	}
}

// Start opens a new named session.
func (m *Manager) Start(ctx context.Context, name string) (*Session, error) {
	return m.start(ctx, name, m.defaults)
}

// Restore opens a named session from a saved manifest and navigates to its URL.
// manifestPath may be the manifest file or its directory.
func (m *Manager) Restore(ctx context.Context, name, manifestPath string) (*Session, error) {
	manifest, err := trace.LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = manifest.Name
	}

	opts := m.defaults
	opts.Launch.StorageStatePath = manifest.StorageStatePath
	s, err := m.start(ctx, name, opts)
	if err != nil {
		return nil, err
	}
	if manifest.URL == "" || manifest.URL == "about:blank" {
		return s, nil
	}
	res, err := s.Perform(ctx, &action.Navigate{URL: manifest.URL})
	if err == nil && !res.OK() {
		err = errors.New(res.Error)
	}
	if err != nil {
		_ = m.Close(name)
		return nil, fmt.Errorf("failed to restore %s: %w", manifest.URL, err)
	}
	return s, nil
}

func (m *Manager) start(ctx context.Context, name string, opts Options) (*Session, error) {
	if err := trace.ValidateName(name); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[name]; exists {
		return nil, fmt.Errorf("session %q already exists", name)
	}
	if len(m.sessions) >= m.maxSessions {
		return nil, fmt.Errorf("maximum number of sessions (%d) reached", m.maxSessions)
	}

	s, err := New(ctx, m.launcher, opts)
	if err != nil {
		return nil, err
	}
	m.sessions[name] = s
	return s, nil
}

// Get retrieves an active session by name.
func (m *Manager) Get(name string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, exists := m.sessions[name]
	if !exists {
		return nil, fmt.Errorf("session %q not found", name)
	}
	return s, nil
}

// Info describes a managed session.
type Info struct {
	Name       string
	ID         string
	URL        string
	Actions    int
	Paused     bool
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// List returns information about all active sessions, sorted by name.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]Info, 0, len(m.sessions))
	for name, s := range m.sessions {
		infos = append(infos, Info{
			Name:       name,
			ID:         s.ID(),
			URL:        s.URL(),
			Actions:    len(s.Results()),
			Paused:     s.pause.Paused(),
			CreatedAt:  s.CreatedAt(),
			LastUsedAt: s.LastUsed(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Close closes and removes a session.
func (m *Manager) Close(name string) error {
	m.mu.Lock()
	s, exists := m.sessions[name]
	delete(m.sessions, name)
	m.mu.Unlock()

	if !exists {
		return fmt.Errorf("session %q not found", name)
	}
	return s.Close()
}

// CloseAll closes every session.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing sessions: %v", errs)
	}
	return nil
}

// CleanupIdle closes sessions idle for longer than the idle timeout and
// returns their names.
func (m *Manager) CleanupIdle() ([]string, error) {
	now := time.Now()

	m.mu.Lock()
	idle := make(map[string]*Session)
	for name, s := range m.sessions {
		if now.Sub(s.LastUsed()) > m.idleTimeout {
			idle[name] = s
			delete(m.sessions, name)
		}
	}
	m.mu.Unlock()

	names := make([]string, 0, len(idle))
	var errs []error
	for name, s := range idle {
		names = append(names, name)
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	sort.Strings(names)
	if len(errs) > 0 {
		return names, fmt.Errorf("errors during cleanup: %v", errs)
	}
	return names, nil
}

// SetMaxSessions sets the maximum number of concurrent sessions.
func (m *Manager) SetMaxSessions(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxSessions = n
}

// SetIdleTimeout sets the idle timeout duration.
func (m *Manager) SetIdleTimeout(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idleTimeout = timeout
}
