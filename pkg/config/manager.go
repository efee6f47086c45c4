package config

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Section is one named group of settings persisted in the store.
type Section interface {
	// ID returns the key the section is stored under
	ID() string

	// Title returns a human-readable name
	Title() string

	// Description explains what the section controls
	Description() string

	// Data returns the current settings as plain values
	Data() map[string]interface{}

	// SetData updates settings from stored values
	SetData(data map[string]interface{}) error

	// Validate checks the current settings
	Validate() error

	// Reset restores the defaults
	Reset()
}

// Manager owns a store and the sections registered against it.
type Manager struct {
	store    Store
	sections map[string]Section
	order    []string
	mu       sync.RWMutex
}

// NewManager creates a manager with no sections.
func NewManager(store Store) *Manager {
	return &Manager{
		store:    store,
		sections: make(map[string]Section),
	}
}

// RegisterSection adds a section. Registration order is preserved.
func (m *Manager) RegisterSection(section Section) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := section.ID()
	if _, exists := m.sections[id]; exists {
		return fmt.Errorf("section %s already registered", id)
	}
	m.sections[id] = section
	m.order = append(m.order, id)
	return nil
}

// GetSection returns a registered section.
func (m *Manager) GetSection(id string) (Section, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	section, ok := m.sections[id]
	return section, ok
}

// GetSections returns all sections in registration order.
func (m *Manager) GetSections() []Section {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sections := make([]Section, 0, len(m.order))
	for _, id := range m.order {
		sections = append(sections, m.sections[id])
	}
	return sections
}

// LoadAll reloads the store and pushes its data into every section.
func (m *Manager) LoadAll() error {
	if err := m.store.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	for _, section := range m.GetSections() {
		data, err := m.store.GetSection(section.ID())
		if err != nil {
			return fmt.Errorf("failed to read section %s: %w", section.ID(), err)
		}
		if len(data) == 0 {
			continue
		}
		if err := section.SetData(data); err != nil {
			return fmt.Errorf("failed to apply section %s: %w", section.ID(), err)
		}
	}
	return nil
}

// SaveAll validates every section and writes them to the store.
func (m *Manager) SaveAll() error {
	sections := m.GetSections()
	for _, section := range sections {
		if err := section.Validate(); err != nil {
			return fmt.Errorf("invalid %s settings: %w", section.ID(), err)
		}
	}
	for _, section := range sections {
		if err := m.store.SetSection(section.ID(), section.Data()); err != nil {
			return fmt.Errorf("failed to store section %s: %w", section.ID(), err)
		}
	}
	return m.store.Save()
}

// ResetAll restores every section to its defaults.
func (m *Manager) ResetAll() {
	for _, section := range m.GetSections() {
		section.Reset()
	}
}

// Store returns the backing store.
func (m *Manager) Store() Store {
	return m.store
}

// ResetSection restores one section to its defaults and drops its stored
// values, so later default changes apply to it.
func (m *Manager) ResetSection(id string) error {
	section, ok := m.GetSection(id)
	if !ok {
		return fmt.Errorf("unknown config section %q", id)
	}
	section.Reset()
	if err := m.store.DeleteSection(id); err != nil {
		return fmt.Errorf("failed to drop section %s: %w", id, err)
	}
	return m.store.Save()
}

// Get returns the current value of a dotted key such as "execution.profile".
func (m *Manager) Get(key string) (any, error) {
	section, name, err := m.lookup(key)
	if err != nil {
		return nil, err
	}
	return section.Data()[name], nil
}

// Set parses raw into the type of the setting named by a dotted key and
// applies it. The section is left unchanged when the result does not validate.
func (m *Manager) Set(key, raw string) error {
	section, name, err := m.lookup(key)
	if err != nil {
		return err
	}
	previous := section.Data()

	var value any
	switch previous[name].(type) {
	case bool:
		value, err = strconv.ParseBool(raw)
	case int:
		value, err = strconv.Atoi(raw)
	default:
		value = raw
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %q", key, raw)
	}

	if err := section.SetData(map[string]any{name: value}); err != nil {
		_ = section.SetData(previous)
		return err
	}
	if err := section.Validate(); err != nil {
		_ = section.SetData(previous)
		return fmt.Errorf("invalid %s settings: %w", section.ID(), err)
	}
	return nil
}

func (m *Manager) lookup(key string) (Section, string, error) {
	id, name, ok := strings.Cut(key, ".")
	if !ok || id == "" || name == "" {
		return nil, "", fmt.Errorf("config key %q must look like section.setting", key)
	}
	section, found := m.GetSection(id)
	if !found {
		return nil, "", fmt.Errorf("unknown config section %q", id)
	}
	if _, known := section.Data()[name]; !known {
		return nil, "", fmt.Errorf("unknown setting %q in section %s", name, id)
	}
	return section, name, nil
}
