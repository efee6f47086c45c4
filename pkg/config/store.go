package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
)

// SchemaVersion is the config file layout this build reads and writes.
const SchemaVersion = 1

// Store persists section data. Values are the plain JSON forms each
// section's Data returns.
type Store interface {
	// Load rereads the backing file, discarding unsaved changes
	Load() error

	// Save writes every section to the backing file
	Save() error

	// GetSection returns a copy of the stored values for a section
	GetSection(sectionID string) (map[string]any, error)

	// SetSection replaces the stored values for a section
	SetSection(sectionID string, data map[string]any) error

	// DeleteSection forgets a section so it falls back to defaults
	DeleteSection(sectionID string) error

	// Path returns where the data lives
	Path() string
}

// fileLayout is the on-disk form of a FileStore.
type fileLayout struct {
	Version  int                       `json:"version"`
	Sections map[string]map[string]any `json:"sections"`
}

// FileStore keeps sections in one JSON file, written atomically.
type FileStore struct {
	path     string
	mu       sync.RWMutex
	sections map[string]map[string]any
}

// DefaultPath returns ~/.pagetrace/config.json.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".pagetrace", "config.json"), nil
}

// NewFileStore opens the store at path, or DefaultPath when path is empty.
// A missing file is an empty store.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}

	store := &FileStore{path: path, sections: make(map[string]map[string]any)}
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return store, nil
}

// Load rereads the file. Files written by a newer schema are rejected.
func (s *FileStore) Load() error {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.mu.Lock()
		s.sections = make(map[string]map[string]any)
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var layout fileLayout
	if err := json.Unmarshal(raw, &layout); err != nil {
		return fmt.Errorf("failed to decode config file: %w", err)
	}
	if layout.Version > SchemaVersion {
		return fmt.Errorf("config version %d is newer than supported version %d", layout.Version, SchemaVersion)
	}
	if layout.Sections == nil {
		layout.Sections = make(map[string]map[string]any)
	}

	s.mu.Lock()
	s.sections = layout.Sections
	s.mu.Unlock()
	return nil
}

// Save writes the file through a temp file in the same directory.
func (s *FileStore) Save() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(fileLayout{Version: SchemaVersion, Sections: s.sections}, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}

// GetSection returns a copy of a section's values, empty when unknown.
func (s *FileStore) GetSection(sectionID string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.sections[sectionID]))
	maps.Copy(out, s.sections[sectionID])
	return out, nil
}

// SetSection stores a copy of data under sectionID.
func (s *FileStore) SetSection(sectionID string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sections[sectionID] = maps.Clone(data)
	return nil
}

// DeleteSection removes sectionID. Unknown ids are ignored.
func (s *FileStore) DeleteSection(sectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sections, sectionID)
	return nil
}

// Path returns the file path of the store.
func (s *FileStore) Path() string {
	return s.path
}
