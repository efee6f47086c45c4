package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// Session directory layout under a sessions root.
const (
	ManifestFile     = "manifest.json"
	StorageStateFile = "storage-state.json"
)

// Manifest describes a saved session.
type Manifest struct {
	Version          int       `json:"version"`
	CreatedAt        time.Time `json:"createdAt"`
	Name             string    `json:"name"`
	URL              string    `json:"url"`
	StorageStatePath string    `json:"storageStatePath"`
}

var sessionName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// ValidateName rejects names that are unsafe as directory names.
func ValidateName(name string) error {
	if !sessionName.MatchString(name) {
		return fmt.Errorf("invalid session name %q: use letters, digits, '.', '_' or '-'", name)
	}
	return nil
}

// SessionDir returns the directory a named session is saved in.
func SessionDir(root, name string) string {
	return filepath.Join(root, name)
}

// SaveManifest writes the manifest into dir.
func SaveManifest(dir string, m *Manifest) (string, error) {
	if m.Version == 0 {
		m.Version = Version
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode manifest: %w", err)
	}
	path := filepath.Join(dir, ManifestFile)
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// LoadManifest reads a manifest. path may be the manifest file or its directory.
func LoadManifest(path string) (*Manifest, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, ManifestFile)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", path, err)
	}
	if m.StorageStatePath != "" && !filepath.IsAbs(m.StorageStatePath) {
		m.StorageStatePath = filepath.Join(filepath.Dir(path), m.StorageStatePath)
	}
	return &m, nil
}
