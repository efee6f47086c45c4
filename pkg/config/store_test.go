package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, path string, version int, sections map[string]map[string]any) {
	t.Helper()
	data, err := json.MarshalIndent(map[string]any{"version": version, "sections": sections}, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func TestNewFileStore(t *testing.T) {
	t.Run("creates store with custom path", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.json")

		store, err := NewFileStore(configPath)
		require.NoError(t, err)
		assert.Equal(t, configPath, store.Path())
	})

	t.Run("creates store with default path when empty", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("HOME", home)

		store, err := NewFileStore("")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, ".pagetrace", "config.json"), store.Path())
	})

	t.Run("loads existing config file", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.json")
		writeConfigFile(t, configPath, SchemaVersion, map[string]map[string]any{
			"execution": {"profile": "fast"},
		})

		store, err := NewFileStore(configPath)
		require.NoError(t, err)
		section, err := store.GetSection("execution")
		require.NoError(t, err)
		assert.Equal(t, "fast", section["profile"])
	})

	t.Run("rejects invalid JSON", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.json")
		require.NoError(t, os.WriteFile(configPath, []byte("{not json"), 0644))

		_, err := NewFileStore(configPath)
		assert.Error(t, err)
	})

	t.Run("rejects newer schema", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.json")
		writeConfigFile(t, configPath, SchemaVersion+1, nil)

		_, err := NewFileStore(configPath)
		assert.ErrorContains(t, err, "newer than supported")
	})
}

func TestFileStore_Save(t *testing.T) {
	t.Run("writes sections and creates directories", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "nested", "dir", "config.json")
		store, err := NewFileStore(configPath)
		require.NoError(t, err)

		require.NoError(t, store.SetSection("browser", map[string]any{"headless": false}))
		require.NoError(t, store.Save())

		raw, err := os.ReadFile(configPath)
		require.NoError(t, err)
		var decoded fileLayout
		require.NoError(t, json.Unmarshal(raw, &decoded))
		assert.Equal(t, SchemaVersion, decoded.Version)
		assert.Equal(t, false, decoded.Sections["browser"]["headless"])

		entries, err := os.ReadDir(filepath.Dir(configPath))
		require.NoError(t, err)
		assert.Len(t, entries, 1, "temp file left behind")
	})

	t.Run("reload sees saved data", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.json")
		store, err := NewFileStore(configPath)
		require.NoError(t, err)
		require.NoError(t, store.SetSection("execution", map[string]any{"annotate": true}))
		require.NoError(t, store.Save())

		other, err := NewFileStore(configPath)
		require.NoError(t, err)
		section, err := other.GetSection("execution")
		require.NoError(t, err)
		assert.Equal(t, true, section["annotate"])
	})
}

func TestFileStore_Copies(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	input := map[string]any{"key": "value"}
	require.NoError(t, store.SetSection("test", input))
	input["key"] = "changed"

	got, err := store.GetSection("test")
	require.NoError(t, err)
	assert.Equal(t, "value", got["key"])
	got["key"] = "mutated"

	again, err := store.GetSection("test")
	require.NoError(t, err)
	assert.Equal(t, "value", again["key"])

	missing, err := store.GetSection("missing")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestFileStore_DeleteSection(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	store, err := NewFileStore(configPath)
	require.NoError(t, err)
	require.NoError(t, store.SetSection("browser", map[string]any{"headless": false}))
	require.NoError(t, store.SetSection("execution", map[string]any{"annotate": true}))
	require.NoError(t, store.Save())

	require.NoError(t, store.DeleteSection("browser"))
	require.NoError(t, store.DeleteSection("unknown"))
	require.NoError(t, store.Save())

	reloaded, err := NewFileStore(configPath)
	require.NoError(t, err)
	browser, err := reloaded.GetSection("browser")
	require.NoError(t, err)
	assert.Empty(t, browser)
	execution, err := reloaded.GetSection("execution")
	require.NoError(t, err)
	assert.Equal(t, true, execution["annotate"])
}
