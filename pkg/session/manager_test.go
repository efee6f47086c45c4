package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/pagetrace/pkg/action"
)

func TestManager_Lifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newSiteLauncher(), quietOptions())
	m.SetMaxSessions(2)
	defer m.CloseAll()

	a, err := m.Start(ctx, "alpha")
	require.NoError(t, err)
	_, err = m.Start(ctx, "alpha")
	assert.ErrorContains(t, err, "already exists")
	_, err = m.Start(ctx, "bad/name")
	assert.Error(t, err)

	_, err = m.Start(ctx, "beta")
	require.NoError(t, err)
	_, err = m.Start(ctx, "gamma")
	assert.ErrorContains(t, err, "maximum number of sessions (2)")

	got, err := m.Get("alpha")
	require.NoError(t, err)
	assert.Same(t, a, got)

	perform(t, a, &action.Navigate{URL: loginURL})
	infos := m.List()
	require.Len(t, infos, 2)
	assert.Equal(t, "alpha", infos[0].Name)
	assert.Equal(t, loginURL, infos[0].URL)
	assert.Equal(t, 1, infos[0].Actions)
	assert.Equal(t, "beta", infos[1].Name)

	require.NoError(t, m.Close("alpha"))
	assert.True(t, a.Closed())
	_, err = m.Get("alpha")
	assert.Error(t, err)
	assert.Error(t, m.Close("alpha"))

	require.NoError(t, m.CloseAll())
	assert.Empty(t, m.List())
}

func TestManager_CleanupIdle(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newSiteLauncher(), quietOptions())
	defer m.CloseAll()

	_, err := m.Start(ctx, "stale")
	require.NoError(t, err)
	m.SetIdleTimeout(200 * time.Millisecond)
	time.Sleep(300 * time.Millisecond)

	_, err = m.Start(ctx, "fresh")
	require.NoError(t, err)

	closed, err := m.CleanupIdle()
	require.NoError(t, err)
	assert.Equal(t, []string{"stale"}, closed)
	require.Len(t, m.List(), 1)
	assert.Equal(t, "fresh", m.List()[0].Name)
}

func TestManager_Restore(t *testing.T) {
	ctx := context.Background()
	launcher := newSiteLauncher()
	m := NewManager(launcher, quietOptions())
	defer m.CloseAll()

	src, err := m.Start(ctx, "source")
	require.NoError(t, err)
	perform(t, src, &action.Navigate{URL: loginURL})
	root := t.TempDir()
	manifest, err := src.SaveSession(ctx, "login", root)
	require.NoError(t, err)

	restored, err := m.Restore(ctx, "", filepath.Dir(manifest))
	require.NoError(t, err)
	assert.Equal(t, loginURL, restored.URL())
	require.Len(t, restored.Results(), 1)
	assert.True(t, restored.Results()[0].OK())

	_, err = m.Restore(ctx, "other", filepath.Join(root, "missing"))
	assert.Error(t, err)
}
