package config

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSection is a test implementation of the Section interface
type mockSection struct {
	id          string
	data        map[string]interface{}
	setErr      error
	validateErr error
}

func (m *mockSection) ID() string                   { return m.id }
func (m *mockSection) Title() string                { return "Mock " + m.id }
func (m *mockSection) Description() string          { return "mock section" }
func (m *mockSection) Data() map[string]interface{} { return m.data }
func (m *mockSection) Validate() error              { return m.validateErr }
func (m *mockSection) Reset()                       { m.data = make(map[string]interface{}) }

func (m *mockSection) SetData(data map[string]interface{}) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data = data
	return nil
}

// mockStore is a test implementation of the Store interface
type mockStore struct {
	sections map[string]map[string]interface{}
	loadErr  error
	saveErr  error
	saves    int
}

func newMockStore() *mockStore {
	return &mockStore{sections: make(map[string]map[string]interface{})}
}

func (m *mockStore) Load() error { return m.loadErr }

func (m *mockStore) Save() error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	return nil
}

func (m *mockStore) GetSection(id string) (map[string]interface{}, error) {
	if data, ok := m.sections[id]; ok {
		return data, nil
	}
	return make(map[string]interface{}), nil
}

func (m *mockStore) SetSection(id string, data map[string]interface{}) error {
	m.sections[id] = data
	return nil
}

func (m *mockStore) DeleteSection(id string) error {
	delete(m.sections, id)
	return nil
}

func (m *mockStore) Path() string { return "memory" }

func TestManager_RegisterSection(t *testing.T) {
	manager := NewManager(newMockStore())
	assert.Empty(t, manager.GetSections())

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, manager.RegisterSection(&mockSection{id: id}))
	}
	err := manager.RegisterSection(&mockSection{id: "a"})
	assert.ErrorContains(t, err, "already registered")

	var ids []string
	for _, s := range manager.GetSections() {
		ids = append(ids, s.ID())
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)

	got, ok := manager.GetSection("b")
	require.True(t, ok)
	assert.Equal(t, "b", got.ID())
	_, ok = manager.GetSection("missing")
	assert.False(t, ok)
}

func TestManager_LoadAll(t *testing.T) {
	t.Run("applies stored data", func(t *testing.T) {
		store := newMockStore()
		store.sections["one"] = map[string]interface{}{"key1": "value1"}
		store.sections["two"] = map[string]interface{}{"key2": "value2"}
		manager := NewManager(store)
		one := &mockSection{id: "one"}
		two := &mockSection{id: "two"}
		untouched := &mockSection{id: "three", data: map[string]interface{}{"keep": true}}
		require.NoError(t, manager.RegisterSection(one))
		require.NoError(t, manager.RegisterSection(two))
		require.NoError(t, manager.RegisterSection(untouched))

		require.NoError(t, manager.LoadAll())
		assert.Equal(t, "value1", one.data["key1"])
		assert.Equal(t, "value2", two.data["key2"])
		assert.Equal(t, true, untouched.data["keep"])
	})

	t.Run("store error", func(t *testing.T) {
		store := newMockStore()
		store.loadErr = fmt.Errorf("load error")
		assert.ErrorContains(t, NewManager(store).LoadAll(), "load error")
	})

	t.Run("section rejects data", func(t *testing.T) {
		store := newMockStore()
		store.sections["bad"] = map[string]interface{}{"x": 1}
		manager := NewManager(store)
		require.NoError(t, manager.RegisterSection(&mockSection{id: "bad", setErr: fmt.Errorf("nope")}))
		assert.ErrorContains(t, manager.LoadAll(), "section bad")
	})
}

func TestManager_SaveAll(t *testing.T) {
	t.Run("writes every section", func(t *testing.T) {
		store := newMockStore()
		manager := NewManager(store)
		require.NoError(t, manager.RegisterSection(&mockSection{id: "one", data: map[string]interface{}{"k": "v"}}))
		require.NoError(t, manager.RegisterSection(&mockSection{id: "two", data: map[string]interface{}{"n": 2}}))

		require.NoError(t, manager.SaveAll())
		assert.Equal(t, "v", store.sections["one"]["k"])
		assert.Equal(t, 2, store.sections["two"]["n"])
		assert.Equal(t, 1, store.saves)
	})

	t.Run("validation failure writes nothing", func(t *testing.T) {
		store := newMockStore()
		manager := NewManager(store)
		require.NoError(t, manager.RegisterSection(&mockSection{id: "ok", data: map[string]interface{}{"k": "v"}}))
		require.NoError(t, manager.RegisterSection(&mockSection{id: "bad", validateErr: fmt.Errorf("invalid")}))

		assert.ErrorContains(t, manager.SaveAll(), "invalid bad settings")
		assert.Empty(t, store.sections)
		assert.Zero(t, store.saves)
	})

	t.Run("store error", func(t *testing.T) {
		store := newMockStore()
		store.saveErr = fmt.Errorf("save error")
		manager := NewManager(store)
		require.NoError(t, manager.RegisterSection(&mockSection{id: "one"}))
		assert.ErrorContains(t, manager.SaveAll(), "save error")
	})
}

func TestManager_ResetAll(t *testing.T) {
	manager := NewManager(newMockStore())
	NewManager(newMockStore()).ResetAll()

	one := &mockSection{id: "one", data: map[string]interface{}{"k": "v"}}
	require.NoError(t, manager.RegisterSection(one))
	manager.ResetAll()
	assert.Empty(t, one.data)
}

func TestManager_Store(t *testing.T) {
	store := newMockStore()
	assert.Same(t, store, NewManager(store).Store())
}

func TestManager_Concurrency(t *testing.T) {
	manager := NewManager(newMockStore())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = manager.RegisterSection(&mockSection{id: fmt.Sprintf("section%d", i)})
			manager.GetSection("section0")
			manager.GetSections()
		}(i)
	}
	wg.Wait()

	assert.Len(t, manager.GetSections(), 10)
}
