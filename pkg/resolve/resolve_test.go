package resolve

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/pagetrace/pkg/action"
	"github.com/entrhq/pagetrace/pkg/browser"
	"github.com/entrhq/pagetrace/pkg/snapshot"
)

var box = snapshot.Box{Width: 100, Height: 20}

func fixture() *snapshot.Snapshot {
	return &snapshot.Snapshot{Nodes: []snapshot.Node{
		{
			ID: "n1", StableRef: "testid:save", Tag: "button", Role: "button", Name: "Save",
			Visible: true, Enabled: true, Interactive: true, Box: box,
			Path:       "html > body:nth-of-type(1) > button:nth-of-type(1)",
			Attributes: map[string]string{snapshot.TestIDAttribute: "save", "id": "save-btn"},
		},
		{
			ID: "n2", StableRef: "sig:button|Delete|Delete", Tag: "button", Role: "button", Name: "Delete",
			Visible: false, Enabled: true, Interactive: true,
			Path: "html > body:nth-of-type(1) > div:nth-of-type(1) > button:nth-of-type(1)",
		},
		{
			ID: "n10", StableRef: "sig:button|Delete|Delete", Tag: "button", Role: "button", Name: "Delete",
			Visible: true, Enabled: true, Interactive: true, Box: box,
			Path: "html > body:nth-of-type(1) > div:nth-of-type(2) > button:nth-of-type(1)",
		},
		{
			ID: "n3", StableRef: "href:/docs", Tag: "a", Role: "link", Name: "Docs",
			Visible: true, Enabled: true, Interactive: true, Box: box,
			Path:       "html > body:nth-of-type(1) > a:nth-of-type(1)",
			Attributes: map[string]string{"href": "/docs"},
		},
		{
			ID: "n4", StableRef: "name:email", Tag: "input", Role: "textbox", Name: "Email",
			Visible: true, Enabled: true, Interactive: true, Editable: true, Box: box,
			Path:       "html > body:nth-of-type(1) > input:nth-of-type(1)",
			Attributes: map[string]string{"name": "email"},
		},
	}}
}

func labels(cs []browser.Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Label
	}
	return out
}

func TestResolve_NodeID(t *testing.T) {
	r, err := Resolve(action.Target{NodeID: "n1"}, fixture())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"testid=save",
		"id=save-btn",
		`role=button[name="Save"]`,
		"css=html > body:nth-of-type(1) > button:nth-of-type(1)",
	}, labels(r.Candidates))
	require.NotNil(t, r.Node)
	assert.Equal(t, "n1", r.Node.ID)

	_, err = Resolve(action.Target{NodeID: "n99"}, fixture())
	assert.True(t, errors.Is(err, ErrNodeNotFound))
}

func TestResolve_StableRefRanking(t *testing.T) {
	r, err := Resolve(action.Target{StableRef: "sig:button|Delete|Delete"}, fixture())
	require.NoError(t, err)

	// the visible n10 outranks the hidden n2 despite its later id
	require.NotNil(t, r.Node)
	assert.Equal(t, "n10", r.Node.ID)
	assert.Equal(t, []string{
		`role=button[name="Delete"]`,
		"css=html > body:nth-of-type(1) > div:nth-of-type(2) > button:nth-of-type(1)",
		"css=html > body:nth-of-type(1) > div:nth-of-type(1) > button:nth-of-type(1)",
	}, labels(r.Candidates))
}

func TestResolve_StableRefMissing(t *testing.T) {
	_, err := Resolve(action.Target{StableRef: "id:nope"}, fixture())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStableRefNotFound))

	_, err = Resolve(action.Target{StableRef: "id:nope"}, nil)
	assert.True(t, errors.Is(err, ErrNoSnapshot))
}

func TestResolve_RoleName(t *testing.T) {
	r, err := Resolve(action.Target{Role: "link", Name: "  docs "}, fixture())
	require.NoError(t, err)

	require.NotNil(t, r.Node)
	assert.Equal(t, "n3", r.Node.ID)
	assert.Equal(t, []string{
		`css=a[href="/docs"]`,
		`role=link[name="Docs"]`,
		"css=html > body:nth-of-type(1) > a:nth-of-type(1)",
		`role=link[name="  docs "]`,
		`role=link[name~="  docs "]`,
	}, labels(r.Candidates))
}

func TestResolve_RoleNameNoMatchKeepsFallbacks(t *testing.T) {
	r, err := Resolve(action.Target{Role: "button", Name: "Publish"}, fixture())
	require.NoError(t, err)

	assert.Nil(t, r.Node)
	assert.Equal(t, []string{`role=button[name="Publish"]`, `role=button[name~="Publish"]`}, labels(r.Candidates))
}

func TestResolve_RoleNameDeduplicatesExactFallback(t *testing.T) {
	r, err := Resolve(action.Target{Role: "button", Name: "Save"}, fixture())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"testid=save",
		"id=save-btn",
		`role=button[name="Save"]`,
		"css=html > body:nth-of-type(1) > button:nth-of-type(1)",
		`role=button[name~="Save"]`,
	}, labels(r.Candidates))
}

func TestResolve_Selector(t *testing.T) {
	r, err := Resolve(action.Target{Selector: "form > button"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"css=form > button"}, labels(r.Candidates))
	assert.Nil(t, r.Node)
}

func TestResolve_NameAttribute(t *testing.T) {
	r, err := Resolve(action.Target{StableRef: "name:email"}, fixture())
	require.NoError(t, err)
	assert.Equal(t, `css=input[name="email"]`, r.Candidates[0].Label)
}

func TestResolve_EmptyTarget(t *testing.T) {
	_, err := Resolve(action.Target{}, fixture())
	assert.ErrorIs(t, err, action.ErrInvalidAction)
}

func TestScoreAndRank(t *testing.T) {
	full := snapshot.Node{ID: "n5", Visible: true, Enabled: true, Interactive: true, Box: box}
	assert.Equal(t, 9, Score(full))
	assert.Equal(t, 0, Score(snapshot.Node{}))

	ranked := Rank([]snapshot.Node{
		{ID: "n10", Enabled: true},
		{ID: "n2", Enabled: true},
		full,
	})
	assert.Equal(t, []string{"n5", "n2", "n10"}, []string{ranked[0].ID, ranked[1].ID, ranked[2].ID})
}
