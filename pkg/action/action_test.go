package action

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		action  Action
		wantErr string
	}{
		{"navigate ok", &Navigate{URL: "https://example.test/"}, ""},
		{"navigate missing url", &Navigate{}, "url: is required"},
		{"navigate relative url", &Navigate{URL: "/login"}, "absolute URL"},
		{"navigate bad wait", &Navigate{URL: "https://example.test", WaitUntil: "idle"}, "unknown state"},
		{"click by node", &Click{Target: Target{NodeID: "n1"}}, ""},
		{"click without target", &Click{}, "exactly one"},
		{"click two target forms", &Click{Target: Target{NodeID: "n1", Selector: "#a"}}, "exactly one"},
		{"click name without role", &Click{Target: Target{Selector: "#a", Name: "Go"}}, "requires role"},
		{"click bad button", &Click{Target: Target{Selector: "#a"}, Button: "back"}, "unknown button"},
		{"click negative timeout", &Click{Target: Target{Selector: "#a"}, TimeoutMs: -1}, "negative"},
		{"fill by role", &Fill{Target: Target{Role: "textbox", Name: "Email"}, Value: "x"}, ""},
		{"select without values", &Select{Target: Target{StableRef: "id:country"}}, "at least one"},
		{"press page-level", &Press{Key: "Enter"}, ""},
		{"press without key", &Press{}, "key: is required"},
		{"wait for selector", &WaitFor{Condition: Condition{Selector: "#done", State: "visible"}}, ""},
		{"wait for nothing", &WaitFor{}, "needs selector"},
		{"wait state without selector", &WaitFor{Condition: Condition{URLContains: "/x", State: "hidden"}}, "requires selector"},
		{"assert title", &Assert{Condition: Condition{TitleContains: "Home"}}, ""},
		{"consent bad mode", &Consent{Mode: "maybe"}, "unknown mode"},
		{"pause negative", &Pause{DurationMs: -5}, "negative"},
		{"viewport zero", &SetViewport{Width: 0, Height: 600}, "must be positive"},
		{"mock without pattern", &MockNetwork{}, "pattern: is required"},
		{"mock bad status", &MockNetwork{Pattern: "**/api", Status: 42}, "valid HTTP status"},
		{"checkpoint ok", &Checkpoint{Name: "after-login"}, ""},
		{"checkpoint blank", &Checkpoint{Name: "  "}, "name: is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.action.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, errors.Is(err, ErrInvalidAction))

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.action.Kind(), ve.Kind)
		})
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	in := &Click{Target: Target{Role: "button", Name: "Sign in"}, ClickCount: 2}

	data, err := Marshal(in)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, "click", fields["kind"])

	out, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestUnmarshal_Rejects(t *testing.T) {
	tests := map[string]string{
		"missing kind":  `{"url":"https://example.test"}`,
		"unknown kind":  `{"kind":"hover"}`,
		"unknown field": `{"kind":"navigate","url":"https://example.test","speed":3}`,
		"kind not text": `{"kind":7}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Unmarshal([]byte(doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidAction)
		})
	}

	_, err := Unmarshal([]byte(`not json`))
	assert.Error(t, err)
}

func TestEnvelope(t *testing.T) {
	doc := struct {
		Action Envelope `json:"action"`
	}{Action: Envelope{Action: &Navigate{URL: "https://example.test", WaitUntil: "load"}}}

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"navigate"`)

	var back struct {
		Action Envelope `json:"action"`
	}
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, doc.Action.Action, back.Action.Action)

	var empty Envelope
	require.NoError(t, json.Unmarshal([]byte("null"), &empty))
	assert.Nil(t, empty.Action)
}

func TestFromMap(t *testing.T) {
	a, err := FromMap(map[string]any{
		"kind":   "fill",
		"target": map[string]any{"stableRef": "id:email"},
		"value":  "me@example.test",
	})
	require.NoError(t, err)

	fill, ok := a.(*Fill)
	require.True(t, ok)
	assert.Equal(t, "id:email", fill.Target.StableRef)
	assert.NoError(t, fill.Validate())
}

func TestEveryKindDecodes(t *testing.T) {
	for _, k := range Kinds() {
		a, err := New(k)
		require.NoError(t, err)
		assert.Equal(t, k, a.Kind())
	}
	_, err := New("hover")
	assert.ErrorIs(t, err, ErrInvalidAction)
}

type kindRecorder struct{ seen []Kind }

func (r *kindRecorder) record(k Kind) error { r.seen = append(r.seen, k); return nil }

func (r *kindRecorder) VisitNavigate(*Navigate) error       { return r.record(KindNavigate) }
func (r *kindRecorder) VisitClick(*Click) error             { return r.record(KindClick) }
func (r *kindRecorder) VisitFill(*Fill) error               { return r.record(KindFill) }
func (r *kindRecorder) VisitSelect(*Select) error           { return r.record(KindSelect) }
func (r *kindRecorder) VisitPress(*Press) error             { return r.record(KindPress) }
func (r *kindRecorder) VisitWaitFor(*WaitFor) error         { return r.record(KindWaitFor) }
func (r *kindRecorder) VisitAssert(*Assert) error           { return r.record(KindAssert) }
func (r *kindRecorder) VisitConsent(*Consent) error         { return r.record(KindConsent) }
func (r *kindRecorder) VisitPause(*Pause) error             { return r.record(KindPause) }
func (r *kindRecorder) VisitSetViewport(*SetViewport) error { return r.record(KindSetViewport) }
func (r *kindRecorder) VisitMockNetwork(*MockNetwork) error { return r.record(KindMockNetwork) }
func (r *kindRecorder) VisitCheckpoint(*Checkpoint) error   { return r.record(KindCheckpoint) }

func TestAcceptDispatchesByKind(t *testing.T) {
	r := &kindRecorder{}
	for _, k := range Kinds() {
		a, err := New(k)
		require.NoError(t, err)
		require.NoError(t, a.Accept(r))
	}
	assert.Equal(t, Kinds(), r.seen)
}

func TestHelpers(t *testing.T) {
	click := &Click{Target: Target{NodeID: "n4"}, TimeoutMs: 1200}
	assert.Equal(t, "n4", TargetOf(click).NodeID)
	assert.Nil(t, TargetOf(&Press{Key: "Tab"}))
	assert.Nil(t, TargetOf(&Navigate{}))

	assert.Equal(t, 1200*time.Millisecond, TimeoutOf(click))
	assert.Equal(t, DefaultTimeout, TimeoutOf(&Fill{}))
	assert.Equal(t, DefaultTimeout, TimeoutOf(&Checkpoint{}))

	assert.Equal(t, "#ready", WaitSelector(&WaitFor{Condition: Condition{Selector: "#ready"}}))
	assert.Empty(t, WaitSelector(click))

	assert.True(t, IsSettling(&Navigate{}))
	assert.True(t, IsSettling(&WaitFor{}))
	assert.False(t, IsSettling(click))
}
