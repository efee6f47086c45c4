package action

import (
	"bytes"
	"encoding/json"
	"fmt"
)

var constructors = map[Kind]func() Action{
	KindNavigate:    func() Action { return &Navigate{} },
	KindClick:       func() Action { return &Click{} },
	KindFill:        func() Action { return &Fill{} },
	KindSelect:      func() Action { return &Select{} },
	KindPress:       func() Action { return &Press{} },
	KindWaitFor:     func() Action { return &WaitFor{} },
	KindAssert:      func() Action { return &Assert{} },
	KindConsent:     func() Action { return &Consent{} },
	KindPause:       func() Action { return &Pause{} },
	KindSetViewport: func() Action { return &SetViewport{} },
	KindMockNetwork: func() Action { return &MockNetwork{} },
	KindCheckpoint:  func() Action { return &Checkpoint{} },
}

// Kinds lists every known action kind.
func Kinds() []Kind {
	return []Kind{
		KindNavigate, KindClick, KindFill, KindSelect, KindPress, KindWaitFor,
		KindAssert, KindConsent, KindPause, KindSetViewport, KindMockNetwork, KindCheckpoint,
	}
}

// New returns an empty action of the given kind.
func New(kind Kind) (Action, error) {
	ctor, ok := constructors[kind]
	if !ok {
		return nil, &ValidationError{Kind: kind, Field: "kind", Reason: "unknown action kind"}
	}
	return ctor(), nil
}

// Marshal encodes an action as a flat JSON object with a "kind" field.
func Marshal(a Action) ([]byte, error) {
	body, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s action: %w", a.Kind(), err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("failed to encode %s action: %w", a.Kind(), err)
	}
	kind, _ := json.Marshal(a.Kind())
	fields["kind"] = kind
	return json.Marshal(fields)
}

// Unmarshal decodes a flat JSON action. Unknown kinds and unknown fields are rejected.
// The result is not validated.
func Unmarshal(data []byte) (Action, error) {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode action: %w", err)
	}
	rawKind, ok := fields["kind"]
	if !ok {
		return nil, &ValidationError{Field: "kind", Reason: "is required"}
	}
	var kind Kind
	if err := json.Unmarshal(rawKind, &kind); err != nil {
		return nil, &ValidationError{Field: "kind", Reason: "must be a string"}
	}
	a, err := New(kind)
	if err != nil {
		return nil, err
	}

	delete(fields, "kind")
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s action: %w", kind, err)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(a); err != nil {
		return nil, &ValidationError{Kind: kind, Reason: err.Error()}
	}
	return a, nil
}

// Envelope wraps an Action so it can sit inside other JSON documents.
type Envelope struct {
	Action Action
}

// MarshalJSON implements json.Marshaler.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Action == nil {
		return []byte("null"), nil
	}
	return Marshal(e.Action)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		e.Action = nil
		return nil
	}
	a, err := Unmarshal(data)
	if err != nil {
		return err
	}
	e.Action = a
	return nil
}

// FromMap decodes an action from a generic map, such as one read from YAML.
func FromMap(m map[string]any) (Action, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to convert action: %w", err)
	}
	return Unmarshal(data)
}
