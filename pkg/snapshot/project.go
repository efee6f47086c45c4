package snapshot

import (
	"strings"
	"unicode/utf8"
)

const (
	// TestIDAttribute is the attribute used for test-id lookups.
	TestIDAttribute = "data-testid"

	maxNameLength = 120
	maxTextLength = 160
	maxAttrLength = 200
	roleGeneric   = "generic"
)

// capturedAttributes is the bounded attribute subset kept on a Node.
var capturedAttributes = map[string]bool{
	"id":              true,
	"name":            true,
	"type":            true,
	"href":            true,
	"role":            true,
	"aria-label":      true,
	"aria-labelledby": true,
	"aria-disabled":   true,
	"placeholder":     true,
	"title":           true,
	"for":             true,
	"class":           true,
	TestIDAttribute:   true,
}

// anchorAttributes keep an element in the snapshot whenever they are non-empty.
var anchorAttributes = map[string]bool{
	"id":            true,
	"role":          true,
	"aria-label":    true,
	TestIDAttribute: true,
}

// KeepsAttribute reports whether any element carrying a non-empty value for
// the named attribute always appears in a snapshot.
func KeepsAttribute(name string) bool {
	return anchorAttributes[strings.ToLower(name)]
}

// IsCapturedAttribute reports whether nodes carry the named attribute.
func IsCapturedAttribute(name string) bool {
	return capturedAttributes[strings.ToLower(name)]
}

var interactiveRoles = map[string]bool{
	"button":           true,
	"link":             true,
	"checkbox":         true,
	"radio":            true,
	"textbox":          true,
	"searchbox":        true,
	"combobox":         true,
	"listbox":          true,
	"option":           true,
	"menuitem":         true,
	"menuitemcheckbox": true,
	"menuitemradio":    true,
	"tab":              true,
	"switch":           true,
	"slider":           true,
	"spinbutton":       true,
}

var textInputTypes = map[string]bool{
	"":               true,
	"text":           true,
	"search":         true,
	"email":          true,
	"password":       true,
	"tel":            true,
	"url":            true,
	"number":         true,
	"date":           true,
	"datetime-local": true,
	"month":          true,
	"time":           true,
	"week":           true,
}

// CollapseWhitespace trims s and folds internal whitespace runs to one space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeName collapses whitespace and case-folds a name for comparison.
func NormalizeName(s string) string {
	return strings.ToLower(CollapseWhitespace(s))
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

// ComputeRole returns the explicit ARIA role or a tag based heuristic.
func ComputeRole(tag string, attrs map[string]string) string {
	if role := strings.TrimSpace(attrs["role"]); role != "" {
		return strings.ToLower(strings.Fields(role)[0])
	}
	switch strings.ToLower(tag) {
	case "a":
		if _, ok := attrs["href"]; ok {
			return "link"
		}
	case "button":
		return "button"
	case "input":
		switch t := strings.ToLower(attrs["type"]); t {
		case "checkbox":
			return "checkbox"
		case "radio":
			return "radio"
		case "button", "submit", "reset", "image":
			return "button"
		default:
			if textInputTypes[t] {
				return "textbox"
			}
		}
	case "select":
		return "combobox"
	case "textarea":
		return "textbox"
	}
	return roleGeneric
}

// ComputeName picks the accessible name from the first non-empty source.
func ComputeName(el RawElement) string {
	candidates := []string{
		el.Attributes["aria-label"],
		el.LabelledByText,
		el.LabelText,
		el.Attributes["placeholder"],
		el.Attributes["title"],
		el.Text,
	}
	for _, c := range candidates {
		if c = CollapseWhitespace(c); c != "" {
			return truncate(c, maxNameLength)
		}
	}
	return ""
}

// ComputeStableRef derives the semantic fingerprint of an element.
func ComputeStableRef(el RawElement, role, name, text string) string {
	attrs := el.Attributes
	if v := strings.TrimSpace(attrs[TestIDAttribute]); v != "" {
		return "testid:" + v
	}
	if v := strings.TrimSpace(attrs["id"]); v != "" {
		return "id:" + v
	}
	if v := CollapseWhitespace(attrs["aria-label"]); v != "" {
		return "aria:" + v
	}
	if v := strings.TrimSpace(attrs["name"]); v != "" {
		return "name:" + v
	}
	if v := strings.TrimSpace(attrs["href"]); v != "" && strings.EqualFold(el.Tag, "a") {
		return "href:" + v
	}
	if role != roleGeneric || name != "" || text != "" {
		return "sig:" + role + "|" + name + "|" + text
	}
	return "path:" + el.Path
}

func isInteractive(el RawElement, role string) bool {
	switch strings.ToLower(el.Tag) {
	case "button", "select", "textarea", "summary":
		return true
	case "a":
		_, ok := el.Attributes["href"]
		return ok
	case "input":
		return !strings.EqualFold(el.Attributes["type"], "hidden")
	}
	return interactiveRoles[role] || el.ContentEditable || el.Focusable
}

func isEditable(el RawElement, enabled bool) bool {
	if !enabled || el.ReadOnly {
		return false
	}
	if el.ContentEditable {
		return true
	}
	switch strings.ToLower(el.Tag) {
	case "textarea":
		return true
	case "input":
		return textInputTypes[strings.ToLower(el.Attributes["type"])]
	}
	return false
}

func boundedAttributes(attrs map[string]string) map[string]string {
	var out map[string]string
	for k, v := range attrs {
		if !capturedAttributes[k] {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[k] = truncate(v, maxAttrLength)
	}
	return out
}

// meaningful reports whether an element is worth keeping in a snapshot.
func meaningful(el RawElement, n Node) bool {
	if n.Interactive {
		return true
	}
	for name := range anchorAttributes {
		if strings.TrimSpace(el.Attributes[name]) != "" {
			return true
		}
	}
	return el.OwnText && CollapseWhitespace(el.Text) != ""
}

// Project converts a raw element into a Node. The id is assigned by the caller.
func Project(el RawElement, id string) Node {
	tag := strings.ToLower(el.Tag)
	role := ComputeRole(tag, el.Attributes)
	name := ComputeName(el)
	text := truncate(CollapseWhitespace(el.Text), maxTextLength)
	ariaDisabled := strings.EqualFold(strings.TrimSpace(el.Attributes["aria-disabled"]), "true")
	enabled := !el.Disabled && !ariaDisabled
	interactive := isInteractive(el, role)

	return Node{
		ID:          id,
		StableRef:   ComputeStableRef(el, role, name, text),
		Tag:         tag,
		Role:        role,
		Name:        name,
		Text:        text,
		Value:       el.Value,
		Visible:     !el.Hidden && !el.Box.IsZero(),
		Enabled:     enabled,
		Editable:    isEditable(el, enabled),
		Interactive: interactive,
		Box:         el.Box,
		Path:        el.Path,
		Attributes:  boundedAttributes(el.Attributes),
	}
}
