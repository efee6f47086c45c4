package browser

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gobwas/glob"
)

// MockRule fulfils requests whose URL matches Pattern with a canned response.
type MockRule struct {
	// Pattern is a URL glob; "*" stays within a path segment, "**" crosses segments
	Pattern string `json:"pattern"`

	// Method restricts the rule to one HTTP method (empty matches any)
	Method string `json:"method,omitempty"`

	Status      int               `json:"status,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        string            `json:"body,omitempty"`
	ContentType string            `json:"contentType,omitempty"`
}

// EffectiveStatus returns Status or 200 when unset.
func (r MockRule) EffectiveStatus() int {
	if r.Status == 0 {
		return http.StatusOK
	}
	return r.Status
}

type compiledRule struct {
	rule    MockRule
	matcher glob.Glob
}

// MockRouter holds the mock rules of one page.
type MockRouter struct {
	mu    sync.RWMutex
	rules []compiledRule
}

// NewMockRouter creates an empty router.
func NewMockRouter() *MockRouter {
	return &MockRouter{}
}

// Add compiles and installs a rule.
func (r *MockRouter) Add(rule MockRule) error {
	g, err := glob.Compile(rule.Pattern, '/')
	if err != nil {
		return fmt.Errorf("invalid mock pattern %q: %w", rule.Pattern, err)
	}
	rule.Method = strings.ToUpper(rule.Method)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, compiledRule{rule: rule, matcher: g})
	return nil
}

// Match returns the most recently added rule matching the request.
func (r *MockRouter) Match(method, url string) (MockRule, bool) {
	method = strings.ToUpper(method)

	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.rules) - 1; i >= 0; i-- {
		c := r.rules[i]
		if c.rule.Method != "" && c.rule.Method != method {
			continue
		}
		if c.matcher.Match(url) {
			return c.rule, true
		}
	}
	return MockRule{}, false
}

// Len returns the number of installed rules.
func (r *MockRouter) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

// Rules returns the installed rules in installation order.
func (r *MockRouter) Rules() []MockRule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MockRule, len(r.rules))
	for i, c := range r.rules {
		out[i] = c.rule
	}
	return out
}
