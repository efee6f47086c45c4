package static

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/entrhq/pagetrace/pkg/browser"
	"github.com/entrhq/pagetrace/pkg/snapshot"
)

type locator struct {
	page *page
	cand browser.Candidate
}

func timeoutErr(op string, timeout time.Duration, label, reason string) error {
	return fmt.Errorf("%s failed: Timeout %dms exceeded waiting for %s: %s", op, timeout.Milliseconds(), label, reason)
}

// find returns the first element the candidate designates. The page lock is held.
func (l *locator) find() (*html.Node, error) {
	p := l.page
	c := l.cand
	root := p.body()
	switch c.Strategy {
	case browser.StrategyTestID:
		return findFirst(root, func(n *html.Node) bool {
			v, ok := attr(n, snapshot.TestIDAttribute)
			return ok && v == c.Value
		}), nil
	case browser.StrategyID:
		return findByID(root, c.Value), nil
	case browser.StrategyRole:
		want := snapshot.NormalizeName(c.Name)
		return findFirst(root, func(n *html.Node) bool {
			if skipTags[n.Data] {
				return false
			}
			if _, overlay := attr(n, snapshot.OverlayAttribute); overlay {
				return false
			}
			if snapshot.ComputeRole(n.Data, attrs(n)) != c.Role {
				return false
			}
			name := snapshot.NormalizeName(snapshot.ComputeName(p.rawElement(n, snapshot.Box{})))
			if c.Exact {
				return name == want
			}
			return strings.Contains(name, want)
		}), nil
	default:
		nodes, err := p.query(c.Value)
		if err != nil || len(nodes) == 0 {
			return nil, err
		}
		return nodes[0], nil
	}
}

// actionable resolves the element and checks it can receive input.
func (l *locator) actionable(ctx context.Context, op string, timeout time.Duration, needEnabled bool) (*html.Node, error) {
	if err := l.page.alive(ctx); err != nil {
		return nil, err
	}
	n, err := l.find()
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	if n == nil {
		return nil, timeoutErr(op, timeout, l.cand.Label, "no matching element")
	}
	if isHidden(n) {
		return nil, timeoutErr(op, timeout, l.cand.Label, "element is not visible")
	}
	if needEnabled && isDisabled(n) {
		return nil, timeoutErr(op, timeout, l.cand.Label, "element is not enabled")
	}
	return n, nil
}

func (l *locator) Click(ctx context.Context, opts browser.ClickOptions) error {
	p := l.page
	p.mu.Lock()
	defer p.mu.Unlock()

	n, err := l.actionable(ctx, "click", opts.Timeout, true)
	if err != nil {
		return err
	}
	if opts.Button != "" && opts.Button != "left" {
		return nil
	}
	doc := p.doc
	for i := 0; i < max(1, opts.ClickCount); i++ {
		if err := p.activate(ctx, n); err != nil {
			return err
		}
		// Navigation replaced the document; later clicks have nothing to land on.
		if p.doc != doc {
			break
		}
	}
	return nil
}

func (l *locator) Fill(ctx context.Context, value string, timeout time.Duration) error {
	p := l.page
	p.mu.Lock()
	defer p.mu.Unlock()

	n, err := l.actionable(ctx, "fill", timeout, true)
	if err != nil {
		return err
	}
	if !isFillable(n) {
		return fmt.Errorf("fill failed: Error: Element is not an <input>, <textarea> or [contenteditable] element")
	}
	if _, ro := attr(n, "readonly"); ro {
		return timeoutErr("fill", timeout, l.cand.Label, "element is not editable")
	}
	p.values[n] = value
	p.focused = n
	return nil
}

func (l *locator) SelectOption(ctx context.Context, values []string, timeout time.Duration) error {
	p := l.page
	p.mu.Lock()
	defer p.mu.Unlock()

	n, err := l.actionable(ctx, "select", timeout, true)
	if err != nil {
		return err
	}
	if n.Data != "select" {
		return fmt.Errorf("select failed: Error: Element is not a <select> element")
	}

	opts := options(n)
	var picked []string
	for _, want := range values {
		found := false
		for _, o := range opts {
			if optionValue(o) == want || textOf(o) == want {
				picked = append(picked, optionValue(o))
				found = true
				break
			}
		}
		if !found {
			return timeoutErr("select", timeout, l.cand.Label, fmt.Sprintf("option %q not found", want))
		}
	}
	if _, multiple := attr(n, "multiple"); !multiple && len(picked) > 1 {
		picked = picked[:1]
	}
	p.selected[n] = picked
	p.focused = n
	return nil
}

func (l *locator) Press(ctx context.Context, key string, timeout time.Duration) error {
	p := l.page
	p.mu.Lock()
	defer p.mu.Unlock()

	n, err := l.actionable(ctx, "press", timeout, false)
	if err != nil {
		return err
	}
	p.focused = n
	return p.pressOn(ctx, n, key)
}

func (l *locator) BoundingBox(ctx context.Context, timeout time.Duration) (snapshot.Box, error) {
	p := l.page
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.alive(ctx); err != nil {
		return snapshot.Box{}, err
	}
	n, err := l.find()
	if err != nil {
		return snapshot.Box{}, fmt.Errorf("bounding box failed: %w", err)
	}
	if n == nil {
		return snapshot.Box{}, timeoutErr("bounding box", timeout, l.cand.Label, "no matching element")
	}
	_, boxes := p.layout()
	return boxes[n], nil
}

func (l *locator) IsVisible(ctx context.Context) (bool, error) {
	p := l.page
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.alive(ctx); err != nil {
		return false, err
	}
	n, err := l.find()
	if err != nil {
		return false, err
	}
	return n != nil && !isHidden(n), nil
}

// activate performs the default action of a left click on n.
func (p *page) activate(ctx context.Context, n *html.Node) error {
	p.focused = n
	switch n.Data {
	case "a":
		href, ok := attr(n, "href")
		if !ok {
			return nil
		}
		target, err := p.resolveURL(href)
		if err != nil {
			return fmt.Errorf("click failed: invalid href %q: %w", href, err)
		}
		if stripFragment(target) == stripFragment(p.url) && strings.Contains(target, "#") {
			p.url = target
			return nil
		}
		_, err = p.load(ctx, http.MethodGet, target, nil)
		return err
	case "input":
		switch inputType(n) {
		case "checkbox":
			p.checked[n] = !p.isChecked(n)
		case "radio":
			p.checkRadio(n)
		case "submit", "image":
			if form := closest(n, "form"); form != nil {
				return p.submit(ctx, form, n)
			}
		}
	case "button":
		t := inputType(n)
		if t == "" || t == "submit" {
			if form := closest(n, "form"); form != nil {
				return p.submit(ctx, form, n)
			}
		}
	case "label":
		if id, ok := attr(n, "for"); ok {
			if target := findByID(p.doc, id); target != nil && target != n {
				return p.activate(ctx, target)
			}
		}
	}
	return nil
}

func (p *page) checkRadio(n *html.Node) {
	name, _ := attr(n, "name")
	scope := closest(n, "form")
	if scope == nil {
		scope = p.doc
	}
	if name != "" {
		walk(scope, func(c *html.Node) bool {
			if c.Data == "input" && inputType(c) == "radio" {
				if other, _ := attr(c, "name"); other == name {
					p.checked[c] = false
				}
			}
			return true
		})
	}
	p.checked[n] = true
}

// submit sends the form's successful controls the way a browser without scripts would.
func (p *page) submit(ctx context.Context, form, submitter *html.Node) error {
	values := url.Values{}
	walk(form, func(c *html.Node) bool {
		name, ok := attr(c, "name")
		if !ok || name == "" || isDisabled(c) {
			return true
		}
		switch c.Data {
		case "input":
			switch inputType(c) {
			case "checkbox", "radio":
				if p.isChecked(c) {
					values.Add(name, p.valueOf(c))
				}
			case "submit", "image", "button", "reset", "file":
				if c == submitter {
					v, _ := attr(c, "value")
					values.Add(name, v)
				}
			default:
				values.Add(name, p.valueOf(c))
			}
		case "textarea":
			values.Add(name, p.valueOf(c))
		case "select":
			for _, v := range p.selectedValues(c) {
				values.Add(name, v)
			}
		case "button":
			if c == submitter {
				v, _ := attr(c, "value")
				values.Add(name, v)
			}
		}
		return true
	})

	action, _ := attr(form, "action")
	target, err := p.resolveURL(action)
	if err != nil {
		return fmt.Errorf("form submit failed: invalid action %q: %w", action, err)
	}
	method, _ := attr(form, "method")
	if strings.EqualFold(method, http.MethodPost) {
		_, err = p.load(ctx, http.MethodPost, target, values)
		return err
	}

	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("form submit failed: %w", err)
	}
	u.RawQuery = values.Encode()
	u.Fragment = ""
	_, err = p.load(ctx, http.MethodGet, u.String(), nil)
	return err
}
