// Package static provides an in-memory browser provider backed by parsed HTML.
//
// Pages are served from registered documents or fetched over HTTP. There is no
// script engine and no layout: boxes are synthetic and stacked vertically,
// anchors navigate, checkboxes toggle and forms submit the way a browser would
// without JavaScript. It exists for tests, dry runs and environments where no
// Chromium is available.
package static

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/entrhq/pagetrace/pkg/browser"
)

// Document is a registered page body.
type Document struct {
	Status int
	HTML   string
}

// Launcher opens static pages. It is safe for concurrent use.
type Launcher struct {
	mu       sync.RWMutex
	docs     map[string]Document
	client   *http.Client
	launches int
}

// NewLauncher creates a launcher with no documents and no HTTP client.
func NewLauncher() *Launcher {
	return &Launcher{docs: make(map[string]Document)}
}

// WithClient enables fetching unregistered URLs over HTTP.
func (l *Launcher) WithClient(c *http.Client) *Launcher {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.client = c
	return l
}

// Serve registers an HTML document for a URL with status 200.
func (l *Launcher) Serve(url, html string) {
	l.ServeStatus(url, http.StatusOK, html)
}

// ServeStatus registers an HTML document with an explicit status.
func (l *Launcher) ServeStatus(url string, status int, html string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.docs[url] = Document{Status: status, HTML: html}
}

// Launches returns how many pages have been opened.
func (l *Launcher) Launches() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.launches
}

func (l *Launcher) lookup(url string) (Document, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	doc, ok := l.docs[url]
	return doc, ok
}

func (l *Launcher) httpClient() *http.Client {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.client
}

// Launch opens a blank page.
func (l *Launcher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts = browser.WithDefaults(opts)

	p := newPage(l, opts)
	if opts.StorageStatePath != "" {
		state, err := readStorageState(opts.StorageStatePath)
		if err != nil {
			return nil, err
		}
		p.cookies = state.Cookies
	}

	l.mu.Lock()
	l.launches++
	l.mu.Unlock()
	return p, nil
}

// Cookie is a stored cookie.
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

// StorageState is the exported cookie and storage state of a page.
type StorageState struct {
	Cookies []Cookie `json:"cookies"`
	Origins []Origin `json:"origins"`
}

// Origin holds per-origin local storage.
type Origin struct {
	Origin       string         `json:"origin"`
	LocalStorage []StorageEntry `json:"localStorage"`
}

// StorageEntry is one local storage item.
type StorageEntry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func readStorageState(path string) (*StorageState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage state: %w", err)
	}
	var state StorageState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse storage state: %w", err)
	}
	return &state, nil
}
