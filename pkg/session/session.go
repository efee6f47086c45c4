// Package session runs actions against one browser page, recording a result
// and trace entry per action. Mutating calls on a Session are serialized
// through a per-session FIFO queue; callers need no locking of their own.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/pagetrace/pkg/action"
	"github.com/entrhq/pagetrace/pkg/browser"
	"github.com/entrhq/pagetrace/pkg/logging"
	"github.com/entrhq/pagetrace/pkg/snapshot"
	"github.com/entrhq/pagetrace/pkg/trace"
)

// Session owns one browser page and its action history.
type Session struct {
	id        string
	opts      Options
	page      browser.Page
	capturer  *snapshot.Capturer
	log       *logging.Logger
	metrics   *Metrics
	pause     *PauseController
	queue     *opQueue
	createdAt time.Time
	lastUsed  atomic.Int64

	mu        sync.RWMutex
	last      *snapshot.Snapshot
	counter   int
	results   []*ActionResult
	timeline  []trace.TimelineEntry
	origins   []string
	originSet map[string]bool
}

// New launches a page and returns a session bound to it.
func New(ctx context.Context, launcher browser.Launcher, opts Options) (*Session, error) {
	if launcher == nil {
		return nil, fmt.Errorf("launcher is required")
	}
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	page, err := launcher.Launch(ctx, opts.Launch)
	if err != nil {
		return nil, fmt.Errorf("failed to launch page: %w", err)
	}

	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	s := &Session{
		id:        id,
		opts:      opts,
		page:      page,
		capturer:  snapshot.NewCapturer(snapshot.NewRegistry()),
		log:       opts.Logger,
		metrics:   opts.Metrics,
		pause:     NewPauseController(),
		queue:     newOpQueue(),
		createdAt: time.Now(),
		originSet: make(map[string]bool),
	}
	s.touch()
	s.metrics.sessionOpened()
	s.log.Infof("session %s: started (profile=%s, attempts=%d, determinism=%t)",
		id, opts.Profile, opts.MaxActionAttempts, opts.Launch.Determinism)
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Options returns the effective options.
func (s *Session) Options() Options {
	return s.opts
}

// CreatedAt returns when the session was started.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// LastUsed returns when the session last accepted an operation.
func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

// URL returns the current page URL.
func (s *Session) URL() string {
	return s.page.URL()
}

func (s *Session) touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

// Perform validates a and runs it once the session is free and not paused.
// Invalid actions return an error and are not recorded. Execution failures
// are reported through the result's Status, not the error.
func (s *Session) Perform(ctx context.Context, a action.Action) (*ActionResult, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: action is required", action.ErrInvalidAction)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	s.touch()

	return submit(s.queue, false, func() (*ActionResult, error) {
		if err := s.pause.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for resume: %w", err)
		}
		return s.execute(ctx, a), nil
	})
}

// Snapshot captures the current page state.
func (s *Session) Snapshot(ctx context.Context) (*snapshot.Snapshot, error) {
	s.touch()
	return submit(s.queue, false, func() (*snapshot.Snapshot, error) {
		snap, err := s.capturer.Capture(ctx, s.page)
		if err != nil {
			return nil, err
		}
		s.setLast(snap)
		return snap, nil
	})
}

// LastSnapshot returns the most recently captured snapshot, if any.
func (s *Session) LastSnapshot() *snapshot.Snapshot {
	return s.lastSnapshot()
}

func (s *Session) lastSnapshot() *snapshot.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *Session) setLast(snap *snapshot.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = snap
}

// Results returns the recorded results in execution order.
func (s *Session) Results() []*ActionResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*ActionResult(nil), s.results...)
}

// Origins returns the origins touched by navigation or resulting URLs.
func (s *Session) Origins() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.origins...)
}

// Trace builds the saved form of the session's history.
func (s *Session) Trace() *trace.SavedTrace {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]trace.Record, 0, len(s.results))
	for _, r := range s.results {
		records = append(records, r.Record())
	}
	origins := append([]string(nil), s.origins...)
	return &trace.SavedTrace{
		Version:     trace.Version,
		CreatedAt:   time.Now().UTC(),
		SessionID:   s.id,
		Options:     s.opts.TraceOptions(),
		Environment: trace.Environment{RequiredOrigins: origins},
		Origins:     origins,
		Timeline:    append([]trace.TimelineEntry(nil), s.timeline...),
		Records:     records,
	}
}

// SaveTrace writes the trace to path and returns the absolute path.
func (s *Session) SaveTrace(ctx context.Context, path string) (string, error) {
	s.touch()
	return submit(s.queue, false, func() (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to resolve trace path: %w", err)
		}
		t := s.Trace()
		if err := trace.Save(abs, t); err != nil {
			return "", err
		}
		s.log.Infof("session %s: saved trace with %d records to %s", s.id, len(t.Records), abs)
		return abs, nil
	})
}

// SaveSession exports storage state and a manifest under rootDir/name and
// returns the manifest path.
func (s *Session) SaveSession(ctx context.Context, name, rootDir string) (string, error) {
	if err := trace.ValidateName(name); err != nil {
		return "", err
	}
	s.touch()
	return submit(s.queue, false, func() (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		dir, err := filepath.Abs(trace.SessionDir(rootDir, name))
		if err != nil {
			return "", fmt.Errorf("failed to resolve session directory: %w", err)
		}
		if err := os.MkdirAll(dir, 0750); err != nil {
			return "", fmt.Errorf("failed to create session directory: %w", err)
		}
		if err := s.page.SaveStorageState(filepath.Join(dir, trace.StorageStateFile)); err != nil {
			return "", fmt.Errorf("failed to save storage state: %w", err)
		}
		path, err := trace.SaveManifest(dir, &trace.Manifest{
			CreatedAt:        time.Now().UTC(),
			Name:             name,
			URL:              s.page.URL(),
			StorageStatePath: trace.StorageStateFile,
		})
		if err != nil {
			return "", err
		}
		s.log.Infof("session %s: saved as %q in %s", s.id, name, dir)
		return path, nil
	})
}

// Close closes the page after all previously queued operations finish.
// Closing an already closed session is a no-op.
func (s *Session) Close() error {
	_, err := submit(s.queue, true, func() (struct{}, error) {
		s.metrics.sessionClosed()
		s.log.Infof("session %s: closed after %d actions", s.id, len(s.Results()))
		return struct{}{}, s.page.Close()
	})
	if errors.Is(err, ErrSessionClosed) {
		return nil
	}
	return err
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.queue.mu.Lock()
	defer s.queue.mu.Unlock()
	return s.queue.closed
}

// PauseExecution adds a pause source. Actions wait until every source is resumed.
func (s *Session) PauseExecution(source string) ControlState {
	if s.pause.Pause(source) {
		s.log.Infof("session %s: paused by %s", s.id, normalizeSource(source))
	}
	return s.ExecutionControlState()
}

// ResumeExecution clears a pause source.
func (s *Session) ResumeExecution(source string) ControlState {
	if s.pause.Resume(source) {
		s.log.Infof("session %s: resumed by %s", s.id, normalizeSource(source))
	}
	return s.ExecutionControlState()
}

// ExecutionControlState reports the pause state and queue depth.
func (s *Session) ExecutionControlState() ControlState {
	state := s.pause.State()
	state.Queued = s.queue.pending()
	return state
}
