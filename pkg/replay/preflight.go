package replay

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultPreflightTimeout bounds each probe request.
	DefaultPreflightTimeout = 5 * time.Second

	maxConcurrentProbes = 8
)

// OriginFailure is why an origin was judged unreachable.
type OriginFailure struct {
	Origin string `json:"origin"`
	Reason string `json:"reason"`
}

// PreflightError lists every origin that failed the reachability check.
type PreflightError struct {
	Unreachable []OriginFailure
}

func (e *PreflightError) Error() string {
	parts := make([]string, 0, len(e.Unreachable))
	for _, f := range e.Unreachable {
		parts = append(parts, fmt.Sprintf("%s (%s)", f.Origin, f.Reason))
	}
	return "preflight failed: unreachable origins: " + strings.Join(parts, ", ")
}

// Preflight probes each origin with HEAD and then GET. An origin is reachable
// when either method returns a status below 500. All unreachable origins are
// reported together in a *PreflightError.
func Preflight(ctx context.Context, client *http.Client, origins []string, timeout time.Duration) error {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultPreflightTimeout
	}

	var (
		mu       sync.Mutex
		failures = make(map[string]string)
	)
	g := new(errgroup.Group)
	g.SetLimit(maxConcurrentProbes)
	for _, origin := range origins {
		origin := origin
		g.Go(func() error {
			if reason := probe(ctx, client, origin, timeout); reason != "" {
				mu.Lock()
				failures[origin] = reason
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	if len(failures) == 0 {
		return nil
	}
	perr := &PreflightError{}
	for _, origin := range origins {
		if reason, ok := failures[origin]; ok {
			perr.Unreachable = append(perr.Unreachable, OriginFailure{Origin: origin, Reason: reason})
		}
	}
	return perr
}

// probe returns an empty string when origin answered below 500.
func probe(ctx context.Context, client *http.Client, origin string, timeout time.Duration) string {
	var reasons []string
	for _, method := range []string{http.MethodHead, http.MethodGet} {
		status, err := request(ctx, client, method, origin, timeout)
		switch {
		case err != nil:
			reasons = append(reasons, fmt.Sprintf("%s: %v", method, err))
		case status >= 500:
			reasons = append(reasons, fmt.Sprintf("%s: status %d", method, status))
		default:
			return ""
		}
	}
	return strings.Join(reasons, "; ")
}

func request(ctx context.Context, client *http.Client, method, url string, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
