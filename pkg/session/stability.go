package session

import (
	"context"
	"fmt"
	"time"

	"github.com/entrhq/pagetrace/pkg/action"
)

// Profile names a stability policy.
type Profile string

const (
	ProfileFast     Profile = "fast"
	ProfileBalanced Profile = "balanced"
	ProfileChatty   Profile = "chatty"
)

// StabilityPolicy controls how long a session waits for the page to settle
// after an action.
type StabilityPolicy struct {
	// Quiet is the fixed wait before network quiescence is checked
	Quiet time.Duration

	// Multiplier scales the per-action base budget
	Multiplier float64

	// Cap bounds the network quiescence budget
	Cap time.Duration
}

var profiles = map[Profile]StabilityPolicy{
	ProfileFast:     {Quiet: 300 * time.Millisecond, Multiplier: 0.5, Cap: 1200 * time.Millisecond},
	ProfileBalanced: {Quiet: 500 * time.Millisecond, Multiplier: 1.0, Cap: 2500 * time.Millisecond},
	ProfileChatty:   {Quiet: 800 * time.Millisecond, Multiplier: 1.6, Cap: 4 * time.Second},
}

// Base network budgets before the profile multiplier.
const (
	settlingBase = 2500 * time.Millisecond
	actionBase   = 1000 * time.Millisecond
)

// PolicyFor returns the policy of a named profile. The empty name is balanced.
func PolicyFor(p Profile) (StabilityPolicy, error) {
	if p == "" {
		p = ProfileBalanced
	}
	policy, ok := profiles[p]
	if !ok {
		return StabilityPolicy{}, fmt.Errorf("unknown stability profile %q", p)
	}
	return policy, nil
}

// Budget returns the network quiescence budget for an action:
// min(cap, max(quiet, base × multiplier)).
func (p StabilityPolicy) Budget(a action.Action) time.Duration {
	base := actionBase
	if action.IsSettling(a) {
		base = settlingBase
	}
	scaled := time.Duration(float64(base) * p.Multiplier)
	return min(p.Cap, max(p.Quiet, scaled))
}

// waitStable sleeps the quiet window and then waits for network quiescence.
// Not reaching quiescence is tolerated.
func (s *Session) waitStable(ctx context.Context, a action.Action) {
	policy := s.opts.policy()
	if err := sleep(ctx, policy.Quiet); err != nil {
		return
	}

	budget := policy.Budget(a)
	if budget <= 0 {
		return
	}
	if err := s.page.WaitForNetworkIdle(ctx, budget); err != nil {
		s.log.Debugf("session %s: network not idle within %s: %v", s.id, budget, err)
	}
}
