package portalguard

import (
	"context"
	"sync"
	"time"

	"github.com/campusbridge/portalguard/session"
)

type memoKey struct {
	token    string
	identity string
}

// Checker is the per-view guard lifecycle. It runs the check phase (token
// verification and rehydration) once per distinct (token, user) pair and
// resolves the remembered result against the allowed roles on every call.
//
// A Checker is safe for concurrent use.
type Checker struct {
	guard *Guard
	store session.UserWriter
	cache session.Cache

	mu      sync.Mutex
	checked bool
	key     memoKey
	result  checkResult
	last    Decision
}

// NewChecker binds a checker to one client's store and cache.
func (g *Guard) NewChecker(store session.UserWriter, cache session.Cache) *Checker {
	return &Checker{
		guard: g,
		store: store,
		cache: cache,
		last:  Decision{Outcome: OutcomePending},
	}
}

// Check resolves state against allowed for the view at loc.
//
// While state.Loading is set Check returns OutcomePending and does not mark
// the session as checked, so the first settled state still triggers a check.
func (c *Checker) Check(ctx context.Context, state SessionState, allowed []Role, loc Location) Decision {
	g := c.guard
	if g == nil {
		return Decision{Outcome: OutcomeError, Err: ErrGuardNotReady}
	}

	start := time.Now()
	defer g.observeLatency(start)

	c.mu.Lock()
	defer c.mu.Unlock()

	if state.Loading {
		c.last = g.finish(ctx, Decision{Outcome: OutcomePending}, nil, loc)
		return c.last
	}

	key := memoKey{token: state.Token, identity: state.User.Identity()}
	fresh := false
	if !c.checked || c.key != key {
		c.result = g.check(ctx, state, loc, c.store, c.cache)
		c.key = key
		c.checked = true
		fresh = true
	}

	d := g.resolve(ctx, c.result, allowed, loc)
	d.Rehydrated = fresh && c.result.rehydrated
	c.last = d
	return d
}

// Last returns the most recent decision, or OutcomePending before the first
// Check.
func (c *Checker) Last() Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Reset forgets the memoized check.
func (c *Checker) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checked = false
	c.key = memoKey{}
	c.result = checkResult{}
	c.last = Decision{Outcome: OutcomePending}
}
