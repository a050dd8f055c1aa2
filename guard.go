package portalguard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	internalaudit "github.com/campusbridge/portalguard/internal/audit"
	"github.com/campusbridge/portalguard/permission"
	"github.com/campusbridge/portalguard/session"
)

// Guard decides whether a view may render for the current session.
//
// A Guard is safe for concurrent use. It holds no per-client state; use
// [Guard.NewChecker] for the memoized per-view lifecycle.
type Guard struct {
	config   Config
	registry *permission.Registry
	roles    *permission.RoleManager
	verifier TokenVerifier
	logger   *slog.Logger
	metrics  *Metrics
	audit    *internalaudit.Dispatcher
}

// Input is everything one guard check reads.
type Input struct {
	State SessionState
	// AllowedRoles restricts the view. Empty means any authenticated user.
	AllowedRoles []Role
	// Location is the view being opened. It travels in the redirect state.
	Location Location
	// Store receives the rehydrated user. It is the only write a check makes.
	Store session.UserWriter
	// Cache is read for the persisted user record when the store lost it.
	Cache session.Cache
}

// checkResult is the outcome of token verification and rehydration, before
// any role is considered.
type checkResult struct {
	hasToken   bool
	user       *UserRecord
	err        error
	rehydrated bool
}

// Evaluate runs a full check and resolves it against in.AllowedRoles.
//
// Evaluate does not memoize. A loading session resolves to OutcomePending
// without touching the cache.
func (g *Guard) Evaluate(ctx context.Context, in Input) Decision {
	if g == nil {
		return Decision{Outcome: OutcomeError, Err: ErrGuardNotReady}
	}
	start := time.Now()
	defer g.observeLatency(start)

	if in.State.Loading {
		return g.finish(ctx, Decision{Outcome: OutcomePending}, nil, in.Location)
	}

	res := g.check(ctx, in.State, in.Location, in.Store, in.Cache)
	d := g.resolve(ctx, res, in.AllowedRoles, in.Location)
	d.Rehydrated = res.rehydrated
	return d
}

// Logger returns the logger the guard was built with. It is never nil.
func (g *Guard) Logger() *slog.Logger {
	if g == nil {
		return slog.New(slog.DiscardHandler)
	}
	return g.logger
}

// Unavailable builds the decision for a session store that could not be
// read at all, so callers report it the same way as a failed rehydration.
func (g *Guard) Unavailable(ctx context.Context, loc Location, err error) Decision {
	if g == nil {
		return Decision{Outcome: OutcomeError, Err: ErrGuardNotReady}
	}
	wrapped := fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	g.metricInc(MetricBackendUnavailable)
	g.logger.WarnContext(ctx, "session store read failed",
		slog.String("path", loc.Path),
		slog.String("error", err.Error()),
	)
	g.emitAudit(ctx, auditEventBackendUnavailable, false, nil, loc, wrapped, func() map[string]string {
		return map[string]string{"stage": "snapshot"}
	})
	return g.finish(ctx, g.errorDecision(wrapped, loc), nil, loc)
}

/*
====================================
CHECK
====================================
*/

func (g *Guard) check(ctx context.Context, state SessionState, loc Location, store session.UserWriter, cache session.Cache) checkResult {
	res := checkResult{user: state.User.Clone()}

	token := state.Token
	if token != "" && g.verifier != nil {
		if err := g.verifier.VerifyToken(token); err != nil {
			g.metricInc(MetricTokenRejected)
			g.logger.DebugContext(ctx, "token rejected", slog.String("path", loc.Path), slog.String("error", err.Error()))
			g.emitAudit(ctx, auditEventTokenRejected, false, state.User, loc, ErrTokenRejected, nil)
			token = ""
		}
	}
	res.hasToken = token != ""

	if !res.hasToken || res.user != nil {
		return res
	}

	user, err := g.rehydrate(ctx, loc, store, cache)
	if err != nil {
		res.err = err
		return res
	}
	res.user = user
	res.rehydrated = true
	return res
}

// rehydrate restores the user from the persistent cache and writes it back
// into the store.
func (g *Guard) rehydrate(ctx context.Context, loc Location, store session.UserWriter, cache session.Cache) (*UserRecord, error) {
	if cache == nil {
		return nil, g.backendFailure(ctx, loc, ErrCacheUnavailable, errors.New("no cache configured"), "cache_read")
	}

	g.metricInc(MetricCacheRead)
	raw, ok, err := cache.Get(ctx, g.config.Cache.UserKey)
	if err != nil {
		return nil, g.backendFailure(ctx, loc, ErrCacheUnavailable, err, "cache_read")
	}
	if !ok {
		g.metricInc(MetricRehydrateMissing)
		g.emitAudit(ctx, auditEventSessionExpired, false, nil, loc, ErrSessionExpired, nil)
		return nil, ErrSessionExpired
	}

	user, err := session.ParseUserRecord([]byte(raw))
	if err != nil {
		g.metricInc(MetricRehydrateCorrupt)
		g.logger.WarnContext(ctx, "cached user record is corrupt",
			slog.String("path", loc.Path),
			slog.String("error", err.Error()),
		)
		g.emitAudit(ctx, auditEventSessionCorrupt, false, nil, loc, ErrCorruptSession, func() map[string]string {
			return map[string]string{"bytes": fmt.Sprint(len(raw))}
		})
		return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}

	if store == nil {
		return nil, g.backendFailure(ctx, loc, ErrStoreUnavailable, errors.New("no store configured"), "store_write")
	}
	g.metricInc(MetricStoreWrite)
	if err := store.SetUser(ctx, *user); err != nil {
		return nil, g.backendFailure(ctx, loc, ErrStoreUnavailable, err, "store_write")
	}

	g.metricInc(MetricRehydrateSuccess)
	g.emitAudit(ctx, auditEventSessionRehydrated, true, user, loc, nil, nil)
	return user, nil
}

func (g *Guard) backendFailure(ctx context.Context, loc Location, kind, cause error, stage string) error {
	err := fmt.Errorf("%w: %v", kind, cause)
	g.metricInc(MetricBackendUnavailable)
	g.logger.WarnContext(ctx, "session backend failure",
		slog.String("stage", stage),
		slog.String("path", loc.Path),
		slog.String("error", cause.Error()),
	)
	g.emitAudit(ctx, auditEventBackendUnavailable, false, nil, loc, err, func() map[string]string {
		return map[string]string{"stage": stage}
	})
	return err
}

/*
====================================
RESOLUTION
====================================
*/

func (g *Guard) resolve(ctx context.Context, res checkResult, allowed []Role, loc Location) Decision {
	if res.err != nil {
		return g.finish(ctx, g.errorDecision(res.err, loc), res.user, loc)
	}

	if !res.hasToken || res.user == nil {
		g.emitAudit(ctx, auditEventAccessUnauthenticated, false, nil, loc, ErrUnauthenticated, func() map[string]string {
			return map[string]string{
				"has_token": fmt.Sprint(res.hasToken),
				"has_user":  fmt.Sprint(res.user != nil),
			}
		})
		msg := g.config.Messages.LoginRequired
		return g.finish(ctx, Decision{
			Outcome: OutcomeUnauthenticated,
			Err:     ErrUnauthenticated,
			Message: msg,
			Redirect: &Redirect{
				Target: g.config.Routes.LoginPath,
				State:  NavState{From: loc, Message: msg},
			},
		}, nil, loc)
	}

	if len(allowed) > 0 {
		ok, known := g.roleAllowed(res.user.UserType, allowed)
		if !known && g.config.Roles.UnknownRolePolicy == UnknownRoleError {
			g.metricInc(MetricInvalidRole)
			g.emitAudit(ctx, auditEventInvalidRole, false, res.user, loc, ErrInvalidRole, nil)
			d := g.errorDecision(ErrInvalidRole, loc)
			d.Message = g.config.Messages.InvalidRole
			d.Redirect.State.Error = d.Message
			return g.finish(ctx, d, res.user, loc)
		}
		if !ok {
			g.emitAudit(ctx, auditEventAccessForbidden, false, res.user, loc, ErrForbidden, func() map[string]string {
				return map[string]string{"allowed": joinRoles(allowed)}
			})
			msg := g.config.Messages.AccessDenied
			return g.finish(ctx, Decision{
				Outcome: OutcomeForbidden,
				Err:     ErrForbidden,
				Message: msg,
				Redirect: &Redirect{
					Target: g.config.Routes.HomePath,
					State:  NavState{From: loc, Message: msg},
				},
			}, res.user, loc)
		}
	}

	return g.finish(ctx, Decision{Outcome: OutcomeAuthorized, User: res.user.Clone()}, res.user, loc)
}

// UnknownRoles returns the entries of roles that are not registered. A
// user_type outside the registry never matches them under
// UnknownRoleError; only UnknownRoleForbid admits it by literal match.
func (g *Guard) UnknownRoles(roles []Role) []Role {
	if g == nil {
		return nil
	}
	var out []Role
	for _, r := range roles {
		if _, ok := g.registry.Bit(string(r)); !ok {
			out = append(out, r)
		}
	}
	return out
}

// roleAllowed reports whether role satisfies any allowed role. known is
// false when role is not registered; the literal-match fallback then only
// takes effect under UnknownRoleForbid.
func (g *Guard) roleAllowed(role Role, allowed []Role) (ok bool, known bool) {
	names := make([]string, len(allowed))
	for i, r := range allowed {
		names[i] = string(r)
	}
	mask, _ := g.registry.Mask(names)

	ok, known = g.roles.Allows(string(role), mask)
	if known {
		return ok, true
	}
	for _, r := range allowed {
		if r == role {
			return true, false
		}
	}
	return false, false
}

func (g *Guard) errorDecision(err error, loc Location) Decision {
	msg := g.config.Messages.AuthenticationError
	if errors.Is(err, ErrSessionExpired) {
		msg = g.config.Messages.SessionExpired
	}
	return Decision{
		Outcome: OutcomeError,
		Err:     err,
		Message: msg,
		Redirect: &Redirect{
			Target: g.config.Routes.LoginPath,
			State:  NavState{From: loc, Error: msg},
		},
	}
}

func (g *Guard) finish(ctx context.Context, d Decision, user *UserRecord, loc Location) Decision {
	g.metricInc(outcomeMetric(d.Outcome))
	if g.logger.Enabled(ctx, slog.LevelDebug) {
		attrs := []slog.Attr{
			slog.String("outcome", d.Outcome.String()),
			slog.String("path", loc.Path),
		}
		if user != nil {
			attrs = append(attrs, slog.String("role", string(user.UserType)))
		}
		if d.Err != nil {
			attrs = append(attrs, slog.String("error", d.Err.Error()))
		}
		g.logger.LogAttrs(ctx, slog.LevelDebug, "guard decision", attrs...)
	}
	return d
}

func joinRoles(roles []Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, ",")
}

/*
====================================
LIFECYCLE
====================================
*/

// Close flushes and stops the audit dispatcher.
func (g *Guard) Close() {
	if g == nil || g.audit == nil {
		return
	}
	g.audit.Close()
}

// AuditDropped returns the number of audit events dropped because the
// buffer was full or the emitting context was cancelled.
func (g *Guard) AuditDropped() uint64 {
	if g == nil || g.audit == nil {
		return 0
	}
	return g.audit.Dropped()
}

// AuditSuppressed returns the number of audit events withheld as repeats
// under Config.Audit.SuppressRepeats.
func (g *Guard) AuditSuppressed() uint64 {
	if g == nil || g.audit == nil {
		return 0
	}
	return g.audit.Suppressed()
}

// MetricsSnapshot returns a copy of the guard's counters.
func (g *Guard) MetricsSnapshot() MetricsSnapshot {
	if g == nil || g.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return g.metrics.Snapshot()
}

// Config returns a copy of the configuration the guard was built with.
func (g *Guard) Config() Config {
	if g == nil {
		return Config{}
	}
	return cloneConfig(g.config)
}
