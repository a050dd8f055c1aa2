package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/campusbridge/portalguard"
	"github.com/campusbridge/portalguard/session"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// ClientCookie carries the browser's session client ID.
	ClientCookie = "pg_client"
	// TokenCookie carries the bearer token issued at login.
	TokenCookie = "jwt_token"

	tracerName = "github.com/campusbridge/portalguard/middleware"
)

type userContextKey struct{}
type decisionContextKey struct{}

// UserFromContext returns the user an authorized request was admitted with.
func UserFromContext(ctx context.Context) (*portalguard.UserRecord, bool) {
	u, ok := ctx.Value(userContextKey{}).(*portalguard.UserRecord)
	return u, ok && u != nil
}

// DecisionFromContext returns the guard decision for the current request.
func DecisionFromContext(ctx context.Context) (portalguard.Decision, bool) {
	d, ok := ctx.Value(decisionContextKey{}).(portalguard.Decision)
	return d, ok
}

// ClientIDFromRequest returns the pg_client cookie value when it holds a UUID.
func ClientIDFromRequest(r *http.Request) (string, bool) {
	c, err := r.Cookie(ClientCookie)
	if err != nil {
		return "", false
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return "", false
	}
	return c.Value, true
}

// EnsureClientID returns the request's client ID, issuing a new pg_client
// cookie when the request has none.
func EnsureClientID(w http.ResponseWriter, r *http.Request) string {
	if id, ok := ClientIDFromRequest(r); ok {
		return id
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     ClientCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// Guard admits a request only when g authorizes the client's session for
// allowed. An empty allowed list admits any authenticated user.
func Guard(g *portalguard.Guard, backend session.Backend, allowed ...portalguard.Role) func(http.Handler) http.Handler {
	roles := append([]portalguard.Role(nil), allowed...)
	if unknown := g.UnknownRoles(roles); len(unknown) > 0 {
		g.Logger().Warn("guarded route allows unregistered roles",
			slog.Any("roles", unknown),
			slog.String("unknown_role_policy", g.Config().Roles.UnknownRolePolicy.String()),
		)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g == nil || backend == nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			clientID := EnsureClientID(w, r)
			ctx := portalguard.WithClientID(r.Context(), clientID)
			ctx = portalguard.WithClientIP(ctx, clientIP(r))

			ctx, span := otel.Tracer(tracerName).Start(ctx, "portalguard.check",
				trace.WithAttributes(
					attribute.String("url.path", r.URL.Path),
					attribute.Int("portalguard.allowed_roles", len(roles)),
				),
			)
			defer span.End()

			loc := portalguard.Location{Path: r.URL.Path, RawQuery: r.URL.RawQuery}
			d := evaluate(ctx, g, backend, clientID, r, roles, loc)

			span.SetAttributes(
				attribute.String("portalguard.outcome", d.Outcome.String()),
				attribute.Bool("portalguard.rehydrated", d.Rehydrated),
			)
			if d.Outcome == portalguard.OutcomeError {
				span.SetStatus(codes.Error, d.Message)
			}

			ctx = context.WithValue(ctx, decisionContextKey{}, d)
			if d.Allowed() {
				ctx = context.WithValue(ctx, userContextKey{}, d.User)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			writeDecision(w, r, d)
		})
	}
}

func evaluate(
	ctx context.Context,
	g *portalguard.Guard,
	backend session.Backend,
	clientID string,
	r *http.Request,
	roles []portalguard.Role,
	loc portalguard.Location,
) portalguard.Decision {
	store := backend.Store(clientID)
	state, err := store.Snapshot(ctx)
	if err != nil {
		return g.Unavailable(ctx, loc, err)
	}

	if state.Token == "" {
		if token, ok := requestToken(r); ok {
			if err := store.SetToken(ctx, token); err != nil {
				g.Logger().WarnContext(ctx, "adopt request token",
					slog.String("client_id", clientID),
					slog.String("error", err.Error()),
				)
			}
			state.Token = token
		}
	}

	return g.NewChecker(store, backend.Cache(clientID)).Check(ctx, state, roles, loc)
}

type decisionBody struct {
	Outcome  string                `json:"outcome"`
	Redirect *portalguard.Redirect `json:"redirect,omitempty"`
}

func writeDecision(w http.ResponseWriter, r *http.Request, d portalguard.Decision) {
	if d.Outcome == portalguard.OutcomePending {
		w.Header().Set("Retry-After", "1")
		if wantsJSON(r) {
			writeJSON(w, http.StatusAccepted, decisionBody{Outcome: d.Outcome.String()})
			return
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if d.Redirect == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if wantsJSON(r) {
		status := http.StatusUnauthorized
		if d.Outcome == portalguard.OutcomeForbidden {
			status = http.StatusForbidden
		}
		writeJSON(w, status, decisionBody{Outcome: d.Outcome.String(), Redirect: d.Redirect})
		return
	}

	http.Redirect(w, r, d.Redirect.URL(), http.StatusSeeOther)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func requestToken(r *http.Request) (string, bool) {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token, true
	}
	if c, err := r.Cookie(TokenCookie); err == nil && c.Value != "" {
		return c.Value, true
	}
	return "", false
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
