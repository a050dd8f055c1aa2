package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/campusbridge/portalguard"
	"github.com/campusbridge/portalguard/internal/rate"
	"github.com/campusbridge/portalguard/jwt"
	pgmiddleware "github.com/campusbridge/portalguard/middleware"
	"github.com/campusbridge/portalguard/password"
	"github.com/campusbridge/portalguard/session"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// pinger reports backend health for /healthz.
type pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// serverDeps is everything newRouter wires together.
type serverDeps struct {
	Guard     *portalguard.Guard
	Backend   session.Backend
	Health    pinger
	Directory *directory
	Tokens    *jwt.Manager
	Hasher    *password.Hasher
	Limiter   *rate.Limiter
	Metrics   http.Handler
	Logger    *slog.Logger

	TokenTTL     time.Duration
	CookieSecure bool
}

// registrable lists the roles an account may sign up with. School views are
// reached by university accounts through the alias table.
var registrable = map[session.Role]bool{
	session.RoleStudent:    true,
	session.RoleCompany:    true,
	session.RoleUniversity: true,
	session.RoleMentor:     true,
}

func newRouter(deps *serverDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	h := &handlers{
		deps:     deps,
		cache:    deps.Guard.Config().Cache,
		validate: newRequestValidator(),
	}

	r.Get("/healthz", h.healthz)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Get("/", h.navState("home"))
	r.Get("/login", h.navState("login"))

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Post("/logout", h.logout)
	})

	guard := func(roles ...portalguard.Role) func(http.Handler) http.Handler {
		return pgmiddleware.RequireRoles(deps.Guard, deps.Backend, roles...)
	}

	r.Route("/dashboard", func(r chi.Router) {
		r.With(guard(portalguard.RoleStudent)).Get("/student", h.view("student-dashboard"))
		r.With(guard(portalguard.RoleCompany)).Get("/company", h.view("company-dashboard"))
		r.With(guard(portalguard.RoleSchool)).Get("/school", h.view("school-dashboard"))
		r.With(guard(portalguard.RoleMentor)).Get("/mentor", h.view("mentor-dashboard"))
	})
	r.With(guard(portalguard.RoleStudent, portalguard.RoleCompany)).Get("/applications", h.view("applications"))
	r.With(guard(portalguard.RoleStudent, portalguard.RoleMentor)).Get("/mentoring-sessions", h.view("mentoring-sessions"))
	r.With(pgmiddleware.RequireAuthenticated(deps.Guard, deps.Backend)).Get("/profile", h.view("profile"))

	return r
}

type handlers struct {
	deps     *serverDeps
	cache    portalguard.CacheConfig
	validate *requestValidator
}

/*
====================================
HEALTH
====================================
*/

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	if h.deps.Health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	latency, err := h.deps.Health.Ping(r.Context())
	if err != nil {
		h.deps.Logger.Warn("health check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"redis_ms":   float64(latency.Microseconds()) / 1000,
		"checked_at": time.Now().UTC(),
	})
}

/*
====================================
ACCOUNTS
====================================
*/

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"notblank,max=128"`
	Name     string `json:"name" validate:"max=120"`
	UserType string `json:"user_type" validate:"required,registrable_role"`
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Check(body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	role := session.Role(body.UserType)

	hash, err := h.deps.Hasher.Hash(body.Password)
	if errors.Is(err, password.ErrTooShort) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.internalError(w, r, "hash password", err)
		return
	}

	user := session.UserRecord{
		ID:       uuid.NewString(),
		UserType: role,
		Email:    normalizeEmail(body.Email),
		Name:     body.Name,
	}
	err = h.deps.Directory.Create(r.Context(), account{User: user, PasswordHash: hash})
	if errors.Is(err, errAccountExists) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.internalError(w, r, "create account", err)
		return
	}

	h.deps.Logger.Info("account registered",
		slog.String("user_id", user.ID),
		slog.String("user_type", string(user.UserType)),
	)
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Check(body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	email := normalizeEmail(body.Email)
	ip := remoteIP(r)

	if err := h.deps.Limiter.Check(ctx, email, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			if wait, err := h.deps.Limiter.RetryAfter(ctx, email, ip); err == nil && wait > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			}
			writeError(w, http.StatusTooManyRequests, "too many login attempts")
			return
		}
		h.internalError(w, r, "login throttle", err)
		return
	}

	acct, err := h.deps.Directory.Get(ctx, email)
	if err != nil && !errors.Is(err, errAccountNotFound) {
		h.internalError(w, r, "load account", err)
		return
	}
	ok := false
	if err == nil {
		ok, err = h.deps.Hasher.Verify(body.Password, acct.PasswordHash)
		if err != nil {
			h.internalError(w, r, "verify password", err)
			return
		}
	}
	if !ok {
		if err := h.deps.Limiter.Fail(ctx, email, ip); err != nil {
			h.deps.Logger.Warn("record failed login", slog.String("error", err.Error()))
		}
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := h.deps.Limiter.Reset(ctx, email, ip); err != nil {
		h.deps.Logger.Warn("reset login throttle", slog.String("error", err.Error()))
	}
	h.rehashIfNeeded(ctx, email, body.Password, acct.PasswordHash)

	token, err := h.deps.Tokens.Issue(acct.User.ID, string(acct.User.UserType))
	if err != nil {
		h.internalError(w, r, "issue token", err)
		return
	}

	clientID := pgmiddleware.EnsureClientID(w, r)
	if err := h.persistSession(ctx, clientID, token, acct.User); err != nil {
		h.internalError(w, r, "persist session", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     pgmiddleware.TokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.deps.TokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.deps.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": acct.User})
}

// persistSession writes the user and token to the persistent cache first,
// then hydrates the store. The store is marked loading while it changes and
// is cleared again if any step fails.
func (h *handlers) persistSession(ctx context.Context, clientID, token string, user session.UserRecord) (err error) {
	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}

	store := h.deps.Backend.Store(clientID)
	cache := h.deps.Backend.Cache(clientID)

	if err = store.SetLoading(ctx, true); err != nil {
		return err
	}
	defer func() {
		if err == nil {
			return
		}
		if clearErr := store.Clear(ctx); clearErr != nil {
			h.deps.Logger.Warn("clear store after failed login",
				slog.String("client_id", clientID),
				slog.String("error", clearErr.Error()))
		}
	}()

	if err = cache.Set(ctx, h.cache.UserKey, string(raw)); err != nil {
		return err
	}
	if err = cache.Set(ctx, h.cache.TokenKey, token); err != nil {
		return err
	}
	if err = store.SetToken(ctx, token); err != nil {
		return err
	}
	if err = store.SetUser(ctx, user); err != nil {
		return err
	}
	return store.SetLoading(ctx, false)
}

func (h *handlers) rehashIfNeeded(ctx context.Context, email, plain, encoded string) {
	stale, err := h.deps.Hasher.NeedsRehash(encoded)
	if err != nil || !stale {
		return
	}
	hash, err := h.deps.Hasher.Hash(plain)
	if err != nil {
		return
	}
	if err := h.deps.Directory.UpdateHash(ctx, email, hash); err != nil {
		h.deps.Logger.Warn("rehash password", slog.String("error", err.Error()))
	}
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if clientID, ok := pgmiddleware.ClientIDFromRequest(r); ok {
		if err := h.deps.Backend.Store(clientID).Clear(ctx); err != nil {
			h.internalError(w, r, "clear store", err)
			return
		}
		if err := h.deps.Backend.Cache(clientID).Delete(ctx, h.cache.UserKey, h.cache.TokenKey); err != nil {
			h.internalError(w, r, "clear cache", err)
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     pgmiddleware.TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.deps.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

/*
====================================
VIEWS
====================================
*/

// navState renders the navigation state a guard redirect carried here.
func (h *handlers) navState(page string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var from portalguard.Location
		if u, err := url.Parse(q.Get("from")); err == nil {
			from = portalguard.LocationFromURL(u)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"page": page,
			"state": portalguard.NavState{
				From:    from,
				Error:   q.Get("error"),
				Message: q.Get("message"),
			},
		})
	}
}

func (h *handlers) view(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := pgmiddleware.UserFromContext(r.Context())
		d, _ := pgmiddleware.DecisionFromContext(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{
			"view":       name,
			"user":       user,
			"rehydrated": d.Rehydrated,
		})
	}
}

func (h *handlers) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.deps.Logger.Error(op,
		slog.String("error", err.Error()),
		slog.String("request_id", chimiddleware.GetReqID(r.Context())),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
