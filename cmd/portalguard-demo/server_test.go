package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/campusbridge/portalguard"
	"github.com/campusbridge/portalguard/internal/rate"
	"github.com/campusbridge/portalguard/jwt"
	promexport "github.com/campusbridge/portalguard/metrics/export/prometheus"
	pgmiddleware "github.com/campusbridge/portalguard/middleware"
	"github.com/campusbridge/portalguard/password"
	"github.com/campusbridge/portalguard/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testPortal struct {
	mr     *miniredis.Miniredis
	server *httptest.Server
}

func newTestPortal(t *testing.T, wrap ...func(session.Backend) session.Backend) *testPortal {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	tokens, err := jwt.NewManager(jwt.Config{
		TTL:           time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte(testSecret),
		Issuer:        "portalguard-test",
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	hasher, err := password.NewHasher(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}

	guard, err := portalguard.New().
		WithTokenVerifier(tokens).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(guard.Close)

	reg := prometheus.NewRegistry()
	if _, err := promexport.Register(reg, guard); err != nil {
		t.Fatalf("Register: %v", err)
	}

	redisBackend := session.NewRedisBackend(rdb, "pg", 0, 0)
	var backend session.Backend = redisBackend
	for _, w := range wrap {
		backend = w(backend)
	}
	router := newRouter(&serverDeps{
		Guard:     guard,
		Backend:   backend,
		Health:    redisBackend,
		Directory: newDirectory(rdb, "pg"),
		Tokens:    tokens,
		Hasher:    hasher,
		Limiter:   rate.New(rdb, rate.Config{Prefix: "pg", MaxAttempts: 3, Cooldown: time.Minute}),
		Metrics:   promexport.Handler(reg),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		TokenTTL:  time.Hour,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testPortal{mr: mr, server: srv}
}

func (p *testPortal) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (p *testPortal) post(t *testing.T, c *http.Client, path string, body any) *http.Response {
	t.Helper()
	raw, _ := json.Marshal(body)
	resp, err := c.Post(p.server.URL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (p *testPortal) get(t *testing.T, c *http.Client, path string, jsonAccept bool) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, p.server.URL+path, nil)
	if jsonAccept {
		req.Header.Set("Accept", "application/json")
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (p *testPortal) clientID(t *testing.T, c *http.Client) string {
	t.Helper()
	u, _ := url.Parse(p.server.URL)
	for _, ck := range c.Jar.Cookies(u) {
		if ck.Name == pgmiddleware.ClientCookie {
			return ck.Value
		}
	}
	t.Fatal("no client cookie in jar")
	return ""
}

func (p *testPortal) registerAndLogin(t *testing.T, c *http.Client, email, role string) {
	t.Helper()
	resp := p.post(t, c, "/api/register", map[string]string{
		"email": email, "password": "correct-horse", "name": "Test", "user_type": role,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", resp.StatusCode)
	}
	resp = p.post(t, c, "/api/login", map[string]string{"email": email, "password": "correct-horse"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}
}

func decodeView(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return body
}

func TestUniversityReachesSchoolDashboard(t *testing.T) {
	p := newTestPortal(t)
	c := p.client(t)
	p.registerAndLogin(t, c, "reg@uni.edu", "university")

	resp := p.get(t, c, "/dashboard/school", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decodeView(t, resp)
	if body["view"] != "school-dashboard" {
		t.Fatalf("unexpected view %v", body["view"])
	}
	if body["rehydrated"] != false {
		t.Fatalf("hydrated store should not rehydrate, got %v", body["rehydrated"])
	}
}

func TestSessionRehydratesAfterStoreLoss(t *testing.T) {
	p := newTestPortal(t)
	c := p.client(t)
	p.registerAndLogin(t, c, "ada@campus.edu", "student")

	p.mr.HDel("pg:store:"+p.clientID(t, c), "user")

	resp := p.get(t, c, "/applications", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body := decodeView(t, resp); body["rehydrated"] != true {
		t.Fatalf("expected rehydrated view, got %v", body["rehydrated"])
	}
	if p.mr.HGet("pg:store:"+p.clientID(t, c), "user") == "" {
		t.Fatal("expected store to hold the user again")
	}
}

func TestExpiredCacheRedirectsToLogin(t *testing.T) {
	p := newTestPortal(t)
	c := p.client(t)
	p.registerAndLogin(t, c, "ada@campus.edu", "student")

	id := p.clientID(t, c)
	p.mr.HDel("pg:store:"+id, "user")
	p.mr.Del("pg:cache:" + id + ":user")

	resp := p.get(t, c, "/profile", false)
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", resp.StatusCode)
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if loc.Path != "/login" || loc.Query().Get("error") != "session expired" || loc.Query().Get("from") != "/profile" {
		t.Fatalf("unexpected redirect %s", loc)
	}
}

func TestWrongRoleIsForbidden(t *testing.T) {
	p := newTestPortal(t)
	c := p.client(t)
	p.registerAndLogin(t, c, "hr@acme.io", "company")

	resp := p.get(t, c, "/mentoring-sessions", true)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if body := decodeView(t, resp); body["outcome"] != "forbidden" {
		t.Fatalf("unexpected outcome %v", body["outcome"])
	}
}

func TestLogoutEndsSession(t *testing.T) {
	p := newTestPortal(t)
	c := p.client(t)
	p.registerAndLogin(t, c, "mentor@campus.edu", "mentor")

	if resp := p.post(t, c, "/api/logout", nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", resp.StatusCode)
	}

	resp := p.get(t, c, "/dashboard/mentor", false)
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected 303 after logout, got %d", resp.StatusCode)
	}
	if !strings.HasPrefix(resp.Header.Get("Location"), "/login?") {
		t.Fatalf("unexpected redirect %q", resp.Header.Get("Location"))
	}
}

type failingCache struct{ session.Cache }

func (failingCache) Set(context.Context, string, string) error {
	return errors.New("cache down")
}

type failingCacheBackend struct{ session.Backend }

func (b failingCacheBackend) Cache(clientID string) session.Cache {
	return failingCache{b.Backend.Cache(clientID)}
}

func TestFailedLoginDoesNotLeaveClientPending(t *testing.T) {
	p := newTestPortal(t, func(b session.Backend) session.Backend {
		return failingCacheBackend{b}
	})
	c := p.client(t)

	resp := p.post(t, c, "/api/register", map[string]string{
		"email": "ada@campus.edu", "password": "correct-horse", "name": "Ada", "user_type": "student",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", resp.StatusCode)
	}
	resp = p.post(t, c, "/api/login", map[string]string{"email": "ada@campus.edu", "password": "correct-horse"})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("login: expected 500, got %d", resp.StatusCode)
	}

	id := p.clientID(t, c)
	if p.mr.HGet("pg:store:"+id, "loading") != "" {
		t.Fatal("expected loading flag to be cleared after failed login")
	}
	for i := 0; i < 3; i++ {
		resp := p.get(t, c, "/applications", true)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("request %d: expected 401, got %d (Retry-After=%q)", i, resp.StatusCode, resp.Header.Get("Retry-After"))
		}
	}
}

func TestRegisterValidation(t *testing.T) {
	p := newTestPortal(t)
	c := p.client(t)

	cases := []struct {
		name string
		body map[string]string
		want int
	}{
		{"bad email", map[string]string{"email": "nope", "password": "correct-horse", "user_type": "student"}, http.StatusBadRequest},
		{"school is not registrable", map[string]string{"email": "a@b.io", "password": "correct-horse", "user_type": "school"}, http.StatusBadRequest},
		{"short password", map[string]string{"email": "a@b.io", "password": "short", "user_type": "student"}, http.StatusBadRequest},
		{"ok", map[string]string{"email": "a@b.io", "password": "correct-horse", "user_type": "student"}, http.StatusCreated},
		{"duplicate", map[string]string{"email": "A@B.io", "password": "correct-horse", "user_type": "student"}, http.StatusConflict},
	}
	for _, tc := range cases {
		if resp := p.post(t, c, "/api/register", tc.body); resp.StatusCode != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, resp.StatusCode)
		}
	}
}

func TestLoginThrottled(t *testing.T) {
	p := newTestPortal(t)
	c := p.client(t)

	for i := 0; i < 3; i++ {
		resp := p.post(t, c, "/api/login", map[string]string{"email": "ghost@campus.edu", "password": "wrong-password"})
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, resp.StatusCode)
		}
	}
	resp := p.post(t, c, "/api/login", map[string]string{"email": "ghost@campus.edu", "password": "wrong-password"})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") != "60" {
		t.Fatalf("expected Retry-After: 60, got %q", resp.Header.Get("Retry-After"))
	}
}

func TestLoginPageRendersNavState(t *testing.T) {
	p := newTestPortal(t)
	c := p.client(t)

	resp := p.get(t, c, "/login?from=%2Fapplications%3Fpage%3D2&message=Please+log+in", false)
	body := decodeView(t, resp)
	state, _ := body["state"].(map[string]any)
	from, _ := state["from"].(map[string]any)
	if from["path"] != "/applications" || from["query"] != "page=2" {
		t.Fatalf("unexpected from %v", from)
	}
	if state["message"] != "Please log in" {
		t.Fatalf("unexpected message %v", state["message"])
	}
}

func TestHealthAndMetrics(t *testing.T) {
	p := newTestPortal(t)
	c := p.client(t)
	p.registerAndLogin(t, c, "ada@campus.edu", "student")
	p.get(t, c, "/dashboard/student", false)

	if resp := p.get(t, c, "/healthz", false); resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", resp.StatusCode)
	}

	resp := p.get(t, c, "/metrics", false)
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), "portalguard_check_authorized_total 1") {
		t.Fatalf("expected authorized counter in scrape:\n%s", raw)
	}
}
