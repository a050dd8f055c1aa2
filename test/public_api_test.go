package test

import (
	"context"
	"net/http"
	"testing"

	"github.com/campusbridge/portalguard"
	"github.com/campusbridge/portalguard/middleware"
	"github.com/campusbridge/portalguard/session"
)

// This test guards public API compile-compat for consumers.
func TestPublicAPISurfaceCompile(t *testing.T) {
	_ = portalguard.New
	_ = portalguard.DefaultConfig

	var _ *portalguard.Guard
	var _ *portalguard.Checker
	var _ portalguard.Config
	var _ portalguard.Decision
	var _ portalguard.Input
	var _ portalguard.Redirect
	var _ portalguard.NavState
	var _ portalguard.TokenVerifier
	var _ portalguard.AuditSink

	var _ error = portalguard.ErrSessionExpired
	var _ error = portalguard.ErrCorruptSession
	var _ error = portalguard.ErrUnauthenticated
	var _ error = portalguard.ErrForbidden
	var _ error = portalguard.ErrInvalidRole
	var _ error = portalguard.ErrCacheUnavailable
	var _ error = portalguard.ErrStoreUnavailable

	var _ session.Backend = session.NewMemoryBackend()
	var _ session.Backend = (*session.RedisBackend)(nil)

	var _ func(*portalguard.Guard, session.Backend, ...portalguard.Role) func(http.Handler) http.Handler = middleware.Guard
	var _ func(*portalguard.Guard, session.Backend) func(http.Handler) http.Handler = middleware.RequireAuthenticated
	var _ func(*portalguard.Guard, session.Backend, ...portalguard.Role) func(http.Handler) http.Handler = middleware.RequireRoles

	var _ func(*portalguard.Guard, context.Context, portalguard.Input) portalguard.Decision = (*portalguard.Guard).Evaluate
	var _ func(*portalguard.Guard, session.UserWriter, session.Cache) *portalguard.Checker = (*portalguard.Guard).NewChecker
	var _ func(*portalguard.Checker, context.Context, portalguard.SessionState, []portalguard.Role, portalguard.Location) portalguard.Decision = (*portalguard.Checker).Check
}
