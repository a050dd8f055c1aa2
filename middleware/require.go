package middleware

import (
	"net/http"

	"github.com/campusbridge/portalguard"
	"github.com/campusbridge/portalguard/session"
)

// RequireAuthenticated admits any logged-in user, whatever their role.
func RequireAuthenticated(g *portalguard.Guard, backend session.Backend) func(http.Handler) http.Handler {
	return Guard(g, backend)
}

// RequireRoles admits users whose role, after aliases, is one of roles.
func RequireRoles(g *portalguard.Guard, backend session.Backend, roles ...portalguard.Role) func(http.Handler) http.Handler {
	return Guard(g, backend, roles...)
}
