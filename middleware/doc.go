// Package middleware adapts the route guard to net/http.
//
// # Guards
//
//   - [Guard] evaluates the client's session against an allowed role list.
//   - [RequireAuthenticated] admits any logged-in user.
//   - [RequireRoles] admits the listed roles and their aliases.
//
// Each request is tied to a client by the pg_client cookie. The session store
// and cache for that client come from a [session.Backend]. The decision is
// mapped to HTTP: Authorized calls the next handler, Pending answers 202,
// redirects become 303 for browsers and 401/403 JSON for API clients.
//
// # What this package must NOT do
//
//   - Decide access itself; every outcome comes from the guard.
//   - Issue tokens or write the persistent cache.
//   - Leak raw backend errors into responses.
package middleware
