// Package portalguard decides whether a view of the campus portal may render
// for the current browser session, restoring the session from the persistent
// cache when the in-memory store lost its user after a reload.
//
// One check yields exactly one [Outcome]: Pending, Error, Unauthenticated,
// Forbidden or Authorized. The only side effect a check may have is writing
// a rehydrated user back into the session store.
//
// Guard methods are safe to call from multiple goroutines after
// [Builder.Build]. A [Checker] adds the per-view memo so the cache is read
// at most once per distinct (token, user) pair.
//
// # Architecture boundaries
//
// portalguard is the public surface. It exposes [Guard], [Checker], [Builder],
// [Config] and the decision value types. Storage lives in session/, role
// resolution in permission/, and audit buffering and counters under internal/.
//
// # What this package must NOT do
//
//   - Navigate, render or write HTTP responses; middleware/ does that.
//   - Write anything to the store other than the rehydrated user.
//   - Issue or refresh tokens.
//   - Import any sub-package that re-imports portalguard (no import cycles).
//
// # Performance contract
//
// A check on a session that already holds its user makes no backend calls.
// Rehydration costs one cache read and one store write.
package portalguard
