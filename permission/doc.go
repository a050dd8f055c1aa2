// Package permission provides the role registry, role sets, and alias
// resolution used by route guards to decide whether a user's role is
// accepted by a view.
//
// # Role sets
//
// Each registered role owns one bit of a [Mask64]. A view's allowed roles
// compile to a mask once; a user is accepted when the mask of roles their
// role satisfies (itself plus aliases) intersects it.
//
// # Architecture boundaries
//
// This package is a pure in-memory data structure with no I/O.
//
// # What this package must NOT do
//
//   - Access Redis, the network, or the session store.
//   - Import portalguard, jwt, or session.
//   - Grow a registry after it is frozen.
package permission
