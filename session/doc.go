// Package session models the client-side session a route guard inspects: the
// in-flight [Store] (token, user, loading flag) and the persistent [Cache]
// that outlives it.
//
// # Backends
//
// [MemoryBackend] keeps everything in process and suits tests and single-node
// demos. [RedisBackend] keeps each client's store in a hash and its cache in
// namespaced string keys so any node can serve any client.
//
// # Architecture boundaries
//
// This package owns storage and the [UserRecord] JSON shape. It does NOT decide
// whether a session is authorized; that belongs to the root package.
//
// # What this package must NOT do
//
//   - Import portalguard, jwt, or permission (no upward imports).
//   - Interpret user_type beyond carrying it as a [Role].
//   - Drop unknown record fields on a write.
package session
