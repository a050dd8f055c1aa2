package portalguard

import "errors"

var (
	// ErrSessionExpired is recorded when a token is present but the
	// persistent cache no longer holds a user record.
	ErrSessionExpired = errors.New("session expired")
	// ErrCorruptSession is recorded when the cached user record does not parse.
	ErrCorruptSession = errors.New("corrupt session record")
	// ErrUnauthenticated accompanies OutcomeUnauthenticated.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden accompanies OutcomeForbidden.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidRole is recorded when a role-restricted view meets a user
	// whose user_type is not a registered role.
	ErrInvalidRole = errors.New("invalid account role")
	// ErrCacheUnavailable is recorded when the persistent cache read fails.
	ErrCacheUnavailable = errors.New("session cache unavailable")
	// ErrStoreUnavailable is recorded when the session store cannot be read
	// or the rehydrated user cannot be written back.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrTokenRejected is reported when the configured verifier rejects the token.
	ErrTokenRejected = errors.New("token rejected")
	// ErrGuardNotReady is returned by methods called on a nil or closed guard.
	ErrGuardNotReady = errors.New("guard not ready")
)
