package session

import (
	"context"
	"errors"
)

// ErrBackendUnavailable wraps transport failures from a store or cache backend.
var ErrBackendUnavailable = errors.New("session backend unavailable")

// UserWriter is the single store mutation route guards are allowed to make.
type UserWriter interface {
	SetUser(ctx context.Context, user UserRecord) error
}

// Store holds the in-flight session of one client: token, user and a
// loading flag raised while a login or logout is in progress.
type Store interface {
	UserWriter
	Snapshot(ctx context.Context) (State, error)
	SetToken(ctx context.Context, token string) error
	SetLoading(ctx context.Context, loading bool) error
	Clear(ctx context.Context) error
}

// Cache is the client's persistent key/value storage. It survives restarts
// of the in-memory store, which is what makes rehydration possible.
type Cache interface {
	// Get returns ok=false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// Backend hands out the store and cache belonging to one client.
type Backend interface {
	Store(clientID string) Store
	Cache(clientID string) Cache
}
