//go:build integration
// +build integration

package test

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/campusbridge/portalguard"
	"github.com/campusbridge/portalguard/session"
	"github.com/redis/go-redis/v9"
)

const testPrefix = "pgit"

// redisMode describes which Redis backend a suite runs against.
type redisMode struct {
	name  string
	setup func(t *testing.T) (redis.UniversalClient, func())
}

// redisModes always includes miniredis. A real Redis is added when
// REDIS_ADDR is set.
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{
		{
			name: "miniredis",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				mr, err := miniredis.Run()
				if err != nil {
					t.Fatalf("miniredis: %v", err)
				}
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				return rdb, func() { _ = rdb.Close(); mr.Close() }
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis at %s: %v", addr, err)
				}
				rdb.FlushDB(context.Background())
				return rdb, func() { rdb.FlushDB(context.Background()); _ = rdb.Close() }
			},
		})
	}

	return modes
}

func newGuard(t *testing.T, b *portalguard.Builder) *portalguard.Guard {
	t.Helper()
	if b == nil {
		b = portalguard.New()
	}
	g, err := b.WithMetricsEnabled(true).Build()
	if err != nil {
		t.Fatalf("guard build: %v", err)
	}
	t.Cleanup(g.Close)
	return g
}

func cacheUser(t *testing.T, b session.Backend, clientID string, user session.UserRecord) {
	t.Helper()
	raw, err := json.Marshal(user)
	if err != nil {
		t.Fatalf("marshal user: %v", err)
	}
	if err := b.Cache(clientID).Set(context.Background(), "user", string(raw)); err != nil {
		t.Fatalf("cache set: %v", err)
	}
}

func setToken(t *testing.T, b session.Backend, clientID, token string) {
	t.Helper()
	if err := b.Store(clientID).SetToken(context.Background(), token); err != nil {
		t.Fatalf("set token: %v", err)
	}
}

// evaluate snapshots the client's store and runs one guard check against it.
func evaluate(t *testing.T, g *portalguard.Guard, b session.Backend, clientID string, allowed ...portalguard.Role) portalguard.Decision {
	t.Helper()
	ctx := context.Background()
	store := b.Store(clientID)
	state, err := store.Snapshot(ctx)
	if err != nil {
		return g.Unavailable(ctx, portalguard.Location{Path: "/view"}, err)
	}
	return g.Evaluate(ctx, portalguard.Input{
		State:        state,
		AllowedRoles: allowed,
		Location:     portalguard.Location{Path: "/view"},
		Store:        store,
		Cache:        b.Cache(clientID),
	})
}
