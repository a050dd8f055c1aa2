//go:build integration
// +build integration

package test

import (
	"context"
	"net"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/campusbridge/portalguard"
	"github.com/campusbridge/portalguard/session"
	"github.com/redis/go-redis/v9"
)

// cmdCounter is a go-redis Hook that counts single commands and pipeline
// round-trips separately.
type cmdCounter struct {
	singles   atomic.Int64
	pipelines atomic.Int64
}

func (h *cmdCounter) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *cmdCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.singles.Add(1)
		return next(ctx, cmd)
	}
}

func (h *cmdCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		h.pipelines.Add(1)
		return next(ctx, cmds)
	}
}

func (h *cmdCounter) Reset() {
	h.singles.Store(0)
	h.pipelines.Store(0)
}

func newCountedBackend(t *testing.T) (*session.RedisBackend, *cmdCounter) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	counter := &cmdCounter{}
	rdb.AddHook(counter)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("warmup ping: %v", err)
	}
	counter.Reset()

	return session.NewRedisBackend(rdb, testPrefix, 0, 0), counter
}

// evaluateCounted snapshots outside the measured window so only the guard's
// own Redis traffic is counted.
func evaluateCounted(t *testing.T, g *portalguard.Guard, b *session.RedisBackend, counter *cmdCounter, clientID string) portalguard.Decision {
	t.Helper()
	ctx := context.Background()
	store := b.Store(clientID)
	state, err := store.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	counter.Reset()
	return g.Evaluate(ctx, portalguard.Input{
		State:    state,
		Location: portalguard.Location{Path: "/view"},
		Store:    store,
		Cache:    b.Cache(clientID),
	})
}

func TestHydratedCheckRedisBudget(t *testing.T) {
	g := newGuard(t, nil)
	b, counter := newCountedBackend(t)

	setToken(t, b, "c-1", "tok")
	if err := b.Store("c-1").SetUser(context.Background(), session.UserRecord{ID: "u-1", UserType: session.RoleStudent}); err != nil {
		t.Fatalf("set user: %v", err)
	}

	d := evaluateCounted(t, g, b, counter, "c-1")
	if d.Outcome != portalguard.OutcomeAuthorized {
		t.Fatalf("expected authorized, got %v", d.Outcome)
	}
	if n := counter.singles.Load() + counter.pipelines.Load(); n != 0 {
		t.Fatalf("hydrated check must not touch Redis, used %d round-trips", n)
	}
}

func TestRehydrationRedisBudget(t *testing.T) {
	g := newGuard(t, nil)
	b, counter := newCountedBackend(t)

	setToken(t, b, "c-2", "tok")
	cacheUser(t, b, "c-2", session.UserRecord{ID: "u-2", UserType: session.RoleMentor})

	d := evaluateCounted(t, g, b, counter, "c-2")
	if d.Outcome != portalguard.OutcomeAuthorized || !d.Rehydrated {
		t.Fatalf("expected rehydrated authorization, got %+v", d)
	}
	if got := counter.singles.Load(); got != 1 {
		t.Fatalf("rehydration should read the cache once, used %d commands", got)
	}
	if got := counter.pipelines.Load(); got != 1 {
		t.Fatalf("rehydration should write the store once, used %d pipelines", got)
	}
}

func TestExpiredSessionRedisBudget(t *testing.T) {
	g := newGuard(t, nil)
	b, counter := newCountedBackend(t)

	setToken(t, b, "c-3", "tok")

	d := evaluateCounted(t, g, b, counter, "c-3")
	if d.Outcome != portalguard.OutcomeError {
		t.Fatalf("expected error, got %v", d.Outcome)
	}
	if got := counter.singles.Load(); got != 1 {
		t.Fatalf("expired check should read the cache once, used %d commands", got)
	}
	if got := counter.pipelines.Load(); got != 0 {
		t.Fatalf("expired check must not write the store, used %d pipelines", got)
	}
}

func TestNoTokenRedisBudget(t *testing.T) {
	g := newGuard(t, nil)
	b, counter := newCountedBackend(t)

	cacheUser(t, b, "c-4", session.UserRecord{ID: "u-4", UserType: session.RoleStudent})

	d := evaluateCounted(t, g, b, counter, "c-4")
	if d.Outcome != portalguard.OutcomeUnauthenticated {
		t.Fatalf("expected unauthenticated, got %v", d.Outcome)
	}
	if n := counter.singles.Load() + counter.pipelines.Load(); n != 0 {
		t.Fatalf("a missing token must short-circuit before the cache, used %d round-trips", n)
	}
}
