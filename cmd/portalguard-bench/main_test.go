package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/campusbridge/portalguard"
	"github.com/campusbridge/portalguard/session"
	"github.com/redis/go-redis/v9"
)

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := percentile(samples, 50); got != 5 {
		t.Fatalf("p50 = %d, want 5", got)
	}
	if got := percentile(samples, 100); got != 10 {
		t.Fatalf("p100 = %d, want 10", got)
	}
	if got := percentile(nil, 99); got != 0 {
		t.Fatalf("empty percentile = %d, want 0", got)
	}
}

func TestRunPhaseEvaluatesSeededClients(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	guard, err := portalguard.New().WithMetricsEnabled(true).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(guard.Close)

	ctx := context.Background()
	backend := session.NewRedisBackend(client, "pgbench", 0, 0)
	ids := []string{"client-0", "client-1", "client-2", "client-3"}
	for i, id := range ids {
		if err := seedClient(ctx, backend, id, "user", i, i%2 == 0); err != nil {
			t.Fatalf("seedClient: %v", err)
		}
	}

	stats := runPhase(ctx, guard, backend, ids, 200, 4, nil)
	if stats.ops != 200 {
		t.Fatalf("ops = %d, want 200", stats.ops)
	}
	if stats.failures != 0 {
		t.Fatalf("unexpected errors: %d", stats.failures)
	}
	if stats.outcomes[portalguard.OutcomeAuthorized] == 0 {
		t.Fatal("expected some authorized outcomes")
	}
	if stats.outcomes[portalguard.OutcomeUnauthenticated] != 0 {
		t.Fatalf("seeded clients should never be unauthenticated, got %d", stats.outcomes[portalguard.OutcomeUnauthenticated])
	}

	snap := guard.MetricsSnapshot()
	if snap.Counters[portalguard.MetricRehydrateSuccess] == 0 {
		t.Fatal("cache-only clients should have been rehydrated")
	}
}
