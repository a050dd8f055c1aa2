package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/campusbridge/portalguard"
	"github.com/campusbridge/portalguard/session"
	"github.com/redis/go-redis/v9"
)

var benchRoles = []session.Role{
	session.RoleStudent,
	session.RoleCompany,
	session.RoleUniversity,
	session.RoleMentor,
}

// views mirrors the demo portal's guarded routes.
var views = []struct {
	path    string
	allowed []portalguard.Role
}{
	{"/dashboard/student", []portalguard.Role{portalguard.RoleStudent}},
	{"/dashboard/company", []portalguard.Role{portalguard.RoleCompany}},
	{"/dashboard/school", []portalguard.Role{portalguard.RoleSchool}},
	{"/dashboard/mentor", []portalguard.Role{portalguard.RoleMentor}},
	{"/applications", []portalguard.Role{portalguard.RoleStudent, portalguard.RoleCompany}},
	{"/mentoring-sessions", []portalguard.Role{portalguard.RoleStudent, portalguard.RoleMentor}},
	{"/profile", nil},
}

func main() {
	var (
		clients     = flag.Int("clients", 10000, "number of client sessions to seed")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "guard evaluations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "pgbench", "key prefix")
	)
	flag.Parse()

	if *clients <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "clients, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	guard, err := portalguard.New().
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "guard build failed: %v\n", err)
		os.Exit(1)
	}
	defer guard.Close()

	backend := session.NewRedisBackend(client, *prefix, 0, 0)
	userKey := guard.Config().Cache.UserKey

	ids := make([]string, *clients)
	fmt.Printf("seeding %d clients...\n", *clients)
	startSeed := time.Now()
	for i := range ids {
		ids[i] = fmt.Sprintf("client-%d", i)
		if err := seedClient(ctx, backend, ids[i], userKey, i, i%2 == 0); err != nil {
			fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	mixed := runPhase(ctx, guard, backend, ids, *ops, *concurrency, nil)

	// Every evaluation in the cold phase starts from a store that lost its
	// user, so each one rehydrates from the cache.
	storeKey := func(id string) string { return *prefix + ":store:" + id }
	cold := runPhase(ctx, guard, backend, ids, *ops, *concurrency, func(id string) {
		_ = client.HDel(ctx, storeKey(id), "user").Err()
	})

	fmt.Println("---- results ----")
	printStats("mixed", mixed)
	printStats("cold", cold)

	snap := guard.MetricsSnapshot()
	fmt.Printf("rehydrations: success=%d missing=%d corrupt=%d\n",
		snap.Counters[portalguard.MetricRehydrateSuccess],
		snap.Counters[portalguard.MetricRehydrateMissing],
		snap.Counters[portalguard.MetricRehydrateCorrupt],
	)
}

// seedClient gives every client a token and a cached user. Hydrated clients
// also carry the user in their store.
func seedClient(ctx context.Context, b *session.RedisBackend, id, userKey string, i int, hydrated bool) error {
	user := session.UserRecord{
		ID:       fmt.Sprintf("u-%d", i),
		UserType: benchRoles[i%len(benchRoles)],
		Email:    fmt.Sprintf("user%d@campus.test", i),
	}
	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}
	if err := b.Cache(id).Set(ctx, userKey, string(raw)); err != nil {
		return err
	}
	store := b.Store(id)
	if err := store.SetToken(ctx, "tok-"+id); err != nil {
		return err
	}
	if hydrated {
		return store.SetUser(ctx, user)
	}
	return nil
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	outcomes map[portalguard.Outcome]int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func runPhase(
	ctx context.Context,
	guard *portalguard.Guard,
	backend session.Backend,
	ids []string,
	ops, concurrency int,
	prepare func(id string),
) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		outcomes  = make(map[portalguard.Outcome]int64)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				id := ids[r.Intn(len(ids))]
				view := views[r.Intn(len(views))]
				if prepare != nil {
					prepare(id)
				}

				t0 := time.Now()
				store := backend.Store(id)
				state, err := store.Snapshot(ctx)
				var d portalguard.Decision
				if err != nil {
					d = guard.Unavailable(ctx, portalguard.Location{Path: view.path}, err)
				} else {
					d = guard.Evaluate(ctx, portalguard.Input{
						State:        state,
						AllowedRoles: view.allowed,
						Location:     portalguard.Location{Path: view.path},
						Store:        store,
						Cache:        backend.Cache(id),
					})
				}
				elapsed := time.Since(t0)
				if d.Outcome == portalguard.OutcomeError {
					atomic.AddInt64(&failures, 1)
				}

				mu.Lock()
				latencies = append(latencies, elapsed)
				outcomes[d.Outcome]++
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	s := computeStats(time.Since(start), latencies, failures)
	s.outcomes = outcomes
	return s
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d errors=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
	for o := portalguard.OutcomePending; o <= portalguard.OutcomeAuthorized; o++ {
		if n := s.outcomes[o]; n > 0 {
			fmt.Printf("  %-16s %d\n", o.String(), n)
		}
	}
}
