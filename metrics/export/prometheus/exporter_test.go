package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/campusbridge/portalguard"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeSource struct {
	snapshot portalguard.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() portalguard.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                         { return f.dropped }

func scrape(t *testing.T, src metricsSource) string {
	t.Helper()
	reg := prometheus.NewRegistry()
	if _, err := Register(reg, src); err != nil {
		t.Fatalf("register: %v", err)
	}

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestCollectorExportsCountersAndHistogram(t *testing.T) {
	out := scrape(t, fakeSource{
		snapshot: portalguard.MetricsSnapshot{
			Counters: map[portalguard.MetricID]uint64{
				portalguard.MetricCheckForbidden:   7,
				portalguard.MetricRehydrateSuccess: 2,
			},
			Histograms: map[portalguard.MetricID][]uint64{
				portalguard.MetricCheckLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	for _, want := range []string{
		"portalguard_check_forbidden_total 7",
		"portalguard_rehydrate_success_total 2",
		`portalguard_check_latency_seconds_bucket{le="0.0001"} 1`,
		`portalguard_check_latency_seconds_bucket{le="+Inf"} 36`,
		"portalguard_check_latency_seconds_count 36",
		"portalguard_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestCollectorSkipsDisabledHistogram(t *testing.T) {
	out := scrape(t, fakeSource{
		snapshot: portalguard.MetricsSnapshot{
			Counters:   map[portalguard.MetricID]uint64{},
			Histograms: map[portalguard.MetricID][]uint64{},
		},
	})
	if strings.Contains(out, "portalguard_check_latency_seconds") {
		t.Fatalf("histogram should be absent when latency is disabled:\n%s", out)
	}
	if !strings.Contains(out, "portalguard_check_authorized_total 0") {
		t.Fatalf("counters should still be exported:\n%s", out)
	}
}

func TestRegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	src := fakeSource{snapshot: portalguard.MetricsSnapshot{}}
	if _, err := Register(reg, src); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := Register(reg, src); err == nil {
		t.Fatal("second register must fail on duplicate descriptors")
	}
}

func TestCollectorReadsLiveGuard(t *testing.T) {
	g, err := portalguard.New().WithMetricsEnabled(true).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer g.Close()

	g.Evaluate(httptest.NewRequest(http.MethodGet, "/", nil).Context(), portalguard.Input{})

	out := scrape(t, g)
	if !strings.Contains(out, "portalguard_check_unauthenticated_total 1") {
		t.Fatalf("expected live counter in output:\n%s", out)
	}
	if !strings.Contains(out, "portalguard_audit_suppressed_total 0") {
		t.Fatalf("guard source should export the suppression counter:\n%s", out)
	}
}

func TestCollectorOmitsSuppressionForPlainSource(t *testing.T) {
	out := scrape(t, fakeSource{snapshot: portalguard.MetricsSnapshot{}})
	if strings.Contains(out, "portalguard_audit_suppressed_total") {
		t.Fatalf("plain sources have no suppression counter:\n%s", out)
	}
}
