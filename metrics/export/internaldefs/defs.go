package internaldefs

import (
	"github.com/campusbridge/portalguard"
)

// CounterDef names one guard counter for export.
type CounterDef struct {
	ID   portalguard.MetricID
	Name string
	Help string
}

// HistogramDef names one guard histogram for export.
type HistogramDef struct {
	ID   portalguard.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: portalguard.MetricCheckAuthorized, Name: "portalguard_check_authorized_total", Help: "Guard checks that allowed the view."},
	{ID: portalguard.MetricCheckForbidden, Name: "portalguard_check_forbidden_total", Help: "Guard checks rejected for the user's role."},
	{ID: portalguard.MetricCheckUnauthenticated, Name: "portalguard_check_unauthenticated_total", Help: "Guard checks without a usable token or user."},
	{ID: portalguard.MetricCheckError, Name: "portalguard_check_error_total", Help: "Guard checks that could not restore the session."},
	{ID: portalguard.MetricCheckPending, Name: "portalguard_check_pending_total", Help: "Guard checks made while the session was loading."},
	{ID: portalguard.MetricRehydrateSuccess, Name: "portalguard_rehydrate_success_total", Help: "Users restored from the persistent cache."},
	{ID: portalguard.MetricRehydrateMissing, Name: "portalguard_rehydrate_missing_total", Help: "Rehydrations with no cached user record."},
	{ID: portalguard.MetricRehydrateCorrupt, Name: "portalguard_rehydrate_corrupt_total", Help: "Rehydrations with an unparseable cached user record."},
	{ID: portalguard.MetricCacheRead, Name: "portalguard_cache_read_total", Help: "Persistent cache reads."},
	{ID: portalguard.MetricStoreWrite, Name: "portalguard_store_write_total", Help: "Rehydrated users written back into the session store."},
	{ID: portalguard.MetricInvalidRole, Name: "portalguard_invalid_role_total", Help: "Users whose user_type is not a known role."},
	{ID: portalguard.MetricTokenRejected, Name: "portalguard_token_rejected_total", Help: "Tokens rejected by the verifier."},
	{ID: portalguard.MetricBackendUnavailable, Name: "portalguard_backend_unavailable_total", Help: "Session store or cache failures."},
}

var HistogramDefs = []HistogramDef{
	{ID: portalguard.MetricCheckLatency, Name: "portalguard_check_latency_seconds", Help: "Guard check latency."},
}

// AuditDroppedName is the counter exporters use for dropped audit events.
const AuditDroppedName = "portalguard_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Audit events dropped due to dispatcher backpressure."

// AuditSuppressedName counts audit events withheld as per-client repeats.
const AuditSuppressedName = "portalguard_audit_suppressed_total"

// AuditSuppressedHelp describes AuditSuppressedName.
const AuditSuppressedHelp = "Audit events withheld as repeats from the same client."

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// in-process bucket is +Inf.
var HistogramUpperBounds = []float64{
	0.0001,
	0.00025,
	0.0005,
	0.001,
	0.005,
	0.025,
	0.1,
}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// cannot carry an le label.
var HistogramBoundSuffix = []string{
	"0_0001",
	"0_00025",
	"0_0005",
	"0_001",
	"0_005",
	"0_025",
	"0_1",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the eight in-process buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
