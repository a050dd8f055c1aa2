package portalguard

import (
	"io"
	"log/slog"
	"net/url"

	internalaudit "github.com/campusbridge/portalguard/internal/audit"
	internalmetrics "github.com/campusbridge/portalguard/internal/metrics"
	"github.com/campusbridge/portalguard/session"
)

// Role is the account category a view may require.
type Role = session.Role

// UserRecord is the cached user a session carries.
type UserRecord = session.UserRecord

// SessionState is a point-in-time view of a client session store.
type SessionState = session.State

const (
	RoleStudent    = session.RoleStudent
	RoleCompany    = session.RoleCompany
	RoleSchool     = session.RoleSchool
	RoleUniversity = session.RoleUniversity
	RoleMentor     = session.RoleMentor
)

// Outcome is the classification of one guard check.
type Outcome uint8

const (
	// OutcomePending means the session is still settling; render nothing yet.
	OutcomePending Outcome = iota
	// OutcomeError means the session could not be restored.
	OutcomeError
	// OutcomeUnauthenticated means there is no usable token or user.
	OutcomeUnauthenticated
	// OutcomeForbidden means the user's role is not accepted by the view.
	OutcomeForbidden
	// OutcomeAuthorized means the view may render.
	OutcomeAuthorized
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeError:
		return "error"
	case OutcomeUnauthenticated:
		return "unauthenticated"
	case OutcomeForbidden:
		return "forbidden"
	case OutcomeAuthorized:
		return "authorized"
	default:
		return "unknown"
	}
}

// Location is the view the caller attempted to open.
type Location struct {
	Path     string `json:"path"`
	RawQuery string `json:"query,omitempty"`
	Fragment string `json:"fragment,omitempty"`
}

// LocationFromURL copies the path, query and fragment of u.
func LocationFromURL(u *url.URL) Location {
	if u == nil {
		return Location{}
	}
	return Location{Path: u.Path, RawQuery: u.RawQuery, Fragment: u.Fragment}
}

// String rebuilds the location as a relative URL.
func (l Location) String() string {
	u := url.URL{Path: l.Path, RawQuery: l.RawQuery, Fragment: l.Fragment}
	return u.String()
}

// NavState is carried to the redirect target so it can send the user back to
// From after login, or explain why they landed there.
type NavState struct {
	From    Location `json:"from"`
	Error   string   `json:"error,omitempty"`
	Message string   `json:"message,omitempty"`
}

// Redirect tells the caller where to navigate instead of rendering.
type Redirect struct {
	Target string   `json:"target"`
	State  NavState `json:"state"`
}

// URL encodes the redirect as target?from=…&error=…&message=….
func (r Redirect) URL() string {
	q := url.Values{}
	q.Set("from", r.State.From.String())
	if r.State.Error != "" {
		q.Set("error", r.State.Error)
	}
	if r.State.Message != "" {
		q.Set("message", r.State.Message)
	}
	return r.Target + "?" + q.Encode()
}

// Decision is the transient result of one guard check.
type Decision struct {
	Outcome Outcome
	// Err is one of the package's sentinel errors for Error, Unauthenticated
	// and Forbidden outcomes.
	Err error
	// Message is the user-facing text also carried in Redirect.
	Message  string
	Redirect *Redirect
	// User is set only when Outcome is OutcomeAuthorized.
	User *UserRecord
	// Rehydrated reports that this check restored User from the cache.
	Rehydrated bool
}

// Allowed reports whether the view may render.
func (d Decision) Allowed() bool {
	return d.Outcome == OutcomeAuthorized
}

// TokenVerifier checks a bearer token before the guard trusts it. A token
// that fails verification is treated as absent.
type TokenVerifier interface {
	VerifyToken(token string) error
}

// AuditEvent is a structured audit record emitted by the guard.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the guard's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink is an [AuditSink] that logs events through [log/slog].
type SlogSink = internalaudit.SlogSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}

// MetricID identifies a specific counter or histogram in the in-process
// metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricCheckAuthorized      = internalmetrics.CheckAuthorized
	MetricCheckForbidden       = internalmetrics.CheckForbidden
	MetricCheckUnauthenticated = internalmetrics.CheckUnauthenticated
	MetricCheckError           = internalmetrics.CheckError
	MetricCheckPending         = internalmetrics.CheckPending
	MetricRehydrateSuccess     = internalmetrics.RehydrateSuccess
	MetricRehydrateMissing     = internalmetrics.RehydrateMissing
	MetricRehydrateCorrupt     = internalmetrics.RehydrateCorrupt
	MetricCacheRead            = internalmetrics.CacheRead
	MetricStoreWrite           = internalmetrics.StoreWrite
	MetricInvalidRole          = internalmetrics.InvalidRole
	MetricTokenRejected        = internalmetrics.TokenRejected
	MetricBackendUnavailable   = internalmetrics.BackendUnavailable
	MetricCheckLatency         = internalmetrics.CheckLatency
)

// Metrics holds atomic counters and the optional check latency histogram.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] instance. When Enabled is false, all
// operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:                 cfg.Enabled,
		EnableLatencyHistograms: cfg.EnableLatencyHistograms,
	})
}
