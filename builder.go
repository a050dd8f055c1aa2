package portalguard

import (
	"errors"
	"io"
	"log/slog"

	internalaudit "github.com/campusbridge/portalguard/internal/audit"
	"github.com/campusbridge/portalguard/permission"
)

// Builder assembles a [Guard].
//
// Builder instances are single-use: the second call to Build fails.
type Builder struct {
	config Config

	auditSink AuditSink
	verifier  TokenVerifier
	logger    *slog.Logger

	built bool
}

// New returns a builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The value is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithAuditSink sets the sink the audit dispatcher delivers to. Audit must
// also be enabled in the configuration.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithTokenVerifier installs a verifier that every present token must pass.
// Without one, any non-empty token counts as present.
func (b *Builder) WithTokenVerifier(v TokenVerifier) *Builder {
	b.verifier = v
	return b
}

// WithLogger sets the logger used for backend failures and debug traces of
// decisions.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the check latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, compiles the role table and returns a
// ready [Guard].
func (b *Builder) Build() (*Guard, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// -------- ROLE REGISTRY --------
	names := make([]string, 0, len(cfg.Roles.Known))
	for _, r := range cfg.Roles.Known {
		names = append(names, string(r))
	}
	registry, err := permission.NewRegistry(names...)
	if err != nil {
		return nil, err
	}
	registry.Freeze()

	// -------- ROLE MANAGER --------
	roleManager := permission.NewRoleManager(registry)
	aliases := make(permission.AliasTable, len(cfg.Roles.Aliases))
	for src, targets := range cfg.Roles.Aliases {
		list := make([]string, 0, len(targets))
		for _, t := range targets {
			list = append(list, string(t))
		}
		aliases[string(src)] = list
	}
	if err := roleManager.RegisterAliases(aliases); err != nil {
		return nil, err
	}
	roleManager.Freeze()

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	g := &Guard{
		config:   cfg,
		registry: registry,
		roles:    roleManager,
		verifier: b.verifier,
		logger:   logger,
		metrics:  NewMetrics(cfg.Metrics),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:         cfg.Audit.Enabled,
			BufferSize:      cfg.Audit.BufferSize,
			DropIfFull:      cfg.Audit.DropIfFull,
			SuppressRepeats: cfg.Audit.SuppressRepeats,
		}, b.auditSink),
	}

	b.built = true

	return g, nil
}
