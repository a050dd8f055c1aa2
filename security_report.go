package portalguard

import "github.com/campusbridge/portalguard/internal/security"

// SecurityReport summarizes the guard's effective posture, for startup logs
// and operator dashboards.
type SecurityReport = security.Report

// SecurityReport reports how the guard is configured. It reads only
// immutable state and is safe to call at any time.
func (g *Guard) SecurityReport() SecurityReport {
	if g == nil {
		return SecurityReport{}
	}

	grants := make(map[string][]string)
	for _, role := range g.config.Roles.Known {
		mask, ok := g.roles.GetMask(string(role))
		if !ok {
			continue
		}
		for _, name := range g.registry.Names(mask) {
			if name != string(role) {
				grants[string(role)] = append(grants[string(role)], name)
			}
		}
	}

	return security.BuildReport(security.ReportInput{
		HasTokenVerifier:  g.verifier != nil,
		UnknownRolePolicy: g.config.Roles.UnknownRolePolicy.String(),
		AuditEnabled:      g.config.Audit.Enabled,
		AuditDropIfFull:   g.config.Audit.DropIfFull,
		MetricsEnabled:    g.config.Metrics.Enabled,
		LatencyHistograms: g.config.Metrics.EnableLatencyHistograms,
		KnownRoles:        g.roles.Count(),
		Grants:            grants,
		LoginPath:         g.config.Routes.LoginPath,
		HomePath:          g.config.Routes.HomePath,
		LintCodes:         g.config.Lint().Codes(),
	})
}
