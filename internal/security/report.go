package security

// Report summarizes how strictly a guard is configured. Grants lists, per
// role, the other roles it satisfies through aliases.
type Report struct {
	TokenVerification bool
	UnknownRoleStrict bool
	AuditActive       bool
	AuditLossless     bool
	MetricsActive     bool
	LatencyHistograms bool
	KnownRoles        int
	Aliases           int
	Grants            map[string][]string
	LoginPath         string
	HomePath          string
	Warnings          []string
}

type ReportInput struct {
	HasTokenVerifier  bool
	UnknownRolePolicy string
	AuditEnabled      bool
	AuditDropIfFull   bool
	MetricsEnabled    bool
	LatencyHistograms bool
	KnownRoles        int
	Grants            map[string][]string
	LoginPath         string
	HomePath          string
	LintCodes         []string
}

// BuildReport derives a Report. The "error" policy is the strict one: an
// unregistered role never reaches a role-restricted view.
func BuildReport(input ReportInput) Report {
	grants := make(map[string][]string, len(input.Grants))
	aliases := 0
	for role, extra := range input.Grants {
		if len(extra) == 0 {
			continue
		}
		grants[role] = append([]string(nil), extra...)
		aliases += len(extra)
	}

	return Report{
		TokenVerification: input.HasTokenVerifier,
		UnknownRoleStrict: input.UnknownRolePolicy == "error",
		AuditActive:       input.AuditEnabled,
		AuditLossless:     input.AuditEnabled && !input.AuditDropIfFull,
		MetricsActive:     input.MetricsEnabled,
		LatencyHistograms: input.MetricsEnabled && input.LatencyHistograms,
		KnownRoles:        input.KnownRoles,
		Aliases:           aliases,
		Grants:            grants,
		LoginPath:         input.LoginPath,
		HomePath:          input.HomePath,
		Warnings:          append([]string(nil), input.LintCodes...),
	}
}
