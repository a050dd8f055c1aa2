package portalguard

import "testing"

func TestSecurityReportDefaults(t *testing.T) {
	g, err := New().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer g.Close()

	r := g.SecurityReport()
	if r.TokenVerification {
		t.Fatal("no verifier configured")
	}
	if !r.UnknownRoleStrict {
		t.Fatal("default unknown-role policy should be strict")
	}
	if r.KnownRoles != 5 || r.Aliases != 1 {
		t.Fatalf("unexpected role counts %d/%d", r.KnownRoles, r.Aliases)
	}
	if got := r.Grants[string(RoleUniversity)]; len(got) != 1 || got[0] != string(RoleSchool) {
		t.Fatalf("expected university to grant school, got %v", r.Grants)
	}
	if r.LoginPath != "/login" || r.HomePath != "/" {
		t.Fatalf("unexpected paths %q %q", r.LoginPath, r.HomePath)
	}
}

func TestSecurityReportReflectsBuilder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Roles.UnknownRolePolicy = UnknownRoleForbid
	g, err := New().
		WithConfig(cfg).
		WithTokenVerifier(rejectVerifier{}).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer g.Close()

	r := g.SecurityReport()
	if !r.TokenVerification || r.UnknownRoleStrict {
		t.Fatalf("unexpected flags %+v", r)
	}
	if !r.MetricsActive || !r.LatencyHistograms {
		t.Fatalf("metrics flags not reported: %+v", r)
	}
	found := false
	for _, w := range r.Warnings {
		if w == "unknown_role_forbid" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected unknown_role_forbid warning, got %v", r.Warnings)
	}
}

func TestSecurityReportNilGuard(t *testing.T) {
	var g *Guard
	if r := g.SecurityReport(); r.KnownRoles != 0 || r.TokenVerification {
		t.Fatalf("nil guard should report zero value, got %+v", r)
	}
}
