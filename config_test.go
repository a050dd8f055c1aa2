package portalguard

import (
	"reflect"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if len(cfg.Lint()) != 0 {
		t.Fatalf("default config should lint clean, got %v", cfg.Lint().Codes())
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "custom login path",
			mutate:    func(c *Config) { c.Routes.LoginPath = "/auth/sign-in" },
			wantValid: true,
		},
		{
			name:      "relative login path",
			mutate:    func(c *Config) { c.Routes.LoginPath = "login" },
			wantValid: false,
		},
		{
			name:      "empty home path",
			mutate:    func(c *Config) { c.Routes.HomePath = "" },
			wantValid: false,
		},
		{
			name:      "blank message",
			mutate:    func(c *Config) { c.Messages.AccessDenied = "  " },
			wantValid: false,
		},
		{
			name:      "negative audit suppression",
			mutate:    func(c *Config) { c.Audit.SuppressRepeats = -time.Second },
			wantValid: false,
		},
		{
			name:      "no roles",
			mutate:    func(c *Config) { c.Roles.Known = nil },
			wantValid: false,
		},
		{
			name: "duplicate role",
			mutate: func(c *Config) {
				c.Roles.Known = append(c.Roles.Known, RoleStudent)
			},
			wantValid: false,
		},
		{
			name: "alias to unknown role",
			mutate: func(c *Config) {
				c.Roles.Aliases[RoleMentor] = []Role{"alumni"}
			},
			wantValid: false,
		},
		{
			name: "alias from unknown role",
			mutate: func(c *Config) {
				c.Roles.Aliases["alumni"] = []Role{RoleStudent}
			},
			wantValid: false,
		},
		{
			name: "extra alias",
			mutate: func(c *Config) {
				c.Roles.Aliases[RoleMentor] = []Role{RoleStudent}
			},
			wantValid: true,
		},
		{
			name:      "invalid unknown role policy",
			mutate:    func(c *Config) { c.Roles.UnknownRolePolicy = 7 },
			wantValid: false,
		},
		{
			name:      "same cache keys",
			mutate:    func(c *Config) { c.Cache.TokenKey = c.Cache.UserKey },
			wantValid: false,
		},
		{
			name: "audit without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Roles.Known = nil
	if _, err := New().WithConfig(cfg).Build(); err == nil {
		t.Fatal("expected build to fail on invalid config")
	}
}

func TestConfigLint(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Routes.HomePath = cfg.Routes.LoginPath
	cfg.Roles.UnknownRolePolicy = UnknownRoleForbid
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	cfg.Metrics.EnableLatencyHistograms = true

	want := []string{"login_is_home", "unknown_role_forbid", "audit_blocking", "latency_without_metrics"}
	if got := cfg.Lint().Codes(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected lint codes: %v", got)
	}
}

func TestWithConfigCopiesInput(t *testing.T) {
	cfg := DefaultConfig()
	g, err := New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer g.Close()

	cfg.Roles.Aliases[RoleUniversity][0] = RoleMentor
	cfg.Roles.Known[0] = "changed"

	got := g.Config()
	if got.Roles.Aliases[RoleUniversity][0] != RoleSchool || got.Roles.Known[0] != RoleStudent {
		t.Fatal("guard config must not alias the caller's slices")
	}
}
