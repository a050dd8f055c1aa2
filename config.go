package portalguard

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/campusbridge/portalguard/permission"
)

// Config defines the routes, messages, roles and observability settings a
// [Guard] runs with.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Routes   RoutesConfig
	Messages MessagesConfig
	Roles    RolesConfig
	Cache    CacheConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
ROUTES
====================================
*/

// RoutesConfig names the redirect targets.
type RoutesConfig struct {
	// LoginPath receives Unauthenticated and Error redirects.
	LoginPath string
	// HomePath receives Forbidden redirects.
	HomePath string
}

/*
====================================
MESSAGES
====================================
*/

// MessagesConfig holds the user-facing strings carried in redirect state.
type MessagesConfig struct {
	SessionExpired      string
	AuthenticationError string
	LoginRequired       string
	AccessDenied        string
	InvalidRole         string
}

/*
====================================
ROLES
====================================
*/

// UnknownRolePolicy selects what a role-restricted view does with a user
// whose user_type is not a registered role.
type UnknownRolePolicy int

const (
	// UnknownRoleError reports OutcomeError with ErrInvalidRole.
	UnknownRoleError UnknownRolePolicy = iota
	// UnknownRoleForbid compares the raw role string against the allowed
	// list and reports OutcomeForbidden on a miss.
	UnknownRoleForbid
)

func (p UnknownRolePolicy) String() string {
	switch p {
	case UnknownRoleError:
		return "error"
	case UnknownRoleForbid:
		return "forbid"
	default:
		return "unknown"
	}
}

// RolesConfig declares the known roles and which roles satisfy others.
type RolesConfig struct {
	Known             []Role
	Aliases           map[Role][]Role
	UnknownRolePolicy UnknownRolePolicy
}

/*
====================================
CACHE
====================================
*/

// CacheConfig names the persistent cache keys.
type CacheConfig struct {
	UserKey  string
	TokenKey string
}

// AuditConfig controls the async audit dispatcher. SuppressRepeats collapses
// identical events from one client, such as a browser reloading a page on an
// expired session; zero delivers everything.
type AuditConfig struct {
	Enabled         bool
	BufferSize      int
	DropIfFull      bool
	SuppressRepeats time.Duration
}

// MetricsConfig controls in-process counters and the latency histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the campus portal defaults: five roles, university
// accounts accepted wherever school is, and the login and home routes at
// "/login" and "/".
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Routes: RoutesConfig{
			LoginPath: "/login",
			HomePath:  "/",
		},
		Messages: MessagesConfig{
			SessionExpired:      "session expired",
			AuthenticationError: "authentication error",
			LoginRequired:       "Please log in to continue",
			AccessDenied:        "You do not have permission to access this page",
			InvalidRole:         "invalid account role",
		},
		Roles: RolesConfig{
			Known: []Role{RoleStudent, RoleCompany, RoleSchool, RoleUniversity, RoleMentor},
			Aliases: map[Role][]Role{
				RoleUniversity: {RoleSchool},
			},
			UnknownRolePolicy: UnknownRoleError,
		},
		Cache: CacheConfig{
			UserKey:  "user",
			TokenKey: "jwt_token",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Roles.Known = append([]Role(nil), cfg.Roles.Known...)
	if cfg.Roles.Aliases != nil {
		out.Roles.Aliases = make(map[Role][]Role, len(cfg.Roles.Aliases))
		for k, v := range cfg.Roles.Aliases {
			out.Roles.Aliases[k] = append([]Role(nil), v...)
		}
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	// Routes
	if !strings.HasPrefix(c.Routes.LoginPath, "/") {
		return errors.New("Routes LoginPath must be an absolute path")
	}
	if !strings.HasPrefix(c.Routes.HomePath, "/") {
		return errors.New("Routes HomePath must be an absolute path")
	}

	// Messages
	for name, msg := range map[string]string{
		"SessionExpired":      c.Messages.SessionExpired,
		"AuthenticationError": c.Messages.AuthenticationError,
		"LoginRequired":       c.Messages.LoginRequired,
		"AccessDenied":        c.Messages.AccessDenied,
		"InvalidRole":         c.Messages.InvalidRole,
	} {
		if strings.TrimSpace(msg) == "" {
			return fmt.Errorf("Messages %s must not be empty", name)
		}
	}

	// Roles
	if len(c.Roles.Known) == 0 {
		return errors.New("Roles Known must list at least one role")
	}
	if len(c.Roles.Known) > permission.MaxRoles {
		return fmt.Errorf("Roles Known supports at most %d roles", permission.MaxRoles)
	}
	known := make(map[Role]struct{}, len(c.Roles.Known))
	for _, r := range c.Roles.Known {
		if strings.TrimSpace(string(r)) == "" {
			return errors.New("Roles Known contains an empty role")
		}
		if _, dup := known[r]; dup {
			return fmt.Errorf("Roles Known lists %q twice", r)
		}
		known[r] = struct{}{}
	}
	for src, targets := range c.Roles.Aliases {
		if _, ok := known[src]; !ok {
			return fmt.Errorf("Roles Aliases source %q is not a known role", src)
		}
		for _, dst := range targets {
			if _, ok := known[dst]; !ok {
				return fmt.Errorf("Roles Aliases target %q is not a known role", dst)
			}
		}
	}
	if c.Roles.UnknownRolePolicy != UnknownRoleError && c.Roles.UnknownRolePolicy != UnknownRoleForbid {
		return errors.New("Roles UnknownRolePolicy is invalid")
	}

	// Cache
	if c.Cache.UserKey == "" || c.Cache.TokenKey == "" {
		return errors.New("Cache keys must not be empty")
	}
	if c.Cache.UserKey == c.Cache.TokenKey {
		return errors.New("Cache UserKey and TokenKey must differ")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Audit.SuppressRepeats < 0 {
		return errors.New("Audit SuppressRepeats must be >= 0")
	}

	return nil
}

/*
====================================
LINT
====================================
*/

// LintWarning is a configuration that validates but is probably a mistake.
type LintWarning struct {
	Code    string
	Message string
}

// LintWarnings is the result of [Config.Lint].
type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.Code
	}
	return out
}

// Lint reports settings that validate but weaken the guard or its telemetry.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings
	if c.Routes.LoginPath == c.Routes.HomePath {
		ws = append(ws, LintWarning{
			Code:    "login_is_home",
			Message: "forbidden users are sent to the login page, which reads as a logout",
		})
	}
	if c.Roles.UnknownRolePolicy == UnknownRoleForbid {
		ws = append(ws, LintWarning{
			Code:    "unknown_role_forbid",
			Message: "unregistered user_type values are compared as raw strings",
		})
	}
	if c.Audit.Enabled && !c.Audit.DropIfFull {
		ws = append(ws, LintWarning{
			Code:    "audit_blocking",
			Message: "a slow audit sink will delay guard checks",
		})
	}
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		ws = append(ws, LintWarning{
			Code:    "latency_without_metrics",
			Message: "latency histograms are ignored while metrics are disabled",
		})
	}
	return ws
}
