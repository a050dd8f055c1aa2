//go:build integration
// +build integration

package test

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/campusbridge/portalguard"
	"github.com/campusbridge/portalguard/jwt"
	"github.com/campusbridge/portalguard/session"
)

func TestSignedTokenGatesRehydration(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	manager, err := jwt.NewManager(jwt.Config{
		TTL:           time.Minute,
		SigningMethod: jwt.MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "portalguard",
		Audience:      "portal",
		Leeway:        30 * time.Second,
		KeyID:         "k1",
		VerifyKeys:    map[string][]byte{"k1": pub},
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	g := newGuard(t, portalguard.New().WithTokenVerifier(manager))
	b := session.NewMemoryBackend()
	user := session.UserRecord{ID: "u-7", UserType: session.RoleCompany}

	token, err := manager.Issue(user.ID, string(user.UserType))
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	setToken(t, b, "signed", token)
	cacheUser(t, b, "signed", user)

	d := evaluate(t, g, b, "signed", portalguard.RoleCompany)
	if d.Outcome != portalguard.OutcomeAuthorized || !d.Rehydrated {
		t.Fatalf("expected signed token to rehydrate, got %+v", d)
	}

	setToken(t, b, "tampered", token+"x")
	cacheUser(t, b, "tampered", user)

	d = evaluate(t, g, b, "tampered", portalguard.RoleCompany)
	if d.Outcome != portalguard.OutcomeUnauthenticated {
		t.Fatalf("expected tampered token to be treated as absent, got %+v", d)
	}

	snap := g.MetricsSnapshot()
	if snap.Counters[portalguard.MetricTokenRejected] != 1 {
		t.Fatalf("expected one rejected token, got %d", snap.Counters[portalguard.MetricTokenRejected])
	}
	if snap.Counters[portalguard.MetricCacheRead] != 1 {
		t.Fatalf("rejected token must not read the cache, cache reads=%d", snap.Counters[portalguard.MetricCacheRead])
	}
}
