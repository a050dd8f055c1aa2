package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"
)

// FuzzParse feeds arbitrary strings to the parser. Anything it accepts must
// name both the account and its role.
func FuzzParse(f *testing.F) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		f.Fatal(err)
	}
	mgr, err := NewManager(Config{
		TTL:           5 * time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "portalguard",
		Leeway:        30 * time.Second,
		KeyID:         "k1",
		VerifyKeys:    map[string][]byte{"k1": pub},
	})
	if err != nil {
		f.Fatal(err)
	}

	for _, role := range []string{"student", "company", "university", "mentor"} {
		tok, err := mgr.Issue("uid-"+role, role)
		if err != nil {
			f.Fatal(err)
		}
		f.Add(tok)
		f.Add(tok + "x")
	}
	f.Add("")
	f.Add("not.a.jwt")
	f.Add("eyJhbGciOiJFZERTQSJ9.eyJzdWIiOiJ0ZXN0In0.invalid")
	f.Add("eyJhbGciOiJub25lIn0.eyJzdWIiOiJ0ZXN0In0.")

	f.Fuzz(func(t *testing.T, input string) {
		claims, err := mgr.Parse(input)
		if err != nil {
			return
		}
		if claims == nil || claims.Subject == "" || claims.UserType == "" {
			t.Fatalf("Parse accepted an incomplete token: %+v", claims)
		}
	})
}
