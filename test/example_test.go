package test

import (
	"context"
	"fmt"

	"github.com/campusbridge/portalguard"
	"github.com/campusbridge/portalguard/session"
)

// ExampleGuard_Evaluate restores a university user from the persistent cache
// and admits them to a school-only view.
func ExampleGuard_Evaluate() {
	guard, err := portalguard.New().Build()
	if err != nil {
		panic(err)
	}
	defer guard.Close()

	ctx := context.Background()
	store := session.NewMemoryStore(session.State{Token: "tok"})
	cache := session.NewMemoryCache(map[string]string{
		"user": `{"id":42,"user_type":"university","name":"Registrar"}`,
	})

	state, _ := store.Snapshot(ctx)
	d := guard.Evaluate(ctx, portalguard.Input{
		State:        state,
		AllowedRoles: []portalguard.Role{portalguard.RoleSchool},
		Location:     portalguard.Location{Path: "/dashboard/school"},
		Store:        store,
		Cache:        cache,
	})
	fmt.Println(d.Outcome, d.Rehydrated, d.User.ID)
	// Output: authorized true 42
}

// ExampleRedirect_URL shows the navigation target built for an anonymous visit.
func ExampleRedirect_URL() {
	guard, _ := portalguard.New().Build()
	defer guard.Close()

	d := guard.Evaluate(context.Background(), portalguard.Input{
		Location: portalguard.Location{Path: "/applications", RawQuery: "page=2"},
	})
	fmt.Println(d.Outcome)
	fmt.Println(d.Redirect.URL())
	// Output:
	// unauthenticated
	// /login?from=%2Fapplications%3Fpage%3D2&message=Please+log+in+to+continue
}
