// Package jwt issues and verifies the portal's bearer token.
//
// A [Manager] satisfies the route guard's token verifier, so a forged or
// expired jwt_token is treated the same as no token at all.
package jwt
