// Package rate throttles failed logins on the demo portal with Redis
// counters.
//
// # Window semantics
//
// Fixed-window counters: INCR plus EXPIRE on the first hit. Keys:
//   - <prefix>:login:e:<email>
//   - <prefix>:login:ip:<ip>
//
// # What this package must NOT do
//
//   - Decide route access; that is the guard's job.
//   - Be imported outside the portalguard module.
package rate
