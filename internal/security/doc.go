// Package security derives the guard's security posture report from its
// configuration.
//
// # What this package must NOT do
//
//   - Import the root package; the caller flattens its config into ReportInput.
//   - Perform I/O.
package security
