// Package password hashes portal account passwords with argon2id.
//
// Hashes use the PHC string format with unpadded base64 fields:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// # What this package must NOT do
//
//   - Store passwords or hashes; the demo account store does that.
//   - Log plaintext passwords.
package password
