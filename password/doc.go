// Package password implements password hashing, legacy hash migration and the
// strength policy for new passwords.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Multi] also verifies bcrypt hashes ($2a$, $2b$, $2y$) and reports them as
// needing an upgrade, so the caller can re-hash on the next successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Import any other blogAuth package.
//   - Log plaintext passwords.
package password
