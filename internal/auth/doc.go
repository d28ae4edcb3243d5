// Package auth provides authentication and authorisation for the gallery.
//
// It implements a 3-tier role model (user, uploader, admin) with:
//   - A SQLite credential store that keeps at least one active admin at all
//     times, checked inside the mutating transaction
//   - Argon2id password hashing (bcrypt hashes verified and upgraded)
//   - Server-side sessions referenced by an HS256-signed token, held in
//     memory or in Redis
//   - Per-request re-validation: a session of a deactivated user stops
//     working on its next use
//   - Static role gates and a role-permission map (no database lookup)
//
// Identity checks such as "an admin may not delete themselves" are applied
// by callers with CheckSelfUpdate and CheckSelfDelete before they call the
// store; the store itself only enforces the last-admin rule.
package auth
