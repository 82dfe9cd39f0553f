// Package account implements the user account lifecycle: registration with
// email confirmation, login gating for unverified accounts, and password
// recovery.
//
// Token lifecycle:
//   - AccountToken rows carry a single use, 24 hour token bound to an account
//     and a kind (registration or password_reset). TokenIssuer mints them with
//     supersession, issuing a new token of a kind deletes any unused token of
//     the same kind for that account, and consumes them exactly once.
//   - Validation distinguishes unknown, expired, and already used tokens so
//     the HTTP layer can answer with the right status for each.
//
// Authentication gating:
//   - AuthGate rejects unverified accounts before the password is compared,
//     a correct password never opens a session for an unconfirmed email.
//   - Auther signs HS256 session JWTs and RouteAuthenticator moves them
//     through cookies, including the post confirmation auto login.
//
// Enumeration stance:
//   - The forgot password form answers identically for known and unknown
//     emails. The resend confirmation form intentionally does not, it reports
//     when no account exists for the address.
package account
