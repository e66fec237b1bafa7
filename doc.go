// Package accounts provides the credential authentication and session issuance
// flow of an accounts backend: sign-in with lockout policy, principal (claims)
// assembly, sign-out against an external interaction service, registration and
// the account, password and confirmation workflows around them.
//
// Sign-in:
//   - SessionAuthenticator looks the user up by normalized username or email,
//     verifies the password, applies the lockout policy and asks the
//     ClaimsAssembler for a Principal. Unknown identifiers and wrong passwords
//     produce the same outcome.
//   - SignIn hands the Principal to a SessionHandle only after the password has
//     been verified. CookieSession is the JWT cookie implementation served
//     through go-router.
//
// Stores:
//   - CredentialStore, ClaimsStore, RoleStore and TokenStore are implemented on
//     Bun in the repository package. The failed-attempt counter is mutated with
//     single atomic statements so concurrent attempts never lose an update.
//
// Side effects:
//   - Dispatcher sends email/SMS confirmations in the background with a bounded
//     timeout; failures are logged. ActivitySink receives audit events and is
//     best-effort as well.
package accounts
