// Package auth is the authorization core: it verifies the administrative
// login, issues and validates signed sessions, derives CSRF tokens, manages
// scoped capability keys and answers the single question collaborators ask:
// may these credentials perform an operation that requires scope S?
//
// Every component receives the administrative Account and the process-wide
// Keyring at construction; nothing in this package reads global state.
package auth
