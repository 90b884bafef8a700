// Package auth holds the types shared by the ispauth flows, the token cache
// and the CLI: the redacting Secret, the issued Token, the AuthProfile that
// describes how a user logs in, and the typed errors every flow reports.
//
// Downstream API clients only need Token.AuthorizationHeader; everything
// else here exists to obtain and keep that token valid.
package auth
