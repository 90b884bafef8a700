// Package identity implements the challenge/response login against an
// identity tenant.
//
// A login resolves the tenant endpoint, calls StartAuthentication and then
// answers each challenge with AdvanceAuthentication until the provider
// reports LoginSuccess. The login secret answers the password mechanism;
// one-time codes are prompted for only when the profile is interactive.
//
// Refresh exchanges a refresh token through the tenant's OAuth2 endpoint
// using golang.org/x/oauth2.
package identity
