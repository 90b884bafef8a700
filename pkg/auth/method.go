package auth

import (
	"fmt"
	"strings"
)

// AuthMethod names the flow used to obtain a token.
type AuthMethod string

const (
	// MethodIdentity is the interactive StartAuthentication/AdvanceAuthentication flow.
	MethodIdentity AuthMethod = "identity"
	// MethodIdentityServiceUser is the OAuth2 client credentials + authorize flow.
	MethodIdentityServiceUser AuthMethod = "identity_service_user"
	// MethodDirect runs the challenge/response flow against a fixed endpoint.
	MethodDirect AuthMethod = "direct"
	// MethodDefault resolves to MethodIdentity with default settings.
	MethodDefault AuthMethod = "default"
)

// AllMethods lists the methods in the order the CLI presents them.
var AllMethods = []AuthMethod{MethodIdentity, MethodIdentityServiceUser, MethodDirect, MethodDefault}

func (m AuthMethod) String() string {
	return string(m)
}

// ParseAuthMethod converts a user supplied name. Hyphens are accepted in
// place of underscores.
func ParseAuthMethod(s string) (AuthMethod, error) {
	normalized := AuthMethod(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	for _, m := range AllMethods {
		if m == normalized {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown auth method %q", s)
}

// TokenType describes what kind of credential a Token carries.
type TokenType string

const (
	TokenTypeJWT      TokenType = "jwt"
	TokenTypeCookie   TokenType = "cookie"
	TokenTypeToken    TokenType = "token"
	TokenTypePassword TokenType = "password"
)
