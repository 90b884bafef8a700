package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_IsExpired(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"no expiry", time.Time{}, false},
		{"future", time.Now().Add(time.Hour), false},
		{"past", time.Now().Add(-time.Minute), true},
		{"inside margin", time.Now().Add(10 * time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := &Token{ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.want, tok.IsExpired())
		})
	}

	var nilToken *Token
	assert.True(t, nilToken.IsExpired())
}

func TestToken_AuthorizationHeader(t *testing.T) {
	tok := &Token{Token: NewSecret("abc")}
	assert.Equal(t, "Bearer abc", tok.AuthorizationHeader())
}

func TestToken_ToOAuth2Token(t *testing.T) {
	expiry := time.Now().Add(time.Hour)
	tok := &Token{Token: NewSecret("access"), RefreshToken: NewSecret("refresh"), ExpiresAt: expiry}

	o := tok.ToOAuth2Token()
	require.NotNil(t, o)
	assert.Equal(t, "access", o.AccessToken)
	assert.Equal(t, "refresh", o.RefreshToken)
	assert.Equal(t, "Bearer", o.TokenType)
	assert.True(t, o.Expiry.Equal(expiry))
}

func TestToken_Clone(t *testing.T) {
	tok := &Token{Token: NewSecret("a"), Metadata: map[string]string{MetadataEnv: "prod"}}
	c := tok.Clone()
	c.Metadata[MetadataEnv] = "dev"

	assert.Equal(t, "prod", tok.Meta(MetadataEnv))
	assert.Equal(t, "dev", c.Meta(MetadataEnv))
	assert.False(t, c.HasRefreshToken())
}

func TestParseAuthMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    AuthMethod
		wantErr bool
	}{
		{"identity", MethodIdentity, false},
		{"identity-service-user", MethodIdentityServiceUser, false},
		{"IDENTITY_SERVICE_USER", MethodIdentityServiceUser, false},
		{"direct", MethodDirect, false},
		{"default", MethodDefault, false},
		{"kerberos", "", true},
	}
	for _, tt := range tests {
		got, err := ParseAuthMethod(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
