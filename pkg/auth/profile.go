package auth

import "strings"

// DefaultServiceUserApplication is the OAuth application service users
// authorize against when none is configured.
const DefaultServiceUserApplication = "__idaptive_cybr_user_oidc"

// IdentitySettings configures the challenge/response flow.
type IdentitySettings struct {
	// MFAType is the preferred mechanism name (email, sms, otp, pf, oath, up).
	MFAType string `yaml:"mfaType,omitempty" json:"mfaType,omitempty"`
	// Interactive allows prompting for one-time codes and passwords.
	Interactive bool `yaml:"interactive,omitempty" json:"interactive,omitempty"`
	// URL overrides endpoint resolution.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`
	// TenantSubdomain is looked up through platform discovery.
	TenantSubdomain string `yaml:"tenantSubdomain,omitempty" json:"tenantSubdomain,omitempty"`
}

// ServiceUserSettings configures the client credentials flow.
type ServiceUserSettings struct {
	ApplicationName string `yaml:"applicationName,omitempty" json:"applicationName,omitempty"`
	URL             string `yaml:"url,omitempty" json:"url,omitempty"`
	TenantSubdomain string `yaml:"tenantSubdomain,omitempty" json:"tenantSubdomain,omitempty"`
}

// Application returns the configured application or the default one.
func (s *ServiceUserSettings) Application() string {
	if s == nil || s.ApplicationName == "" {
		return DefaultServiceUserApplication
	}
	return s.ApplicationName
}

// DirectSettings points the challenge/response flow at a fixed endpoint.
type DirectSettings struct {
	Endpoint    string `yaml:"endpoint" json:"endpoint"`
	Interactive bool   `yaml:"interactive,omitempty" json:"interactive,omitempty"`
	MFAType     string `yaml:"mfaType,omitempty" json:"mfaType,omitempty"`
}

// AuthProfile describes how a username authenticates. Exactly one settings
// block may be set and it must match Method.
type AuthProfile struct {
	Username    string               `yaml:"username" json:"username"`
	Method      AuthMethod           `yaml:"method" json:"method"`
	Identity    *IdentitySettings    `yaml:"identity,omitempty" json:"identity,omitempty"`
	ServiceUser *ServiceUserSettings `yaml:"serviceUser,omitempty" json:"serviceUser,omitempty"`
	Direct      *DirectSettings      `yaml:"direct,omitempty" json:"direct,omitempty"`
}

// Validate checks that the settings match the declared method.
func (p AuthProfile) Validate() error {
	if strings.TrimSpace(p.Username) == "" {
		return &ValidationError{Field: "username", Reason: "must not be empty"}
	}

	switch p.Method {
	case MethodIdentity, MethodDefault:
		if p.ServiceUser != nil || p.Direct != nil {
			return &ValidationError{Field: "settings", Reason: "only identity settings are allowed for method " + string(p.Method)}
		}
	case MethodIdentityServiceUser:
		if p.Identity != nil || p.Direct != nil {
			return &ValidationError{Field: "settings", Reason: "only serviceUser settings are allowed for method " + string(p.Method)}
		}
	case MethodDirect:
		if p.Identity != nil || p.ServiceUser != nil {
			return &ValidationError{Field: "settings", Reason: "only direct settings are allowed for method direct"}
		}
		if p.Direct == nil || strings.TrimSpace(p.Direct.Endpoint) == "" {
			return &ValidationError{Field: "direct.endpoint", Reason: "must be set for method direct"}
		}
	case "":
		return &ValidationError{Field: "method", Reason: "must not be empty"}
	default:
		return &ValidationError{Field: "method", Reason: "unknown method " + string(p.Method)}
	}
	return nil
}

// EffectiveIdentitySettings returns the challenge/response settings for the
// identity, default and direct methods. It returns nil for service users.
func (p AuthProfile) EffectiveIdentitySettings() *IdentitySettings {
	switch p.Method {
	case MethodIdentity, MethodDefault:
		if p.Identity != nil {
			s := *p.Identity
			return &s
		}
		return &IdentitySettings{}
	case MethodDirect:
		if p.Direct == nil {
			return &IdentitySettings{}
		}
		return &IdentitySettings{
			URL:         p.Direct.Endpoint,
			Interactive: p.Direct.Interactive,
			MFAType:     p.Direct.MFAType,
		}
	default:
		return nil
	}
}

// WithInteractive returns a copy of p with the interactive switch forced.
// The CLI uses it to apply --no-interactive without touching stored profiles.
func (p AuthProfile) WithInteractive(interactive bool) AuthProfile {
	switch {
	case p.Identity != nil:
		s := *p.Identity
		s.Interactive = interactive
		p.Identity = &s
	case p.Direct != nil:
		s := *p.Direct
		s.Interactive = interactive
		p.Direct = &s
	case p.Method == MethodIdentity || p.Method == MethodDefault:
		p.Identity = &IdentitySettings{Interactive: interactive}
	}
	return p
}
