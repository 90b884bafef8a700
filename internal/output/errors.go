package output

import (
	"crypto/x509"
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/giantswarm/ispauth/pkg/auth"
)

// Hint returns a one-line suggestion for err, or "".
func Hint(err error) string {
	var (
		inputErr    *auth.InteractiveInputRequiredError
		resolveErr  *auth.EndpointResolutionError
		rejectErr   *auth.AuthenticationRejectedError
		svcErr      *auth.ServiceTokenRejectedError
		redirectErr *auth.AuthorizeRedirectMissingError
		methodErr   *auth.UnsupportedAuthMethodError
	)

	if reason := connectionProblem(err); reason != "" {
		return reason + ": check the network, proxy settings (http.proxy) and DEPLOY_ENV"
	}

	switch {
	case errors.As(err, &inputErr):
		return "run 'ispauth login' in a terminal, or enable interactive mode for the profile"
	case errors.As(err, &resolveErr):
		return "set identity.url or identity.tenantSubdomain on the profile"
	case errors.As(err, &svcErr):
		return "check the service user name and token"
	case errors.As(err, &redirectErr):
		return "check the service user's OAuth application name"
	case errors.As(err, &rejectErr):
		return "check your password and one-time code, then run 'ispauth login --force'"
	case errors.As(err, &methodErr):
		return "use one of: " + methodList()
	default:
		return ""
	}
}

func methodList() string {
	names := make([]string, len(auth.AllMethods))
	for i, m := range auth.AllMethods {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

// connectionProblem names the kind of transport failure behind err, or "".
func connectionProblem(err error) string {
	if err == nil {
		return ""
	}

	var (
		certErr        x509.CertificateInvalidError
		hostErr        x509.HostnameError
		unknownAuthErr x509.UnknownAuthorityError
		dnsErr         *net.DNSError
		urlErr         *url.Error
	)
	switch {
	case errors.As(err, &certErr), errors.As(err, &hostErr), errors.As(err, &unknownAuthErr):
		return "TLS certificate error"
	case errors.As(err, &dnsErr):
		return "DNS resolution error"
	case errors.As(err, &urlErr) && urlErr.Timeout():
		return "Connection timeout"
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		msg := e.Error()
		for _, keyword := range []string{"connection refused", "connection reset", "network is unreachable", "no route to host"} {
			if strings.Contains(msg, keyword) {
				return "Network error"
			}
		}
	}
	return ""
}
