package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/ispauth/pkg/auth"
)

func TestSetVersion(t *testing.T) {
	originalVersion := rootCmd.Version
	defer func() { rootCmd.Version = originalVersion }()

	SetVersion("1.2.3-test")
	assert.Equal(t, "1.2.3-test", GetVersion())
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "ispauth", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.True(t, rootCmd.SilenceUsage)
}

func TestSubcommands(t *testing.T) {
	found := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		found[c.Name()] = true
	}
	for _, name := range []string{"version", "self-update", "login", "logout", "refresh", "status", "token", "whoami", "profile"} {
		assert.True(t, found[name], "subcommand %s should be registered", name)
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitCodeSuccess},
		{name: "plain error", err: errors.New("boom"), want: ExitCodeError},
		{name: "not logged in", err: &notLoggedInError{Profile: "work"}, want: ExitCodeAuthRequired},
		{
			name: "interaction needed",
			err: &auth.AuthenticationFailedError{
				Profile: "work",
				Method:  auth.MethodIdentity,
				Err:     &auth.InteractiveInputRequiredError{Mechanism: "EMAIL"},
			},
			want: ExitCodeAuthRequired,
		},
		{
			name: "rejected",
			err: &auth.AuthenticationFailedError{
				Profile: "work",
				Method:  auth.MethodIdentity,
				Err:     &auth.AuthenticationRejectedError{Summary: "Failure"},
			},
			want: ExitCodeAuthFailed,
		},
		{
			name: "wrapped failure",
			err:  fmt.Errorf("login: %w", &auth.AuthenticationFailedError{Err: errors.New("x")}),
			want: ExitCodeAuthFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, getExitCode(tt.err))
		})
	}
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	printError(&buf, &auth.AuthenticationFailedError{
		Profile: "work",
		Method:  auth.MethodIdentity,
		Err:     &auth.InteractiveInputRequiredError{Mechanism: "SMS"},
	})
	assert.Contains(t, buf.String(), "SMS")
	assert.Contains(t, buf.String(), "Hint:")
}

// resetFlags restores every flag to its default so consecutive runs of
// rootCmd do not leak state into each other.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.PersistentFlags().VisitAll(reset)
	c.Flags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

type cliResult struct {
	stdout string
	stderr string
	err    error
}

func runCLI(t *testing.T, stdin string, args ...string) cliResult {
	t.Helper()
	resetFlags(rootCmd)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
	}()

	err := rootCmd.Execute()
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

// fakeServiceUserTenant issues an id_token for svc-ci/s3cret.
type fakeServiceUserTenant struct {
	idToken  string
	requests atomic.Int32
}

func (f *fakeServiceUserTenant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.requests.Add(1)
	switch {
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/Oauth2/Token/"):
		user, pass, ok := r.BasicAuth()
		w.Header().Set("Content-Type", "application/json")
		if !ok || user != "svc-ci" || pass != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"access-1","token_type":"Bearer","expires_in":3600}`))

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/OAuth2/Authorize/"):
		if r.Header.Get("Authorization") != "Bearer access-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Location", "https://cyberark.cloud/redirect#id_token="+url.QueryEscape(f.idToken))
		w.WriteHeader(http.StatusFound)

	default:
		http.NotFound(w, r)
	}
}

func signedIDToken(t *testing.T) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "svc-ci",
		"iss": "https://acme.id.cyberark.cloud",
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return tok
}

func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv(SecretEnvVar, "")
	t.Setenv("ISPAUTH_PROFILE", "")
	t.Setenv("DEPLOY_ENV", "")
	return t.TempDir()
}

func TestServiceUserLoginLifecycle(t *testing.T) {
	dir := isolate(t)
	tenant := &fakeServiceUserTenant{idToken: signedIDToken(t)}
	srv := httptest.NewServer(tenant)
	defer srv.Close()

	res := runCLI(t, "", "--config-dir", dir, "profile", "add", "ci",
		"--username", "svc-ci", "--method", "identity_service_user", "--url", srv.URL)
	require.NoError(t, res.err, res.stderr)

	t.Setenv(SecretEnvVar, "s3cret")
	res = runCLI(t, "", "--config-dir", dir, "login")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "Logged in as svc-ci")
	afterLogin := tenant.requests.Load()
	assert.Equal(t, int32(2), afterLogin)

	t.Run("token comes from the cache", func(t *testing.T) {
		res := runCLI(t, "", "--config-dir", dir, "token")
		require.NoError(t, res.err, res.stderr)
		assert.Equal(t, tenant.idToken+"\n", res.stdout)
		assert.Equal(t, afterLogin, tenant.requests.Load())
	})

	t.Run("status", func(t *testing.T) {
		res := runCLI(t, "", "--config-dir", dir, "status", "-o", "json")
		require.NoError(t, res.err, res.stderr)
		var statuses []auth.TokenStatus
		require.NoError(t, json.Unmarshal([]byte(res.stdout), &statuses))
		require.Len(t, statuses, 1)
		assert.Equal(t, "ci", statuses[0].Profile)
		assert.Equal(t, auth.MethodIdentityServiceUser, statuses[0].Method)
		assert.NotContains(t, res.stdout, tenant.idToken)
	})

	t.Run("whoami decodes claims", func(t *testing.T) {
		res := runCLI(t, "", "--config-dir", dir, "whoami", "-o", "json")
		require.NoError(t, res.err, res.stderr)
		var info identityInfo
		require.NoError(t, json.Unmarshal([]byte(res.stdout), &info))
		assert.Equal(t, "svc-ci", info.Username)
		assert.Equal(t, "svc-ci", info.Claims["sub"])
	})

	t.Run("refresh is not supported for service users", func(t *testing.T) {
		res := runCLI(t, "", "--config-dir", dir, "refresh")
		require.Error(t, res.err)
		assert.Equal(t, ExitCodeAuthFailed, getExitCode(res.err))
	})

	t.Run("logout", func(t *testing.T) {
		res := runCLI(t, "", "--config-dir", dir, "logout")
		require.NoError(t, res.err, res.stderr)

		res = runCLI(t, "", "--config-dir", dir, "whoami")
		require.Error(t, res.err)
		assert.Equal(t, ExitCodeAuthRequired, getExitCode(res.err))
	})
}

func TestServiceUserLoginRejected(t *testing.T) {
	dir := isolate(t)
	tenant := &fakeServiceUserTenant{idToken: signedIDToken(t)}
	srv := httptest.NewServer(tenant)
	defer srv.Close()

	res := runCLI(t, "", "--config-dir", dir, "profile", "add", "ci",
		"--username", "svc-ci", "--method", "identity_service_user", "--url", srv.URL)
	require.NoError(t, res.err, res.stderr)

	res = runCLI(t, "wrong\n", "--config-dir", dir, "login", "--secret-stdin")
	require.Error(t, res.err)
	assert.Equal(t, ExitCodeAuthFailed, getExitCode(res.err))

	var rejected *auth.ServiceTokenRejectedError
	require.ErrorAs(t, res.err, &rejected)
	assert.Equal(t, http.StatusUnauthorized, rejected.StatusCode)
}

func TestIdentityLoginNonInteractive(t *testing.T) {
	dir := isolate(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"Result":{"SessionId":"s-1","Challenges":[{"Mechanisms":[{"MechanismId":"m-1","Name":"UP","AnswerType":"Text"}]}]}}`))
	}))
	defer srv.Close()

	res := runCLI(t, "", "--config-dir", dir, "profile", "add", "work",
		"--username", "jane", "--url", srv.URL, "--interactive")
	require.NoError(t, res.err, res.stderr)

	res = runCLI(t, "", "--config-dir", dir, "login", "--no-interactive")
	require.Error(t, res.err)
	assert.True(t, auth.NeedsInteraction(res.err))
	assert.Equal(t, ExitCodeAuthRequired, getExitCode(res.err))
}

func TestProfileCommands(t *testing.T) {
	dir := isolate(t)

	res := runCLI(t, "", "--config-dir", dir, "profile", "add", "work", "--username", "jane", "--mfa-type", "email")
	require.NoError(t, res.err, res.stderr)
	res = runCLI(t, "", "--config-dir", dir, "profile", "add", "ci",
		"--username", "svc", "--method", "identity-service-user", "--tenant-subdomain", "acme")
	require.NoError(t, res.err, res.stderr)

	res = runCLI(t, "", "--config-dir", dir, "profile", "list", "-o", "json")
	require.NoError(t, res.err, res.stderr)
	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "ci", rows[0]["name"])
	assert.Equal(t, false, rows[0]["current"])
	assert.Equal(t, "work", rows[1]["name"])
	assert.Equal(t, true, rows[1]["current"])

	res = runCLI(t, "", "--config-dir", dir, "profile", "use", "ci")
	require.NoError(t, res.err, res.stderr)

	res = runCLI(t, "", "--config-dir", dir, "profile", "show")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "name: ci")
	assert.Contains(t, res.stdout, "tenantSubdomain: acme")

	res = runCLI(t, "", "--config-dir", dir, "profile", "rename", "ci", "pipeline")
	require.NoError(t, res.err, res.stderr)

	res = runCLI(t, "", "--config-dir", dir, "--profile", "pipeline", "profile", "show", "-o", "json")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, `"name": "pipeline"`)

	res = runCLI(t, "", "--config-dir", dir, "profile", "delete", "work")
	require.NoError(t, res.err, res.stderr)

	res = runCLI(t, "", "--config-dir", dir, "profile", "show", "work")
	require.Error(t, res.err)

	t.Run("invalid method", func(t *testing.T) {
		res := runCLI(t, "", "--config-dir", dir, "profile", "add", "bad", "--username", "x", "--method", "kerberos")
		require.Error(t, res.err)
	})

	t.Run("direct needs an endpoint", func(t *testing.T) {
		res := runCLI(t, "", "--config-dir", dir, "profile", "add", "bad", "--username", "x", "--method", "direct")
		var verr *auth.ValidationError
		require.ErrorAs(t, res.err, &verr)
		assert.Equal(t, "direct.endpoint", verr.Field)
	})
}

func TestLogoutAllAsksForConfirmation(t *testing.T) {
	dir := isolate(t)

	res := runCLI(t, "n\n", "--config-dir", dir, "logout", "--all")
	require.NoError(t, res.err)
	assert.Contains(t, res.stderr, "Aborted")

	res = runCLI(t, "", "--config-dir", dir, "logout", "--all", "--yes")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Removed 0 cached token(s)")
}

func TestIdentityLoginSecretAndCodeFromStdin(t *testing.T) {
	dir := isolate(t)

	var (
		mu      sync.Mutex
		answers []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/Security/StartAuthentication":
			_, _ = w.Write([]byte(`{"success":true,"Result":{"SessionId":"s-1","Challenges":[` +
				`{"Mechanisms":[{"MechanismId":"m-up","Name":"UP","AnswerType":"Text"}]},` +
				`{"Mechanisms":[{"MechanismId":"m-email","Name":"EMAIL","AnswerType":"Text"}]}]}}`))
		case "/Security/AdvanceAuthentication":
			var req struct {
				Answer string `json:"Answer"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			mu.Lock()
			answers = append(answers, req.Answer)
			first := len(answers) == 1
			mu.Unlock()
			if first {
				_, _ = w.Write([]byte(`{"success":true,"Result":{"Summary":"StartNextChallenge"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"success":true,"Result":{"Summary":"LoginSuccess","Token":"tok-1","TokenLifetime":600}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	res := runCLI(t, "", "--config-dir", dir, "profile", "add", "work",
		"--username", "jane", "--url", srv.URL, "--interactive")
	require.NoError(t, res.err, res.stderr)

	res = runCLI(t, "hunter2\n123456\n", "--config-dir", dir, "token", "--secret-stdin")
	require.NoError(t, res.err, res.stderr)
	assert.Equal(t, "tok-1\n", res.stdout)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"hunter2", "123456"}, answers)
}

func TestProfileNameCompletion(t *testing.T) {
	dir := isolate(t)
	for _, name := range []string{"work", "ci"} {
		res := runCLI(t, "", "--config-dir", dir, "profile", "add", name, "--username", "jane")
		require.NoError(t, res.err, res.stderr)
	}

	res := runCLI(t, "", "__complete", "--config-dir", dir, "profile", "use", "")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "ci\n")
	assert.Contains(t, res.stdout, "work\n")

	res = runCLI(t, "", "__complete", "--config-dir", dir, "profile", "show", "w")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "work\n")
	assert.NotContains(t, res.stdout, "ci\n")

	res = runCLI(t, "", "__complete", "--config-dir", dir, "profile", "delete", "work", "")
	require.NoError(t, res.err, res.stderr)
	assert.NotContains(t, res.stdout, "work\n")
}
