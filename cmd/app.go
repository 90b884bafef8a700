package cmd

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/giantswarm/ispauth/internal/httpx"
	"github.com/giantswarm/ispauth/internal/identity"
	"github.com/giantswarm/ispauth/internal/orchestrator"
	"github.com/giantswarm/ispauth/internal/profile"
	"github.com/giantswarm/ispauth/internal/prompt"
	"github.com/giantswarm/ispauth/internal/tokencache"
	"github.com/giantswarm/ispauth/pkg/auth"
)

// SecretEnvVar supplies the password or service token without a prompt.
const SecretEnvVar = "ISPAUTH_SECRET"

// app bundles what the auth commands need.
type app struct {
	profiles *profile.Store
	cache    *tokencache.Cache
	orch     *orchestrator.Orchestrator
	// term reads the secret and every later prompt answer from the
	// command's stdin through one buffer.
	term *prompt.Terminal
}

func newApp(cmd *cobra.Command) (*app, error) {
	a := &app{
		profiles: profile.NewStore(configDir),
		term:     &prompt.Terminal{In: cmd.InOrStdin(), Out: cmd.ErrOrStderr()},
	}

	if cfg.Cache.Enabled {
		cache, err := tokencache.New(cfg.Cache.Dir)
		if err != nil {
			return nil, err
		}
		a.cache = cache
	}

	newHTTPClient := func() (*http.Client, error) {
		return httpx.NewClient(httpx.Options{Timeout: cfg.HTTP.Timeout, Proxy: cfg.HTTP.Proxy})
	}
	identityOpts := []identity.Option{
		identity.WithPrompter(a.term),
		identity.WithPollInterval(cfg.Identity.PollInterval),
	}

	a.orch = orchestrator.New(orchestrator.Config{
		Cache:                a.cache,
		StickySessionRefresh: cfg.Identity.StickySessionRefresh,
		Strategies:           orchestrator.DefaultStrategies(newHTTPClient, cfg.Identity.StickySessionRefresh, identityOpts, nil),
	})
	return a, nil
}

// activeProfile resolves --profile, ISPAUTH_PROFILE and the current profile.
func (a *app) activeProfile() (*profile.Profile, error) {
	return a.profiles.Resolve(profileFlag)
}

// cachedToken returns the valid cached token of p without any network call.
func (a *app) cachedToken(p *profile.Profile) (*auth.Token, error) {
	if a.cache == nil {
		return nil, &notLoggedInError{Profile: p.Name}
	}
	tok := a.cache.Load(p.Name, p.Auth.Method)
	if tok == nil || tok.Username != p.Auth.Username {
		return nil, &notLoggedInError{Profile: p.Name}
	}
	return tok, nil
}

// readSecret returns the login secret from stdin, ISPAUTH_SECRET or, for
// service users on a terminal, a prompt. Identity users without a secret
// are prompted by the login itself when the profile is interactive.
func (a *app) readSecret(fromStdin bool, ap auth.AuthProfile, interactive bool) (auth.Secret, error) {
	if fromStdin {
		line, err := a.term.ReadLine()
		if err != nil {
			return auth.Secret{}, fmt.Errorf("failed to read secret from stdin: %w", err)
		}
		return auth.NewSecret(line), nil
	}

	if v := os.Getenv(SecretEnvVar); v != "" {
		return auth.NewSecret(v), nil
	}

	if ap.Method == auth.MethodIdentityServiceUser && interactive && prompt.IsInteractive() {
		v, err := a.term.Password(fmt.Sprintf("Service token for %s", ap.Username))
		if err != nil {
			return auth.Secret{}, err
		}
		return auth.NewSecret(v), nil
	}
	return auth.Secret{}, nil
}

// confirm asks a yes/no question on out and reads the answer from in.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	answer, _ := bufio.NewReader(in).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
