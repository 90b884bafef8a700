package cmd

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/giantswarm/ispauth/internal/output"
	"github.com/giantswarm/ispauth/internal/profile"
	"github.com/giantswarm/ispauth/internal/prompt"
	"github.com/giantswarm/ispauth/pkg/auth"
)

type loginOptions struct {
	force         bool
	noInteractive bool
	secretStdin   bool
	quiet         bool
}

func (o *loginOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&o.force, "force", "f", false, "Ignore the cached token and log in again")
	cmd.Flags().BoolVar(&o.noInteractive, "no-interactive", false, "Never prompt; fail with exit code 2 if an answer is needed")
	cmd.Flags().BoolVar(&o.secretStdin, "secret-stdin", false, "Read the password or service token from the first line of stdin")
}

func newLoginCmd() *cobra.Command {
	opts := &loginOptions{}
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with the active profile",
		Long: `Log in with the active profile and cache the token.

A valid cached token is reused without contacting the identity provider.
An expired token is refreshed once when possible before a full login runs.

The password or service token is read from --secret-stdin or ISPAUTH_SECRET.
Interactive identity profiles prompt for anything still missing.

Examples:
  ispauth login                        # Log in with the current profile
  ispauth login -p ci --secret-stdin   # Service user login in a pipeline
  ispauth login --force                # Ignore the cache`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, tok, err := authenticate(cmd, opts)
			if err != nil {
				return err
			}
			if !opts.quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "%s Logged in as %s (profile %s, method %s), token expires %s\n",
					text.FgGreen.Sprint("✓"), tok.Username, p.Name, tok.Method, output.Expiry(tok.ExpiresAt))
			}
			return nil
		},
	}
	opts.addFlags(cmd)
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Print nothing on success")
	return cmd
}

func newTokenCmd() *cobra.Command {
	opts := &loginOptions{quiet: true}
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a valid token for the active profile",
		Long: `Print a valid token for the active profile to stdout, logging in first
if needed. Prompts and progress go to stderr.

Examples:
  export TOKEN=$(ispauth token)
  curl -H "Authorization: Bearer $(ispauth token --no-interactive)" ...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, tok, err := authenticate(cmd, opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok.Token.Reveal())
			return nil
		},
	}
	opts.addFlags(cmd)
	return cmd
}

// authenticate runs the orchestrator for the active profile.
func authenticate(cmd *cobra.Command, opts *loginOptions) (*profile.Profile, *auth.Token, error) {
	a, err := newApp(cmd)
	if err != nil {
		return nil, nil, err
	}
	p, err := a.activeProfile()
	if err != nil {
		return nil, nil, err
	}

	ap := p.Auth
	if opts.noInteractive {
		ap = ap.WithInteractive(false)
	}
	prompts := false
	if s := ap.EffectiveIdentitySettings(); s != nil {
		prompts = s.Interactive
	}

	secret, err := a.readSecret(opts.secretStdin, ap, !opts.noInteractive)
	if err != nil {
		return nil, nil, err
	}

	// Prompts would fight with the spinner, so it only runs for logins
	// that never ask.
	var s *spinner.Spinner
	if !opts.quiet && !prompts && prompt.IsInteractive() {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
		s.Suffix = fmt.Sprintf(" Authenticating %s...", ap.Username)
		s.Start()
	}
	tok, err := a.orch.Authenticate(cmd.Context(), p.Name, ap, secret, opts.force)
	if s != nil {
		if err != nil {
			s.FinalMSG = text.FgRed.Sprint("Authentication failed") + "\n"
		}
		s.Stop()
	}
	if err != nil {
		return nil, nil, err
	}
	return p, tok, nil
}

type logoutOptions struct {
	all bool
	yes bool
}

func newLogoutCmd() *cobra.Command {
	opts := &logoutOptions{}
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove cached tokens",
		Long: `Remove the cached tokens of the active profile, or of every profile
with --all.

Examples:
  ispauth logout                       # Forget the current profile's token
  ispauth logout --all --yes           # Clear the whole cache`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			if opts.all {
				if !opts.yes && !confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), "Remove all cached tokens?") {
					fmt.Fprintln(cmd.ErrOrStderr(), "Aborted")
					return nil
				}
				n, err := a.orch.LogoutAll()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached token(s)\n", n)
				return nil
			}

			p, err := a.activeProfile()
			if err != nil {
				return err
			}
			if err := a.orch.Logout(p.Name, ""); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged out of profile %s\n", p.Name)
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.all, "all", false, "Remove the tokens of every profile")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Do not ask for confirmation with --all")
	return cmd
}

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Renew the cached token with its refresh token",
		Long: `Renew the cached token of the active profile without a full login.

Only identity and default profiles carry refresh tokens. If the refresh is
refused the cached token is removed and 'ispauth login' is needed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			p, err := a.activeProfile()
			if err != nil {
				return err
			}
			tok, err := a.orch.Refresh(cmd.Context(), p.Name, p.Auth)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token for profile %s refreshed, expires %s\n", p.Name, output.Expiry(tok.ExpiresAt))
			return nil
		},
	}
}
