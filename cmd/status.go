package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/giantswarm/ispauth/internal/output"
	"github.com/giantswarm/ispauth/pkg/auth"
)

func newStatusCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "List cached tokens",
		Long: `List every cached token with its profile, method and expiry. Token
values are never printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			statuses, err := a.orch.Status()
			if err != nil {
				return err
			}
			return output.TokenStatuses(cmd.OutOrStdout(), f, statuses)
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "table", "Output format: table, json or yaml")
	return cmd
}

// identityInfo is what whoami prints.
type identityInfo struct {
	Profile   string                 `json:"profile"`
	Method    auth.AuthMethod        `json:"method"`
	Username  string                 `json:"username"`
	Endpoint  string                 `json:"endpoint,omitempty"`
	Env       string                 `json:"env,omitempty"`
	ExpiresAt time.Time              `json:"expiresAt"`
	Claims    map[string]interface{} `json:"claims,omitempty"`
}

func newWhoamiCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the identity behind the cached token",
		Long: `Show who the cached token of the active profile belongs to, including
the claims it carries. The token signature is not verified and no request
is sent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			p, err := a.activeProfile()
			if err != nil {
				return err
			}
			tok, err := a.cachedToken(p)
			if err != nil {
				return err
			}

			info := identityInfo{
				Profile:   p.Name,
				Method:    tok.Method,
				Username:  tok.Username,
				Endpoint:  tok.Endpoint,
				Env:       tok.Meta(auth.MetadataEnv),
				ExpiresAt: tok.ExpiresAt,
				Claims:    tokenClaims(tok),
			}
			if f != output.FormatTable {
				return output.Structured(cmd.OutOrStdout(), f, info)
			}
			printIdentity(cmd, info)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "table", "Output format: table, json or yaml")
	return cmd
}

// tokenClaims decodes the claims of a JWT token without verifying it. It
// returns nil for tokens that are not JWTs.
func tokenClaims(tok *auth.Token) map[string]interface{} {
	if tok.Type != auth.TokenTypeJWT {
		return nil
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok.Token.Reveal(), claims); err != nil {
		return nil
	}
	return claims
}

func printIdentity(cmd *cobra.Command, info identityInfo) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Profile:   %s\n", info.Profile)
	fmt.Fprintf(w, "Username:  %s\n", info.Username)
	fmt.Fprintf(w, "Method:    %s\n", info.Method)
	if info.Endpoint != "" {
		fmt.Fprintf(w, "Endpoint:  %s\n", info.Endpoint)
	}
	if info.Env != "" {
		fmt.Fprintf(w, "Env:       %s\n", info.Env)
	}
	fmt.Fprintf(w, "Expires:   %s\n", output.Expiry(info.ExpiresAt))

	if len(info.Claims) == 0 {
		return
	}
	keys := make([]string, 0, len(info.Claims))
	for k := range info.Claims {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintln(w, "Claims:")
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %v\n", k, info.Claims[k])
	}
}
