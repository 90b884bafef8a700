package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/giantswarm/ispauth/internal/output"
	"github.com/giantswarm/ispauth/internal/profile"
	"github.com/giantswarm/ispauth/pkg/auth"
)

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "profile",
		Aliases: []string{"profiles"},
		Short:   "Manage authentication profiles",
		Long: `Manage the profiles stored in profiles.yaml.

A profile pairs a username with the auth method and its settings.

Examples:
  ispauth profile add work --username jane@acme.cyberark.cloud --method identity --mfa-type email --interactive
  ispauth profile add ci --username svc@acme --method identity_service_user --tenant-subdomain acme
  ispauth profile use work
  ispauth profile list`,
	}
	cmd.AddCommand(newProfileAddCmd())
	cmd.AddCommand(newProfileListCmd())
	cmd.AddCommand(newProfileUseCmd())
	cmd.AddCommand(newProfileShowCmd())
	cmd.AddCommand(newProfileDeleteCmd())
	cmd.AddCommand(newProfileRenameCmd())
	return cmd
}

type profileAddOptions struct {
	username        string
	method          string
	description     string
	url             string
	tenantSubdomain string
	mfaType         string
	interactive     bool
	application     string
	endpoint        string
	use             bool
}

// build turns the flags into a profile for name.
func (o *profileAddOptions) build(name string) (profile.Profile, error) {
	method, err := auth.ParseAuthMethod(o.method)
	if err != nil {
		return profile.Profile{}, err
	}

	ap := auth.AuthProfile{Username: o.username, Method: method}
	switch method {
	case auth.MethodIdentity, auth.MethodDefault:
		if o.url != "" || o.tenantSubdomain != "" || o.mfaType != "" || o.interactive {
			ap.Identity = &auth.IdentitySettings{
				URL:             o.url,
				TenantSubdomain: o.tenantSubdomain,
				MFAType:         o.mfaType,
				Interactive:     o.interactive,
			}
		}
	case auth.MethodIdentityServiceUser:
		if o.url != "" || o.tenantSubdomain != "" || o.application != "" {
			ap.ServiceUser = &auth.ServiceUserSettings{
				URL:             o.url,
				TenantSubdomain: o.tenantSubdomain,
				ApplicationName: o.application,
			}
		}
	case auth.MethodDirect:
		ap.Direct = &auth.DirectSettings{
			Endpoint:    o.endpoint,
			MFAType:     o.mfaType,
			Interactive: o.interactive,
		}
	}

	p := profile.Profile{Name: name, Description: o.description, Auth: ap}
	if err := ap.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

func newProfileAddCmd() *cobra.Command {
	opts := &profileAddOptions{}
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a profile",
		Long: `Add a profile. The first profile added becomes the current one.

Methods: identity, identity_service_user, direct and default.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.build(args[0])
			if err != nil {
				return err
			}
			store := profile.NewStore(configDir)
			if err := store.Add(p); err != nil {
				return err
			}
			if opts.use {
				if err := store.SetCurrent(p.Name); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Profile %s added\n", p.Name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.username, "username", "u", "", "Username or service user name")
	cmd.Flags().StringVarP(&opts.method, "method", "m", string(auth.MethodIdentity), "Auth method")
	cmd.Flags().StringVarP(&opts.description, "description", "d", "", "Free text description")
	cmd.Flags().StringVar(&opts.url, "url", "", "Identity tenant URL, skips endpoint discovery")
	cmd.Flags().StringVar(&opts.tenantSubdomain, "tenant-subdomain", "", "Tenant subdomain used for endpoint discovery")
	cmd.Flags().StringVar(&opts.mfaType, "mfa-type", "", "Preferred MFA mechanism (email, sms, otp, pf, oath)")
	cmd.Flags().BoolVar(&opts.interactive, "interactive", false, "Allow prompting for passwords and one-time codes")
	cmd.Flags().StringVar(&opts.application, "application", "", "OAuth application of a service user")
	cmd.Flags().StringVar(&opts.endpoint, "endpoint", "", "Fixed endpoint for the direct method")
	cmd.Flags().BoolVar(&opts.use, "use", false, "Make the new profile current")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newProfileListCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List profiles",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}
			store := profile.NewStore(configDir)
			file, err := store.Load()
			if err != nil {
				return err
			}
			profiles, err := store.List()
			if err != nil {
				return err
			}
			rows := make([]output.ProfileRow, 0, len(profiles))
			for _, p := range profiles {
				rows = append(rows, output.ProfileRow{
					Name:        p.Name,
					Method:      p.Auth.Method,
					Username:    p.Auth.Username,
					Description: p.Description,
					Current:     p.Name == file.CurrentProfile,
				})
			}
			return output.Profiles(cmd.OutOrStdout(), f, rows)
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "table", "Output format: table, json or yaml")
	return cmd
}

// completeProfileNames completes the first argument with the stored
// profile names. It runs without setup, so it resolves the config
// directory itself.
func completeProfileNames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	dir, err := resolveConfigDir()
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	names, err := profile.NewStore(dir).Names()
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	var out []string
	for _, n := range names {
		if strings.HasPrefix(n, toComplete) {
			out = append(out, n)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

func newProfileUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "use <name>",
		Short:             "Set the current profile",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeProfileNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := profile.NewStore(configDir).SetCurrent(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Switched to profile %s\n", args[0])
			return nil
		},
	}
}

func newProfileShowCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:               "show [name]",
		Short:             "Show a profile, the active one by default",
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completeProfileNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}
			if f == output.FormatTable {
				f = output.FormatYAML
			}
			store := profile.NewStore(configDir)
			var p *profile.Profile
			if len(args) == 1 {
				p, err = store.Get(args[0])
			} else {
				p, err = store.Resolve(profileFlag)
			}
			if err != nil {
				return err
			}
			return output.Structured(cmd.OutOrStdout(), f, p)
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "yaml", "Output format: json or yaml")
	return cmd
}

func newProfileDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "delete <name>",
		Aliases:           []string{"remove", "rm"},
		Short:             "Delete a profile and its cached tokens",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeProfileNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			if err := a.profiles.Delete(args[0]); err != nil {
				return err
			}
			if err := a.orch.Logout(args[0], ""); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Profile %s deleted\n", args[0])
			return nil
		},
	}
}

func newProfileRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <old> <new>",
		Short: "Rename a profile",
		Long: `Rename a profile. Tokens are cached per profile name, so the next
command using the renamed profile logs in again.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			if err := a.profiles.Rename(args[0], args[1]); err != nil {
				return err
			}
			if err := a.orch.Logout(args[0], ""); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Profile %s renamed to %s\n", args[0], args[1])
			return nil
		},
	}
}
