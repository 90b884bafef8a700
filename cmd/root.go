package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/giantswarm/ispauth/internal/config"
	"github.com/giantswarm/ispauth/internal/output"
	"github.com/giantswarm/ispauth/pkg/auth"
	"github.com/giantswarm/ispauth/pkg/logging"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates a login is needed but cannot happen
	// without user interaction.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the identity provider refused the login.
	ExitCodeAuthFailed = 3
)

// Global flags.
var (
	configDirFlag string
	profileFlag   string
	logLevelFlag  string
)

// Loaded by PersistentPreRunE.
var (
	configDir string
	cfg       config.Config
	logCloser io.Closer
)

// rootCmd represents the base command for the ispauth application.
var rootCmd = &cobra.Command{
	Use:   "ispauth",
	Short: "Obtain and cache identity platform tokens",
	Long: `ispauth logs users and service users in to the identity platform and
keeps the resulting tokens in a local cache so scripts and tools can reuse
them without asking for a password again.

Profiles name a username together with the auth method used for it. The
active profile is taken from --profile, then ISPAUTH_PROFILE, then the
current profile set with 'ispauth profile use'.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the root command and exits with a code describing the
// outcome.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "ispauth version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if logCloser != nil {
		_ = logCloser.Close()
	}
	if err != nil {
		printError(rootCmd.ErrOrStderr(), err)
		os.Exit(getExitCode(err))
	}
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %v\n", text.FgRed.Sprint("Error:"), err)
	if hint := output.Hint(err); hint != "" {
		fmt.Fprintf(w, "%s %s\n", text.FgYellow.Sprint("Hint:"), hint)
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	var notLoggedIn *notLoggedInError
	if errors.As(err, &notLoggedIn) || auth.NeedsInteraction(err) {
		return ExitCodeAuthRequired
	}

	var authFailed *auth.AuthenticationFailedError
	if errors.As(err, &authFailed) {
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}

// notLoggedInError is returned by commands that only read the cache.
type notLoggedInError struct {
	Profile string
}

func (e *notLoggedInError) Error() string {
	return fmt.Sprintf("no valid token cached for profile %q, run 'ispauth login'", e.Profile)
}

// resolveConfigDir returns --config-dir or the default directory.
func resolveConfigDir() (string, error) {
	if configDirFlag != "" {
		return configDirFlag, nil
	}
	return config.GetDefaultConfigPath()
}

// setup loads .env, config.yaml and initializes logging.
func setup(cmd *cobra.Command, _ []string) error {
	dir, err := resolveConfigDir()
	if err != nil {
		return err
	}
	configDir = dir

	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", filepath.Join(dir, ".env"), err)
	}

	loaded, err := config.LoadConfig(dir)
	if err != nil {
		return err
	}
	cfg = loaded

	levelName := cfg.Log.Level
	if logLevelFlag != "" {
		levelName = logLevelFlag
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return err
	}

	var out io.Writer = cmd.ErrOrStderr()
	if cfg.Log.File != "" {
		if logCloser != nil {
			_ = logCloser.Close()
		}
		rotated := &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			Compress:   true,
		}
		out, logCloser = rotated, rotated
	}
	logging.Init(level, logging.Format(cfg.Log.Format), out)
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDirFlag, "config-dir", "", "Configuration directory (default $HOME/.config/ispauth)")
	rootCmd.PersistentFlags().StringVarP(&profileFlag, "profile", "p", "", "Profile to use (overrides ISPAUTH_PROFILE and the current profile)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn or error (overrides config.yaml)")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newRefreshCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newWhoamiCmd())
	rootCmd.AddCommand(newProfileCmd())
}
