package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamancini/keel/internal/logging"
	"github.com/adamancini/keel/internal/types"
)

var (
	// Global flags
	outputFormat string
	configPath   string
	logLevel     string
	verbose      bool
	quiet        bool
)

// ExitError carries the process exit code chosen by a command. A nil Err
// exits silently.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

func Execute(version, commit, date string) error {
	return newRootCmd(version, commit, date).Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	SetVersion(version)

	rootCmd := &cobra.Command{
		Use:   "keel",
		Short: "Self-update manager for deployed web applications",
		Long: `keel keeps a deployed application up to date.

It checks a release endpoint for new versions, downloads and verifies the
artifact, snapshots the installation and applies the update, rolling back
automatically when the apply fails. Configure it with a Keelfile.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := types.ParseOutputFormat(outputFormat); err != nil {
				return err
			}
			return logging.Init(effectiveLogLevel(""), "")
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Close()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json, yaml")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to Keelfile")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides log_level in the Keelfile)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode (errors only)")

	// Add subcommands
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newPerformCmd())
	rootCmd.AddCommand(newRollbackCmd())
	rootCmd.AddCommand(newCheckScheduledCmd())
	rootCmd.AddCommand(newScheduleCmd())
	rootCmd.AddCommand(newBackupCmd())
	rootCmd.AddCommand(newVersionCmd(commit, date))
	rootCmd.AddCommand(newCompletionCmd())

	// Register completion function for output flag
	_ = rootCmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("log-level", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"trace", "debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})

	return rootCmd
}

// effectiveLogLevel applies -q, -v and --log-level over the configured level.
func effectiveLogLevel(configured string) string {
	switch {
	case quiet:
		return "error"
	case verbose:
		return "debug"
	case logLevel != "":
		return logLevel
	case configured != "":
		return configured
	}
	return "info"
}
