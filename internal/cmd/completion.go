package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamancini/keel/internal/backup"
	"github.com/adamancini/keel/internal/config"
)

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion script",
		Long: `Completion prints a completion script for keel to stdout.

Besides subcommands and flags, the scripts complete --output formats,
--log-level values and, for 'keel backup restore' and 'keel backup delete',
the backup IDs found in the backup_dir of the current Keelfile.

Bash:
  $ source <(keel completion bash)
  # every session, on a server where keel runs from cron:
  $ keel completion bash | sudo tee /etc/bash_completion.d/keel >/dev/null

Zsh:
  $ keel completion zsh > "${fpath[1]}/_keel"
  # requires compinit; start a new shell afterwards

Fish:
  $ keel completion fish > ~/.config/fish/completions/keel.fish

PowerShell:
  PS> keel completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(out, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
}

// completeBackupIDs offers "latest" and the stored backup IDs, newest
// first, described by the version they captured.
func completeBackupIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	ids := []string{"latest\tmost recent backup"}
	path, err := config.FindConfig(configPath)
	if err != nil {
		return ids, cobra.ShellCompDirectiveNoFileComp
	}
	k, err := config.Load(path)
	if err != nil {
		return ids, cobra.ShellCompDirectiveNoFileComp
	}
	records, err := backup.NewManager(k.AppRoot, k.BackupDir, k.Excludes()).List()
	if err != nil {
		return ids, cobra.ShellCompDirectiveNoFileComp
	}
	for _, rec := range records {
		desc := fmt.Sprintf("version %s", rec.AppVersion)
		if rec.Note != "" {
			desc += ", " + rec.Note
		}
		ids = append(ids, rec.ID+"\t"+desc)
	}
	return ids, cobra.ShellCompDirectiveNoFileComp
}
