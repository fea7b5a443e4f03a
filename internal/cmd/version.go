package cmd

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"
)

// VersionInfo describes the keel build.
type VersionInfo struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	Date      string `json:"date" yaml:"date"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

func (v VersionInfo) RenderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "keel version %s (commit %s, built %s, %s %s)\n", v.Version, v.Commit, v.Date, v.GoVersion, v.Platform)
	return err
}

func newVersionCmd(commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display the keel build version.

To check the managed application for updates, use 'keel check'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd.OutOrStdout(), commit, date)
		},
	}
}

func runVersion(stdout io.Writer, commit, date string) error {
	return newWriter(stdout).Write(VersionInfo{
		Version:   keelVersion,
		Commit:    commit,
		Date:      date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	})
}
