// Package cli wires configuration, storage and the HTTP server behind the
// folio command.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "folio",
	Short: "Admin API for a git-backed blog",
	Long: `Folio serves the blog admin API: editing posts as drafts, saving them to
branches, opening pull requests, uploading images and counting reader
reactions.

Configuration is read from the environment (see README) and, when
FOLIO_SITE_FILE is set, from a YAML site file layered on top.

Examples:
	# Run the API server
	folio serve

	# Apply pending database migrations
	folio migrate up

	# Print build info
	folio version`,
	SilenceUsage: true,
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
