// Package cli implements the j2o command line interface.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// BuildInfo contains build-time information set via ldflags.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

var buildInfo BuildInfo

var rootCmd = &cobra.Command{
	Use:   "j2o",
	Short: "Migrate Jira Server projects into OpenProject",
	Long: `j2o migrates Jira Server projects into an OpenProject instance.

Entities are extracted from the Jira REST API, transformed locally, and
loaded in bulk through a Rails console running inside the OpenProject
container. Every run is resumable: extracted data is cached on disk,
progress is checkpointed per component, and already-migrated records are
recognized by their origin tags and skipped.`,
	SilenceUsage: true,
}

// Execute runs the CLI. It is called once from main.
func Execute(info BuildInfo) error {
	buildInfo = info
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", info.Version, info.Commit, info.Date)
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (text, json)")
	rootCmd.PersistentFlags().String("config", "", "Path to j2o.yml (default: ./j2o.yml)")
}
