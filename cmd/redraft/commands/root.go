package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string

	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "redraft",
	Short: "Redraft - Self-correcting content review workflow",
	Long: `Redraft supervises a multi-stage drafting workflow: a draft is written,
reviewed for safety, critiqued for empathy and structure, revised until it
passes, held for a human decision, and finalized.

Every stage transition is checkpointed to a durable store, so sessions
survive process restarts and can be suspended indefinitely while a human
reviews the draft.`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "redraft.yml", "Path to the configuration file")
}
