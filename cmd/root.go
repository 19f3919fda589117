// Package cmd provides the command-line interface for replicator
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/utils"
)

var verbose bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "replicator",
	Short: "Replicate SQL Server databases between servers",
	Long: `replicator moves a SQL Server database from a source server to a target
server: it exports the source into a portable archive, provisions a target
database without overwriting existing ones, imports the archive, and runs
operator-supplied configuration scripts.

Run 'replicator serve' for the HTTP API, or 'replicator run' for a one-shot
replication from the command line.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// Execute adds all child commands to the root command and runs it
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the logger honoring the --verbose flag.
func newLogger() utils.Logger {
	if verbose {
		l := utils.NewSimpleLogger()
		l.SetLevel(utils.LevelDebug)
		return l
	}
	return utils.NewSimpleLogger()
}
