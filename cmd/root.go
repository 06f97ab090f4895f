// Package cmd provides the command-line interface for the obsync tool.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "obsync",
	Short: "Obsync mirrors JIRA tickets into an Obsidian vault",
	Long: `Obsync is a CLI tool that synchronizes JIRA tickets into an Obsidian vault
as Markdown notes, using the Obsidian Local REST API plugin.

The sync is one-directional: tickets become notes, never the other way
around. Runs are incremental by default; only tickets updated since the
last successful run are fetched.`,

	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
