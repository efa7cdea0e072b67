// Package commands implements the CLI commands for the magic-nix-cache daemon.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "magic-nix-cache",
	Short: "Magic Nix Cache - Nix store upload daemon for CI workflows",
	Long: `Magic Nix Cache is a sidecar daemon for CI workflows that watches the local
Nix store and uploads newly built store paths to remote caches (GitHub Actions
cache, S3-compatible object storage).

It snapshots the store at workflow start, accepts path enqueue requests during
the workflow, computes the store diff at workflow finish, and drains all upload
queues before releasing the process for exit.

Use "magic-nix-cache [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/magic-nix-cache/config.yaml)")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
