package commands

import (
	"fmt"
	"os"

	"github.com/mightyiam/magic-nix-cache/internal/cli/prompt"
	"github.com/mightyiam/magic-nix-cache/pkg/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample magic-nix-cache configuration file.

By default, the configuration file is created at
$XDG_CONFIG_HOME/magic-nix-cache/config.yaml. Use --config to specify a
custom path.

Examples:
  # Initialize with default location
  magic-nix-cache init

  # Initialize with custom path
  magic-nix-cache init --config /etc/magic-nix-cache/config.yaml

  # Force overwrite existing config
  magic-nix-cache init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil {
		ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Config file %s already exists, overwrite?", configPath), initForce)
		if err != nil {
			return err
		}
		if !ok {
			return prompt.ErrAborted
		}
	}

	if err := config.SaveConfig(config.GetDefaultConfig(), configPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to enable and configure upload backends")
	fmt.Println("  2. Start the daemon with: magic-nix-cache start")
	fmt.Printf("  3. Or specify custom config: magic-nix-cache start --config %s\n", configPath)
	fmt.Println("\nNote:")
	fmt.Println("  Backend credentials can also be supplied via environment variables:")
	fmt.Println("    export MNC_BACKENDS_GHA_TOKEN=$ACTIONS_RUNTIME_TOKEN")
	fmt.Println("    export MNC_BACKENDS_S3_SECRET_ACCESS_KEY=...")

	return nil
}
