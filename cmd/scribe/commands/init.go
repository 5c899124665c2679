package commands

import (
	"fmt"
	"os"

	"github.com/scribehub/scribe/pkg/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample scribe configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/scribe/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  scribe init

  # Initialize with custom path
  scribe init --config /etc/scribe/config.yaml

  # Force overwrite existing config
  scribe init --force`,
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

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
	}

	if err := config.SaveConfig(config.GetDefaultConfig(), configPath); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file (database, redis, s3, kafka, elasticsearch, ai)")
	fmt.Println("  2. Run migrations: scribe migrate")
	fmt.Println("  3. Start the API server: scribe serve")
	fmt.Println("  4. Start the ingestion worker: scribe worker")
	return nil
}
