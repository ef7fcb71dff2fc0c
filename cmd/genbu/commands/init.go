package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/genbu-cloud/genbu/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Create a configuration file with default values.

The file is written to $XDG_CONFIG_HOME/genbu/config.yaml unless --config
points elsewhere. Edit it afterwards to set the session secret and the
object store credentials.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := GetConfigFile()
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	if err := config.SaveConfig(config.GetDefaultConfig(), path); err != nil {
		return err
	}

	fmt.Printf("Configuration file created at: %s\n", path)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Set auth.secret (or export GENBU_AUTH_SECRET)")
	fmt.Println("  2. Point object_store at your S3 endpoint")
	fmt.Println("  3. Start the server with: genbu start")
	return nil
}
