package commands

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/siftlab/sift/config"
	"github.com/siftlab/sift/errors"
)

// ConfigCmd groups configuration subcommands
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit configuration",
	Long: `Inspect and edit the sift configuration.

Configuration is resolved from SIFT_* environment variables, a project-local
sift.toml found by walking up from the working directory, and ~/.sift/sift.toml.

Examples:
  sift config show                 # Show the resolved configuration
  sift config save sift.toml      # Write the resolved configuration to a file`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration",
	RunE:  runConfigShow,
}

var configSaveCmd = &cobra.Command{
	Use:   "save [path]",
	Short: "Write the resolved configuration to a file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigSave,
}

func init() {
	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configSaveCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	out, err := toml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to render configuration")
	}
	fmt.Print(string(out))
	return nil
}

func runConfigSave(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	path := "sift.toml"
	if len(args) == 1 {
		path = args[0]
	}
	if err := config.Save(cfg, path); err != nil {
		return err
	}
	fmt.Printf("Configuration written to %s\n", path)
	return nil
}
