package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/siftlab/sift/cmd/sift/commands"
	"github.com/siftlab/sift/logger"
)

var rootCmd = &cobra.Command{
	Use:   "sift",
	Short: "sift - Iterative derivation of labeled document subsets",
	Long: `sift - Iterative derivation of labeled document subsets.

sift keeps the full provenance of every subset you derive from a document
collection: which method produced it, which subset the method was applied on,
all the way back to the loaded collection. Analysis jobs run asynchronously
on the configured engine and resolve through a polling loop.

Available commands:
  serve  - Start the sift API server
  db     - Manage the sift database
  config - Inspect and edit configuration

Examples:
  sift serve               # Start the API server
  sift db migrate          # Apply pending schema migrations
  sift config show         # Show the resolved configuration`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		if err := logger.InitializeWithVerbosity(false, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
}

func main() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
