package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/siftlab/sift/errors"
)

// DbCmd groups database management subcommands
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the sift database",
	Long: `Manage sift database operations.

Examples:
  sift db migrate          # Apply pending schema migrations
  sift db stats            # Show dataset and lineage counts`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show dataset and lineage counts",
	RunE:  runDbStats,
}

var dbPathFlag string

func init() {
	DbCmd.PersistentFlags().StringVar(&dbPathFlag, "db-path", "", "Custom database path (overrides config)")
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	// openDatabase migrates as part of opening
	database, err := openDatabase(dbPathFlag)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	fmt.Println("Database is up to date")
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	database, err := openDatabase(dbPathFlag)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	var datasets, documents, subsets, methods int
	row := database.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM datasets),
			(SELECT COUNT(*) FROM documents),
			(SELECT COUNT(*) FROM subsets),
			(SELECT COUNT(*) FROM methods)
	`)
	if err := row.Scan(&datasets, &documents, &subsets, &methods); err != nil {
		return errors.Wrap(err, "failed to query stats")
	}

	fmt.Println("Database Statistics")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Datasets:  %d\n", datasets)
	fmt.Printf("Documents: %d\n", documents)
	fmt.Printf("Subsets:   %d\n", subsets)
	fmt.Printf("Methods:   %d\n", methods)
	return nil
}
