package cmd

import (
	"github.com/spf13/cobra"

	"github.com/bianoble/vaultsync/pkg/vaultsync"
)

var syncDryRun bool

var syncCmd = &cobra.Command{
	Use:   "sync [job...]",
	Short: "Reconcile the vault with every job's inventory",
	Long: `Enumerates each job's source, maps every item onto a vault path below the
job's destination, and applies the difference: missing entries are created
(with their folders), changed entries updated, duplicates pruned and, when the
job sets delete_orphans, entries no longer in the inventory removed.

Name jobs to run only those. Use --dry-run to print the calls without making
them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		result, err := client.Sync(cmd.Context(), vaultsync.SyncOptions{DryRun: syncDryRun, Jobs: args})
		if err != nil {
			return err
		}
		return printResult("Sync", result, pathDelimiter(client))
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "show what would change without writing to the vault")
	rootCmd.AddCommand(syncCmd)
}
