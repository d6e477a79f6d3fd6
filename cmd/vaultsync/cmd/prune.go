package cmd

import (
	"github.com/spf13/cobra"

	"github.com/bianoble/vaultsync/pkg/vaultsync"
)

var pruneDryRun bool

var pruneCmd = &cobra.Command{
	Use:   "prune [job...]",
	Short: "Remove duplicate and orphaned entries",
	Long: `Deletes duplicate entries (keeping the newest of each name) and entries no
longer present in the job's inventory, whatever the job's delete_orphans
setting. Nothing is created or updated.
Use --dry-run to see what would be removed without acting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		result, err := client.Prune(cmd.Context(), vaultsync.SyncOptions{DryRun: pruneDryRun, Jobs: args})
		if err != nil {
			return err
		}
		if result.Summary().Deleted == 0 && len(result.Errors()) == 0 {
			info("Nothing to prune.")
			return nil
		}
		return printResult("Prune", result, pathDelimiter(client))
	},
}

func init() {
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "show what would be removed without acting")
	rootCmd.AddCommand(pruneCmd)
}
