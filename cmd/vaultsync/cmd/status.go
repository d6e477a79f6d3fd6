package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [job...]",
	Short: "Show how far each job's destination is from its inventory",
	Long: `Runs a dry-run sync and prints, per job, the vault, destination and the
number of entries unchanged, to create, to update and to delete.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		result, err := client.Status(cmd.Context(), args)
		if err != nil {
			return err
		}
		if len(result.Jobs) == 0 {
			info("No jobs configured.")
			return nil
		}

		fmt.Printf("%-20s %-24s %9s %8s %8s %8s %8s  %s\n",
			"JOB", "DESTINATION", "UNCHANGED", "CREATE", "UPDATE", "DELETE", "SKIPPED", "STATE")
		for _, j := range result.Jobs {
			state := "in sync"
			switch {
			case j.Err != nil:
				state = "error: " + j.Err.Error()
			case j.Pending():
				state = "pending"
			}
			dest := j.Destination
			if len(dest) > 24 {
				dest = dest[:21] + "..."
			}
			fmt.Printf("%-20s %-24s %9d %8d %8d %8d %8d  %s\n",
				j.Job, dest, j.Matched, j.Tally.Created, j.Tally.Updated, j.Tally.Deleted, len(j.Skipped), state)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
