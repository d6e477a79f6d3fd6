package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check [job...]",
	Short: "Verify that the vault matches every job's inventory",
	Long: `Runs a dry-run sync and reports any pending change.
Exit 0 if the vault is in sync; exit non-zero when anything would change or a
job fails. Suitable for scheduled monitoring.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		result, err := client.Status(cmd.Context(), args)
		if err != nil {
			return err
		}

		if !result.Pending() && len(result.Errors()) == 0 {
			info("Vault matches the inventory.")
			return nil
		}

		if err := printResult("Check", result, pathDelimiter(client)); err != nil {
			return err
		}
		s := result.Summary()
		return fmt.Errorf("check failed: %d change(s) pending", s.Folders+s.Created+s.Updated+s.Deleted)
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
