package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var roleDryRun bool

var roleCmd = &cobra.Command{
	Use:   "role",
	Short: "List and rename security roles",
}

var roleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List security roles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		roles, err := client.Roles(cmd.Context())
		if err != nil {
			return err
		}
		if len(roles) == 0 {
			info("No roles defined.")
			return nil
		}
		fmt.Printf("%-38s %-24s %s\n", "ID", "NAME", "DESCRIPTION")
		for _, r := range roles {
			fmt.Printf("%-38s %-24s %s\n", r.ID, r.Name, r.Description)
		}
		return nil
	},
}

var roleRenameCmd = &cobra.Command{
	Use:   "rename <role> <new-name>",
	Short: "Rename a security role",
	Long: `Renames the role given by ID or name. Names match case-insensitively; when
several roles share the name the config's ambiguity policy decides.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		r, err := client.RenameRole(cmd.Context(), args[0], args[1], roleDryRun)
		if err != nil {
			return err
		}
		if roleDryRun {
			info("Dry run — role %s would be renamed to %q.", r.ID, r.Name)
			return nil
		}
		info("Role %s is now %q.", r.ID, r.Name)
		return nil
	},
}

func init() {
	roleRenameCmd.Flags().BoolVar(&roleDryRun, "dry-run", false, "show the rename without applying it")
	roleCmd.AddCommand(roleListCmd, roleRenameCmd)
	rootCmd.AddCommand(roleCmd)
}
