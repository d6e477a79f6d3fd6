package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var offlineDisable bool

var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "List, switch and configure vaults",
}

var vaultListCmd = &cobra.Command{
	Use:   "list",
	Short: "List vaults and mark the current one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		vaults, cur, err := client.Vaults(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("  %-38s %-24s %s\n", "ID", "NAME", "OFFLINE")
		for _, v := range vaults {
			mark := " "
			if v.ID == cur.ID {
				mark = "*"
			}
			fmt.Printf("%s %-38s %-24s %t\n", mark, v.ID, v.Name, v.AllowOffline)
		}
		return nil
	},
}

var vaultUseCmd = &cobra.Command{
	Use:   "use <vault>",
	Short: "Make a vault current",
	Long: `Switches the current vault to the one given by ID or name and waits until
the backend reports the switch (bounded by backend.vault_wait).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		v, err := client.UseVault(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		info("Current vault: %s (%s)", v.Name, v.ID)
		return nil
	},
}

var vaultOfflineCmd = &cobra.Command{
	Use:   "offline <vault>",
	Short: "Allow or forbid offline access to a vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		v, err := client.SetOffline(cmd.Context(), args[0], !offlineDisable)
		if err != nil {
			return err
		}
		state := "allowed"
		if !v.AllowOffline {
			state = "forbidden"
		}
		info("Offline access to %s is %s.", v.Name, state)
		return nil
	},
}

func init() {
	vaultOfflineCmd.Flags().BoolVar(&offlineDisable, "disable", false, "forbid offline access instead of allowing it")
	vaultCmd.AddCommand(vaultListCmd, vaultUseCmd, vaultOfflineCmd)
	rootCmd.AddCommand(vaultCmd)
}
