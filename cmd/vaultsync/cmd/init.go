package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var initForce bool

// initTemplate is the default vaultsync.yaml scaffold.
// It includes a working Active Directory job and commented-out alternatives.
const initTemplate = `# vaultsync configuration
version: 1

backend:
  # Local YAML vault (good for trying things out)
  type: file
  path: ./vault.yaml

  # Vault server REST API
  # type: http
  # url: https://vault.example.com
  # app_key: env:VAULT_APP_KEY
  # app_secret: keyring:vaultsync/app-secret
  # min_version: "2024.1"

  # Vault database
  # type: sql
  # driver: postgres          # or mysql
  # dsn: env:VAULTSYNC_DSN

path:
  delimiter: '\'
  # case_sensitive: false

# ambiguity: error            # or "first": use the first of several same-named vaults/roles

# Default reachability probe; a host that answers on none of the ports is skipped.
# probe:
#   ports: [3389, 22]
#   timeout: 2s

jobs:
  - name: ad-servers
    source:
      type: ad
      url: ldaps://dc01.example.com
      base_dn: DC=example,DC=com
      username: svc-vaultsync@example.com
      password: env:AD_PASSWORD
    root: Servers              # marker in the canonical name; the path below it is kept
    destination: Infrastructure\Servers
    # vault: Operations
    # delete_orphans: true
    # fields:
    #   description: "synced by {{ .Job }}"

  # - name: vcenter
  #   source:
  #     type: vmware
  #     url: https://vcenter.example.com
  #     username: svc-vaultsync@vsphere.local
  #     password: keyring:vaultsync/vcenter
  #     datacenter: DC1
  #   root: DC1
  #   destination: Infrastructure\VMs

  # - name: service-accounts
  #   source:
  #     type: csv
  #     path: ./accounts.csv
  #     columns:
  #       name: Account
  #       path: Folder
  #   destination: Accounts

# type_definitions:
#   - source: ad
#     entry_type: ssh

# variables:
#   domain: EXAMPLE
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter vaultsync.yaml configuration",
	Long: `Creates a vaultsync.yaml file in the current directory with a well-commented
template including an Active Directory job and documented alternatives for
vCenter and CSV sources and the http and sql backends.

Use --force to overwrite an existing configuration file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		outPath := configPath
		if !filepath.IsAbs(outPath) {
			abs, err := filepath.Abs(outPath)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}
			outPath = abs
		}

		if !initForce {
			if _, err := os.Stat(outPath); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", outPath)
			}
		}

		if err := os.WriteFile(outPath, []byte(initTemplate), 0644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		info("Created %s", outPath)
		info("")
		info("Next steps:")
		info("  1. Edit the file to point at your directory and vault")
		info("  2. Run 'vaultsync status' to preview the changes")
		info("  3. Run 'vaultsync sync' to apply them")
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite existing config file")
	rootCmd.AddCommand(initCmd)
}
