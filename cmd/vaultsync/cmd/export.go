package cmd

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bianoble/vaultsync/internal/sandbox"
	"github.com/bianoble/vaultsync/pkg/vaultsync"
)

var (
	exportOutput    string
	exportVault     string
	exportDelim     string
	exportRoot      string
	exportFolders   bool
	exportPasswords bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export vault contents as CSV",
}

var exportPermissionsCmd = &cobra.Command{
	Use:   "permissions",
	Short: "Export the permission matrix of a vault",
	Long: `Writes one row per object and right with one column per role, marked "x"
where the role holds the right. Writes to stdout unless --output is set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		return writeOutput(exportOutput, func(w io.Writer) (int, error) {
			return client.ExportPermissions(cmd.Context(), w, exportVault, exportDelim)
		})
	},
}

var exportEntriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "Export the entries of a vault",
	Long: `Writes one row per entry under --root, sorted by path. Passwords are only
written with --passwords. Writes to stdout unless --output is set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		return writeOutput(exportOutput, func(w io.Writer) (int, error) {
			return client.ExportEntries(cmd.Context(), w, vaultsync.ExportOptions{
				Vault:     exportVault,
				Root:      exportRoot,
				Folders:   exportFolders,
				Passwords: exportPasswords,
				Comma:     exportDelim,
			})
		})
	},
}

// writeOutput runs fn against stdout, or against an atomically replaced
// file when output is set. A failed export leaves an existing file intact.
func writeOutput(output string, fn func(w io.Writer) (int, error)) error {
	if output == "" || output == "-" {
		_, err := fn(os.Stdout)
		return err
	}

	f, err := sandbox.CreateFile(output, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := fn(f)
	if err != nil {
		return err
	}
	if err := f.Commit(); err != nil {
		return err
	}
	info("Wrote %s to %s.", plural(n, "row", "rows"), f.Path())
	return nil
}

func init() {
	for _, c := range []*cobra.Command{exportPermissionsCmd, exportEntriesCmd} {
		c.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default stdout)")
		c.Flags().StringVar(&exportVault, "vault", "", "vault to export (default: current)")
		c.Flags().StringVar(&exportDelim, "delimiter", "", `CSV delimiter, one character or "tab" (default ",")`)
	}
	exportEntriesCmd.Flags().StringVar(&exportRoot, "root", "", "only export entries below this vault path")
	exportEntriesCmd.Flags().BoolVar(&exportFolders, "folders", false, "include folder rows")
	exportEntriesCmd.Flags().BoolVar(&exportPasswords, "passwords", false, "include the password column")

	exportCmd.AddCommand(exportPermissionsCmd, exportEntriesCmd)
	rootCmd.AddCommand(exportCmd)
}
