package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bianoble/vaultsync/pkg/vaultsync"
)

var (
	importDest      string
	importVault     string
	importType      string
	importDelim     string
	importPathDelim string
	importColumns   []string
	importFields    []string
	importDryRun    bool
)

var importCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Create entries from a CSV file",
	Long: `Reads a CSV file with a header row and creates one entry per row under the
folder its path column names (split on --path-delimiter), below --destination.
Existing entries are updated; nothing is ever deleted.

Map columns with --column role=Header, where role is one of name, path, host,
port, username, password, domain, url, description. Unmapped roles use a column
of the same name.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		columns, err := parsePairs("column", importColumns)
		if err != nil {
			return err
		}
		fields, err := parsePairs("field", importFields)
		if err != nil {
			return err
		}

		client, err := newClient()
		if err != nil {
			return err
		}

		result, err := client.Import(cmd.Context(), vaultsync.ImportOptions{
			Path:          args[0],
			Delimiter:     importDelim,
			PathDelimiter: importPathDelim,
			Columns:       columns,
			Destination:   importDest,
			Vault:         importVault,
			EntryType:     importType,
			Fields:        fields,
			DryRun:        importDryRun,
		})
		if err != nil {
			return fmt.Errorf("import %s: %w", args[0], err)
		}
		return printResult("Import", result, pathDelimiter(client))
	},
}

func init() {
	f := importCmd.Flags()
	f.StringVar(&importDest, "destination", "", "vault folder the imported paths hang under")
	f.StringVar(&importVault, "vault", "", "vault to import into (default: current)")
	f.StringVar(&importType, "type", "", "entry type (default: credential)")
	f.StringVar(&importDelim, "delimiter", "", `CSV delimiter, one character or "tab" (default ",")`)
	f.StringVar(&importPathDelim, "path-delimiter", "", `delimiter inside the path column (default "\")`)
	f.StringArrayVar(&importColumns, "column", nil, "map a column role to a header, role=Header (repeatable)")
	f.StringArrayVar(&importFields, "field", nil, "field template, name=template (repeatable)")
	f.BoolVar(&importDryRun, "dry-run", false, "show what would be created without writing to the vault")
	rootCmd.AddCommand(importCmd)
}
