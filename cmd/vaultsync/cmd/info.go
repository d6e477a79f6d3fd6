package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bianoble/vaultsync/internal/config"
	"github.com/bianoble/vaultsync/internal/target"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show information about the vaultsync configuration",
	Long: `Displays the vaultsync version, the configuration chain, the backend and
the entry type each source type maps to (built-in and custom).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("vaultsync %s\n", version)

		client, err := newClient()
		if err != nil {
			return err
		}
		hr, err := client.LoadConfig()
		if err != nil {
			fmt.Printf("  config:        %s (%v)\n", configPath, err)
			return nil
		}
		cfg := hr.Config

		if len(hr.Layers) > 1 {
			fmt.Println("  config chain:")
			for _, layer := range hr.Layers {
				fmt.Printf("    %-10s %s (%s)\n", string(layer.Level)+":", layer.Path, layerStatus(layer))
			}
		} else {
			fmt.Printf("  config:        %s\n", configPath)
		}
		fmt.Printf("  backend:       %s\n", describeBackend(cfg.Backend))
		fmt.Printf("  delimiter:     %s\n", cfg.Path.Delimiter)
		fmt.Printf("  jobs:          %d\n", len(cfg.Jobs))

		tm, err := target.NewTypeMap(cfg.TypeDefinitions)
		if err != nil {
			return err
		}
		fmt.Println("\nEntry types:")
		for _, src := range tm.KnownSources() {
			t, _ := tm.Resolve(src)
			custom := ""
			if tm.IsCustom(src) {
				custom = " (custom)"
			}
			fmt.Printf("  %-10s → %s%s\n", src, t, custom)
		}
		return nil
	},
}

func layerStatus(l config.ConfigLayerInfo) string {
	switch {
	case l.Err != nil:
		return "error: " + l.Err.Error()
	case l.Loaded:
		return "loaded"
	}
	return "not found"
}

func describeBackend(b config.Backend) string {
	switch b.Type {
	case "file":
		return "file " + b.Path
	case "sql":
		return "sql (" + b.Driver + ")"
	case "http":
		return "http " + b.URL
	}
	return b.Type
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
