package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bianoble/vaultsync/internal/logging"
	"github.com/bianoble/vaultsync/internal/secret"
)

// Build-time variables set via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags.
var (
	configPath  string
	envFile     string
	metricsFile string
	logLevel    string
	logFormat   string
	noInherit   bool
	verbose     bool
	quiet       bool
	noColor     bool
)

// closeLog releases the log file opened by the pre-run hook.
var closeLog = func() error { return nil }

var rootCmd = &cobra.Command{
	Use:   "vaultsync",
	Short: "Keep a credential vault's folder tree in step with your inventory",
	Long: `vaultsync reads hosts and accounts from an inventory source (Active
Directory, vCenter or a CSV file), maps each one onto a folder path in a
credential vault, and creates, updates or removes vault entries so the vault
mirrors the inventory. Every change can be previewed with --dry-run.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// The default .env is optional; an explicit --env-file must exist.
		if err := secret.LoadEnvFile(envFile, !cmd.Flags().Changed("env-file")); err != nil {
			return err
		}

		lc := logging.DefaultConfig()
		lc.Level = logging.ResolveLevel(logLevel, verbose, quiet)
		if logFormat != "" {
			lc.Format = logFormat
		}
		lc.NoColor = lc.NoColor || noColor
		logger, closer := logging.New(lc)
		closeLog = closer

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		cmd.SetContext(logging.WithLogger(ctx, logger))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("vaultsync %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
		fmt.Printf("  config:  v1\n")
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "vaultsync.yaml", "path to config file")
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before secret references are resolved")
	pf.StringVar(&metricsFile, "metrics-file", "", "write run metrics in Prometheus text format to this file")
	pf.StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error (default info, or $LOG_LEVEL)")
	pf.StringVar(&logFormat, "log-format", "", "log format: auto, console, json")
	pf.BoolVar(&noInherit, "no-inherit", false, "ignore system and user config layers")
	pf.BoolVar(&verbose, "verbose", false, "detailed output")
	pf.BoolVar(&quiet, "quiet", false, "minimal output (errors only)")
	pf.BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}
