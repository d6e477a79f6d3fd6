package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/bianoble/vaultsync/internal/config"
	"github.com/bianoble/vaultsync/pkg/vaultsync"
)

// newClient builds a library client from the global flags.
func newClient() (*vaultsync.Client, error) {
	return vaultsync.New(vaultsync.Options{
		ConfigPath:  configPath,
		NoInherit:   noInherit || config.EnvNoInherit(),
		MetricsFile: metricsFile,
	})
}

// info prints a line unless quiet mode is active.
func info(format string, args ...any) {
	if !quiet {
		fmt.Printf(format+"\n", args...)
	}
}

// detail prints a line only in verbose mode.
func detail(format string, args ...any) {
	if verbose {
		fmt.Printf("  "+format+"\n", args...)
	}
}

// errorf prints an error message to stderr.
func errorf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}

// printResult reports every job of a run and returns an error when any job
// or item failed.
func printResult(verb string, result *vaultsync.SyncResult, delim string) error {
	if result.DryRun {
		info("Dry run — nothing written to the vault.")
	}

	for _, job := range result.Jobs {
		header := fmt.Sprintf("%s → %s", job.Job, job.Destination)
		if job.Vault != "" {
			header += fmt.Sprintf(" (vault %s)", job.Vault)
		}
		info("%s", header)

		if job.Err != nil {
			errorf("%s: %v", job.Job, job.Err)
			continue
		}
		for _, a := range job.Actions {
			info("  %s", a.Describe(delim))
		}
		for _, s := range job.Skipped {
			detail("skipped  %s: %v", s.Item, s.Err)
		}
		for _, f := range job.Failed {
			errorf("%s", f.Error())
		}
	}

	info("")
	info("%s complete: %s.", verb, summaryLine(result.Summary()))

	if errs := result.Errors(); len(errs) > 0 {
		return fmt.Errorf("%d error(s) during %s", len(errs), strings.ToLower(verb))
	}
	return nil
}

// summaryLine renders the non-zero counters of a run.
func summaryLine(s vaultsync.Summary) string {
	parts := []string{
		plural(s.Created, "entry", "entries") + " created",
		plural(s.Folders, "folder", "folders") + " created",
		fmt.Sprintf("%d updated", s.Updated),
		fmt.Sprintf("%d deleted", s.Deleted),
		fmt.Sprintf("%d unchanged", s.Matched),
	}
	if s.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", s.Skipped))
	}
	if s.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", s.Failed))
	}
	return strings.Join(parts, ", ")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}

// pathDelimiter returns the configured path delimiter, or the default when
// the config cannot be read.
func pathDelimiter(c *vaultsync.Client) string {
	res, err := c.LoadConfig()
	if err != nil {
		return config.DefaultDelimiter
	}
	return res.Config.Path.Delimiter
}

// parsePairs parses key=value flags.
func parsePairs(flag string, pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("--%s %q: expected key=value", flag, p)
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}
