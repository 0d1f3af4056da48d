package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/breeze-rmm/adm/internal/audit"
	"github.com/breeze-rmm/adm/internal/config"
)

var (
	auditTail int
	auditJSON bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the journal of launchd changes",
}

var auditShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print journal entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		entries, err := audit.ReadEntries(cfg.Audit.JournalPath())
		if err != nil {
			return err
		}
		if auditTail > 0 && len(entries) > auditTail {
			entries = entries[len(entries)-auditTail:]
		}
		if auditJSON {
			return printJSON(cmd.OutOrStdout(), entries)
		}
		printEntries(cmd.OutOrStdout(), entries)
		return nil
	},
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the hash chain of the journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		path := cfg.Audit.JournalPath()
		n, err := audit.Verify(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d entries, chain intact\n", path, n)
		return nil
	},
}

func init() {
	auditShowCmd.Flags().IntVarP(&auditTail, "tail", "n", 0, "only the last n entries")
	auditShowCmd.Flags().BoolVar(&auditJSON, "json", false, "print entries as JSON")

	auditCmd.AddCommand(auditShowCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	rootCmd.AddCommand(auditCmd)
}

func printEntries(w io.Writer, entries []audit.Entry) {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.Timestamp, e.Event, e.Target, e.Result, entryNote(e)})
	}
	fmt.Fprintln(w, renderTable(w, []string{"TIME", "EVENT", "TARGET", "RESULT", "NOTE"}, rows, 3))
}

// entryNote prefers the error text, then falls back to details as k=v pairs.
func entryNote(e audit.Entry) string {
	if e.Error != "" {
		return e.Error
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.Details[k]))
	}
	return strings.Join(parts, " ")
}
