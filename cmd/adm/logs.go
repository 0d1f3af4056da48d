package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/breeze-rmm/adm/internal/capture"
)

var logsCmd = &cobra.Command{
	Use:   "logs [service]",
	Short: "List captured launchd log snapshots",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		provider, err := capture.NewProvider(cmd.Context(), a.cfg.Capture)
		if err != nil {
			return err
		}
		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}
		keys, err := provider.List(cmd.Context(), prefix)
		if err != nil {
			return err
		}
		sort.Strings(keys)
		w := cmd.OutOrStdout()
		for _, k := range keys {
			fmt.Fprintln(w, k)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)
}
