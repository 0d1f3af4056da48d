package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/breeze-rmm/adm/internal/hostinfo"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that adm can reach launchctl with enough privilege",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		info := hostinfo.Collect(cmd.Context(), a.cfg.SudoPath)
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "host:     %s\n", info.Hostname)
		fmt.Fprintf(w, "os:       %s (%s)\n", info.OSVersion, info.ProductVersion)
		fmt.Fprintf(w, "kernel:   %s %s\n", info.KernelVersion, info.Architecture)
		fmt.Fprintf(w, "euid:     %d\n", info.EUID)
		if info.SudoOK {
			fmt.Fprintf(w, "sudo:     %s\n", info.SudoPath)
		} else {
			fmt.Fprintln(w, "sudo:     unavailable")
		}
		for _, t := range info.Tools {
			state := paint(w, okStyle, "ok")
			if !t.OK {
				state = paint(w, errStyle, "missing")
			}
			fmt.Fprintf(w, "tool:     %s %s\n", t.Name, state)
		}

		problems := info.Problems()
		if len(problems) == 0 {
			fmt.Fprintln(w, paint(w, okStyle, "no problems found"))
			return nil
		}
		for _, p := range problems {
			fmt.Fprintf(w, "%s %s\n", paint(w, warnStyle, "problem:"), p)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
