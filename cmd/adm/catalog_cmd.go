package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/breeze-rmm/adm/internal/catalog"
)

var catalogBootout bool

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print the built-in service catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := catalog.Builtin()
		if err != nil {
			return err
		}
		names := c.NonNeeded
		if catalogBootout {
			names = c.Bootout
		}
		w := cmd.OutOrStdout()
		for _, name := range catalog.NewPatternSet(names).Items() {
			fmt.Fprintln(w, name)
		}
		return nil
	},
}

func init() {
	catalogCmd.Flags().BoolVar(&catalogBootout, "bootout", false, "print the boot-out list instead of the non-needed list")
	rootCmd.AddCommand(catalogCmd)
}
