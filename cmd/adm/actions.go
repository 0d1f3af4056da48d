package main

import (
	"github.com/spf13/cobra"

	"github.com/breeze-rmm/adm/internal/privilege"
	"github.com/breeze-rmm/adm/internal/reconcile"
)

var (
	userServices   []string
	systemServices []string
	smart          bool
	verify         bool
	captureLogs    bool
	kickstart      bool
)

var turnOffCmd = &cobra.Command{
	Use:   "turn-off",
	Short: "Boot out and disable services",
	Long: `turn-off boots out then disables every targeted service. A service that
is already not running counts as turned off. With --smart the targets are
the live services matching the given names, and running ones are killed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		warnIfUnprivileged()

		ctx := cmd.Context()
		d, err := a.driver(ctx, captureLogs)
		if err != nil {
			return err
		}
		req := a.request(userServices, systemServices)
		req.Verify = verify

		a.runStart("turn-off")
		var out reconcile.Outcome
		if smart {
			out, err = d.TurnOffSmart(ctx, req)
		} else {
			out, err = d.TurnOff(ctx, req)
		}
		a.runEnd("turn-off", out)
		if err != nil {
			return err
		}
		printOutcome(cmd.OutOrStdout(), "turn-off", out)
		return nil
	},
}

var bootUpCmd = &cobra.Command{
	Use:   "boot-up",
	Short: "Enable and bootstrap services",
	Long: `boot-up enables every targeted service and loads it from its descriptor
(or kickstarts it with --kickstart). Services without a descriptor on disk
are skipped; services already running count as booted up.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		warnIfUnprivileged()

		ctx := cmd.Context()
		d, err := a.driver(ctx, false)
		if err != nil {
			return err
		}
		req := a.request(userServices, systemServices)
		req.Kickstart = kickstart

		a.runStart("boot-up")
		var out reconcile.Outcome
		if smart {
			out, err = d.BootUpSmart(ctx, req)
		} else {
			out, err = d.BootUp(ctx, req)
		}
		a.runEnd("boot-up", out)
		if err != nil {
			return err
		}
		printOutcome(cmd.OutOrStdout(), "boot-up", out)
		return nil
	},
}

var bootOutCmd = &cobra.Command{
	Use:   "boot-out",
	Short: "Boot out the built-in boot-out catalog without disabling",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		warnIfUnprivileged()

		d, err := a.driver(cmd.Context(), false)
		if err != nil {
			return err
		}
		a.runStart("boot-out")
		out := d.BootOut(cmd.Context(), a.uid, a.cfg.GUI)
		a.runEnd("boot-out", out)
		printOutcome(cmd.OutOrStdout(), "boot-out", out)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{turnOffCmd, bootUpCmd} {
		c.Flags().StringSliceVarP(&userServices, "user-services", "s", nil, "services targeted in the user (or gui) domain")
		c.Flags().StringSliceVarP(&systemServices, "system-services", "S", nil, "services targeted in the system domain")
		c.Flags().BoolVar(&smart, "smart", false, "select targets from live state by name matching")
	}
	turnOffCmd.Flags().BoolVar(&verify, "verify", false, "with --smart, wait for killed pids to exit")
	turnOffCmd.Flags().BoolVar(&captureLogs, "logs", false, "capture the launchd log before and after each target")
	bootUpCmd.Flags().BoolVar(&kickstart, "kickstart", false, "kickstart instead of bootstrap")

	rootCmd.AddCommand(turnOffCmd)
	rootCmd.AddCommand(bootUpCmd)
	rootCmd.AddCommand(bootOutCmd)
}

func warnIfUnprivileged() {
	if privilege.IsRunningAsRoot() {
		return
	}
	if _, ok := privilege.SudoAvailable(""); !ok {
		rootCmd.PrintErrln("warning: not root and sudo is unavailable; system domain changes will fail")
	}
}
