package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/breeze-rmm/adm/internal/audit"
	"github.com/breeze-rmm/adm/internal/capture"
	"github.com/breeze-rmm/adm/internal/catalog"
	"github.com/breeze-rmm/adm/internal/config"
	"github.com/breeze-rmm/adm/internal/discovery"
	"github.com/breeze-rmm/adm/internal/executor"
	"github.com/breeze-rmm/adm/internal/launchd"
	"github.com/breeze-rmm/adm/internal/logging"
	"github.com/breeze-rmm/adm/internal/reconcile"
	"github.com/breeze-rmm/adm/internal/svcquery"
)

var (
	version = "0.1.0"

	cfgFile           string
	uidFlag           uint32
	verbose           bool
	logFile           string
	includeNonNeeded  bool
	includeSystemUIDs bool
	guiDomain         bool
)

var rootCmd = &cobra.Command{
	Use:   "adm",
	Short: "Agents and daemons manager",
	Long: `adm turns launchd agents and daemons off and back on across the system,
user and gui domains, using the live state reported by launchctl.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "adm v%s\n", version)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ~/.config/adm/adm.yaml)")
	pf.Uint32VarP(&uidFlag, "uid", "u", config.DefaultUID, "uid whose user and gui domains are targeted")
	pf.BoolVarP(&verbose, "verbose", "v", false, "log every launchctl call")
	pf.StringVar(&logFile, "log-file", "", "also write logs to this file, rotated by size")
	pf.BoolVarP(&includeNonNeeded, "non-needed", "i", false, "include the built-in non-needed catalog")
	pf.BoolVarP(&includeSystemUIDs, "system-uids", "U", false, "sweep the domains of every local account")
	pf.BoolVarP(&guiDomain, "gui", "g", false, "target gui/<uid> instead of user/<uid>")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds the collaborators a command needs, built from config and the
// persistent flags.
type app struct {
	cfg       *config.Config
	uid       launchd.UID
	runner    executor.Runner
	client    *launchd.Client
	discovery discovery.Options
	querier   *svcquery.Querier
	catalog   *catalog.Catalog
	journal   *audit.Logger
	logCloser io.Closer
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(cmd, cfg)

	a := &app{cfg: cfg}
	if err := a.initLogging(); err != nil {
		return nil, err
	}
	cmd.SetContext(logging.NewContext(cmd.Context(), logging.L("cli").With("command", cmd.Name())))
	clog := logging.FromContext(cmd.Context())

	result := cfg.ValidateTiered()
	for _, w := range result.Warnings {
		clog.Warn("config validation", logging.KeyError, w)
	}
	if result.HasFatals() {
		return nil, fmt.Errorf("invalid config: %v", result.Fatals)
	}

	a.uid = launchd.UID(cfg.UID)
	a.runner = executor.New(executor.Options{
		SudoPath: cfg.SudoPath,
		Timeout:  time.Duration(cfg.CommandTimeoutSeconds) * time.Second,
	})
	a.client = launchd.NewClient(a.runner, cfg.LaunchctlPath)
	a.discovery = discovery.Options{IncludeUser: true, IncludeLibrary: true, IncludeSystem: true}
	a.querier = svcquery.New(a.client, a.discovery)
	a.catalog, err = catalog.Builtin()
	if err != nil {
		return nil, err
	}
	return a, nil
}

// applyFlags lets explicitly set flags override the config file.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("uid") {
		cfg.UID = int(uidFlag)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if logFile != "" {
		cfg.LogFile = logFile
	}
	if flags.Changed("non-needed") {
		cfg.IncludeNonNeeded = includeNonNeeded
	}
	if flags.Changed("system-uids") {
		cfg.IncludeSystemUIDs = includeSystemUIDs
	}
	if flags.Changed("gui") {
		cfg.GUI = guiDomain
	}
}

func (a *app) initLogging() error {
	var out io.Writer = os.Stderr
	if a.cfg.LogFile != "" {
		w, err := logging.NewRotatingWriter(a.cfg.LogFile, 0, 0)
		if err != nil {
			return err
		}
		a.logCloser = w
		out = logging.Tee(os.Stderr, w)
	}
	logging.Init(a.cfg.LogFormat, a.cfg.LogLevel, out)
	return nil
}

func (a *app) close() {
	if a.journal != nil {
		a.journal.Close()
	}
	if a.logCloser != nil {
		a.logCloser.Close()
	}
}

func (a *app) driver(ctx context.Context, withCapture bool) (*reconcile.Driver, error) {
	var capturer *capture.Capturer
	if withCapture || a.cfg.Capture.Enabled {
		cc := a.cfg.Capture
		cc.Enabled = true
		var err error
		if capturer, err = capture.FromConfig(ctx, cc); err != nil {
			return nil, fmt.Errorf("log capture: %w", err)
		}
	}
	if a.cfg.Audit.Enabled && a.journal == nil {
		j, err := audit.NewLogger(a.cfg.Audit.JournalPath(), a.cfg.Audit.MaxSizeMB, a.cfg.Audit.MaxBackups)
		if err != nil {
			// The journal is a record, not a gate: keep going without it.
			logging.FromContext(ctx).Warn("journal unavailable", logging.KeyError, err.Error())
		} else {
			a.journal = j
		}
	}
	return reconcile.New(reconcile.Options{
		Client:    a.client,
		Querier:   a.querier,
		Matcher:   catalog.NewMatcher(a.cfg.BroadMatch),
		Catalog:   a.catalog,
		Capturer:  capturer,
		Journal:   a.journal,
		Discovery: a.discovery,
	}), nil
}

// request builds a batch from config and the per-command service lists.
func (a *app) request(userServices, systemServices []string) reconcile.Request {
	return reconcile.Request{
		UID:               a.uid,
		UserServices:      append(append([]string(nil), userServices...), a.cfg.ExtraPatterns...),
		SystemServices:    systemServices,
		IncludeNonNeeded:  a.cfg.IncludeNonNeeded,
		IncludeSystemUIDs: a.cfg.IncludeSystemUIDs,
		GUI:               a.cfg.GUI,
		VerifyTimeout:     time.Duration(a.cfg.VerifyTimeoutSeconds) * time.Second,
	}
}

// runStart and runEnd bracket one command in the journal.
func (a *app) runStart(command string) {
	a.journal.Log(audit.EventRunStart, map[string]any{
		"command": command,
		"uid":     int(a.uid),
		"gui":     a.cfg.GUI,
	})
}

func (a *app) runEnd(command string, out reconcile.Outcome) {
	a.journal.Log(audit.EventRunEnd, map[string]any{
		"command":   command,
		"succeeded": len(out.Successes),
		"failed":    len(out.Errors),
		"warnings":  len(out.Warnings),
		"skipped":   len(out.Skipped),
	})
}
