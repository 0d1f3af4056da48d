package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/breeze-rmm/adm/internal/discovery"
	"github.com/breeze-rmm/adm/internal/launchd"
	"github.com/breeze-rmm/adm/internal/logging"
	"github.com/breeze-rmm/adm/internal/svcquery"
)

var (
	listQualified bool
	listPath      bool
	listSystem    bool

	statusAll  bool
	statusPath bool
	statusJSON bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List agents and daemons declared on disk",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		descs, err := discovery.Discover(discovery.Options{IncludeUser: true, IncludeLibrary: true, IncludeSystem: listSystem})
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, d := range descs {
			name := d.Label
			if listQualified {
				name = launchd.Address(d.Domain(a.uid), d.Label)
			}
			if listPath {
				fmt.Fprintf(w, "%s\t%s\n", name, d.Path)
			} else {
				fmt.Fprintln(w, name)
			}
		}
		return nil
	},
}

var pathCmd = &cobra.Command{
	Use:   "path <label>",
	Short: "Print the descriptor files declaring a label",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		descs, err := discovery.Discover(a.discovery)
		if err != nil {
			return err
		}
		found := discovery.FindLabel(descs, args[0])
		if len(found) == 0 {
			return fmt.Errorf("no descriptor declares %q", args[0])
		}
		for _, d := range found {
			fmt.Fprintln(cmd.OutOrStdout(), d.Path)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show live service state per domain",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		ctx := cmd.Context()
		var entries []svcquery.Entry
		if statusAll {
			entries, err = a.querier.QueryAll(ctx, a.uid)
		} else {
			var records []svcquery.Record
			records, err = a.querier.QueryLive(ctx, a.uid, a.cfg.IncludeSystemUIDs)
			for _, r := range records {
				entries = append(entries, svcquery.Entry{Record: r})
			}
		}
		if err != nil {
			return err
		}
		if statusPath && !statusAll {
			attachPaths(ctx, entries, a.discovery)
		}

		rows := statusRows(entries, !statusAll)
		w := cmd.OutOrStdout()
		if statusJSON {
			return printJSON(w, rows)
		}
		fmt.Fprintln(w, renderTable(w, statusHeaders(statusPath), rowCells(rows, statusPath), stateColumn))
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVarP(&listQualified, "qualified", "q", false, "print <domain>/<label> targets")
	listCmd.Flags().BoolVarP(&listPath, "path", "p", false, "print the descriptor path")
	listCmd.Flags().BoolVar(&listSystem, "system", false, "include /System/Library")

	statusCmd.Flags().BoolVarP(&statusAll, "all", "a", false, "list services off and on, including declared ones that are not loaded")
	statusCmd.Flags().BoolVarP(&statusPath, "path", "p", false, "add the descriptor path column")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print JSON")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(pathCmd)
	rootCmd.AddCommand(statusCmd)
}

// stateColumn is the colored column of the status table.
const stateColumn = 4

// statusRow is one line of the status table.
type statusRow struct {
	Service  string                 `json:"service"`
	PID      int64                  `json:"pid"`
	Domain   string                 `json:"domain"`
	LastExit *int64                 `json:"lastExit,omitempty"`
	State    svcquery.ServiceStatus `json:"state"`
	Path     string                 `json:"path,omitempty"`
}

func statusRows(entries []svcquery.Entry, runningOnly bool) []statusRow {
	rows := make([]statusRow, 0, len(entries))
	for _, e := range entries {
		if runningOnly && !e.IsActive() {
			continue
		}
		row := statusRow{
			Service:  e.Service,
			PID:      e.PID,
			Domain:   e.Domain.String(),
			LastExit: e.LastExit,
			State:    e.Status(),
		}
		if e.Info != nil {
			row.Path = e.Info.Path
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Service != rows[j].Service {
			return rows[i].Service < rows[j].Service
		}
		return rows[i].Domain < rows[j].Domain
	})
	return rows
}

func statusHeaders(withPath bool) []string {
	h := []string{"SERVICE", "PID", "DOMAIN", "STATUS", "STATE"}
	if withPath {
		h = append(h, "PATH")
	}
	return h
}

func rowCells(rows []statusRow, withPath bool) [][]string {
	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		pid := "-"
		if r.PID != 0 {
			pid = fmt.Sprint(r.PID)
		}
		status := "-"
		if r.LastExit != nil {
			status = fmt.Sprint(*r.LastExit)
		}
		c := []string{r.Service, pid, r.Domain, status, string(r.State)}
		if withPath {
			c = append(c, r.Path)
		}
		cells = append(cells, c)
	}
	return cells
}

// attachPaths fills Info for live entries from the descriptors on disk.
func attachPaths(ctx context.Context, entries []svcquery.Entry, opts discovery.Options) {
	descs, err := discovery.Discover(opts)
	if err != nil {
		logging.FromContext(ctx).Warn("descriptor discovery failed, paths omitted", logging.KeyError, err.Error())
		return
	}
	index := discovery.Index(descs)
	for i := range entries {
		if d, ok := index[entries[i].Service]; ok {
			entries[i].Info = &svcquery.Info{Path: d.Path, Properties: d.Properties}
		}
	}
}
