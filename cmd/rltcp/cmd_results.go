package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rltcp/internal/experiment"
	"rltcp/internal/format"
	"rltcp/internal/report"
	"rltcp/internal/store"
)

func newResultsCmd() *cobra.Command {
	var dbPath, out string
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Browse stored experiment runs",
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&dbPath, "db", store.DefaultDBPath, "Results DB path")
	pf.StringVar(&out, "format", "table", "Table format (table, markdown, csv)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode, err := format.ParseMode(out)
			if err != nil {
				return err
			}
			st, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()
			runs, err := st.ListRuns()
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs found.")
				return nil
			}
			tb := format.NewTable(mode)
			tb.Header("ID", "Mode", "Algo", "Dataset", "Episodes", "Window", "Started", "Finished", "Notes")
			for _, r := range runs {
				finished := "running"
				if !r.FinishedAt.IsZero() {
					finished = format.FmtDuration(r.FinishedAt.Sub(r.StartedAt))
				}
				tb.Row(r.ID, r.Mode, r.Algo, r.Dataset, r.Episodes, r.WindowSize,
					r.StartedAt.Local().Format("2006-01-02 15:04:05"), finished, format.Truncate(r.Notes, 30))
			}
			fmt.Fprintln(cmd.OutOrStdout(), tb.String())
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the per-cycle results of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := format.ParseMode(out)
			if err != nil {
				return err
			}
			st, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()
			run, err := st.GetRun(args[0])
			if err != nil {
				return err
			}
			stored, err := st.ListResults(run.ID)
			if err != nil {
				return err
			}
			results := make([]experiment.CycleResult, len(stored))
			for i, r := range stored {
				results[i] = report.FromStoreResult(r)
			}
			title := fmt.Sprintf("%s / %s on %s (run %s, %d episodes, window %d)",
				run.Mode, run.Algo, run.Dataset, run.ID, run.Episodes, run.WindowSize)
			fmt.Fprintln(cmd.OutOrStdout(), report.ResultsTable(title, results, mode))
			return nil
		},
	}
	cmd.AddCommand(list, show)
	return cmd
}
