package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"rltcp/internal/config"
	"rltcp/internal/dataset"
	"rltcp/internal/format"
)

func newDatasetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Inspect test history datasets",
	}
	cmd.AddCommand(newDatasetInfoCmd())
	return cmd
}

func newDatasetInfoCmd() *cobra.Command {
	var (
		path, typ, out string
		minSize        int
	)
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Summarize a dataset: cycles, test cases, failure rate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				return fmt.Errorf("--train-data is required")
			}
			cycles, err := loadCycles(path, typ)
			if err != nil {
				return err
			}
			info := dataset.Summarize(cycles, minSize)
			if out == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			mode, err := format.ParseMode(out)
			if err != nil {
				return err
			}
			tb := format.NewTable(mode)
			tb.Header("Field", "Value")
			tb.Row("Cycles (>= min size)", info.Cycles)
			tb.Row("Cycle ids", fmt.Sprintf("%d..%d", info.FirstCycle, info.LastCycle))
			tb.Row("Test cases", info.TestCases)
			tb.Row("Failed", info.Failed)
			tb.Row("Failure rate", format.FmtPercent(info.FailureRate))
			tb.Row("Cycles with failures", info.FailedCycles)
			tb.Row("Largest cycle", info.MaxCycleSize)
			fmt.Fprintln(cmd.OutOrStdout(), tb.String())
			return nil
		},
	}
	def := config.Default()
	f := cmd.Flags()
	f.StringVarP(&path, "train-data", "t", "", "Dataset CSV path")
	f.StringVarP(&typ, "dataset-type", "d", def.DatasetType, "Dataset type (simple, enriched)")
	f.IntVar(&minSize, "min-cycle-size", def.MinCycleSize, "Count only cycles with at least this many test cases")
	f.StringVar(&out, "format", "table", "Output format (table, markdown, csv, json)")
	return cmd
}
