// rltcp trains reinforcement-learning agents to prioritize CI test cases and
// scores their orderings cycle by cycle.
//
// Usage:
//
//	rltcp run -m pointwise,listwise -a linear -e 100 -t data.csv
//	rltcp dataset info -t data.csv
//	rltcp results list
//	rltcp results show <run-id>
//	rltcp serve
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rltcp/internal/fault"
	"rltcp/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

func newRootCmd() *cobra.Command {
	var logLevel, logFormat string
	root := &cobra.Command{
		Use:   "rltcp",
		Short: "Reinforcement-learning test case prioritization for CI",
		Long: "rltcp trains an agent on each CI cycle of a test history dataset, ranks\n" +
			"the next cycle's test cases with it and scores the selection with NAPFD.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return logging.Setup(logLevel, logFormat, cmd.ErrOrStderr())
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&logFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(newRunCmd())
	root.AddCommand(newDatasetCmd())
	root.AddCommand(newResultsCmd())
	root.AddCommand(newServeCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(fault.ExitCode(err))
	}
}
