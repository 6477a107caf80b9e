package main

import (
	"fmt"
	"io"

	"github.com/LeoVS09/simple-yield-farm/internal/observability"
	"github.com/LeoVS09/simple-yield-farm/internal/scenario"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newSimulateCmd() *cobra.Command {
	var (
		verbose  bool
		showHash bool
	)
	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml>",
		Short: "Run a scenario in process and print the final positions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := scenario.Load(args[0])
			if err != nil {
				return err
			}

			logger := zerolog.Nop()
			if verbose {
				logger = observability.NewLoggerTo(cmd.ErrOrStderr(), "simulate", "debug", "console")
			}

			report, err := scenario.Run(cmd.Context(), sc, logger)
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), report, showHash)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log every vault operation to stderr")
	cmd.Flags().BoolVar(&showHash, "hash", false, "print the final state hash")
	return cmd
}

func printReport(w io.Writer, r *scenario.Report, showHash bool) error {
	if err := r.Render(w); err != nil {
		return err
	}
	if showHash {
		_, err := fmt.Fprintf(w, "\nstate hash %s\n", r.StateHashHex())
		return err
	}
	return nil
}
