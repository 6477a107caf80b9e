package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "yieldvault",
		Short:        "Tokenized yield vault ledger",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newSimulateCmd(), newSubmitCmd())
	return root
}
