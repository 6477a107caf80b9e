package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/LeoVS09/simple-yield-farm/internal/server"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newSubmitCmd() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "submit <type> <command-json>",
		Short: "Submit one command to a running service over gRPC",
		Example: `  yieldvault submit deposit '{"command_id":"...","sequence":0,"timestamp_us":0,` +
			`"caller":"...","receiver":"...","assets":1000000}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !json.Valid([]byte(args[1])) {
				return errors.New("command is not valid JSON")
			}

			conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			resp, err := server.NewVaultServiceClient(conn).SubmitCommand(ctx, &server.SubmitCommandRequest{
				Type:    args[0],
				Command: json.RawMessage(args[1]),
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:9090", "gRPC address of the service")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	return cmd
}
