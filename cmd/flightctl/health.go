package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ashureev/flight-assistant/internal/healthgrpc"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the flight assistant is up",
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")
		grpcAddr, _ := cmd.Flags().GetString("grpc")

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		resp, err := newAPIClient(server, 10*time.Second).Health(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "http  %s: %s (%s)\n", server, resp.Status, resp.Service)

		if grpcAddr == "" {
			return nil
		}

		client, err := healthgrpc.Dial(ctx, grpcAddr, nil)
		if err != nil {
			return err
		}
		defer client.Close()

		status, err := client.Check(ctx, healthgrpc.ChatService)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "grpc  %s: %s\n", grpcAddr, status)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)

	healthCmd.Flags().String("grpc", "", "Also query the gRPC health service at this address")
}
