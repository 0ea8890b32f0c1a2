package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/ashureev/flight-assistant/internal/config"
	"github.com/ashureev/flight-assistant/internal/mcpserver"
	"github.com/ashureev/flight-assistant/internal/tools"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the flight tools over MCP (stdio)",
	Long: `Exposes search_flights and send_email as Model Context Protocol tools
on standard input/output, configured from the same environment as the server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Logs must not corrupt JSON-RPC on stdout.
		log.SetOutput(os.Stderr)
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
		slog.SetDefault(logger)

		_ = godotenv.Load()
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		registry := tools.NewRegistry(
			tools.NewFareSearch(cfg.Fares.BaseURL, cfg.Fares.Timeout).Tool(),
			tools.NewEmail(tools.EmailSettings{
				Sender:      cfg.Email.Sender,
				AppPassword: cfg.Email.AppPassword,
				SMTPHost:    cfg.Email.SMTPHost,
				SMTPPort:    cfg.Email.SMTPPort,
			}, nil).Tool(),
		)

		srv, err := mcpserver.NewServer(registry, version, logger)
		if err != nil {
			return err
		}

		slog.Info("Starting flight tools MCP server (stdio)")
		return srv.ServeStdio()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
