package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const defaultServerURL = "http://localhost:8000"

var rootCmd = &cobra.Command{
	Use:   "flightctl",
	Short: "flightctl talks to the flight assistant",
	Long:  `flightctl chats with a running flight assistant, checks its health, or serves its tools over MCP.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	server := os.Getenv("FLIGHT_ASSISTANT_URL")
	if server == "" {
		server = defaultServerURL
	}
	rootCmd.PersistentFlags().String("server", server, "Base URL of the flight assistant server")
	rootCmd.PersistentFlags().Duration("timeout", 5*time.Minute, "Per-request timeout")
	rootCmd.Version = version
}
