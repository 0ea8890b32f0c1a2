package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Chat with the flight assistant",
	Long: `Starts an interactive session against POST /chat.
With a message argument, sends that single turn and exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		threadID, _ := cmd.Flags().GetString("thread")
		plain, _ := cmd.Flags().GetBool("plain")
		if threadID == "" {
			threadID = uuid.NewString()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		client := newAPIClient(server, timeout)
		render := newRenderer(plain)

		if len(args) > 0 {
			reply, err := client.Chat(ctx, threadID, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), render(reply))
			return nil
		}

		printBanner(cmd.OutOrStdout(), server, threadID)
		return runREPL(ctx, client, threadID, cmd.InOrStdin(), cmd.OutOrStdout(), render)
	},
}

func runREPL(ctx context.Context, client *apiClient, threadID string, in io.Reader, out io.Writer, render func(string) string) error {
	scanner := bufio.NewScanner(in)
	for {
		prompt(out)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "exit", "quit":
			fmt.Fprintln(out, "Bye!")
			return nil
		case "/reset":
			if err := client.Reset(ctx, threadID); err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			fmt.Fprintln(out, "Conversation cleared.")
			continue
		}

		reply, err := client.Chat(ctx, threadID, input)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		fmt.Fprint(out, render(reply))
	}
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().String("thread", "", "Thread ID to continue (default: a new random ID)")
	chatCmd.Flags().Bool("plain", false, "Print replies without markdown rendering")
}
