package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Global flags shared by the subcommands
var baseURL string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "load-tester",
		Short: "Drive and observe an alert feed server",
		Long: `Drive and observe an alert feed server.

"submit" floods POST /api/logs with synthetic alerts at a bounded rate; "watch" subscribes to the
WebSocket feed and reports what arrives.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "http://localhost:8000", "Base URL of the alert feed server")

	rootCmd.AddCommand(newSubmitCmd())
	rootCmd.AddCommand(newWatchCmd())
	return rootCmd
}
