package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/Lanchu14/project-realtime/internal/session"
	"github.com/Lanchu14/project-realtime/internal/ui"
)

var historyCmd = &cobra.Command{
	Use:     "history <booking-id>",
	Aliases: []string{"h"},
	Short:   "Print a booking's chat transcript",
	Long: `Fetch a booking's stored chat history and print it as a table.

Examples:
  bookchat history 42
  bookchat history 42 --server https://sessions.example.com`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHistory(args[0])
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func runHistory(bookingID string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	stopSpinner := ui.RunSpinner("Fetching history...")
	defer stopSpinner()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	messages, err := session.FetchHistory(ctx, nil, cfg.ServerURL, bookingID)
	if err != nil {
		return err
	}
	stopSpinner()

	ui.NewHistoryTable(bookingID, messages).Render()
	return nil
}
