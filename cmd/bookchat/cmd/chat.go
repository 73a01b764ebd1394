package cmd

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Lanchu14/project-realtime/internal/history"
	"github.com/Lanchu14/project-realtime/internal/rtc"
	"github.com/Lanchu14/project-realtime/internal/session"
	"github.com/Lanchu14/project-realtime/internal/ui"
)

var chatCmd = &cobra.Command{
	Use:     "chat <booking-id>",
	Aliases: []string{"c"},
	Short:   "Open the chat view for a booking",
	Long: `Open the interactive chat view for a booking's session room.

The transcript is seeded from the server's chat history and updated live.
Calls can be started and answered from inside the view.

Examples:
  bookchat chat 42
  bookchat chat 42 --user Alice
  bookchat chat 42 --server https://sessions.example.com`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(args[0])
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(bookingID string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	name := userName()

	// Session callbacks feed the view through this channel; the view keeps
	// exactly one receive in flight, so a generous buffer is enough to
	// absorb bursts.
	events := make(chan tea.Msg, 64)
	sess := session.New(cfg, name, rtc.Factory(cfg), session.Callbacks{
		OnMessage:      func(m history.Message) { events <- ui.MessageEvent{Msg: m} },
		OnSendRejected: func(m history.Message) { events <- ui.RejectedEvent{Msg: m} },
		OnIncomingCall: func(from string) { events <- ui.IncomingCallEvent{From: from} },
		OnCallAccepted: func() { events <- ui.CallAcceptedEvent{} },
		OnCallEnded:    func() { events <- ui.CallEndedEvent{} },
		OnError:        func(reason string) { events <- ui.ErrorEvent{Reason: reason} },
	})

	stopSpinner := ui.RunConnectionSpinner("Connecting to server...")
	defer stopSpinner()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sess.Connect(ctx); err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.Join(ctx, bookingID); err != nil {
		return err
	}
	if err := sess.SeedHistory(ctx); err != nil {
		return err
	}
	stopSpinner()

	return ui.RunChat(ui.NewChat(sess, name, bookingID, events))
}
