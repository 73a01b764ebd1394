package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	pion "github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/Lanchu14/project-realtime/internal/config"
	"github.com/Lanchu14/project-realtime/internal/rtc"
	"github.com/Lanchu14/project-realtime/internal/session"
	"github.com/Lanchu14/project-realtime/internal/ui"
)

var flagAnswer bool

var callCmd = &cobra.Command{
	Use:   "call <booking-id>",
	Short: "Start or answer a call in a booking",
	Long: `Start a call with the other participant of a booking, or wait for
one with --answer. The call runs until either side hangs up; press Ctrl+C
to hang up from this side.

Examples:
  bookchat call 42
  bookchat call 42 --answer
  bookchat call 42 --turn turn:relay.example.com --turn-user u --turn-pass p`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCall(args[0])
	},
}

func init() {
	callCmd.Flags().BoolVar(&flagAnswer, "answer", false, "wait for an incoming call instead of placing one")
	rootCmd.AddCommand(callCmd)
}

func runCall(bookingID string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stopSignals()

	incoming := make(chan string, 1)
	accepted := make(chan struct{}, 1)
	ended := make(chan struct{}, 1)
	errs := make(chan string, 4)

	sess := session.New(cfg, userName(), mediaFactory(cfg), session.Callbacks{
		OnIncomingCall: func(from string) { incoming <- from },
		OnCallAccepted: func() { accepted <- struct{}{} },
		OnCallEnded:    func() { ended <- struct{}{} },
		OnError:        func(reason string) { errs <- reason },
	})

	stopSpinner := ui.RunConnectionSpinner("Connecting to server...")
	defer stopSpinner()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sess.Connect(dialCtx); err != nil {
		return err
	}
	defer sess.Close()
	if err := sess.Join(dialCtx, bookingID); err != nil {
		return err
	}
	stopSpinner()
	ui.PrintSuccessf("Joined booking %s as %s", bookingID, userName())

	if flagAnswer {
		stopSpinner = ui.RunWaitingSpinner("Waiting for a call...")
		defer stopSpinner()
		select {
		case from := <-incoming:
			stopSpinner()
			ui.PrintInfo(fmt.Sprintf("%s %s is calling", ui.IconCall, from))
		case <-ctx.Done():
			return nil
		}
		if err := sess.AcceptCall(ctx); err != nil {
			return err
		}
		ui.PrintSuccess("Call connected")
	} else {
		if err := sess.InitiateCall(ctx); err != nil {
			return err
		}
		stopSpinner = ui.RunWaitingSpinner("Ringing...")
		defer stopSpinner()
		select {
		case <-accepted:
			stopSpinner()
			ui.PrintSuccess("Call connected")
		case reason := <-errs:
			stopSpinner()
			return fmt.Errorf("call failed: %s", reason)
		case <-ctx.Done():
			sess.HangUp()
			return nil
		}
	}

	// On the call until the other side hangs up or Ctrl+C.
	select {
	case <-ended:
		ui.PrintInfo(ui.IconEnded + " Call ended by the other participant")
	case reason := <-errs:
		ui.PrintWarning(reason)
	case <-ctx.Done():
		sess.HangUp()
		ui.PrintInfo(ui.IconEnded + " Call ended")
	}
	return nil
}

// mediaFactory builds negotiators with progress reporting attached.
func mediaFactory(cfg *config.Client) session.NegotiatorFactory {
	return func(ctx context.Context) (session.Negotiator, error) {
		neg, err := rtc.New(cfg)
		if err != nil {
			return nil, err
		}
		neg.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
			fmt.Printf("\n%s receiving %s from the other participant\n", ui.IconCall, track.Kind())
		})
		neg.OnConnectionStateChange(func(state pion.PeerConnectionState) {
			if state == pion.PeerConnectionStateFailed {
				ui.PrintWarning("media transport failed")
			}
		})
		return neg, nil
	}
}
