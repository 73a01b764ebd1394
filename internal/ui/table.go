package ui

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/Lanchu14/project-realtime/internal/history"
)

// isoMillis matches the timestamps stored with each chat message.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// HistoryTable renders a booking's chat transcript.
type HistoryTable struct {
	bookingID string
	messages  []history.Message
}

// NewHistoryTable creates a transcript table for one booking.
func NewHistoryTable(bookingID string, messages []history.Message) *HistoryTable {
	return &HistoryTable{bookingID: bookingID, messages: messages}
}

// Render writes the table to stdout.
func (t *HistoryTable) Render() {
	if len(t.messages) == 0 {
		fmt.Println(MutedStyle.Render("No messages for booking " + t.bookingID))
		return
	}

	w := table.NewWriter()
	w.SetOutputMirror(os.Stdout)
	w.SetTitle("Booking %s", t.bookingID)
	w.AppendHeader(table.Row{"#", "Time", "From", "Message"})

	for i, msg := range t.messages {
		w.AppendRow(table.Row{i + 1, formatTimestamp(msg.Time), msg.User, msg.Text})
	}

	w.SetColumnConfigs([]table.ColumnConfig{
		{Name: "#", Align: text.AlignRight},
		{Name: "Message", WidthMax: 60},
	})
	w.SetStyle(table.StyleLight)
	w.Render()
}

// formatTimestamp localizes a stored ISO timestamp; malformed values render
// as stored.
func formatTimestamp(stamp string) string {
	ts, err := time.Parse(isoMillis, stamp)
	if err != nil {
		return stamp
	}
	return ts.Local().Format("Jan 02 15:04")
}
