package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Lanchu14/project-realtime/internal/history"
	"github.com/Lanchu14/project-realtime/internal/relay"
)

// Configure the websocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024, // 64 KB
	WriteBufferSize: 64 * 1024, // 64 KB

	// Participants are authenticated upstream; the session layer accepts
	// any origin and trusts the display name the platform passes along.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewMux wires all HTTP routes: the websocket endpoint, chat history
// retrieval and the health check.
func NewMux(hub *relay.Hub, store history.Store) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ws", ServeWs(hub, store))
	mux.HandleFunc("GET /api/chats/{bookingId}", historyHandler(store))
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Session server is healthy."))
}

// ServeWs returns an http.HandlerFunc that upgrades the connection and
// starts the client's pumps. The display name comes from the upstream
// session layer via the user query parameter.
func ServeWs(hub *relay.Hub, store history.Store) http.HandlerFunc {
	log := slog.With("component", "server")

	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("user")
		if name == "" {
			name = "User"
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("failed to upgrade connection", "error", err)
			return
		}

		client := &relay.Client{
			Hub:   hub,
			Conn:  conn,
			Store: store,
			ID:    uuid.NewString(),
			Name:  name,
			Send:  make(chan *relay.Message, 256),
		}

		client.Hub.Register <- client

		// Start the client's read and write pumps in separate goroutines.
		go client.WritePump()
		go client.ReadPump()
	}
}

// historyHandler serves the one-time history fetch a client performs when
// joining a room.
func historyHandler(store history.Store) http.HandlerFunc {
	log := slog.With("component", "server")

	return func(w http.ResponseWriter, r *http.Request) {
		bookingID := r.PathValue("bookingId")
		if bookingID == "" {
			http.Error(w, "missing booking id", http.StatusBadRequest)
			return
		}

		messages, err := store.ReadAll(r.Context(), bookingID)
		if err != nil {
			log.Error("history read failed", "booking", bookingID, "error", err)
			http.Error(w, "failed to read history", http.StatusInternalServerError)
			return
		}
		if messages == nil {
			messages = []history.Message{}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(messages); err != nil {
			log.Warn("history write failed", "booking", bookingID, "error", err)
		}
	}
}
