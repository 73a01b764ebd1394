package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Lanchu14/project-realtime/internal/history"
)

// FetchHistory performs the one-time history retrieval a client does when
// joining a room. It races harmlessly with live broadcasts; the ledger
// suppresses any overlap.
func FetchHistory(ctx context.Context, client *http.Client, baseURL, bookingID string) ([]history.Message, error) {
	if client == nil {
		client = http.DefaultClient
	}

	url := fmt.Sprintf("%s/api/chats/%s", baseURL, bookingID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build history request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch history: unexpected status %s", resp.Status)
	}

	var messages []history.Message
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}

	return messages, nil
}
