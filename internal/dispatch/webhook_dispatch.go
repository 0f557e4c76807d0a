package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// WebhookDispatcher delivers over the user's websocket when connected and
// otherwise posts the notification to an HTTP endpoint.
type WebhookDispatcher struct {
	Endpoint string
	Client   *http.Client
	WS       *WSRegistry
	// Offline receives what neither channel could take; may be nil.
	Offline Notifier
}

func NewWebhookDispatcher(endpoint string, ws *WSRegistry) *WebhookDispatcher {
	return &WebhookDispatcher{Endpoint: endpoint, Client: &http.Client{Timeout: 3 * time.Second}, WS: ws}
}

func (p *WebhookDispatcher) Notify(ctx context.Context, userID string, n Notification) error {
	if p.WS != nil {
		err := p.WS.Notify(ctx, userID, n)
		if err == nil {
			return nil
		}
		if p.Endpoint == "" {
			return p.offline(ctx, userID, n, err)
		}
	}
	if p.Endpoint == "" {
		return p.offline(ctx, userID, n, ErrNoSession)
	}
	b, err := json.Marshal(map[string]any{"user_id": userID, "notification": n})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s: %w", resp.Status, errWebhookStatus)
	}
	return nil
}

func (p *WebhookDispatcher) offline(ctx context.Context, userID string, n Notification, cause error) error {
	if p.Offline == nil {
		return cause
	}
	return p.Offline.Notify(ctx, userID, n)
}

var errWebhookStatus = errors.New("unexpected webhook status")
