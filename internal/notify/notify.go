package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Gateway accepts fire-and-forget notification requests. Delivery failure
// never rolls back a committed transition; the engine records it as a
// warning instead.
type Gateway interface {
	Send(ctx context.Context, eventType, recipientID string, payload map[string]any) error
}

// LogGateway writes notifications to the process log. It is the default
// gateway for local and test use.
type LogGateway struct{}

func (LogGateway) Send(_ context.Context, eventType, recipientID string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("{}")
	}
	log.Printf("notify: %s -> %s %s", eventType, recipientID, string(data))
	return nil
}

// WebhookGateway POSTs each notification to a fixed URL.
type WebhookGateway struct {
	URL     string
	Secret  string
	Client  *http.Client
	Timeout time.Duration
}

type webhookNotification struct {
	EventType   string         `json:"event_type"`
	RecipientID string         `json:"recipient_id"`
	Payload     map[string]any `json:"payload"`
	TS          string         `json:"ts"`
}

func (g WebhookGateway) Send(ctx context.Context, eventType, recipientID string, payload map[string]any) error {
	if strings.TrimSpace(g.URL) == "" {
		return fmt.Errorf("webhook url not configured")
	}
	body := webhookNotification{
		EventType:   eventType,
		RecipientID: recipientID,
		Payload:     payload,
		TS:          time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	client := g.Client
	if client == nil {
		timeout := g.Timeout
		if timeout == 0 {
			timeout = 5 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Certline-Notification", eventType)
	if strings.TrimSpace(g.Secret) != "" {
		req.Header.Set("X-Certline-Secret", g.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}
