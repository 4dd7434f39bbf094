package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// defaultWebhookTimeout bounds a relay call when the client has no timeout of its own.
const defaultWebhookTimeout = 10 * time.Second

// ErrEmptyRelayURL is returned by NewWebhookSink without a relay URL.
var ErrEmptyRelayURL = errors.New("mail relay url is empty")

// WebhookSink sends email messages through an HTTP mail relay.
type WebhookSink struct {
	url    string
	client *http.Client
}

// webhookPayload is the JSON body accepted by the relay.
type webhookPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewWebhookSink creates a sink posting to url. A nil client gets a default with a timeout.
func NewWebhookSink(url string, client *http.Client) (*WebhookSink, error) {
	if url == "" {
		return nil, ErrEmptyRelayURL
	}

	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}

	return &WebhookSink{url: url, client: client}, nil
}

// Send implements Sink.
func (s *WebhookSink) Send(ctx context.Context, msg Message) error {
	if msg.Recipient == "" {
		return errors.New("email notification without recipient")
	}

	body, err := json.Marshal(webhookPayload{
		To:      msg.Recipient,
		Subject: msg.Title,
		Body:    msg.Body,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal mail payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build mail relay request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call mail relay: %w", err)
	}

	defer resp.Body.Close()

	//nolint:errcheck // Draining only lets the connection be reused.
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("mail relay answered %s", resp.Status)
	}

	return nil
}
