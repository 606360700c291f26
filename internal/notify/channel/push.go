package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"focusd/internal/notify"
	"focusd/internal/storage"
)

// HTTPPush posts envelopes as JSON to the subscription endpoint. A 404 or
// 410 from the endpoint means the subscription is permanently dead and is
// reported as notify.ErrEndpointGone so the pipeline removes it.
type HTTPPush struct {
	client *http.Client
}

type pushBody struct {
	ID    string      `json:"id"`
	Type  string      `json:"type"`
	Title string      `json:"title"`
	Body  string      `json:"body"`
	Data  interface{} `json:"data,omitempty"`
}

func NewHTTPPush(timeout time.Duration) *HTTPPush {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPPush{client: &http.Client{Timeout: timeout}}
}

func (p *HTTPPush) Send(ctx context.Context, sub storage.PushSubscription, env notify.Envelope) error {
	title, body := Format(env)
	payload, err := json.Marshal(pushBody{
		ID:    env.ID,
		Type:  string(env.Type),
		Title: title,
		Body:  body,
		Data:  env.Payload,
	})
	if err != nil {
		return fmt.Errorf("encode push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("push request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("%w: endpoint returned %d", notify.ErrEndpointGone, resp.StatusCode)
	default:
		return fmt.Errorf("push endpoint returned %d", resp.StatusCode)
	}
}
