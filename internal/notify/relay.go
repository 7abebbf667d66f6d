package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Relay posts messages to an HTTP mail relay. The relay owns the
// actual delivery transport; this client just hands over the rendered
// message and destination.
type Relay struct {
	url    string
	from   string
	client *http.Client
}

func NewRelay(url, from string, timeout time.Duration) *Relay {
	return &Relay{url: url, from: from, client: &http.Client{Timeout: timeout}}
}

type relayMessage struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

func (r *Relay) Send(ctx context.Context, addr, subject, htmlBody string) error {
	payload, err := json.Marshal(relayMessage{
		From:    r.from,
		To:      addr,
		Subject: subject,
		HTML:    htmlBody,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify relay returned HTTP %d: %s", resp.StatusCode, string(snippet))
	}
	return nil
}
