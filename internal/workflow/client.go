// Package workflow forwards campaign payloads to the external workflow
// engine's webhook endpoint and relays the outcome unchanged.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	webhookURL string
	hc         *http.Client
}

func New(webhookURL string, timeout time.Duration) *Client {
	return &Client{
		webhookURL: strings.TrimSpace(webhookURL),
		hc: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

// Trigger posts the payload to the workflow webhook and returns the upstream
// status and body as-is. The response is capped so a misbehaving engine
// cannot balloon memory here.
func (c *Client) Trigger(ctx context.Context, payload any) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(data))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("workflow: trigger: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("workflow: read response: %w", err)
	}
	return resp.StatusCode, body, nil
}
