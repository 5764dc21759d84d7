// Package api uploads strike batches to the remote collection endpoint.
package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/raupulus/rpi-pico-sensor-lightning-cjmcu-3935/internal/delivery"
)

// StatusError is returned when the endpoint answers with anything other
// than 201 Created.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Client posts batches as JSON.
type Client struct {
	url      string
	token    string
	deviceID string
	http     *http.Client
}

// NewClient creates a client for baseURL+path. A nil httpClient uses
// http.DefaultClient; timeouts come from the caller's context.
func NewClient(baseURL, path, token, deviceID string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		url:      strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/"),
		token:    token,
		deviceID: deviceID,
		http:     httpClient,
	}
}

// URL returns the endpoint the client posts to.
func (c *Client) URL() string {
	return c.url
}

// Upload posts the batch. Only 201 Created counts as accepted.
func (c *Client) Upload(ctx context.Context, batch delivery.Batch) error {
	body, err := batch.Marshal()
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Device-Id", c.deviceID)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
