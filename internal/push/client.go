// Package push is a thin client for the push-notification gateway: a JSON
// HTTP API with a single-recipient send and a multi-token fan-out send.
// Delivery guarantees beyond the gateway's response are out of scope; a
// failed send is logged by callers and never retried here.
package push

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

// Dispatcher is the interface consumed by the matcher notifier and the chat
// deduplicator. Implementations must be safe for concurrent use.
type Dispatcher interface {
	// Send pushes one notification to a single device token and returns
	// the gateway-assigned message id.
	Send(ctx context.Context, token, title, body string, data map[string]string) (string, error)

	// SendMulticast fans one notification out to a set of device tokens
	// and returns per-token success/failure counts.
	SendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) (MulticastResult, error)
}

// MulticastResult reports a fan-out send.
type MulticastResult struct {
	SuccessCount int `json:"success_count"`
	FailureCount int `json:"failure_count"`
}

// ErrGateway indicates the gateway rejected a send.
var ErrGateway = errors.New("push: gateway error")

// Client talks to the push gateway over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a gateway client. timeout bounds each send; on timeout
// the send is treated as failed for that notification only.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type sendRequest struct {
	Token string            `json:"token"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
}

type multicastRequest struct {
	Tokens []string          `json:"tokens"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

// Send implements Dispatcher.
func (c *Client) Send(ctx context.Context, token, title, body string, data map[string]string) (string, error) {
	var resp sendResponse
	if err := c.post(ctx, "/v1/send", sendRequest{Token: token, Title: title, Body: body, Data: data}, &resp); err != nil {
		return "", err
	}
	return resp.MessageID, nil
}

// SendMulticast implements Dispatcher.
func (c *Client) SendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) (MulticastResult, error) {
	var resp MulticastResult
	if err := c.post(ctx, "/v1/send-multicast", multicastRequest{Tokens: tokens, Title: title, Body: body, Data: data}, &resp); err != nil {
		return MulticastResult{}, err
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrGateway, resp.StatusCode)
	}
	return json.Unmarshal(raw, out)
}
