// Package client talks to a running wppd: REST calls over the HTTP API and
// liveness probes over the session's health socket.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/matheus3301/wppgw/internal/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// APIError is a failed request decoded from the daemon's error body.
type APIError struct {
	StatusCode int
	Kind       api.ErrorKind
	Message    string
}

func (e *APIError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.StatusCode, e.Message)
}

// IsNotConnected reports whether err is the daemon refusing because WhatsApp
// is not connected.
func IsNotConnected(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == api.KindNotConnected
}

// Client wraps the daemon's REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the API at baseURL, e.g. "http://127.0.0.1:3000".
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// LocalURL is the loopback address of a daemon listening on port.
func LocalURL(port int) string {
	return "http://127.0.0.1:" + strconv.Itoa(port)
}

// Status fetches GET /api/status.
func (c *Client) Status(ctx context.Context) (*api.StatusResponse, error) {
	var resp api.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QR fetches GET /api/qr. With raw set the pairing payload is included so it
// can be redrawn in a terminal.
func (c *Client) QR(ctx context.Context, raw bool) (*api.QRResponse, error) {
	path := "/api/qr"
	if raw {
		path += "?raw=1"
	}
	var resp api.QRResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Send posts a text message to phone.
func (c *Client) Send(ctx context.Context, phone, message string) (*api.SendResponse, error) {
	var resp api.SendResponse
	req := api.SendRequest{Phone: phone, Message: message}
	if err := c.do(ctx, http.MethodPost, "/api/send", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Chats lists the most recent chats.
func (c *Client) Chats(ctx context.Context) ([]api.ChatSummary, error) {
	var resp struct {
		Chats []api.ChatSummary `json:"chats"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/chats", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Chats, nil
}

// Messages lists the newest messages of chatID.
func (c *Client) Messages(ctx context.Context, chatID string) ([]api.MessageSummary, error) {
	var resp struct {
		Messages []api.MessageSummary `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/messages/"+url.PathEscape(chatID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Logout posts /api/disconnect.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/disconnect", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var eb api.ErrorResponse
		if json.Unmarshal(data, &eb) == nil && eb.Error != "" {
			apiErr.Kind = eb.Code
			apiErr.Message = eb.Error
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Health is the result of probing a session's health socket.
type Health struct {
	Running   bool
	Connected bool
}

// Probe asks the daemon behind socketPath for its health. Running is false
// when nothing answers on the socket.
func Probe(ctx context.Context, socketPath, service string) Health {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return Health{}
	}
	defer func() { _ = conn.Close() }()

	hc := healthpb.NewHealthClient(conn)
	if _, err := hc.Check(ctx, &healthpb.HealthCheckRequest{}); err != nil {
		return Health{}
	}
	resp, err := hc.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return Health{Running: true}
	}
	return Health{Running: true, Connected: resp.GetStatus() == healthpb.HealthCheckResponse_SERVING}
}
