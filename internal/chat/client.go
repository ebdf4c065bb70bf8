package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DefaultBaseURL is the BigModel open platform API root.
const DefaultBaseURL = "https://open.bigmodel.cn/api/paas/v4/"

// DefaultTimeout bounds a single completion request.
const DefaultTimeout = 60 * time.Second

// ErrStreamingUnsupported is returned for requests with Stream set.
var ErrStreamingUnsupported = errors.New("streaming responses are not supported")

// ErrNoContent is returned when a response carries no assistant message.
var ErrNoContent = errors.New("response has no message content")

// ErrMissingAPIKey is returned by Complete when no API key was configured.
var ErrMissingAPIKey = errors.New("API key is not set")

// Completer sends a chat-completion request.
//
//go:generate go tool mockgen -destination chatmock/completer.go -package chatmock . Completer
type Completer interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client posts chat-completion requests. It never retries.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client, filling unset Config fields with defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		apiKey:     cfg.APIKey,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}
}

// Response is the raw provider response.
type Response struct {
	StatusCode int
	Body       []byte
}

// Text returns the body as a string, unchanged.
func (r *Response) Text() string {
	return string(r.Body)
}

// Content returns choices[0].message.content.
func (r *Response) Content() (string, error) {
	if !gjson.ValidBytes(r.Body) {
		return "", fmt.Errorf("response is not valid JSON")
	}
	content := gjson.GetBytes(r.Body, "choices.0.message.content")
	if !content.Exists() || content.String() == "" {
		return "", ErrNoContent
	}
	return content.String(), nil
}

// Usage returns the total token count reported by the provider, or 0.
func (r *Response) Usage() int64 {
	return gjson.GetBytes(r.Body, "usage.total_tokens").Int()
}

// maxErrorRunes caps the provider message quoted in StatusError.
const maxErrorRunes = 200

// StatusError is returned for non-2xx responses. Body holds the provider's
// error payload.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	msg := gjson.GetBytes(e.Body, "error.message").String()
	if msg == "" {
		msg = strings.TrimSpace(string(e.Body))
	}
	if r := []rune(msg); len(r) > maxErrorRunes {
		msg = string(r[:maxErrorRunes]) + "..."
	}
	return fmt.Sprintf("chat completion failed with status %d: %s", e.StatusCode, msg)
}

// Complete posts req and returns the response. For non-2xx statuses the
// response is returned together with a *StatusError so callers can still
// show the body.
func (c *Client) Complete(ctx context.Context, req *Request) (*Response, error) {
	if req.Stream {
		return nil, ErrStreamingUnsupported
	}
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	payload, err := encodeRequest(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	c.logger.Debug("chat completion request", "endpoint", c.endpoint, "model", req.Model, "messages", len(req.Messages), "tools", len(req.Tools))

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	resp := &Response{StatusCode: httpResp.StatusCode, Body: body}
	c.logger.Debug("chat completion response", "status", resp.StatusCode, "bytes", len(body), "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, &StatusError{StatusCode: resp.StatusCode, Body: body}
	}
	return resp, nil
}

// encodeRequest marshals req and applies its Extra parameters in key order.
func encodeRequest(req *Request) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	keys := make([]string, 0, len(req.Extra))
	for k := range req.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		raw := req.Extra[k]
		if !json.Valid(raw) {
			return nil, fmt.Errorf("extra parameter %q is not valid JSON", k)
		}
		payload, err = sjson.SetRawBytes(payload, k, raw)
		if err != nil {
			return nil, fmt.Errorf("setting extra parameter %q: %w", k, err)
		}
	}
	return payload, nil
}
