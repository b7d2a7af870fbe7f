package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

var (
	// ErrAuthentication marks credential failures; the caller surfaces these
	// to the user so a new key can be supplied.
	ErrAuthentication = errors.New("completion service authentication failed")
	// ErrTransport covers every other request failure.
	ErrTransport = errors.New("completion service request failed")
)

// CompletionRequest is what the orchestrator hands to the completion service.
// The service returns free-form text with no format guarantee.
type CompletionRequest struct {
	Model       string
	Prompt      string
	Temperature float64
}

// Completer is the single suspension point of the game loop.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

type Client struct {
	baseURL string
	apiKey  string
	http    *fasthttp.Client

	defaultTimeout time.Duration
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         strings.TrimSpace(apiKey),
		http:           &fasthttp.Client{ReadTimeout: 30 * time.Second, WriteTimeout: 30 * time.Second, MaxConnsPerHost: 16},
		defaultTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete performs exactly one request. The game loop never retries the
// completion call; failures resolve through the fallback selector instead.
func (c *Client) Complete(ctx context.Context, creq CompletionRequest) (string, error) {
	body := chatCompletionRequest{
		Model:       creq.Model,
		Messages:    []chatMessage{{Role: "user", Content: creq.Prompt}},
		Temperature: creq.Temperature,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(c.baseURL + "/v1/chat/completions")
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.SetBody(payload)

	if err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		return "", classifyStatus(status, resp.Body())
	}

	var out chatCompletionResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrTransport, err)
	}
	if out.Error != nil {
		return "", classifyMessage(out.Error.Message, out.Error.Type)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choice list", ErrTransport)
	}
	return out.Choices[0].Message.Content, nil
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func classifyStatus(status int, body []byte) error {
	msg := truncate(string(body), 512)
	if status == fasthttp.StatusUnauthorized || status == fasthttp.StatusForbidden {
		return fmt.Errorf("%w: status=%d body=%s", ErrAuthentication, status, msg)
	}
	if looksLikeAuthFailure(msg) {
		return fmt.Errorf("%w: status=%d body=%s", ErrAuthentication, status, msg)
	}
	return fmt.Errorf("%w: status=%d body=%s", ErrTransport, status, msg)
}

func classifyMessage(message, errType string) error {
	if looksLikeAuthFailure(message) || looksLikeAuthFailure(errType) {
		return fmt.Errorf("%w: %s", ErrAuthentication, message)
	}
	return fmt.Errorf("%w: %s", ErrTransport, message)
}

func looksLikeAuthFailure(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "invalid api key") ||
		strings.Contains(lower, "incorrect api key") ||
		strings.Contains(lower, "invalid_api_key") ||
		strings.Contains(lower, "authentication")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
