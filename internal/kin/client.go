package kin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrRateLimited is returned when the local per-minute budget is spent.
var ErrRateLimited = errors.New("kin rate limit exceeded")

// Client is the HTTP dialogue service client.
type Client struct {
	baseURL    string
	blueprint  string
	apiKey     string
	httpClient *http.Client

	maxTries     uint
	retryInitial time.Duration

	// Rate limiting: max calls per minute.
	mu        sync.Mutex
	callCount int
	resetAt   time.Time
	maxPerMin int
}

// Option tunes a Client.
type Option func(*Client)

// WithRetry sets how many attempts a call gets and the first backoff delay.
func WithRetry(maxTries uint, initial time.Duration) Option {
	return func(c *Client) {
		c.maxTries = maxTries
		c.retryInitial = initial
	}
}

// WithRateLimit caps calls per minute.
func WithRateLimit(perMinute int) Option {
	return func(c *Client) { c.maxPerMin = perMinute }
}

// NewClient creates a client for the blueprint at baseURL.
// Returns nil if apiKey is empty (AI dialogue disabled).
func NewClient(baseURL, blueprint, apiKey string, timeout time.Duration, opts ...Option) *Client {
	if apiKey == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		blueprint:    blueprint,
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: timeout},
		maxTries:     3,
		retryInitial: 500 * time.Millisecond,
		maxPerMin:    20,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled returns true if the client has a valid API key.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

type messageRequest struct {
	Content   string         `json:"content"`
	AddSystem map[string]any `json:"addSystem,omitempty"`
}

type messageResponse struct {
	Content  string `json:"content"`
	Response string `json:"response"`
}

func (c *Client) allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if now.After(c.resetAt) {
		c.callCount = 0
		c.resetAt = now.Add(time.Minute)
	}
	if c.callCount >= c.maxPerMin {
		return false
	}
	c.callCount++
	return true
}

// Send posts a message to the persona's channel. 5xx and 429 answers are
// retried with exponential backoff; other failures are returned at once.
func (c *Client) Send(ctx context.Context, kin, channel, prompt string, addSystem map[string]any) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("kin client not configured")
	}
	if !c.allow() {
		return "", fmt.Errorf("%w (%d calls/min)", ErrRateLimited, c.maxPerMin)
	}

	body, err := json.Marshal(messageRequest{Content: prompt, AddSystem: addSystem})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v2/blueprints/%s/kins/%s/channels/%s/messages",
		c.baseURL, url.PathEscape(c.blueprint), url.PathEscape(kin), url.PathEscape(channel))

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.retryInitial

	attempt := 0
	reply, err := backoff.Retry(ctx, func() (string, error) {
		attempt++
		return c.post(ctx, endpoint, body)
	},
		backoff.WithBackOff(exp),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			slog.Warn("kin call retry", "kin", kin, "attempt", attempt, "wait", wait, "error", err)
		}),
	)
	if err != nil {
		return "", fmt.Errorf("kin %s/%s: %w", kin, channel, err)
	}
	return reply, nil
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("API call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			return "", backoff.RetryAfter(secs)
		}
		return "", fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return "", backoff.Permanent(fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody)))
	}

	var mr messageResponse
	if err := json.Unmarshal(respBody, &mr); err != nil {
		// Some deployments answer with plain text.
		return string(respBody), nil
	}
	if mr.Content != "" {
		return mr.Content, nil
	}
	return mr.Response, nil
}
