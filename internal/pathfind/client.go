package pathfind

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/talgya/serenissima/internal/world"
)

// Client calls the transport service's path endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type pathRequest struct {
	StartPoint world.Position `json:"startPoint"`
	EndPoint   world.Position `json:"endPoint"`
	StartDate  string         `json:"startDate"`
}

type pathResponse struct {
	Success bool              `json:"success"`
	Error   string            `json:"error,omitempty"`
	Path    []world.PathPoint `json:"path"`
	Timing  struct {
		StartDate       string  `json:"startDate"`
		EndDate         string  `json:"endDate"`
		DurationSeconds float64 `json:"durationSeconds"`
	} `json:"timing"`
	Transporter string `json:"transporter"`
}

// FindPath asks the service for a route starting at when.
func (c *Client) FindPath(ctx context.Context, start, end world.Position, when time.Time) (*Route, error) {
	body, err := json.Marshal(pathRequest{
		StartPoint: start,
		EndPoint:   end,
		StartDate:  when.Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/transport", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transport error %d: %s", resp.StatusCode, string(respBody))
	}

	var pr pathResponse
	if err := json.Unmarshal(respBody, &pr); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if !pr.Success || len(pr.Path) == 0 {
		slog.Debug("no route", "from", start, "to", end, "reason", pr.Error)
		return nil, fmt.Errorf("%s -> %s: %w", start, end, ErrNoRoute)
	}

	route := &Route{Path: pr.Path, Transporter: pr.Transporter, Start: when}
	if t, err := time.Parse(time.RFC3339, pr.Timing.StartDate); err == nil {
		route.Start = t
	}
	route.End = route.Start.Add(time.Duration(pr.Timing.DurationSeconds * float64(time.Second)))
	if t, err := time.Parse(time.RFC3339, pr.Timing.EndDate); err == nil && pr.Timing.DurationSeconds == 0 {
		route.End = t
	}
	return route, nil
}
