package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/loykin/rtmon/internal/task"
)

// Client talks to the rtmon daemon's HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8090/api",
		Timeout: 10 * time.Second,
	}
}

// New creates a new rtmon API client
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	var h HealthResponse
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, &h); err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	return h.OK
}

// Register asks the daemon to monitor p.PID with budget p.C and period p.T.
func (c *Client) Register(ctx context.Context, p Params) error {
	c.logger.Debug("Registering task", "pid", p.PID, "c", p.C, "t", p.T)
	return c.do(ctx, http.MethodPost, "/tasks", p, nil)
}

// Cancel stops monitoring pid.
func (c *Client) Cancel(ctx context.Context, pid int32) error {
	c.logger.Debug("Cancelling task", "pid", pid)
	return c.do(ctx, http.MethodDelete, "/tasks/"+strconv.Itoa(int(pid)), nil, nil)
}

// List returns every task the daemon still monitors.
func (c *Client) List(ctx context.Context) ([]TaskInfo, error) {
	var out []TaskInfo
	if err := c.do(ctx, http.MethodGet, "/tasks", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Status returns a single task.
func (c *Client) Status(ctx context.Context, pid int32) (TaskInfo, error) {
	var out TaskInfo
	err := c.do(ctx, http.MethodGet, "/tasks/"+strconv.Itoa(int(pid)), nil, &out)
	return out, err
}

// do performs a request and decodes either out or the error body.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", url)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return c.handleErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// handleErrorResponse turns an error body back into a task error.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil || errorResp.Error == "" {
		c.logger.Error("Failed to decode error response", "status", resp.StatusCode)
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	c.logger.Debug("API request failed", "error", errorResp.Error, "kind", errorResp.Kind, "status", resp.StatusCode)
	return task.FromKind(errorResp.Kind, errorResp.Error)
}
