// Package client provides the HTTP client for the certwatch API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mr-karan/certwatch/internal/cli/config"
	"github.com/mr-karan/certwatch/internal/notifier"
	"github.com/mr-karan/certwatch/pkg/models"
)

// Client is the certwatch API client
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new certwatch API client
func New(cfg *config.Config) (*Client, error) {
	if cfg.Server.URL == "" {
		return nil, fmt.Errorf("server URL is required")
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.Server.URL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Server.Timeout,
		},
	}, nil
}

// RequestOptions describes one API call.
type RequestOptions struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// APIError represents an error response from the API
type APIError struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	ErrorType  string `json:"error_type,omitempty"`
	StatusCode int    `json:"-"`
}

func (e *APIError) Error() string {
	if e.ErrorType != "" {
		return fmt.Sprintf("%s: %s", e.ErrorType, e.Message)
	}
	return e.Message
}

// Do performs an HTTP request to the certwatch API
func (c *Client) Do(ctx context.Context, opts RequestOptions) (*http.Response, error) {
	reqURL, err := url.Parse(c.baseURL + opts.Path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	if opts.Query != nil {
		reqURL.RawQuery = opts.Query.Encode()
	}

	var body io.Reader
	if opts.Body != nil {
		data, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, opts.Method, reqURL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "certwatch-cli/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return resp, nil
}

// DoJSON performs a request and decodes the JSON response
func (c *Client) DoJSON(ctx context.Context, opts RequestOptions, result any) error {
	resp, err := c.Do(ctx, opts)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr APIError
		if err := json.Unmarshal(respBody, &apiErr); err != nil || apiErr.Message == "" {
			return &APIError{
				Status:     "error",
				Message:    strings.TrimSpace(string(respBody)),
				StatusCode: resp.StatusCode,
			}
		}
		apiErr.StatusCode = resp.StatusCode
		return &apiErr
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// --- API Methods ---

type envelope[T any] struct {
	Status string `json:"status"`
	Data   T      `json:"data"`
}

// SendResult is the response of a manual notification run.
type SendResult struct {
	Degraded bool                              `json:"degraded"`
	Report   *notifier.RunReport               `json:"report"`
	History  []*models.NotificationHistoryView `json:"history"`
}

// SendNotifications triggers an admin notification run and waits for it.
func (c *Client) SendNotifications(ctx context.Context) (*SendResult, error) {
	var resp envelope[SendResult]
	err := c.DoJSON(ctx, RequestOptions{
		Method: http.MethodPost,
		Path:   "/api/v1/admin/notifications/send",
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// ListHistory returns the newest history rows. A limit of 0 uses the server default.
func (c *Client) ListHistory(ctx context.Context, limit int) ([]*models.NotificationHistoryView, error) {
	var query url.Values
	if limit > 0 {
		query = url.Values{"limit": []string{strconv.Itoa(limit)}}
	}
	var resp envelope[[]*models.NotificationHistoryView]
	err := c.DoJSON(ctx, RequestOptions{
		Method: http.MethodGet,
		Path:   "/api/v1/notifications/history",
		Query:  query,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// ListUpcoming returns items in the lookahead window.
func (c *Client) ListUpcoming(ctx context.Context) ([]models.UpcomingExpiry, error) {
	var resp envelope[[]models.UpcomingExpiry]
	err := c.DoJSON(ctx, RequestOptions{
		Method: http.MethodGet,
		Path:   "/api/v1/notifications/upcoming",
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Meta describes the server.
type Meta struct {
	Version           string `json:"version"`
	SchedulerEnabled  bool   `json:"scheduler_enabled"`
	SchedulerInterval string `json:"scheduler_interval"`
	LookaheadDays     int    `json:"lookahead_days"`
	Thresholds        []int  `json:"thresholds"`
	SMTPConfigured    bool   `json:"smtp_configured"`
}

// GetMeta returns server metadata.
func (c *Client) GetMeta(ctx context.Context) (*Meta, error) {
	var resp envelope[Meta]
	err := c.DoJSON(ctx, RequestOptions{
		Method: http.MethodGet,
		Path:   "/api/v1/meta",
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp.Data, nil
}
