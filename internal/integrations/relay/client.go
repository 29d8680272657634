// Package relay posts fire-and-forget payloads to the feedback service and
// the operator notify function.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bruno-bot/internal/domain"
)

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("relay: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// defaultTimeout covers a full feedback round, which waits for every
// correction.
const defaultTimeout = 5 * time.Minute

type Client struct {
	feedbackURL string
	notifyURL   string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient returns a Client posting to feedbackURL and notifyURL. Either may
// be empty, in which case the matching call fails.
func NewClient(feedbackURL, notifyURL string, opts ...Option) *Client {
	c := &Client{
		feedbackURL: strings.TrimSpace(feedbackURL),
		notifyURL:   strings.TrimSpace(notifyURL),
		httpClient:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestFeedback submits messages for correction.
func (c *Client) RequestFeedback(ctx context.Context, req domain.FeedbackRequest) error {
	if len(req.Messages) == 0 {
		return errors.New("relay: request feedback: no messages")
	}
	if err := c.post(ctx, c.feedbackURL, req); err != nil {
		return fmt.Errorf("relay: request feedback: %w", err)
	}
	return nil
}

// Notify alerts the operator.
func (c *Client) Notify(ctx context.Context, alert domain.Alert) error {
	if err := c.post(ctx, c.notifyURL, alert); err != nil {
		return fmt.Errorf("relay: notify: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, url string, payload any) error {
	if url == "" {
		return errors.New("endpoint not configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &HTTPStatusError{StatusCode: res.StatusCode, URL: url, Body: string(buf)}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return nil
}
