package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"bruno-bot/internal/domain"
)

type transcribeRequest struct {
	Link string `json:"link"`
}

type transcribeResponse struct {
	Text     string `json:"text"`
	FileName string `json:"fileName"`
}

type grammarRequest struct {
	Input string `json:"input"`
}

// grammarResponse accepts integer or fractional scores.
type grammarResponse struct {
	Input string   `json:"input"`
	Label string   `json:"label"`
	Score *float64 `json:"score"`
}

type synthesizeRequest struct {
	Text      string `json:"text"`
	MessageID int    `json:"messageId"`
}

type synthesizeResponse struct {
	FilePath string `json:"filePath"`
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("inference: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client talks to the transcription, grammar and speech-synthesis services.
// Each endpoint is optional; calling an unconfigured one returns an error.
type Client struct {
	transcribeURL string
	grammarURL    string
	synthesizeURL string
	httpClient    *http.Client
	policy        domain.GrammarPolicy
}

type Option func(*Client)

func WithTranscribeURL(url string) Option {
	return func(c *Client) {
		c.transcribeURL = strings.TrimSpace(url)
	}
}

func WithGrammarURL(url string) Option {
	return func(c *Client) {
		c.grammarURL = strings.TrimSpace(url)
	}
}

func WithSynthesizeURL(url string) Option {
	return func(c *Client) {
		c.synthesizeURL = strings.TrimSpace(url)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithGrammarPolicy relabels grammar scores locally instead of trusting the
// label returned by the service.
func WithGrammarPolicy(p domain.GrammarPolicy) Option {
	return func(c *Client) {
		c.policy = p
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{httpClient: &http.Client{Timeout: 60 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transcribe sends an audio link to the transcription service.
func (c *Client) Transcribe(ctx context.Context, link string) (domain.Transcription, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return domain.Transcription{}, errors.New("inference: transcribe: audio link is empty")
	}
	var out transcribeResponse
	if err := c.postJSON(ctx, c.transcribeURL, transcribeRequest{Link: link}, &out); err != nil {
		return domain.Transcription{}, fmt.Errorf("inference: transcribe: %w", err)
	}
	return domain.Transcription{Text: strings.TrimSpace(out.Text), FileName: out.FileName}, nil
}

// ScoreGrammar asks the grammar service for a score between 0 and 100.
func (c *Client) ScoreGrammar(ctx context.Context, text string) (domain.GrammarEvaluation, error) {
	var out grammarResponse
	if err := c.postJSON(ctx, c.grammarURL, grammarRequest{Input: text}, &out); err != nil {
		return domain.GrammarEvaluation{}, fmt.Errorf("inference: score grammar: %w", err)
	}
	if out.Score == nil {
		return domain.GrammarEvaluation{}, errors.New("inference: score grammar: response has no score")
	}
	score := int(math.Round(*out.Score))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	eval := domain.GrammarEvaluation{Score: score}
	switch {
	case c.policy.Enabled():
		eval.Label = c.policy.Label(score)
	case strings.EqualFold(out.Label, string(domain.GrammarBad)):
		eval.Label = domain.GrammarBad
	default:
		eval.Label = domain.GrammarAcceptable
	}
	return eval, nil
}

// Synthesize converts text to speech and returns the audio file location.
func (c *Client) Synthesize(ctx context.Context, text string, messageID int) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("inference: synthesize: text is empty")
	}
	var out synthesizeResponse
	if err := c.postJSON(ctx, c.synthesizeURL, synthesizeRequest{Text: text, MessageID: messageID}, &out); err != nil {
		return "", fmt.Errorf("inference: synthesize: %w", err)
	}
	if out.FilePath == "" {
		return "", errors.New("inference: synthesize: response has no file path")
	}
	return out.FilePath, nil
}

func (c *Client) postJSON(ctx context.Context, url string, in, out any) error {
	if url == "" {
		return errors.New("endpoint not configured")
	}
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := c.httpClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	res, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &HTTPStatusError{StatusCode: res.StatusCode, URL: url, Body: string(buf)}
	}
	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
