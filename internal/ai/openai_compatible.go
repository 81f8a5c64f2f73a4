package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config holds the endpoint settings shared by completion and embedding calls.
type Config struct {
	BaseURL        string
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	Timeout        time.Duration
	MaxRetries     int
	// RequestsPerSecond <= 0 disables client-side rate limiting.
	RequestsPerSecond float64
	Burst             int
}

type CompletionOptions struct {
	MaxTokens   int
	Temperature float64
}

type OpenAICompatibleClient struct {
	httpClient *http.Client
	cfg        Config
	limiter    *rate.Limiter
	backoff    func(attempt int) time.Duration
}

type Option func(*OpenAICompatibleClient)

func WithHTTPClient(client *http.Client) Option {
	return func(c *OpenAICompatibleClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithBackoff(fn func(attempt int) time.Duration) Option {
	return func(c *OpenAICompatibleClient) {
		if fn != nil {
			c.backoff = fn
		}
	}
}

func NewOpenAICompatibleClient(cfg Config, opts ...Option) *OpenAICompatibleClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	c := &OpenAICompatibleClient{
		httpClient: &http.Client{Timeout: timeout},
		cfg:        cfg,
		backoff:    retryDelay,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *OpenAICompatibleClient) Complete(ctx context.Context, messages []ChatMessage, opts CompletionOptions) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("llm request has no messages")
	}
	reqBody := map[string]interface{}{
		"model":    c.cfg.ChatModel,
		"messages": messages,
		"stream":   false,
	}
	if opts.MaxTokens > 0 {
		reqBody["max_tokens"] = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		reqBody["temperature"] = opts.Temperature
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.postJSON(ctx, "complete", "/chat/completions", reqBody, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty llm choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// postJSON sends body to path and decodes the response into out. Rate limiting applies to
// every attempt; retryable failures are retried up to MaxRetries times with backoff.
func (c *OpenAICompatibleClient) postJSON(ctx context.Context, op, path string, body, out interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request failed: %w", op, err)
	}
	url := strings.TrimRight(c.cfg.BaseURL, "/") + path

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return &RequestError{Op: op, Err: err}
			}
		}

		var retryAfter time.Duration
		retryAfter, lastErr = c.send(ctx, op, url, bodyBytes, out)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) || attempt == c.cfg.MaxRetries || ctx.Err() != nil {
			return lastErr
		}

		delay := c.backoff(attempt)
		if retryAfter > 0 {
			delay = retryAfter
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &RequestError{Op: op, Err: ctx.Err()}
		case <-timer.C:
		}
	}
	return lastErr
}

func (c *OpenAICompatibleClient) send(ctx context.Context, op, url string, bodyBytes []byte, out interface{}) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return 0, fmt.Errorf("build %s request failed: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &RequestError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, &RequestError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode >= 300 {
		return parseRetryAfter(resp.Header.Get("Retry-After")), &RequestError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(raw), 512),
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return 0, fmt.Errorf("parse %s json failed: %w", op, err)
	}
	return 0, nil
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
