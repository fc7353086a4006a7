// Package ai provides the language-model collaborator: an OpenAI-compatible
// HTTP client and the GenerateFunc contract the pipeline is built against.
// The orchestrator never constructs network clients itself; it receives a
// GenerateFunc and treats every response as untrusted input.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"time"
)

// GenerateFunc is the single contract the pipeline depends on: system prompt,
// user prompt and model id in; raw completion text out.
type GenerateFunc func(ctx context.Context, system, user, model string) (string, error)

// Client talks to an OpenAI-compatible chat completions endpoint with
// bounded retries on transient failures.
type Client struct {
	httpClient       *http.Client
	apiKey           string
	baseURL          string
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// Options configures the client. Zero values fall back to defaults.
type Options struct {
	BaseURL          string
	HTTPTimeout      time.Duration
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
}

const defaultBaseURL = "https://api.openai.com/v1"

// NewClient builds a client for the given API key and options.
func NewClient(apiKey string, opt Options) *Client {
	if opt.BaseURL == "" {
		opt.BaseURL = defaultBaseURL
	}
	if opt.HTTPTimeout <= 0 {
		opt.HTTPTimeout = 60 * time.Second
	}
	if opt.RetryMaxAttempts <= 0 {
		opt.RetryMaxAttempts = 3
	}
	if opt.RetryBaseDelay <= 0 {
		opt.RetryBaseDelay = 500 * time.Millisecond
	}
	if opt.RetryMaxDelay <= 0 {
		opt.RetryMaxDelay = 4 * time.Second
	}
	return &Client{
		httpClient:       &http.Client{Timeout: opt.HTTPTimeout},
		apiKey:           apiKey,
		baseURL:          opt.BaseURL,
		retryMaxAttempts: opt.RetryMaxAttempts,
		retryBaseDelay:   opt.RetryBaseDelay,
		retryMaxDelay:    opt.RetryMaxDelay,
	}
}

// GenerateText issues one chat completion and returns the assistant content.
// Retries are limited to transport-level failures (timeouts, 429, 5xx); a
// completed call is never silently re-issued.
func (c *Client) GenerateText(ctx context.Context, system, user, model string) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("api key is missing")
	}
	if model == "" {
		return "", errors.New("model cannot be empty")
	}
	msgs := make([]message, 0, 2)
	if system != "" {
		msgs = append(msgs, message{Role: "system", Content: system})
	}
	msgs = append(msgs, message{Role: "user", Content: user})
	payload, err := json.Marshal(chatRequest{Model: model, Messages: msgs})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	backoff := c.retryBaseDelay
	var lastErr error
	for attempt := 1; attempt <= c.retryMaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return "", fmt.Errorf("build request: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if isRetryableNetErr(err) && attempt < c.retryMaxAttempts {
				lastErr = err
				time.Sleep(c.sleepFor(backoff))
				backoff *= 2
				continue
			}
			return "", fmt.Errorf("http request: %w", err)
		}

		content, retryable, err := c.decodeResponse(resp)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if retryable && attempt < c.retryMaxAttempts {
			time.Sleep(c.sleepFor(backoff))
			backoff *= 2
			continue
		}
		break
	}
	return "", lastErr
}

// Func adapts the client to the GenerateFunc contract.
func (c *Client) Func() GenerateFunc {
	return c.GenerateText
}

func (c *Client) decodeResponse(resp *http.Response) (content string, retryable bool, err error) {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var raw map[string]any
		_ = json.Unmarshal(body, &raw)
		if v, ok := raw["error"].(map[string]any); ok {
			if msg, ok := v["message"].(string); ok {
				apiErr.Message = msg
			}
			if code, ok := v["code"].(string); ok {
				apiErr.Code = code
			}
		}
		retryable = resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		if resp.StatusCode == http.StatusTooManyRequests {
			if secs, err := parseRetryAfterSeconds(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
				return "", true, &RateLimitError{APIError: apiErr, RetryAfter: time.Duration(secs) * time.Second}
			}
		}
		return "", retryable, classifyAPIError(apiErr)
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", false, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", false, ErrEmptyCompletion
	}
	return out.Choices[0].Message.Content, false, nil
}

func (c *Client) sleepFor(backoff time.Duration) time.Duration {
	d := withJitter(backoff)
	if c.retryMaxDelay > 0 && d > c.retryMaxDelay {
		d = c.retryMaxDelay
	}
	return d
}

func isRetryableNetErr(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, io.EOF)
}

func parseRetryAfterSeconds(v string) (int, error) {
	if v == "" {
		return 0, errors.New("empty Retry-After")
	}
	if s, err := strconv.Atoi(v); err == nil {
		return s, nil
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return int(d.Seconds()), nil
	}
	return 0, fmt.Errorf("invalid Retry-After: %q", v)
}

// withJitter applies +/- 20% jitter to a backoff duration.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 500 * time.Millisecond
	}
	f := 0.8 + rand.Float64()*0.4
	out := time.Duration(float64(d) * f)
	if out <= 0 {
		return d
	}
	return out
}
