package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Client generates a completion for a prompt. Implementations must respect
// context cancellation and deadlines.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Dialect selects the wire format of the completion endpoint.
type Dialect string

const (
	// DialectAnthropic uses the Anthropic messages API shape.
	DialectAnthropic Dialect = "anthropic"

	// DialectOpenAI uses the OpenAI chat completions API shape.
	DialectOpenAI Dialect = "openai"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxRetries  = 3
	defaultBaseBackoff = 500 * time.Millisecond
	defaultRateLimit   = 5 // requests per second
	defaultBurst       = 10
	defaultMaxTokens   = 2048

	// Low temperature: expansion and rerank outputs must parse as strict
	// JSON, creative sampling only hurts.
	defaultTemperature = 0.2
)

// Config holds LLM client configuration.
type Config struct {
	Dialect Dialect
	Model   string
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// ErrNoAPIKey is returned by NewHTTPClient when the API key is missing.
var ErrNoAPIKey = errors.New("llm: api key required")

// retryableError marks transient failures worth retrying.
type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// HTTPClient is a rate-limited, retrying HTTP client for Anthropic- and
// OpenAI-compatible completion endpoints.
type HTTPClient struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

// NewHTTPClient creates a client for the configured dialect.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	switch cfg.Dialect {
	case DialectAnthropic, DialectOpenAI:
	default:
		return nil, fmt.Errorf("llm: unknown dialect %q", cfg.Dialect)
	}
	if cfg.BaseURL == "" {
		if cfg.Dialect == DialectAnthropic {
			cfg.BaseURL = "https://api.anthropic.com"
		} else {
			cfg.BaseURL = "https://api.openai.com"
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &HTTPClient{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxRetries: defaultMaxRetries,
	}, nil
}

// Complete sends the prompt and returns the generated text.
func (c *HTTPClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("llm: rate limiter: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		text, err := c.doRequest(ctx, prompt)
		if err == nil {
			return text, nil
		}

		lastErr = err
		if !isRetryable(err) {
			return "", err
		}
	}

	return "", fmt.Errorf("llm: max retries exceeded: %w", lastErr)
}

func (c *HTTPClient) doRequest(ctx context.Context, prompt string) (string, error) {
	path, body, err := c.encodeRequest(prompt)
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.Dialect == DialectAnthropic {
		httpReq.Header.Set("X-API-Key", c.config.APIKey)
		httpReq.Header.Set("Anthropic-Version", "2023-06-01")
	} else {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &retryableError{err: fmt.Errorf("llm: request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llm: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &retryableError{err: fmt.Errorf("llm: rate limited (429)")}
	case resp.StatusCode >= 500:
		return "", &retryableError{err: fmt.Errorf("llm: server error (%d)", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("llm: api error (%d): %s", resp.StatusCode, string(respBody))
	}

	return c.decodeResponse(respBody)
}

func (c *HTTPClient) encodeRequest(prompt string) (string, []byte, error) {
	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	if c.config.Dialect == DialectAnthropic {
		body, err := json.Marshal(struct {
			Model       string    `json:"model"`
			MaxTokens   int       `json:"max_tokens"`
			Temperature float64   `json:"temperature"`
			Messages    []message `json:"messages"`
		}{
			Model:       c.config.Model,
			MaxTokens:   defaultMaxTokens,
			Temperature: defaultTemperature,
			Messages:    []message{{Role: "user", Content: prompt}},
		})
		return "/v1/messages", body, err
	}

	body, err := json.Marshal(struct {
		Model       string    `json:"model"`
		MaxTokens   int       `json:"max_tokens"`
		Temperature float64   `json:"temperature"`
		Messages    []message `json:"messages"`
	}{
		Model:       c.config.Model,
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
		Messages:    []message{{Role: "user", Content: prompt}},
	})
	return "/v1/chat/completions", body, err
}

func (c *HTTPClient) decodeResponse(body []byte) (string, error) {
	if c.config.Dialect == DialectAnthropic {
		var resp struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("llm: parse response: %w", err)
		}
		if len(resp.Content) == 0 {
			return "", fmt.Errorf("llm: empty response")
		}
		return resp.Content[0].Text, nil
	}

	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("llm: parse response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

var _ Client = (*HTTPClient)(nil)
