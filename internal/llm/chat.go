package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/LegalAILegal/analiz-klientiv-sub000/pkg/logger"
)

// ChatClient talks to an OpenAI-compatible chat completions API
type ChatClient struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	model        string
	maxRetries   int
	retryBase    time.Duration
	requestDelay time.Duration
	log          *logger.Logger
}

// Option configures a ChatClient
type Option func(*ChatClient)

// WithHTTPClient overrides the default HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *ChatClient) {
		c.httpClient = client
	}
}

// WithBaseURL overrides the API endpoint, used by tests
func WithBaseURL(baseURL string) Option {
	return func(c *ChatClient) {
		c.baseURL = baseURL
	}
}

// WithRetry overrides the rate-limit retry policy
func WithRetry(maxRetries int, base time.Duration) Option {
	return func(c *ChatClient) {
		c.maxRetries = maxRetries
		c.retryBase = base
	}
}

// WithRequestDelay sets the fixed pause before every request, keeping
// the client under provider throughput limits
func WithRequestDelay(d time.Duration) Option {
	return func(c *ChatClient) {
		c.requestDelay = d
	}
}

func NewChatClient(baseURL, apiKey, model string, log *logger.Logger, opts ...Option) *ChatClient {
	c := &ChatClient{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		maxRetries: 3,
		retryBase:  60 * time.Second,
		log:        log,
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

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Analyze sends the clause to the model and parses the reply.
// Rate-limited requests back off starting at the base delay, doubling
// per attempt, up to the retry cap.
func (c *ChatClient) Analyze(ctx context.Context, clause string) (*Response, error) {
	var lastErr error
	delay := c.retryBase

	if c.requestDelay > 0 {
		select {
		case <-time.After(c.requestDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.log.Warn("model rate limited, backing off",
				"attempt", attempt,
				"delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
		}

		content, err := c.complete(ctx, clause)
		if err != nil {
			if isRateLimited(err) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return ParseResponse(content)
	}
	return nil, fmt.Errorf("model still rate limited after %d retries: %w", c.maxRetries, lastErr)
}

type rateLimitError struct {
	msg string
}

func (e *rateLimitError) Error() string {
	return e.msg
}

func isRateLimited(err error) bool {
	if _, ok := err.(*rateLimitError); ok {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "capacity exceeded")
}

func (c *ChatClient) complete(ctx context.Context, clause string) (string, error) {
	endpoint, err := url.JoinPath(c.baseURL, "v1", "chat", "completions")
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(clause)},
		},
		Temperature: 0.1,
		MaxTokens:   1000,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("model request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read model response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &rateLimitError{msg: "model rate limited (429)"}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("model returned status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode model response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("model error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
