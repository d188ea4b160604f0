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

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Sentinel errors for transient provider failures. Callers treat both as
// retryable: the run state is left untouched and the request can be retried.
var (
	ErrUnavailable = errors.New("llm provider unavailable")
	ErrRateLimited = errors.New("llm provider rate limited")
)

// Message is one chat turn in an OpenAI-compatible request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config configures the OpenRouter client.
type Config struct {
	APIKey         string
	Model          string
	BaseURL        string
	RequestTimeout time.Duration
	RequestsPerMin int
}

// Client talks to an OpenAI-compatible chat completions endpoint
// (OpenRouter by default). Requests are rate limited client-side so a
// multi-iteration run never trips the provider's quota.
type Client struct {
	config  Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *logrus.Logger
}

// NewClient creates a Client from config.
func NewClient(config Config, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	rpm := config.RequestsPerMin
	if rpm <= 0 {
		rpm = 30
	}
	return &Client{
		config:  config,
		http:    &http.Client{Timeout: config.RequestTimeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm),
		logger:  logger,
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.config.Model }

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends a system + user prompt pair and returns the assistant text.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.CompleteMessages(ctx, []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	})
}

// CompleteMessages sends a full message history and returns the assistant text.
func (c *Client) CompleteMessages(ctx context.Context, messages []Message) (string, error) {
	if c.config.APIKey == "" {
		return "", fmt.Errorf("%w: no API key configured", ErrUnavailable)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	reqBody, err := json.Marshal(chatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Stream:      false,
		Temperature: 0,
		MaxTokens:   4096,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST",
		c.config.BaseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	httpReq.Header.Set("HTTP-Referer", "https://reconagent.local")
	httpReq.Header.Set("X-Title", "ReconAgent")

	c.logger.WithFields(logrus.Fields{
		"model":    c.config.Model,
		"messages": len(messages),
	}).Debug("Sending chat completion request")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.logger.WithField("status", resp.StatusCode).Warn("Provider rate limit hit")
		return "", fmt.Errorf("%w: %s", ErrRateLimited, truncateBody(body))
	case resp.StatusCode >= 500:
		c.logger.WithField("status", resp.StatusCode).Warn("Provider server error")
		return "", fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, truncateBody(body))
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("llm request failed with status %d: %s", resp.StatusCode, truncateBody(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse API response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("llm request failed: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrUnavailable)
	}

	content := parsed.Choices[0].Message.Content
	c.logger.WithFields(logrus.Fields{
		"chars":    len(content),
		"duration": time.Since(start).Round(time.Millisecond).String(),
	}).Debug("Received chat completion")

	return content, nil
}

func truncateBody(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
