// Package llm provides the chat completion client used by the analysis
// agent. It speaks the OpenAI-compatible chat completions API over plain
// HTTP with retry and transient/fatal error classification, so any
// compatible endpoint (OpenAI, OpenRouter, vLLM, Ollama) works via
// configuration alone.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/reportforge/reportforge/pkg/config"
)

// maxResponseSize limits the response body read to prevent memory
// exhaustion on a misbehaving endpoint.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Message is one chat message.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Request is one completion request.
type Request struct {
	Messages []Message

	// JSONMode asks the endpoint for a JSON object response
	// (response_format json_object). The planner sets this; the model
	// may still emit malformed JSON, which the parser repairs.
	JSONMode bool

	// Temperature overrides the configured default when non-nil.
	Temperature *float64

	// MaxTokens overrides the configured default when > 0.
	MaxTokens int
}

// TokenUsage is the token consumption reported by the endpoint.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the completion result.
type Response struct {
	Content      string
	Model        string
	Usage        TokenUsage
	FinishReason string
}

// Client is the completion interface the agent depends on. Tests swap in
// a scripted implementation.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// HTTPClient is the production Client over an OpenAI-compatible endpoint.
type HTTPClient struct {
	cfg         config.LLMConfig
	apiKey      string
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      *slog.Logger
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(client *HTTPClient) {
		client.httpClient = c
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(client *HTTPClient) {
		client.retryConfig = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(client *HTTPClient) {
		client.logger = logger
	}
}

// NewHTTPClient builds a client from configuration. The API key is read
// from the environment variable named in cfg.APIKeyEnv.
func NewHTTPClient(cfg config.LLMConfig, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		cfg:         cfg,
		apiKey:      os.Getenv(cfg.APIKeyEnv),
		retryConfig: DefaultRetryConfig(),
		httpClient: &http.Client{
			Timeout: 180 * time.Second, // generous; per-call deadlines come from ctx
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends a completion request with retry on transient failures.
func (c *HTTPClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("at least one message is required")
	}

	var lastErr error
	for attempt := 1; attempt <= c.retryConfig.MaxAttempts; attempt++ {
		resp, err := c.doRequest(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if IsFatal(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		}

		if attempt < c.retryConfig.MaxAttempts {
			backoff := c.calculateBackoff(attempt)
			c.logger.Debug("LLM request failed, retrying",
				"attempt", attempt,
				"max_attempts", c.retryConfig.MaxAttempts,
				"backoff", backoff,
				"error", err)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
			case <-time.After(backoff):
			}
		}
	}
	return nil, fmt.Errorf("llm request failed after %d attempts: %w",
		c.retryConfig.MaxAttempts, lastErr)
}

// calculateBackoff computes exponential backoff with +/- 25% jitter so
// concurrent workers don't retry in lockstep.
func (c *HTTPClient) calculateBackoff(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= c.retryConfig.BackoffMultiplier
	}
	backoff := time.Duration(float64(c.retryConfig.BackoffBase) * multiplier)
	if backoff > c.retryConfig.MaxBackoff {
		backoff = c.retryConfig.MaxBackoff
	}
	jitter := float64(backoff) * 0.25 * (rand.Float64()*2 - 1)
	return backoff + time.Duration(jitter)
}

// doRequest executes a single HTTP call to the chat completions endpoint.
func (c *HTTPClient) doRequest(ctx context.Context, req Request) (*Response, error) {
	body, err := c.buildRequestBody(req)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	url := c.endpointURL()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debug("Sending LLM request",
		"provider", c.cfg.Provider,
		"model", c.cfg.Model,
		"messages", len(req.Messages),
		"json_mode", req.JSONMode)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return nil, NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("read response body: %w", err))
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp.StatusCode, respBody)
	}
	return parseResponse(respBody)
}

func (c *HTTPClient) endpointURL() string {
	base := c.cfg.BaseURL
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	base = strings.TrimSuffix(base, "/")
	if strings.HasSuffix(base, "/chat/completions") {
		return base
	}
	return base + "/chat/completions"
}

// chatRequest is the OpenAI-compatible request format.
type chatRequest struct {
	Model          string              `json:"model"`
	Messages       []Message           `json:"messages"`
	Temperature    *float64            `json:"temperature,omitempty"`
	MaxTokens      *int                `json:"max_tokens,omitempty"`
	ResponseFormat *chatResponseFormat `json:"response_format,omitempty"`
}

type chatResponseFormat struct {
	Type string `json:"type"` // "json_object"
}

func (c *HTTPClient) buildRequestBody(req Request) ([]byte, error) {
	out := chatRequest{
		Model:    c.cfg.Model,
		Messages: req.Messages,
	}
	if req.Temperature != nil {
		out.Temperature = req.Temperature
	} else {
		t := c.cfg.Temperature
		out.Temperature = &t
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}
	if maxTokens > 0 {
		out.MaxTokens = &maxTokens
	}
	if req.JSONMode {
		out.ResponseFormat = &chatResponseFormat{Type: "json_object"}
	}
	return json.Marshal(out)
}

// chatResponse is the OpenAI-compatible response format.
type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage TokenUsage `json:"usage"`
}

func parseResponse(body []byte) (*Response, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, NewTransientError(fmt.Errorf("parse completion response: %w", err))
	}
	if len(resp.Choices) == 0 {
		return nil, NewTransientError(fmt.Errorf("no choices in response"))
	}
	return &Response{
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		Usage:        resp.Usage,
		FinishReason: resp.Choices[0].FinishReason,
	}, nil
}

// classifyHTTPError maps an HTTP status to transient or fatal.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}
	err := fmt.Errorf("LLM API error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewTransientError(fmt.Errorf("%w: %w", ErrRateLimit, err))
	case statusCode >= 500:
		return NewTransientError(err)
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden,
		statusCode == http.StatusBadRequest:
		return NewFatalError(err)
	default:
		return NewFatalError(err)
	}
}
