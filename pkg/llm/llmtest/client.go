// Package llmtest provides a scripted LLM client for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/reportforge/reportforge/pkg/llm"
)

// Client is a thread-safe scripted llm.Client. It returns the configured
// responses in order and records every request it receives.
type Client struct {
	mu        sync.Mutex
	Responses []*llm.Response // returned in sequence
	Err       error           // takes precedence over Responses
	requests  []llm.Request
	index     int
}

// Complete implements llm.Client.
func (c *Client) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests = append(c.requests, req)

	if c.Err != nil {
		return nil, c.Err
	}
	if c.index < len(c.Responses) {
		resp := c.Responses[c.index]
		c.index++
		return resp, nil
	}
	return &llm.Response{Content: "", Model: "test-model"}, nil
}

// Requests returns a copy of all requests seen so far.
func (c *Client) Requests() []llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]llm.Request, len(c.requests))
	copy(out, c.requests)
	return out
}

// CallCount returns how many times Complete was called.
func (c *Client) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}
