// Package inference holds the HTTP round-trip to one remote model endpoint.
// One Client per endpoint so each backend gets its own bounded connection
// pool. Retry and fallback policy live in the dispatcher, not here.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lyralab/quantumd/internal/config"
	"github.com/lyralab/quantumd/internal/fault"
)

// maxConnsPerEndpoint caps the pool so a slow backend cannot accumulate
// sockets.
const maxConnsPerEndpoint = 8

// Client is the HTTP client for one remote inference endpoint. Stateless
// apart from the connection pool; safe for concurrent use.
type Client struct {
	endpoint config.EndpointConfig
	stage    string // particle, wave, embedding: used in error values
	httpc    *http.Client
}

// New creates a client for an endpoint. stage names the endpoint in errors
// and logs.
func New(stage string, endpoint config.EndpointConfig) *Client {
	transport := &http.Transport{
		MaxConnsPerHost:     maxConnsPerEndpoint,
		MaxIdleConnsPerHost: maxConnsPerEndpoint,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		endpoint: endpoint,
		stage:    stage,
		httpc:    &http.Client{Transport: transport},
	}
}

// GenParams is the optional sampling config subset a caller may pass.
// Zero values are omitted from the wire request.
type GenParams struct {
	MaxTokens     int
	Temperature   float64
	TopP          float64
	TopK          int
	RepeatPenalty float64
}

// Result is a successful completion plus observed latency.
type Result struct {
	Text    string
	Latency time.Duration
}

// EmbedResult is an embedding vector plus observed latency.
type EmbedResult struct {
	Vector  []float64
	Latency time.Duration
}

// chat-completions wire format (generative endpoint)
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model         string        `json:"model"`
	Messages      []chatMessage `json:"messages"`
	Temperature   float64       `json:"temperature"`
	TopP          float64       `json:"top_p"`
	MaxTokens     int           `json:"max_tokens"`
	TopK          int           `json:"top_k,omitempty"`
	RepeatPenalty float64       `json:"repeat_penalty,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ollama-style generate wire format (contextual endpoint)
type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// embeddings wire format
type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Chat calls the generative endpoint with a system and user message.
// Failure kinds: Timeout, Unavailable, Protocol, Cancelled.
func (c *Client) Chat(ctx context.Context, deadline time.Time, system, user string, p GenParams) (*Result, error) {
	body := chatRequest{
		Model: c.endpoint.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:   p.Temperature,
		TopP:          p.TopP,
		MaxTokens:     p.MaxTokens,
		TopK:          p.TopK,
		RepeatPenalty: p.RepeatPenalty,
	}
	data, latency, err := c.post(ctx, deadline, body)
	if err != nil {
		return nil, err
	}
	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fault.Wrap(fault.Protocol, c.stage, fmt.Errorf("decode response: %w", err))
	}
	if len(parsed.Choices) == 0 {
		return nil, fault.New(fault.Protocol, c.stage, "no choices in response")
	}
	return &Result{Text: parsed.Choices[0].Message.Content, Latency: latency}, nil
}

// Generate calls the contextual endpoint with a raw prompt.
func (c *Client) Generate(ctx context.Context, deadline time.Time, prompt string, p GenParams) (*Result, error) {
	body := generateRequest{
		Model:  c.endpoint.Model,
		Prompt: prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: p.Temperature,
			TopP:        p.TopP,
		},
	}
	data, latency, err := c.post(ctx, deadline, body)
	if err != nil {
		return nil, err
	}
	var parsed generateResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fault.Wrap(fault.Protocol, c.stage, fmt.Errorf("decode response: %w", err))
	}
	return &Result{Text: parsed.Response, Latency: latency}, nil
}

// Embed calls the embedding endpoint for a single input.
func (c *Client) Embed(ctx context.Context, deadline time.Time, text string) (*EmbedResult, error) {
	body := embedRequest{Model: c.endpoint.Model, Input: text}
	data, latency, err := c.post(ctx, deadline, body)
	if err != nil {
		return nil, err
	}
	var parsed embedResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fault.Wrap(fault.Protocol, c.stage, fmt.Errorf("decode response: %w", err))
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, fault.New(fault.Protocol, c.stage, "empty embedding returned")
	}
	return &EmbedResult{Vector: parsed.Data[0].Embedding, Latency: latency}, nil
}

// post runs one JSON round trip against the endpoint, honouring the
// absolute deadline. Deadlines already in the past fail immediately.
func (c *Client) post(ctx context.Context, deadline time.Time, body any) ([]byte, time.Duration, error) {
	if !time.Now().Before(deadline) {
		return nil, 0, fault.New(fault.Timeout, c.stage, "deadline already passed")
	}
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fault.Wrap(fault.Protocol, c.stage, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fault.Wrap(fault.Unavailable, c.stage, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.endpoint.Auth != "" {
		req.Header.Set("Authorization", "Bearer "+c.endpoint.Auth)
	}

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, 0, fault.Wrap(c.classify(ctx, err), c.stage, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	latency := time.Since(start)
	if err != nil {
		return nil, 0, fault.Wrap(c.classify(ctx, err), c.stage, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, 0, fault.New(fault.Protocol, c.stage, "status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	return data, latency, nil
}

// classify maps a transport error onto the failure kinds callers branch on.
func (c *Client) classify(ctx context.Context, err error) fault.Kind {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		return fault.Timeout
	case errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled):
		return fault.Cancelled
	default:
		return fault.Unavailable
	}
}
