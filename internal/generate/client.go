package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mbleigh/genthetic/internal/pipeline"
)

// ClientConfig configures the HTTP generation client.
type ClientConfig struct {
	Endpoint string        // Generation endpoint URL
	Model    string        // Model identifier sent with every request
	APIKey   string        // Optional bearer token
	Timeout  time.Duration // Per-request timeout (default 60s)
}

// Client calls a remote generation endpoint over HTTP JSON, protected
// by a circuit breaker per endpoint. Retry on transient failure is not
// handled here; that is the scheduler's job at batch granularity.
type Client struct {
	cfg      ClientConfig
	http     *http.Client
	breakers *BreakerRegistry
}

// NewClient creates a generation client. A nil registry gets a private one.
func NewClient(cfg ClientConfig, breakers *BreakerRegistry) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if breakers == nil {
		breakers = NewBreakerRegistry()
	}
	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		breakers: breakers,
	}
}

// wire request/response shapes for the generation endpoint.
type generateRequest struct {
	Model        string         `json:"model,omitempty"`
	Count        int            `json:"count"`
	Schema       any            `json:"schema"`
	Instructions string         `json:"instructions,omitempty"`
	Hints        []any          `json:"hints,omitempty"`
	Prior        pipeline.Batch `json:"prior,omitempty"`
}

type generateResponse struct {
	Records pipeline.Batch `json:"records"`
	Error   string         `json:"error,omitempty"`
}

// Generate implements Service.
func (c *Client) Generate(ctx context.Context, req Request) (pipeline.Batch, error) {
	cb := c.breakers.Get(c.cfg.Endpoint)

	result, err := cb.Execute(func() (interface{}, error) {
		return c.generate(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return result.(pipeline.Batch), nil
}

func (c *Client) generate(ctx context.Context, req Request) (pipeline.Batch, error) {
	payload := generateRequest{
		Model:        c.cfg.Model,
		Count:        req.Count,
		Schema:       req.Schema,
		Instructions: req.Instructions,
		Hints:        req.Hints,
		Prior:        req.Prior,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling generation service: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading generation response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generation service returned %s: %s", resp.Status, truncate(data, 200))
	}

	var decoded generateResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("decoding generation response: %w", err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("generation service error: %s", decoded.Error)
	}
	if len(decoded.Records) != req.Count {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrCountMismatch, len(decoded.Records), req.Count)
	}

	return decoded.Records, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
