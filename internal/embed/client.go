// Package embed calls an OpenAI-compatible embeddings endpoint. One client
// is shared process-wide; a weighted semaphore bounds concurrent
// invocations so a query storm cannot exhaust the model server.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"mcpress/internal/config"
	"mcpress/internal/observability"
)

// Embedder is the surface the indexer and retriever depend on. Tests swap
// in fakes.
type Embedder interface {
	// EmbedBatch returns one embedding per input, in input order.
	EmbedBatch(ctx context.Context, inputs []string) ([][]float32, error)
}

type embedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Client is an HTTP Embedder with bounded concurrency and retry.
type Client struct {
	cfg  config.EmbeddingConfig
	http *http.Client
	gate *semaphore.Weighted
}

func NewClient(cfg config.EmbeddingConfig) *Client {
	maxConc := cfg.MaxConcurrency
	if maxConc <= 0 {
		maxConc = 4
	}
	return &Client{
		cfg:  cfg,
		http: http.DefaultClient,
		gate: semaphore.NewWeighted(maxConc),
	}
}

// EmbedBatch posts one embeddings request under the concurrency gate,
// retrying transient failures with bounded exponential backoff.
func (c *Client) EmbedBatch(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs")
	}
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.gate.Release(1)

	op := func() ([][]float32, error) {
		out, err := c.embedOnce(ctx, inputs)
		if err != nil {
			log.Debug().Err(err).Int("inputs", len(inputs)).Msg("embedding attempt failed")
		}
		return out, err
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(4),
		backoff.WithMaxElapsedTime(2*time.Minute))
}

func (c *Client) embedOnce(ctx context.Context, inputs []string) ([][]float32, error) {
	start := time.Now()
	reqBody, _ := json.Marshal(embedReq{Model: c.cfg.Model, Input: inputs})
	timeout := time.Duration(c.cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := c.cfg.BaseURL + c.cfg.Path
	req, err := http.NewRequestWithContext(cctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("embeddings error: %s: %s", resp.Status, string(b))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	var er embedResp
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(er.Data) != len(inputs) {
		return nil, backoff.Permanent(fmt.Errorf("unexpected embedding count: got %d, want %d", len(er.Data), len(inputs)))
	}
	out := make([][]float32, len(er.Data))
	for i := range er.Data {
		out[i] = er.Data[i].Embedding
	}
	observability.EmbedBatchSeconds.Observe(time.Since(start).Seconds())
	return out, nil
}

// EmbedAll embeds inputs in batches of batchSize, preserving order.
func EmbedAll(ctx context.Context, e Embedder, inputs []string, batchSize int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = 64
	}
	out := make([][]float32, 0, len(inputs))
	for start := 0; start < len(inputs); start += batchSize {
		end := start + batchSize
		if end > len(inputs) {
			end = len(inputs)
		}
		batch, err := e.EmbedBatch(ctx, inputs[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

// CheckReachability verifies the endpoint answers a tiny request at startup.
func (c *Client) CheckReachability(ctx context.Context) error {
	if _, err := c.EmbedBatch(ctx, []string{"ping"}); err != nil {
		return fmt.Errorf("embedding endpoint reachability check failed: %w", err)
	}
	return nil
}
