// Package embedding projects analysis records to text and converts that
// text into fixed-dimension vectors via an external embedding model.
package embedding

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/randalmurphy/codelens/internal/analysis"
	"github.com/randalmurphy/codelens/internal/cache"
)

// DefaultDimension matches the all-MiniLM family of sentence encoders.
const DefaultDimension = 384

// embeddingCacheTTL keeps computed vectors around for a day; the model
// is deterministic, so staleness is not a concern.
const embeddingCacheTTL = 24 * time.Hour

// Cache stores computed vectors keyed by model and content hash.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Client calls an OpenAI-compatible embeddings endpoint. The configured
// dimension is a hard precondition shared with the vector index: vectors
// of any other size are rejected, not truncated.
type Client struct {
	endpoint  string
	model     string
	dimension int
	client    *http.Client
	cache     Cache
	logger    *slog.Logger
}

// NewClient creates an embedding client. dimension falls back to
// DefaultDimension when zero.
func NewClient(endpoint, model string, dimension int, logger *slog.Logger) *Client {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint:  endpoint,
		model:     model,
		dimension: dimension,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

// Dimension returns the configured vector dimension.
func (c *Client) Dimension() int { return c.dimension }

// SetCache enables read-through caching of single-text embeddings.
func (c *Client) SetCache(cc Cache) { c.cache = cc }

type embedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed converts one text blob into a unit-normalized vector. Vectors
// are served from the cache, when one is configured, keyed by the model
// and a hash of the text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var key string
	if c.cache != nil {
		hash := sha256.Sum256([]byte(text))
		key = cache.EmbeddingCacheKey(c.model, fmt.Sprintf("%x", hash[:16]))
		if raw, err := c.cache.Get(ctx, key); err == nil && raw != "" {
			var vector []float32
			if err := json.Unmarshal([]byte(raw), &vector); err == nil && len(vector) == c.dimension {
				return vector, nil
			}
		}
	}

	vectors, err := c.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 || vectors[0] == nil {
		return nil, fmt.Errorf("embedding response missing vector")
	}

	if c.cache != nil {
		if raw, err := json.Marshal(vectors[0]); err == nil {
			if err := c.cache.Set(ctx, key, string(raw), embeddingCacheTTL); err != nil {
				c.logger.Warn("failed to cache embedding", "error", err)
			}
		}
	}
	return vectors[0], nil
}

// EmbedBatch converts texts into vectors, one request per batch.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return c.embed(ctx, texts)
}

func (c *Client) embed(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := embedRequest{Input: texts, Model: c.model}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint+"/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var embedResp embedResponse
	if err := json.Unmarshal(body, &embedResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	// Reassemble by index so output order matches input order.
	vectors := make([][]float32, len(texts))
	for _, d := range embedResp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			continue
		}
		if len(d.Embedding) != c.dimension {
			return nil, fmt.Errorf("embedding dimension %d does not match configured %d",
				len(d.Embedding), c.dimension)
		}
		vectors[d.Index] = normalize(d.Embedding)
	}

	return vectors, nil
}

// EmbedRecords projects and embeds each record, attaching the vector and
// the exact projection text. Records go to the model as one batch; when
// the batch fails, each record is retried alone so one bad projection
// cannot sink the rest. A record that fails to embed is skipped and
// logged; it never carries a partial embedding.
func (c *Client) EmbedRecords(ctx context.Context, records []analysis.Record) []analysis.Record {
	if len(records) == 0 {
		return nil
	}

	texts := make([]string, len(records))
	for i := range records {
		texts[i] = ProjectRecord(&records[i])
	}

	vectors, err := c.EmbedBatch(ctx, texts)
	if err != nil {
		c.logger.Warn("batch embedding failed, retrying records individually", "error", err)
		return c.embedRecordsIndividually(ctx, records, texts)
	}

	embedded := make([]analysis.Record, 0, len(records))
	for i, r := range records {
		if vectors[i] == nil {
			c.logger.Error("embedding response missing vector, skipping record",
				"path", r.FilePath)
			continue
		}
		r.Embedding = vectors[i]
		r.EmbeddingText = texts[i]
		embedded = append(embedded, r)
	}
	return embedded
}

func (c *Client) embedRecordsIndividually(ctx context.Context, records []analysis.Record, texts []string) []analysis.Record {
	embedded := make([]analysis.Record, 0, len(records))

	for i, r := range records {
		vector, err := c.Embed(ctx, texts[i])
		if err != nil {
			c.logger.Error("embedding failed, skipping record",
				"path", r.FilePath, "error", err)
			continue
		}

		r.Embedding = vector
		r.EmbeddingText = texts[i]
		embedded = append(embedded, r)
	}

	return embedded
}

// normalize scales a vector to unit length so inner-product search over
// the index equals cosine similarity.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
