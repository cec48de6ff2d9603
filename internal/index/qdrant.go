package index

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/randalmurphy/codelens/internal/analysis"
)

// QdrantMirror replicates indexed records into a Qdrant collection.
// The flat index remains the source of truth; semantic search falls
// back to the mirror only when the local index is empty, and lexical
// and complexity queries never touch it.
type QdrantMirror struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantMirror connects to a Qdrant server.
func NewQdrantMirror(host, collection string) (*QdrantMirror, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}

	return &QdrantMirror{client: client, collection: collection}, nil
}

// Close closes the Qdrant connection.
func (m *QdrantMirror) Close() error {
	return m.client.Close()
}

// EnsureCollection creates the mirror collection if it doesn't exist.
func (m *QdrantMirror) EnsureCollection(ctx context.Context, vectorSize int) error {
	exists, err := m.client.CollectionExists(ctx, m.collection)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	return m.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: m.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(vectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

// UpsertRecords mirrors embedded records, keyed by file path.
func (m *QdrantMirror) UpsertRecords(ctx context.Context, records []analysis.Record) error {
	points := make([]*qdrant.PointStruct, 0, len(records))

	for _, r := range records {
		if !r.Embedded() {
			continue
		}

		payload := map[string]interface{}{
			"file_path":          r.FilePath,
			"language":           r.Language,
			"extraction":         string(r.Extraction),
			"total_lines":        r.Metrics.TotalLines,
			"average_complexity": r.Metrics.AverageComplexity,
			"functions":          len(r.Functions),
			"classes":            len(r.Classes),
			"imports":            len(r.Imports),
			"embedding_text":     r.EmbeddingText,
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(recordPointID(r.FilePath)),
			Vectors: qdrant.NewVectors(r.Embedding...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	if len(points) == 0 {
		return nil
	}

	_, err := m.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: m.collection,
		Points:         points,
	})
	return err
}

// MirrorHit is a semantic search result from the mirror.
type MirrorHit struct {
	FilePath string
	Language string
	Score    float32
}

// Search runs vector similarity search against the mirror.
func (m *QdrantMirror) Search(ctx context.Context, vector []float32, limit int) ([]MirrorHit, error) {
	results, err := m.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: m.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}

	hits := make([]MirrorHit, len(results))
	for i, r := range results {
		hits[i] = MirrorHit{Score: r.Score}
		if v, ok := r.Payload["file_path"]; ok {
			hits[i].FilePath = v.GetStringValue()
		}
		if v, ok := r.Payload["language"]; ok {
			hits[i].Language = v.GetStringValue()
		}
	}

	return hits, nil
}

// recordPointID derives a stable UUID-shaped point ID from a file path.
func recordPointID(filePath string) string {
	h := sha256.Sum256([]byte(filePath))
	return fmt.Sprintf("%x-%x-%x-%x-%x", h[0:4], h[4:6], h[6:8], h[8:10], h[10:16])
}
