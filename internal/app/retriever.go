package app

import (
	"context"
	"fmt"
	"math"
	"sort"

	"chatforge/internal/model"
	"chatforge/internal/repository"
)

const defaultTopK = 3

// Embedder turns text into embedding vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ScoredChunk is one retrieval hit, ordered by descending similarity.
type ScoredChunk struct {
	Chunk model.DocumentChunk
	Score float32
}

// Retriever performs similarity search over the chunk index. Every search is
// scoped server-side to one configuration's namespace; callers cannot widen
// the filter.
type Retriever struct {
	chunks   *repository.ChunkRepository
	embedder Embedder
}

func NewRetriever(chunks *repository.ChunkRepository, embedder Embedder) *Retriever {
	return &Retriever{chunks: chunks, embedder: embedder}
}

// Search returns the top-k chunks most similar to query within configID's
// namespace. An empty result is valid: the configuration simply has no
// matching documents.
func (r *Retriever) Search(ctx context.Context, query string, k int, configID string) ([]ScoredChunk, error) {
	if k <= 0 {
		k = defaultTopK
	}

	candidates, err := r.chunks.ListByConfigID(configID)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query failed: %w", err)
	}

	scored := make([]ScoredChunk, len(candidates))
	for i := range candidates {
		scored[i] = ScoredChunk{
			Chunk: candidates[i],
			Score: cosineSimilarity(queryVec, candidates[i].EmbeddingVector()),
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA <= 0 || normB <= 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
