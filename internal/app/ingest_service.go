package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"chatforge/internal/model"
	"chatforge/internal/pkg/docextract"
	"chatforge/internal/repository"
)

const (
	defaultChunkSize    = 512
	defaultChunkOverlap = 64
	embeddingBatchSize  = 10 // several embedding APIs cap batch size
)

// UploadFile is one uploaded document handed to the ingest collaborator.
type UploadFile struct {
	Name   string
	Reader io.Reader
}

// IngestService chunks, embeds, and persists uploaded documents into a
// configuration's retrieval namespace.
type IngestService struct {
	chunks   *repository.ChunkRepository
	embedder Embedder
	log      zerolog.Logger
}

func NewIngestService(chunks *repository.ChunkRepository, embedder Embedder, log zerolog.Logger) *IngestService {
	return &IngestService{
		chunks:   chunks,
		embedder: embedder,
		log:      log.With().Str("component", "ingest").Logger(),
	}
}

// Ingest processes the files into chunk rows tagged with configID and
// collection, returning the filenames actually ingested. Unsupported file
// types are skipped with a warning, matching upload handling elsewhere.
func (s *IngestService) Ingest(ctx context.Context, files []UploadFile, collection, configID string) ([]string, error) {
	var ingested []string
	for _, file := range files {
		if !docextract.Supported(file.Name) {
			s.log.Warn().Str("file", file.Name).Msg("file type not allowed, skipping")
			continue
		}
		text, err := docextract.Extract(file.Name, file.Reader)
		if err != nil {
			if errors.Is(err, docextract.ErrUnsupportedType) {
				continue
			}
			return ingested, fmt.Errorf("extract %s failed: %w", file.Name, err)
		}
		if strings.TrimSpace(text) == "" {
			s.log.Warn().Str("file", file.Name).Msg("no extractable text, skipping")
			continue
		}
		if err := s.ingestText(ctx, file.Name, text, collection, configID); err != nil {
			return ingested, err
		}
		ingested = append(ingested, file.Name)
	}
	return ingested, nil
}

func (s *IngestService) ingestText(ctx context.Context, source, text, collection, configID string) error {
	pieces := chunkText(text, defaultChunkSize, defaultChunkOverlap)
	if len(pieces) == 0 {
		return nil
	}

	var embeddings [][]float32
	for i := 0; i < len(pieces); i += embeddingBatchSize {
		end := i + embeddingBatchSize
		if end > len(pieces) {
			end = len(pieces)
		}
		batch, err := s.embedder.EmbedBatch(ctx, pieces[i:end])
		if err != nil {
			return fmt.Errorf("embed chunks of %s failed: %w", source, err)
		}
		embeddings = append(embeddings, batch...)
	}
	if len(embeddings) != len(pieces) {
		return fmt.Errorf("embedding count mismatch for %s", source)
	}

	rows := make([]model.DocumentChunk, len(pieces))
	for i := range pieces {
		rows[i] = model.DocumentChunk{
			ConfigID:   configID,
			Collection: collection,
			Source:     source,
			Content:    pieces[i],
		}
		rows[i].SetEmbedding(embeddings[i])
	}
	if err := s.chunks.CreateBatch(rows); err != nil {
		return err
	}

	s.log.Info().Str("file", source).Str("config_id", configID).Int("chunks", len(rows)).Msg("document ingested")
	return nil
}

// chunkText splits text into overlapping chunks by rune count. Windows that
// land on pure whitespace (padding, blank regions) are dropped so every chunk
// is embeddable.
func chunkText(text string, size, overlap int) []string {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap >= size {
		overlap = size / 2
	}
	var chunks []string
	runes := []rune(text)
	for i := 0; i < len(runes); {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		if piece := string(runes[i:end]); strings.TrimSpace(piece) != "" {
			chunks = append(chunks, piece)
		}
		i += size - overlap
		if i >= len(runes) {
			break
		}
	}
	return chunks
}
