package retrieval

import (
	"context"
	"fmt"
	"time"

	"atelier/pkg/logger"
	"atelier/pkg/models"
	"atelier/pkg/store"
)

// IngestSource chunks and embeds text, then persists the source and its
// chunks. Ingestion is all-or-nothing at the metadata level: the source
// record is written last so a half-embedded upload never becomes visible.
func IngestSource(ctx context.Context, emb Embedder, src models.Source, text string) (models.Source, error) {
	chunks := ChunkText(text)
	if len(chunks) == 0 {
		return src, fmt.Errorf("source %q has no extractable text", src.ID)
	}
	for i, content := range chunks {
		vec, err := emb.Embed(ctx, content)
		if err != nil {
			discardChunks(src.ID)
			return src, fmt.Errorf("embed chunk %d: %w", i, err)
		}
		c := models.Chunk{SourceID: src.ID, Index: i, Content: content, Embedding: vec}
		if err := store.SaveChunk(c); err != nil {
			discardChunks(src.ID)
			return src, fmt.Errorf("save chunk %d: %w", i, err)
		}
	}
	src.ChunkCount = len(chunks)
	if src.CreatedTS == 0 {
		src.CreatedTS = time.Now().UTC().UnixNano()
	}
	if err := store.SaveSource(src); err != nil {
		return src, err
	}
	logger.Info("source_ingested", "source", src.ID, "chunks", len(chunks))
	return src, nil
}

// discardChunks drops whatever a failed ingest already wrote so aborted
// uploads do not leak storage.
func discardChunks(sourceID string) {
	if err := store.DeleteChunks(sourceID); err != nil {
		logger.Warn("ingest_cleanup_failed", "source", sourceID, "err", err)
	}
}
