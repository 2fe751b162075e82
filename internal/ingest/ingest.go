// Package ingest drives a document from raw text to indexed chunks:
// chunking, batch embedding, durable persistence, and the atomic in-memory
// index swap.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radarkb/retrieval-mcp/internal/chunker"
	"github.com/radarkb/retrieval-mcp/internal/collection"
	"github.com/radarkb/retrieval-mcp/internal/storage"
	"github.com/radarkb/retrieval-mcp/pkg/types"
)

// DefaultBatchSize is how many chunks go to the embedder per call. Failures
// are tolerated at batch granularity: one failed call drops its batch's
// chunks, not the document.
const DefaultBatchSize = 32

// Embedder is the slice of the embedding engine the pipeline needs.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Request describes one document ingestion.
type Request struct {
	TenantID string
	Content  string
	Source   string
	Category string
	Metadata map[string]string
}

// Result reports what ingestion indexed.
type Result struct {
	DocumentID   string
	ChunkCount   int
	FailedChunks int
	Version      uint64
}

// Pipeline wires the chunker, embedder, store and collections together.
type Pipeline struct {
	collections *collection.Manager
	chunker     *chunker.Chunker
	embedder    Embedder
	store       storage.Store
	batchSize   int
	log         *zap.Logger
}

// New returns an ingestion pipeline. A batchSize of zero or less selects
// DefaultBatchSize.
func New(collections *collection.Manager, ck *chunker.Chunker, emb Embedder,
	store storage.Store, batchSize int, log *zap.Logger) *Pipeline {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		collections: collections,
		chunker:     ck,
		embedder:    emb,
		store:       store,
		batchSize:   batchSize,
		log:         log,
	}
}

// Ingest chunks, embeds and indexes one document, walking it from
// StatusPending through StatusChunking and StatusEmbedding to StatusIndexed,
// or to StatusFailed when nothing embeds. Re-ingesting the same
// (tenant, source) replaces the previous version; identical content yields
// identical chunk IDs, so the replacement is a no-op at the index level
// apart from the version bump.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.TenantID) == "" {
		return nil, fmt.Errorf("missing tenant_id: %w", types.ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Source) == "" {
		return nil, fmt.Errorf("missing source: %w", types.ErrInvalidRequest)
	}

	col, err := p.collections.GetOrCreate(ctx, req.TenantID, p.embedder.Dimension())
	if err != nil {
		return nil, err
	}

	docID := uuid.NewString()
	if existing, ok := col.DocumentBySource(req.Source); ok {
		docID = existing.ID
	}

	now := time.Now().UTC()
	doc := &types.Document{
		ID:          docID,
		TenantID:    req.TenantID,
		Source:      req.Source,
		ContentHash: contentHash(req.Content),
		Status:      types.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	doc.Status = types.StatusChunking
	pieces, err := p.chunker.Chunk(req.Content)
	if err != nil {
		return nil, err
	}

	chunks := make([]*types.Chunk, len(pieces))
	texts := make([]string, len(pieces))
	for i, piece := range pieces {
		chunks[i] = &types.Chunk{
			ID:         chunkID(req.TenantID, req.Source, piece.Sequence, piece.Text),
			DocumentID: docID,
			TenantID:   req.TenantID,
			Text:       piece.Text,
			Sequence:   piece.Sequence,
			Category:   req.Category,
			Metadata:   req.Metadata,
		}
		texts[i] = piece.Text
	}

	doc.Status = types.StatusEmbedding
	vectors, failed := p.embedBatches(ctx, texts, chunks)
	if len(vectors) == 0 {
		// Nothing embeddable; record the failure on an existing document
		// rather than leaving it silently stale.
		doc.Status = types.StatusFailed
		if _, ok := col.DocumentBySource(req.Source); ok {
			if serr := p.store.UpdateDocumentStatus(ctx, docID, string(doc.Status)); serr != nil {
				p.log.Error("mark document failed", zap.String("doc", docID), zap.Error(serr))
			}
		}
		return nil, fmt.Errorf("all %d chunks failed: %w", len(pieces), types.ErrEmbedding)
	}

	indexed := make([]*types.Chunk, 0, len(chunks))
	for _, ch := range chunks {
		if _, ok := vectors[ch.ID]; ok {
			indexed = append(indexed, ch)
		}
	}

	doc.Status = types.StatusIndexed
	doc.ChunkCount = len(indexed)

	err = col.ApplyDocument(doc, indexed, vectors, func(newVersion uint64, removeChunkIDs []string) error {
		return p.store.SaveDocument(ctx, documentRecord(doc), chunkRecords(indexed),
			embeddingRecords(req.TenantID, indexed, vectors), removeChunkIDs, newVersion)
	})
	if err != nil {
		return nil, fmt.Errorf("index document %s: %w", docID, err)
	}

	p.log.Info("document ingested",
		zap.String("tenant", req.TenantID),
		zap.String("source", req.Source),
		zap.String("doc", docID),
		zap.Int("chunks", len(indexed)),
		zap.Int("failed_chunks", failed),
		zap.Uint64("version", col.Version()))

	return &Result{
		DocumentID:   docID,
		ChunkCount:   len(indexed),
		FailedChunks: failed,
		Version:      col.Version(),
	}, nil
}

// DeleteBySource removes the document indexed for (tenant, source). Returns
// false when the source was never ingested; deleting nothing is not an
// error and does not advance the version.
func (p *Pipeline) DeleteBySource(ctx context.Context, tenantID, source string) (bool, error) {
	col, err := p.collections.Get(tenantID)
	if err != nil {
		return false, err
	}
	removed, err := col.RemoveSource(source, func(newVersion uint64, docIDs []string) error {
		return p.store.DeleteDocuments(ctx, tenantID, docIDs, newVersion)
	})
	if err != nil {
		return false, fmt.Errorf("delete source %q: %w", source, err)
	}
	if removed {
		p.log.Info("source deleted",
			zap.String("tenant", tenantID),
			zap.String("source", source),
			zap.Uint64("version", col.Version()))
	}
	return removed, nil
}

// embedBatches embeds texts in fixed-size batches, all in flight at once;
// the engine's own semaphore caps provider concurrency. A failed batch is
// logged and skipped so the rest of the document still lands.
func (p *Pipeline) embedBatches(ctx context.Context, texts []string, chunks []*types.Chunk) (map[string][]float32, int) {
	vectors := make(map[string][]float32, len(texts))
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		failed int
	)
	for start := 0; start < len(texts); start += p.batchSize {
		end := start + p.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			embedded, err := p.embedder.EmbedBatch(ctx, texts[start:end])
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed += end - start
				p.log.Warn("embedding batch failed",
					zap.Int("from", start), zap.Int("to", end), zap.Error(err))
				return
			}
			for i, vec := range embedded {
				vectors[chunks[start+i].ID] = vec
			}
		}(start, end)
	}
	wg.Wait()
	return vectors, failed
}

// chunkID derives a stable ID from the chunk's identity, so re-ingesting
// unchanged content maps onto the same index entries.
func chunkID(tenantID, source string, sequence int, text string) string {
	h := sha256.Sum256([]byte(tenantID + "\x00" + source + "\x00" + strconv.Itoa(sequence) + "\x00" + text))
	return hex.EncodeToString(h[:])[:32]
}

func contentHash(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}

func documentRecord(doc *types.Document) *storage.DocumentRecord {
	return &storage.DocumentRecord{
		ID:          doc.ID,
		TenantID:    doc.TenantID,
		Source:      doc.Source,
		ContentHash: doc.ContentHash,
		Status:      string(doc.Status),
		ChunkCount:  doc.ChunkCount,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}

func chunkRecords(chunks []*types.Chunk) []*storage.ChunkRecord {
	records := make([]*storage.ChunkRecord, len(chunks))
	for i, ch := range chunks {
		records[i] = &storage.ChunkRecord{
			ID:         ch.ID,
			DocumentID: ch.DocumentID,
			TenantID:   ch.TenantID,
			Sequence:   ch.Sequence,
			Content:    ch.Text,
			Category:   ch.Category,
			Metadata:   ch.Metadata,
		}
	}
	return records
}

func embeddingRecords(tenantID string, chunks []*types.Chunk, vectors map[string][]float32) []*storage.EmbeddingRecord {
	records := make([]*storage.EmbeddingRecord, 0, len(chunks))
	for _, ch := range chunks {
		records = append(records, &storage.EmbeddingRecord{
			ChunkID:  ch.ID,
			TenantID: tenantID,
			Vector:   vectors[ch.ID],
		})
	}
	return records
}
