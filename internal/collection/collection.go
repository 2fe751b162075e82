package collection

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/radarkb/retrieval-mcp/internal/keywordindex"
	"github.com/radarkb/retrieval-mcp/internal/vectorindex"
	"github.com/radarkb/retrieval-mcp/pkg/types"
)

// ChunkInfo is the read-side view of one indexed chunk, captured together
// with the hits so a result set never mixes index state with registry state
// from a different version.
type ChunkInfo struct {
	Content  string
	Source   string
	Category string
	Metadata map[string]string
}

// Snapshot is the outcome of one consistent read over both indexes.
type Snapshot struct {
	Version     uint64
	VectorHits  []vectorindex.Hit
	KeywordHits []keywordindex.Hit
	Chunks      map[string]ChunkInfo
}

// Collection holds one tenant's complete in-memory retrieval state. All
// mutations run under the write lock and bump the version counter only after
// both indexes reflect the change, so readers holding the read lock observe
// either the old state or the new one, never a mix.
type Collection struct {
	tenantID  string
	dimension int

	mu       sync.RWMutex
	version  atomic.Uint64
	vectors  *vectorindex.Index
	keywords *keywordindex.Index

	docs        map[string]*types.Document // document ID -> document
	docBySource map[string]string          // source -> document ID
	chunks      map[string]*types.Chunk    // chunk ID -> chunk
	chunkDoc    map[string][]string        // document ID -> chunk IDs
}

func newCollection(tenantID string, dimension int) *Collection {
	return &Collection{
		tenantID:    tenantID,
		dimension:   dimension,
		vectors:     vectorindex.New(dimension),
		keywords:    keywordindex.New(),
		docs:        make(map[string]*types.Document),
		docBySource: make(map[string]string),
		chunks:      make(map[string]*types.Chunk),
		chunkDoc:    make(map[string][]string),
	}
}

// TenantID returns the owning tenant.
func (c *Collection) TenantID() string { return c.tenantID }

// Dimension returns the embedding dimension this collection was created with.
func (c *Collection) Dimension() int { return c.dimension }

// Version returns the current index version.
func (c *Collection) Version() uint64 { return c.version.Load() }

// DocumentBySource returns the indexed document for source, if any.
func (c *Collection) DocumentBySource(source string) (*types.Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.docBySource[source]
	if !ok {
		return nil, false
	}
	doc := *c.docs[id]
	return &doc, true
}

// ApplyDocument atomically replaces the indexed state of one document. The
// persist callback runs inside the exclusive section with the version the
// manifest must advance to and the chunk IDs that the replacement strands;
// if it fails nothing in memory changes. Once persistence succeeds the
// in-memory update must complete, so no context check interrupts it.
func (c *Collection) ApplyDocument(doc *types.Document, chunks []*types.Chunk,
	vectors map[string][]float32, persist func(newVersion uint64, removeChunkIDs []string) error) error {

	c.mu.Lock()
	defer c.mu.Unlock()

	// Validate every vector before touching either index or the store. The
	// exclusive section below must not be able to fail once it starts
	// mutating, or readers would see chunks indexed under a version that was
	// never published.
	for _, ch := range chunks {
		vec, ok := vectors[ch.ID]
		if !ok {
			continue
		}
		if len(vec) != c.dimension {
			return fmt.Errorf("chunk %s: vector dimension %d, want %d: %w",
				ch.ID, len(vec), c.dimension, types.ErrDimensionMismatch)
		}
	}

	next := c.version.Load() + 1

	keep := make(map[string]bool, len(chunks))
	for _, ch := range chunks {
		keep[ch.ID] = true
	}
	var stale []string
	for _, id := range c.chunkDoc[doc.ID] {
		if !keep[id] {
			stale = append(stale, id)
		}
	}

	if persist != nil {
		if err := persist(next, stale); err != nil {
			return err
		}
	}

	for _, id := range stale {
		c.vectors.Delete(id)
		c.keywords.Delete(id)
		delete(c.chunks, id)
	}

	ids := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		vec, ok := vectors[ch.ID]
		if !ok {
			continue
		}
		if err := c.vectors.Add(ch.ID, vec); err != nil {
			// Unreachable after the pre-flight validation. If it fires the
			// index no longer matches the persisted manifest.
			return fmt.Errorf("%w: index chunk %s: %v", types.ErrIndexCorrupt, ch.ID, err)
		}
		c.keywords.Add(ch.ID, ch.Text)
		cc := *ch
		c.chunks[ch.ID] = &cc
		ids = append(ids, ch.ID)
	}

	dc := *doc
	c.docs[doc.ID] = &dc
	c.docBySource[doc.Source] = doc.ID
	c.chunkDoc[doc.ID] = ids

	c.version.Store(next)
	return nil
}

// RemoveSource atomically removes the document indexed for source, if any.
// The persist callback runs inside the exclusive section; a persistence
// failure leaves the in-memory state untouched. Returns false when no
// document matched.
func (c *Collection) RemoveSource(source string,
	persist func(newVersion uint64, docIDs []string) error) (bool, error) {

	c.mu.Lock()
	defer c.mu.Unlock()

	docID, ok := c.docBySource[source]
	if !ok {
		return false, nil
	}

	next := c.version.Load() + 1
	if persist != nil {
		if err := persist(next, []string{docID}); err != nil {
			return false, err
		}
	}

	for _, id := range c.chunkDoc[docID] {
		c.vectors.Delete(id)
		c.keywords.Delete(id)
		delete(c.chunks, id)
	}
	if doc, ok := c.docs[docID]; ok {
		doc.Status = types.StatusDeleted
	}
	delete(c.chunkDoc, docID)
	delete(c.docs, docID)
	delete(c.docBySource, source)

	c.version.Store(next)
	return true, nil
}

// Search performs one consistent read over the requested indexes and
// captures the hit chunks' content in the same critical section. The two
// scans run in parallel; both see the same state because the read lock is
// held across them. A nil queryVector skips the vector side; an empty
// queryText skips the keyword side.
func (c *Collection) Search(queryVector []float32, queryText string, k int) (*Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := &Snapshot{
		Version: c.version.Load(),
		Chunks:  make(map[string]ChunkInfo),
	}

	var g errgroup.Group
	if queryVector != nil {
		g.Go(func() error {
			hits, err := c.vectors.Query(queryVector, k)
			if err != nil {
				return err
			}
			snap.VectorHits = hits
			return nil
		})
	}
	if queryText != "" {
		g.Go(func() error {
			snap.KeywordHits = c.keywords.Search(queryText, k)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	record := func(chunkID string) {
		if _, ok := snap.Chunks[chunkID]; ok {
			return
		}
		ch, ok := c.chunks[chunkID]
		if !ok {
			return
		}
		info := ChunkInfo{
			Content:  ch.Text,
			Category: ch.Category,
		}
		if doc, ok := c.docs[ch.DocumentID]; ok {
			info.Source = doc.Source
		}
		if len(ch.Metadata) > 0 {
			info.Metadata = make(map[string]string, len(ch.Metadata))
			for k, v := range ch.Metadata {
				info.Metadata[k] = v
			}
		}
		snap.Chunks[chunkID] = info
	}
	for _, h := range snap.VectorHits {
		record(h.ChunkID)
	}
	for _, h := range snap.KeywordHits {
		record(h.ChunkID)
	}
	return snap, nil
}

// Stats summarizes the collection's indexed state.
func (c *Collection) Stats() *types.Statistics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := &types.Statistics{
		TenantID:          c.tenantID,
		DocumentCount:     len(c.docs),
		ChunkCount:        len(c.chunks),
		CategoryBreakdown: make(map[string]int),
		Version:           c.version.Load(),
	}
	for _, ch := range c.chunks {
		cat := ch.Category
		if cat == "" {
			cat = "uncategorized"
		}
		stats.CategoryBreakdown[cat]++
	}
	return stats
}

// restore rebuilds in-memory state from persisted rows without re-embedding.
// Only called during startup before the collection is published.
func (c *Collection) restore(version uint64, docs []*types.Document,
	chunks []*types.Chunk, vectors map[string][]float32) error {

	for _, doc := range docs {
		dc := *doc
		c.docs[doc.ID] = &dc
		c.docBySource[doc.Source] = doc.ID
	}
	for _, ch := range chunks {
		vec, ok := vectors[ch.ID]
		if !ok {
			continue
		}
		if err := c.vectors.Add(ch.ID, vec); err != nil {
			return fmt.Errorf("restore chunk %s: %w", ch.ID, err)
		}
		c.keywords.Add(ch.ID, ch.Text)
		cc := *ch
		c.chunks[ch.ID] = &cc
		c.chunkDoc[ch.DocumentID] = append(c.chunkDoc[ch.DocumentID], ch.ID)
	}
	c.version.Store(version)
	return nil
}
