package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SQLiteStore implements Store on a single SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path, enables WAL, and applies
// migrations.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL for concurrent readers; single writer matches the per-tenant
	// exclusive-write discipline upstream.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateTenant inserts a manifest row for a new tenant.
func (s *SQLiteStore) CreateTenant(ctx context.Context, tenant *TenantRecord) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (tenant_id, dimension, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id) DO NOTHING
	`, tenant.ID, tenant.Dimension, tenant.Version, now, now)
	if err != nil {
		return fmt.Errorf("create tenant %s: %w", tenant.ID, err)
	}
	return nil
}

// DeleteTenant removes the tenant row; documents, chunks, and embeddings
// cascade.
func (s *SQLiteStore) DeleteTenant(ctx context.Context, tenantID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tenants WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return fmt.Errorf("delete tenant %s: %w", tenantID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete tenant %s: %w", tenantID, ErrNotFound)
	}
	// Embeddings reference chunks, which cascade from documents; clear the
	// remaining tenant-scoped rows explicitly for older databases without
	// full cascade support.
	if _, err := s.db.ExecContext(ctx, `DELETE FROM embeddings WHERE tenant_id = ?`, tenantID); err != nil {
		return fmt.Errorf("delete tenant %s embeddings: %w", tenantID, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE tenant_id = ?`, tenantID); err != nil {
		return fmt.Errorf("delete tenant %s chunks: %w", tenantID, err)
	}
	return nil
}

// SaveDocument writes one ingest outcome in a single transaction.
func (s *SQLiteStore) SaveDocument(ctx context.Context, doc *DocumentRecord, chunks []*ChunkRecord,
	embeddings []*EmbeddingRecord, removeChunkIDs []string, newVersion uint64) error {

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, tenant_id, source, content_hash, status, chunk_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content_hash = excluded.content_hash,
			status = excluded.status,
			chunk_count = excluded.chunk_count,
			updated_at = excluded.updated_at
	`, doc.ID, doc.TenantID, doc.Source, doc.ContentHash, doc.Status, doc.ChunkCount, now, now)
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", doc.ID, err)
	}

	for _, id := range removeChunkIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE id = ?`, id); err != nil {
			return fmt.Errorf("remove stale chunk %s: %w", id, err)
		}
	}

	for _, c := range chunks {
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshal chunk metadata: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO chunks (id, document_id, tenant_id, seq, content, category, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				document_id = excluded.document_id,
				seq = excluded.seq,
				content = excluded.content,
				category = excluded.category,
				metadata = excluded.metadata
		`, c.ID, c.DocumentID, c.TenantID, c.Sequence, c.Content, c.Category, string(meta))
		if err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ID, err)
		}
	}

	for _, e := range embeddings {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO embeddings (chunk_id, tenant_id, dimension, vector)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(chunk_id) DO UPDATE SET
				dimension = excluded.dimension,
				vector = excluded.vector
		`, e.ChunkID, e.TenantID, len(e.Vector), serializeVector(e.Vector))
		if err != nil {
			return fmt.Errorf("upsert embedding %s: %w", e.ChunkID, err)
		}
	}

	if err := advanceVersion(ctx, tx, doc.TenantID, newVersion); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ingest: %w", err)
	}
	return nil
}

// UpdateDocumentStatus records a status transition.
func (s *SQLiteStore) UpdateDocumentStatus(ctx context.Context, docID string, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents SET status = ?, updated_at = ? WHERE id = ?
	`, status, time.Now().UTC(), docID)
	if err != nil {
		return fmt.Errorf("update document %s status: %w", docID, err)
	}
	return nil
}

// DeleteDocuments removes documents and their dependent rows in one
// transaction and advances the tenant version.
func (s *SQLiteStore) DeleteDocuments(ctx context.Context, tenantID string, docIDs []string, newVersion uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, docID := range docIDs {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM embeddings WHERE chunk_id IN (SELECT id FROM chunks WHERE document_id = ?)`, docID); err != nil {
			return fmt.Errorf("delete embeddings for %s: %w", docID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, docID); err != nil {
			return fmt.Errorf("delete chunks for %s: %w", docID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, docID); err != nil {
			return fmt.Errorf("delete document %s: %w", docID, err)
		}
	}

	if err := advanceVersion(ctx, tx, tenantID, newVersion); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

func advanceVersion(ctx context.Context, tx *sql.Tx, tenantID string, newVersion uint64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE tenants SET version = ?, updated_at = ? WHERE tenant_id = ?
	`, newVersion, time.Now().UTC(), tenantID)
	if err != nil {
		return fmt.Errorf("advance tenant %s version: %w", tenantID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("advance tenant %s version: %w", tenantID, ErrNotFound)
	}
	return nil
}

// LoadAll reads the complete state of every tenant.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]*TenantState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tenant_id, dimension, version, created_at, updated_at FROM tenants ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("load tenants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var states []*TenantState
	byID := make(map[string]*TenantState)
	for rows.Next() {
		t := &TenantRecord{}
		if err := rows.Scan(&t.ID, &t.Dimension, &t.Version, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		st := &TenantState{Tenant: t}
		states = append(states, st)
		byID[t.ID] = st
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.loadDocuments(ctx, byID); err != nil {
		return nil, err
	}
	if err := s.loadChunks(ctx, byID); err != nil {
		return nil, err
	}
	if err := s.loadEmbeddings(ctx, byID); err != nil {
		return nil, err
	}

	return states, nil
}

func (s *SQLiteStore) loadDocuments(ctx context.Context, byID map[string]*TenantState) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, source, content_hash, status, chunk_count, created_at, updated_at
		FROM documents ORDER BY tenant_id, id`)
	if err != nil {
		return fmt.Errorf("load documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		d := &DocumentRecord{}
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Source, &d.ContentHash,
			&d.Status, &d.ChunkCount, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return fmt.Errorf("scan document: %w", err)
		}
		if st, ok := byID[d.TenantID]; ok {
			st.Documents = append(st.Documents, d)
		}
	}
	return rows.Err()
}

func (s *SQLiteStore) loadChunks(ctx context.Context, byID map[string]*TenantState) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, tenant_id, seq, content, category, metadata
		FROM chunks ORDER BY tenant_id, document_id, seq`)
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		c := &ChunkRecord{}
		var meta string
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.TenantID, &c.Sequence,
			&c.Content, &c.Category, &meta); err != nil {
			return fmt.Errorf("scan chunk: %w", err)
		}
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &c.Metadata); err != nil {
				return fmt.Errorf("unmarshal chunk %s metadata: %w", c.ID, err)
			}
		}
		if st, ok := byID[c.TenantID]; ok {
			st.Chunks = append(st.Chunks, c)
		}
	}
	return rows.Err()
}

func (s *SQLiteStore) loadEmbeddings(ctx context.Context, byID map[string]*TenantState) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id, tenant_id, vector FROM embeddings ORDER BY tenant_id, chunk_id`)
	if err != nil {
		return fmt.Errorf("load embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		e := &EmbeddingRecord{}
		var blob []byte
		if err := rows.Scan(&e.ChunkID, &e.TenantID, &blob); err != nil {
			return fmt.Errorf("scan embedding: %w", err)
		}
		e.Vector = deserializeVector(blob)
		if st, ok := byID[e.TenantID]; ok {
			st.Embeddings = append(st.Embeddings, e)
		}
	}
	return rows.Err()
}
