// Package pagestore implements the relational, read-only side of chunk
// lookups (§6 internal/pagestore.Store): path-based structural search and
// same-page chunk neighborhoods for context expansion. Ingestion writes
// this table; this package only ever reads it.
//
// Grounded on _examples/kadirpekel-hector/pkg/context/indexing/sql_source.go
// (database/sql query construction, column scanning into typed fields)
// generalized from that source's generic table-scan to a fixed schema, and
// on pkg/databases/registry.go's driver-registry convention for selecting
// github.com/lib/pq as the default Postgres driver.
package pagestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/veyron-labs/wikiq/internal/chunk"
	"github.com/veyron-labs/wikiq/internal/query"
)

const chunkColumns = `
	chunk_id, page_id, chunk_index, text, space,
	page_title, page_path, breadcrumb, heading, heading_level,
	heading_path, headings_list, labels, content_type, block_type,
	is_complete_block, created, modified, created_by, modified_by,
	hierarchy_depth, attachments, url, status
`

// Store is a Postgres-backed read-only chunk store. Implements both
// structural.PageStore and contextx.PageChunkStore.
type Store struct {
	db *sql.DB
}

// New wraps an already-opened *sql.DB (opened with driver "postgres", the
// lib/pq registration name).
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open is a convenience constructor mirroring the teacher's
// sql.Open(driver, dsn) + Ping idiom.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening page store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging page store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ChunksByPath finds chunks whose page_path (case-folded) contains every
// part of a structural query as a substring, applying any additional
// filters. Implements structural.PageStore.
func (s *Store) ChunksByPath(ctx context.Context, parts []string, filters query.Filters) ([]chunk.Chunk, error) {
	where := []string{}
	args := []any{}
	argN := 1

	for _, p := range parts {
		where = append(where, fmt.Sprintf("lower(page_path) LIKE $%d", argN))
		args = append(args, "%"+strings.ToLower(p)+"%")
		argN++
	}
	where, args, argN = appendFilterClauses(where, args, argN, filters)

	q := fmt.Sprintf("SELECT %s FROM chunks WHERE %s ORDER BY page_id, chunk_index",
		chunkColumns, strings.Join(where, " AND "))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks by path: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

// ChunksInRange fetches chunks on one page whose Index falls in
// [fromIndex, toIndex]. Implements contextx.PageChunkStore.
func (s *Store) ChunksInRange(ctx context.Context, pageID string, fromIndex, toIndex int) ([]chunk.Chunk, error) {
	q := fmt.Sprintf("SELECT %s FROM chunks WHERE page_id = $1 AND chunk_index BETWEEN $2 AND $3 ORDER BY chunk_index",
		chunkColumns)

	rows, err := s.db.QueryContext(ctx, q, pageID, fromIndex, toIndex)
	if err != nil {
		return nil, fmt.Errorf("querying chunk range: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

// ChunksByPage fetches every chunk belonging to a page, ordered by index.
// Implements contextx.PageChunkStore.
func (s *Store) ChunksByPage(ctx context.Context, pageID string) ([]chunk.Chunk, error) {
	q := fmt.Sprintf("SELECT %s FROM chunks WHERE page_id = $1 ORDER BY chunk_index", chunkColumns)

	rows, err := s.db.QueryContext(ctx, q, pageID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks by page: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

// Embedding returns a chunk's dense vector, denormalized alongside its
// metadata so the context expander's "related" mode can rank same-page
// chunks without a round-trip to the vector store. Implements
// contextx.PageChunkStore.
func (s *Store) Embedding(ctx context.Context, chunkID string) ([]float32, bool, error) {
	var raw pq.Float64Array
	err := s.db.QueryRowContext(ctx, "SELECT embedding FROM chunk_embeddings WHERE chunk_id = $1", chunkID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying embedding for chunk %s: %w", chunkID, err)
	}

	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, true, nil
}

func appendFilterClauses(where []string, args []any, argN int, f query.Filters) ([]string, []any, int) {
	if f.Space != "" {
		where = append(where, fmt.Sprintf("space = $%d", argN))
		args = append(args, f.Space)
		argN++
	}
	if f.Author != "" {
		where = append(where, fmt.Sprintf("modified_by = $%d", argN))
		args = append(args, f.Author)
		argN++
	}
	if f.ContentType != "" {
		where = append(where, fmt.Sprintf("content_type = $%d", argN))
		args = append(args, f.ContentType)
		argN++
	}
	if f.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argN))
		args = append(args, f.Status)
		argN++
	}
	if f.DateFrom != nil {
		where = append(where, fmt.Sprintf("modified >= $%d", argN))
		args = append(args, *f.DateFrom)
		argN++
	}
	if f.DateTo != nil {
		where = append(where, fmt.Sprintf("modified <= $%d", argN))
		args = append(args, *f.DateTo)
		argN++
	}
	return where, args, argN
}

func scanChunks(rows *sql.Rows) ([]chunk.Chunk, error) {
	var out []chunk.Chunk
	for rows.Next() {
		var c chunk.Chunk
		var headingsList, labels, attachments pq.StringArray
		var status string

		err := rows.Scan(
			&c.ID, &c.PageID, &c.Index, &c.Text, &c.Space,
			&c.PageTitle, &c.PagePath, &c.Breadcrumb, &c.Heading, &c.HeadingLevel,
			&c.HeadingPath, &headingsList, &labels, &c.ContentType, &c.BlockType,
			&c.IsCompleteBlock, &c.Created, &c.Modified, &c.CreatedBy, &c.ModifiedBy,
			&c.HierarchyDepth, &attachments, &c.URL, &status,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}

		c.HeadingsList = []string(headingsList)
		c.Labels = []string(labels)
		c.Attachments = []string(attachments)
		c.Sidecar = map[string]any{"status": status}

		out = append(out, c)
	}
	return out, rows.Err()
}
