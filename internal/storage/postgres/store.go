// Package postgres keeps the scheme catalog and its embeddings in PostgreSQL
// with the pgvector extension.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spigell/yojana-matcher/internal/catalog"
	"github.com/spigell/yojana-matcher/internal/search"
)

// Store is a catalog.Store backed by a pgx pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// Open connects to connString and ensures the schema exists.
func Open(ctx context.Context, connString string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{pool: pool, logger: logger}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init postgres schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		s.logger.Warn("failed to create pgvector extension", zap.Error(err))
	}

	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS schemes (
		position INTEGER NOT NULL,
		scheme_id TEXT PRIMARY KEY,
		scheme_name TEXT NOT NULL,
		description_raw TEXT NOT NULL DEFAULT '',
		benefits_raw TEXT NOT NULL DEFAULT '',
		eligibility_raw TEXT NOT NULL DEFAULT '',
		process_raw TEXT NOT NULL DEFAULT '',
		state_scope TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		source_url TEXT NOT NULL DEFAULT '',
		last_updated TEXT NOT NULL DEFAULT '',
		eligibility_structured JSONB,
		embedding vector
	);

	CREATE INDEX IF NOT EXISTS idx_schemes_position ON schemes(position);
	`)
	return err
}

// Import replaces the catalog with schemes in a single transaction. Existing
// embeddings are discarded.
func (s *Store) Import(ctx context.Context, schemes []catalog.Scheme) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM schemes`); err != nil {
		return 0, fmt.Errorf("clear schemes: %w", err)
	}

	written := 0
	for i, scheme := range schemes {
		if scheme.ID == "" {
			continue
		}
		structured, err := scheme.EligibilityJSON()
		if err != nil {
			return 0, err
		}
		var doc any
		if structured != "" {
			doc = structured
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO schemes (
				position, scheme_id, scheme_name, description_raw, benefits_raw,
				eligibility_raw, process_raw, state_scope, category, source_url,
				last_updated, eligibility_structured
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::jsonb)
			ON CONFLICT (scheme_id) DO NOTHING`,
			i,
			scheme.ID,
			scheme.Name,
			scheme.DescriptionRaw,
			scheme.BenefitsRaw,
			scheme.EligibilityRaw,
			scheme.ProcessRaw,
			scheme.StateScope,
			scheme.Category,
			scheme.SourceURL,
			scheme.LastUpdated,
			doc,
		)
		if err != nil {
			return 0, fmt.Errorf("insert scheme %s: %w", scheme.ID, err)
		}
		written += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return written, nil
}

const selectColumns = `
	scheme_id, scheme_name, description_raw, benefits_raw, eligibility_raw,
	process_raw, state_scope, category, source_url, last_updated,
	COALESCE(eligibility_structured::text, '')`

func scanScheme(row pgx.Row) (catalog.Scheme, error) {
	var (
		s          catalog.Scheme
		structured string
	)
	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.DescriptionRaw,
		&s.BenefitsRaw,
		&s.EligibilityRaw,
		&s.ProcessRaw,
		&s.StateScope,
		&s.Category,
		&s.SourceURL,
		&s.LastUpdated,
		&structured,
	)
	if err != nil {
		return catalog.Scheme{}, err
	}
	if structured != "" {
		s.EligibilityStructured = structured
	}
	return s, nil
}

func (s *Store) Get(ctx context.Context, id string) (catalog.Scheme, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM schemes WHERE scheme_id = $1`, id)
	scheme, err := scanScheme(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Scheme{}, fmt.Errorf("%w: %s", catalog.ErrNotFound, id)
	}
	if err != nil {
		return catalog.Scheme{}, fmt.Errorf("get scheme %s: %w", id, err)
	}
	return scheme, nil
}

func (s *Store) List(ctx context.Context) ([]catalog.Scheme, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+selectColumns+` FROM schemes ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list schemes: %w", err)
	}
	defer rows.Close()

	schemes := make([]catalog.Scheme, 0)
	for rows.Next() {
		scheme, err := scanScheme(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scheme: %w", err)
		}
		schemes = append(schemes, scheme)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schemes: %w", err)
	}
	return schemes, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM schemes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count schemes: %w", err)
	}
	return n, nil
}

// SetEmbedding stores the vector of one scheme.
func (s *Store) SetEmbedding(ctx context.Context, id string, vector []float32) error {
	tag, err := s.pool.Exec(ctx, `UPDATE schemes SET embedding = $2::vector WHERE scheme_id = $1`, id, formatVector(vector))
	if err != nil {
		return fmt.Errorf("set embedding for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", catalog.ErrNotFound, id)
	}
	return nil
}

// StoreIndex writes every item of an index file into the embedding column.
// Items for unknown schemes are logged and skipped.
func (s *Store) StoreIndex(ctx context.Context, f search.IndexFile) (int, error) {
	stored := 0
	for _, item := range f.Items {
		err := s.SetEmbedding(ctx, item.ID, item.Vector)
		if errors.Is(err, catalog.ErrNotFound) {
			s.logger.Warn("embedding for unknown scheme", zap.String("scheme_id", item.ID))
			continue
		}
		if err != nil {
			return stored, err
		}
		stored++
	}
	return stored, nil
}

// Index answers nearest-neighbour queries with pgvector cosine distance.
type Index struct {
	pool *pgxpool.Pool
	size int
}

// NewIndex counts the embedded schemes once; Len reports that snapshot.
func NewIndex(ctx context.Context, s *Store) (*Index, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM schemes WHERE embedding IS NOT NULL`).Scan(&n); err != nil {
		return nil, fmt.Errorf("count embeddings: %w", err)
	}
	return &Index{pool: s.pool, size: n}, nil
}

func (i *Index) Len() int {
	return i.size
}

// Nearest orders by cosine distance, ties by scheme id. Similarity is
// reported as 1 - distance.
func (i *Index) Nearest(ctx context.Context, vector []float32, k int) ([]search.Hit, error) {
	if k <= 0 {
		return []search.Hit{}, nil
	}

	rows, err := i.pool.Query(ctx, `
		SELECT scheme_id, 1 - (embedding <=> $1::vector) AS similarity
		FROM schemes
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1::vector, scheme_id
		LIMIT $2`, formatVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("query nearest schemes: %w", err)
	}
	defer rows.Close()

	hits := make([]search.Hit, 0, k)
	for rows.Next() {
		var hit search.Hit
		if err := rows.Scan(&hit.ID, &hit.Similarity); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hits: %w", err)
	}
	return hits, nil
}

// formatVector renders a vector in pgvector text form.
func formatVector(vector []float32) string {
	if len(vector) == 0 {
		return "[]"
	}
	parts := make([]string, len(vector))
	for i, v := range vector {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
