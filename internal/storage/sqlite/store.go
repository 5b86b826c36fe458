// Package sqlite keeps the scheme catalog in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/spigell/yojana-matcher/internal/catalog"
)

// Store is a catalog.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_journal_mode=WAL&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// Writes are serialized by SQLite anyway.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect sqlite %q: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
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
		eligibility_structured TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_schemes_position ON schemes(position);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Import replaces the catalog with schemes in a single transaction. It
// returns the number of rows written.
func (s *Store) Import(ctx context.Context, schemes []catalog.Scheme) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM schemes`); err != nil {
		return 0, fmt.Errorf("clear schemes: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO schemes (
			position, scheme_id, scheme_name, description_raw, benefits_raw,
			eligibility_raw, process_raw, state_scope, category, source_url,
			last_updated, eligibility_structured
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	written := 0
	for i, scheme := range schemes {
		if scheme.ID == "" {
			continue
		}
		structured, err := scheme.EligibilityJSON()
		if err != nil {
			return 0, err
		}
		res, err := stmt.ExecContext(ctx,
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
			structured,
		)
		if err != nil {
			return 0, fmt.Errorf("insert scheme %s: %w", scheme.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			written++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return written, nil
}

const selectColumns = `
	scheme_id, scheme_name, description_raw, benefits_raw, eligibility_raw,
	process_raw, state_scope, category, source_url, last_updated,
	eligibility_structured`

type scanner interface {
	Scan(dest ...any) error
}

func scanScheme(row scanner) (catalog.Scheme, error) {
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
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM schemes WHERE scheme_id = ?`, id)
	scheme, err := scanScheme(row)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Scheme{}, fmt.Errorf("%w: %s", catalog.ErrNotFound, id)
	}
	if err != nil {
		return catalog.Scheme{}, fmt.Errorf("get scheme %s: %w", id, err)
	}
	return scheme, nil
}

func (s *Store) List(ctx context.Context) ([]catalog.Scheme, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM schemes ORDER BY position`)
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
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schemes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count schemes: %w", err)
	}
	return n, nil
}
