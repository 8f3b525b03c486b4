package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"archpipe/internal/model"
)

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know by default
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS design_result_cache (
	input_hash   TEXT PRIMARY KEY,
	input_text   TEXT NOT NULL,
	result       TEXT NOT NULL,
	language     TEXT NOT NULL,
	confidence   DOUBLE PRECISION NOT NULL,
	hit_count    BIGINT NOT NULL DEFAULT 0,
	created_at   BIGINT NOT NULL,
	last_used_at BIGINT NOT NULL,
	expires_at   BIGINT
)`

const createCacheIndex = `CREATE INDEX IF NOT EXISTS idx_design_result_cache_expires ON design_result_cache (expires_at)`

// cacheRow is the table layout; timestamps are unix milliseconds
type cacheRow struct {
	InputHash  string        `db:"input_hash"`
	InputText  string        `db:"input_text"`
	Result     string        `db:"result"`
	Language   string        `db:"language"`
	Confidence float64       `db:"confidence"`
	HitCount   int64         `db:"hit_count"`
	CreatedAt  int64         `db:"created_at"`
	LastUsedAt int64         `db:"last_used_at"`
	ExpiresAt  sql.NullInt64 `db:"expires_at"`
}

// SQLStore keeps cache entries in PostgreSQL or SQLite
type SQLStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects to PostgreSQL
func NewPostgresStore(dsn string, maxConn, maxIdleConn int) (*SQLStore, error) {
	// Disable prepared statement caching to avoid "unnamed prepared statement does not exist" errors
	if !strings.Contains(dsn, "?") {
		dsn += "?prefer_simple_protocol=true"
	} else {
		dsn += "&prefer_simple_protocol=true"
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(maxConn)
	db.SetMaxIdleConns(maxIdleConn)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	return NewSQLStore(db), nil
}

// NewSQLiteStore opens (or creates) the SQLite file at path
func NewSQLiteStore(path string) (*SQLStore, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite cache %s: %w", path, err)
	}
	// a single writer avoids SQLITE_BUSY under concurrent agents
	db.SetMaxOpenConns(1)
	return NewSQLStore(db), nil
}

// NewSQLStore wraps an existing connection
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Migrate creates the cache table if needed
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range []string{createCacheTable, createCacheIndex} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate cache table: %w", err)
		}
	}
	return nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Get loads one entry
func (s *SQLStore) Get(ctx context.Context, hash string) (*model.CacheEntry, error) {
	var row cacheRow
	query := s.db.Rebind(`SELECT * FROM design_result_cache WHERE input_hash = ?`)
	if err := s.db.GetContext(ctx, &row, query, hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return row.entry(), nil
}

// Put inserts or replaces an entry
func (s *SQLStore) Put(ctx context.Context, entry *model.CacheEntry) error {
	query := `
		INSERT INTO design_result_cache
			(input_hash, input_text, result, language, confidence, hit_count, created_at, last_used_at, expires_at)
		VALUES
			(:input_hash, :input_text, :result, :language, :confidence, :hit_count, :created_at, :last_used_at, :expires_at)
		ON CONFLICT (input_hash) DO UPDATE SET
			input_text = excluded.input_text,
			result = excluded.result,
			language = excluded.language,
			confidence = excluded.confidence,
			hit_count = excluded.hit_count,
			created_at = excluded.created_at,
			last_used_at = excluded.last_used_at,
			expires_at = excluded.expires_at`

	if _, err := s.db.NamedExecContext(ctx, query, rowFromEntry(entry)); err != nil {
		return fmt.Errorf("failed to put cache entry: %w", err)
	}
	return nil
}

// Touch increments hit_count and sets last_used_at
func (s *SQLStore) Touch(ctx context.Context, hash string, at time.Time) error {
	query := s.db.Rebind(`UPDATE design_result_cache SET hit_count = hit_count + 1, last_used_at = ? WHERE input_hash = ?`)
	if _, err := s.db.ExecContext(ctx, query, at.UnixMilli(), hash); err != nil {
		return fmt.Errorf("failed to touch cache entry: %w", err)
	}
	return nil
}

// DeleteExpired purges entries whose expiry has passed and returns how many
func (s *SQLStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := s.db.Rebind(`DELETE FROM design_result_cache WHERE expires_at IS NOT NULL AND expires_at <= ?`)
	res, err := s.db.ExecContext(ctx, query, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache: %w", err)
	}
	return res.RowsAffected()
}

func rowFromEntry(e *model.CacheEntry) cacheRow {
	row := cacheRow{
		InputHash:  e.InputHash,
		InputText:  e.InputText,
		Result:     string(e.Result),
		Language:   e.Language,
		Confidence: e.Confidence,
		HitCount:   e.HitCount,
		CreatedAt:  e.CreatedAt.UnixMilli(),
		LastUsedAt: e.LastUsedAt.UnixMilli(),
	}
	if e.ExpiresAt != nil {
		row.ExpiresAt = sql.NullInt64{Int64: e.ExpiresAt.UnixMilli(), Valid: true}
	}
	return row
}

func (r cacheRow) entry() *model.CacheEntry {
	e := &model.CacheEntry{
		InputHash:  r.InputHash,
		InputText:  r.InputText,
		Result:     []byte(r.Result),
		Language:   r.Language,
		Confidence: r.Confidence,
		HitCount:   r.HitCount,
		CreatedAt:  time.UnixMilli(r.CreatedAt).UTC(),
		LastUsedAt: time.UnixMilli(r.LastUsedAt).UTC(),
	}
	if r.ExpiresAt.Valid {
		t := time.UnixMilli(r.ExpiresAt.Int64).UTC()
		e.ExpiresAt = &t
	}
	return e
}
