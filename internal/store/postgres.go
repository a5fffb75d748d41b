package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/tierlink/internal/shortener"
)

const (
	mappingsSchema = `
		CREATE TABLE IF NOT EXISTS url_mappings (
			short      TEXT PRIMARY KEY,
			long_url   TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE UNIQUE INDEX IF NOT EXISTS url_mappings_long_md5_idx ON url_mappings (md5(long_url));
	`

	visitsSchema = `
		CREATE TABLE IF NOT EXISTS visit_counters (
			short  TEXT PRIMARY KEY,
			visits BIGINT NOT NULL DEFAULT 0
		);
	`

	mappingsPrimaryKey = "url_mappings_pkey"
	mappingsLongIndex  = "url_mappings_long_md5_idx"
)

// PostgresStore is a PostgreSQL implementation of shortener.Repository and
// shortener.VisitRepository.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, mappingsSchema); err != nil {
		return fmt.Errorf("create url_mappings: %w", err)
	}

	if _, err := p.pool.Exec(ctx, visitsSchema); err != nil {
		return fmt.Errorf("create visit_counters: %w", err)
	}

	return nil
}

func (p *PostgresStore) FindByLong(ctx context.Context, long string) (*shortener.Mapping, error) {
	query := `
		SELECT short, long_url, created_at
		FROM url_mappings
		WHERE md5(long_url) = md5($1) AND long_url = $1
	`

	return p.findOne(ctx, query, long)
}

func (p *PostgresStore) FindByShort(ctx context.Context, short shortener.Code) (*shortener.Mapping, error) {
	query := `
		SELECT short, long_url, created_at
		FROM url_mappings
		WHERE short = $1
	`

	return p.findOne(ctx, query, string(short))
}

func (p *PostgresStore) findOne(ctx context.Context, query string, arg string) (*shortener.Mapping, error) {
	var mapping shortener.Mapping

	err := p.pool.QueryRow(ctx, query, arg).Scan(
		&mapping.Short,
		&mapping.Long,
		&mapping.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shortener.ErrNotFound
		}

		return nil, err
	}

	return &mapping, nil
}

func (p *PostgresStore) Insert(ctx context.Context, mapping *shortener.Mapping) error {
	query := `
		INSERT INTO url_mappings (short, long_url, created_at)
		VALUES ($1, $2, $3)
	`

	_, err := p.pool.Exec(ctx, query, string(mapping.Short), mapping.Long, mapping.CreatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		switch pgErr.ConstraintName {
		case mappingsPrimaryKey:
			return shortener.ErrShortTaken
		case mappingsLongIndex:
			return shortener.ErrLongTaken
		}
	}

	return err
}

func (p *PostgresStore) IncrementVisits(ctx context.Context, short shortener.Code) (uint64, error) {
	query := `
		INSERT INTO visit_counters (short, visits)
		VALUES ($1, 1)
		ON CONFLICT (short) DO UPDATE SET visits = visit_counters.visits + 1
		RETURNING visits
	`

	var visits int64
	if err := p.pool.QueryRow(ctx, query, string(short)).Scan(&visits); err != nil {
		return 0, err
	}

	return uint64(visits), nil
}

func (p *PostgresStore) Visits(ctx context.Context, short shortener.Code) (uint64, error) {
	query := `SELECT visits FROM visit_counters WHERE short = $1`

	var visits int64

	err := p.pool.QueryRow(ctx, query, string(short)).Scan(&visits)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}

		return 0, err
	}

	return uint64(visits), nil
}

// Ping checks database connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Shutdown closes the connection pool.
func (p *PostgresStore) Shutdown() error {
	p.pool.Close()

	return nil
}

var (
	_ shortener.Repository      = (*PostgresStore)(nil)
	_ shortener.VisitRepository = (*PostgresStore)(nil)
)
