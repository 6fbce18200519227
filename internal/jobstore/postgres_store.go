package jobstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists records in a PostgreSQL table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS mint_jobs (
    request_id TEXT PRIMARY KEY,
    idempotency_key TEXT NOT NULL DEFAULT '',
    account TEXT NOT NULL,
    value_wei TEXT NOT NULL,
    state TEXT NOT NULL,
    tx_hash TEXT NOT NULL DEFAULT '',
    token_id TEXT NOT NULL DEFAULT '',
    cause TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    abandoned BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS mint_jobs_account_idx ON mint_jobs (lower(account), created_at DESC);
CREATE INDEX IF NOT EXISTS mint_jobs_key_idx ON mint_jobs (idempotency_key) WHERE idempotency_key <> '';
`

const selectColumns = `request_id, idempotency_key, account, value_wei, state, tx_hash, token_id, cause, error, abandoned, created_at, updated_at`

// NewPostgresStore connects to Postgres using the DSN and ensures the table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Get(ctx context.Context, requestID string) (*Record, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM mint_jobs WHERE request_id = $1`, requestID)
	return scanOne(row)
}

func (p *PostgresStore) FindByKey(ctx context.Context, key string) (*Record, error) {
	if key == "" {
		return nil, nil
	}
	row := p.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM mint_jobs
WHERE idempotency_key = $1
ORDER BY created_at DESC
LIMIT 1`, key)
	return scanOne(row)
}

func (p *PostgresStore) Save(ctx context.Context, r Record) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO mint_jobs (`+selectColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (request_id) DO UPDATE
SET state = EXCLUDED.state,
    tx_hash = EXCLUDED.tx_hash,
    token_id = EXCLUDED.token_id,
    cause = EXCLUDED.cause,
    error = EXCLUDED.error,
    abandoned = EXCLUDED.abandoned,
    updated_at = EXCLUDED.updated_at
`, r.RequestID, r.IdempotencyKey, r.Account, r.ValueWei, r.State, r.TxHash, r.TokenID, r.Cause, r.Error, r.Abandoned, r.CreatedAt, r.UpdatedAt)
	return err
}

func (p *PostgresStore) ListByAccount(ctx context.Context, account string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx, `SELECT `+selectColumns+` FROM mint_jobs
WHERE lower(account) = lower($1)
ORDER BY created_at DESC
LIMIT $2`, account, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanOne(row pgx.Row) (*Record, error) {
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.RequestID, &rec.IdempotencyKey, &rec.Account, &rec.ValueWei, &rec.State,
		&rec.TxHash, &rec.TokenID, &rec.Cause, &rec.Error, &rec.Abandoned, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}
