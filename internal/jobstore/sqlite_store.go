package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists records in an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
PRAGMA busy_timeout = 5000;
CREATE TABLE IF NOT EXISTS mint_jobs (
	request_id TEXT PRIMARY KEY,
	idempotency_key TEXT NOT NULL DEFAULT '',
	account TEXT NOT NULL COLLATE NOCASE,
	value_wei TEXT NOT NULL,
	state TEXT NOT NULL,
	tx_hash TEXT NOT NULL DEFAULT '',
	token_id TEXT NOT NULL DEFAULT '',
	cause TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	abandoned INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mint_jobs_account ON mint_jobs(account, created_at);
CREATE INDEX IF NOT EXISTS idx_mint_jobs_key ON mint_jobs(idempotency_key);
`

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Get(ctx context.Context, requestID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM mint_jobs WHERE request_id = ?`, requestID)
	return sqliteScanOne(row)
}

func (s *SQLiteStore) FindByKey(ctx context.Context, key string) (*Record, error) {
	if key == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM mint_jobs
WHERE idempotency_key = ?
ORDER BY created_at DESC
LIMIT 1`, key)
	return sqliteScanOne(row)
}

func (s *SQLiteStore) Save(ctx context.Context, r Record) error {
	if r.RequestID == "" {
		return errors.New("record without request id")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO mint_jobs (`+selectColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(request_id) DO UPDATE SET
	state = excluded.state,
	tx_hash = excluded.tx_hash,
	token_id = excluded.token_id,
	cause = excluded.cause,
	error = excluded.error,
	abandoned = excluded.abandoned,
	updated_at = excluded.updated_at
`, r.RequestID, r.IdempotencyKey, r.Account, r.ValueWei, r.State, r.TxHash, r.TokenID, r.Cause, r.Error,
		boolInt(r.Abandoned), r.CreatedAt.UnixNano(), r.UpdatedAt.UnixNano())
	return err
}

func (s *SQLiteStore) ListByAccount(ctx context.Context, account string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM mint_jobs
WHERE account = ?
ORDER BY created_at DESC
LIMIT ?`, account, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := sqliteScan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scanner interface {
	Scan(dest ...any) error
}

func sqliteScanOne(row scanner) (*Record, error) {
	rec, err := sqliteScan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func sqliteScan(row scanner) (Record, error) {
	var (
		rec       Record
		abandoned int
		created   int64
		updated   int64
	)
	err := row.Scan(&rec.RequestID, &rec.IdempotencyKey, &rec.Account, &rec.ValueWei, &rec.State,
		&rec.TxHash, &rec.TokenID, &rec.Cause, &rec.Error, &abandoned, &created, &updated)
	if err != nil {
		return Record{}, err
	}
	rec.Abandoned = abandoned != 0
	rec.CreatedAt = time.Unix(0, created).UTC()
	rec.UpdatedAt = time.Unix(0, updated).UTC()
	return rec, nil
}
