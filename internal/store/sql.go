package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

type dialect struct {
	driver string
	schema string
	get    string
	put    string
	del    string
}

var (
	sqliteDialect = dialect{
		driver: "sqlite3",
		schema: `CREATE TABLE IF NOT EXISTS trigger_store (
			store_key  TEXT NOT NULL PRIMARY KEY,
			value      BLOB NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			CHECK (length(store_key) > 0)
		)`,
		get: `SELECT value FROM trigger_store WHERE store_key = ?`,
		put: `INSERT INTO trigger_store (store_key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(store_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		del: `DELETE FROM trigger_store WHERE store_key = ?`,
	}

	postgresDialect = dialect{
		driver: "pgx",
		schema: `CREATE TABLE IF NOT EXISTS trigger_store (
			store_key  TEXT NOT NULL PRIMARY KEY,
			value      BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			CHECK (length(store_key) > 0)
		)`,
		get: `SELECT value FROM trigger_store WHERE store_key = $1`,
		put: `INSERT INTO trigger_store (store_key, value, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (store_key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		del: `DELETE FROM trigger_store WHERE store_key = $1`,
	}
)

// SQL is a Store backed by a single trigger_store table in SQLite or PostgreSQL.
type SQL struct {
	db *sql.DB
	d  dialect
}

// OpenSQLite opens (or creates) a SQLite database file. dsn is passed to go-sqlite3 as is.
func OpenSQLite(ctx context.Context, dsn string) (*SQL, error) {
	if dsn == "" {
		dsn = "pieces.db"
	}
	s, err := openSQL(ctx, sqliteDialect, dsn)
	if err != nil {
		return nil, err
	}
	// A single writer avoids SQLITE_BUSY between the poller and webhook handlers.
	s.db.SetMaxOpenConns(1)
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("setting sqlite pragmas: %w", err)
	}
	return s, nil
}

// OpenPostgres connects through pgx using a URL or keyword DSN.
func OpenPostgres(ctx context.Context, dsn string) (*SQL, error) {
	return openSQL(ctx, postgresDialect, dsn)
}

func openSQL(ctx context.Context, d dialect, dsn string) (*SQL, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.driver, err)
	}
	if _, err := db.ExecContext(ctx, d.schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating trigger_store table: %w", err)
	}
	return &SQL{db: db, d: d}, nil
}

func (s *SQL) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, s.d.get, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %q: %w", key, err)
	}
	return value, true, nil
}

func (s *SQL) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.db.ExecContext(ctx, s.d.put, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("writing %q: %w", key, err)
	}
	return nil
}

func (s *SQL) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.d.del, key); err != nil {
		return fmt.Errorf("deleting %q: %w", key, err)
	}
	return nil
}

func (s *SQL) Close() error { return s.db.Close() }
