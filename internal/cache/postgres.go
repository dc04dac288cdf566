package cache

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const (
	selectEntrySQL = `SELECT value FROM cache_entries WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`
	existsEntrySQL = `SELECT EXISTS (SELECT 1 FROM cache_entries WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2))`
	upsertEntrySQL = `INSERT INTO cache_entries (key, value, expires_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`
	deleteEntrySQL   = `DELETE FROM cache_entries WHERE key = $1`
	deletePrefixSQL  = `DELETE FROM cache_entries WHERE key LIKE $1 ESCAPE '\'`
	deleteExpiredSQL = `DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at <= $1`
)

// DBPool is the subset of pgxpool.Pool used by PostgresStore.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore keeps entries in the cache_entries table. Expiry is checked in the query,
// so stale rows are invisible until PurgeExpired removes them.
type PostgresStore struct {
	pool DBPool
	now  func() time.Time

	// schema prepares the table. It runs before the first statement and is retried on
	// later calls until it succeeds.
	schema   func(ctx context.Context) error
	schemaMu sync.Mutex
	prepared bool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore opens a connection pool without connecting. The embedded migrations are
// applied on first use, so an unreachable server surfaces as an operation error that the
// read-through cache can recover from.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	store := NewPostgresStoreFromPool(pool, nil)
	store.schema = func(ctx context.Context) error { return migrate(ctx, dsn) }
	return store, nil
}

// NewPostgresStoreFromPool wraps an existing pool. A nil clock defaults to time.Now.
func NewPostgresStoreFromPool(pool DBPool, now func() time.Time) *PostgresStore {
	if now == nil {
		now = time.Now
	}
	return &PostgresStore{pool: pool, now: now}
}

func migrate(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply cache migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if s.schema == nil {
		return nil
	}
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.prepared {
		return nil
	}
	if err := s.schema(ctx); err != nil {
		return err
	}
	s.prepared = true
	return nil
}

func (s *PostgresStore) Name() string { return "postgres" }

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, false, err
	}
	var value []byte
	err := s.pool.QueryRow(ctx, selectEntrySQL, key, s.now()).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query cache_entries: %w", err)
	}
	return value, true, nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	var expiresAt any
	if ttl > 0 {
		expiresAt = s.now().Add(ttl)
	}
	if _, err := s.pool.Exec(ctx, upsertEntrySQL, key, value, expiresAt); err != nil {
		return fmt.Errorf("upsert cache_entries: %w", err)
	}
	return nil
}

func (s *PostgresStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return false, err
	}
	var exists bool
	if err := s.pool.QueryRow(ctx, existsEntrySQL, key, s.now()).Scan(&exists); err != nil {
		return false, fmt.Errorf("query cache_entries: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, deleteEntrySQL, key); err != nil {
		return fmt.Errorf("delete cache_entries: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, deletePrefixSQL, escapeLike(prefix)+"%")
	if err != nil {
		return 0, fmt.Errorf("delete cache_entries by prefix: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// PurgeExpired deletes rows whose expiry has passed.
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, deleteExpiredSQL, s.now())
	if err != nil {
		return 0, fmt.Errorf("purge cache_entries: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return err
	}
	return s.ensureSchema(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
