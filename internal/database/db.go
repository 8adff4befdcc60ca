package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"zlot-parking/internal/store"

	"github.com/go-sql-driver/mysql"
)

// ErrReadOnly is returned by VerifyWriteAccess when the server or the
// session refuses writes.
var ErrReadOnly = errors.New("database connection is read only")

// MySQL error numbers that mean another transaction won a lock race.
const (
	errLockWaitTimeout uint16 = 1205
	errDeadlock        uint16 = 1213
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// DB implements store.Store on MySQL. Inside WithinTx, q is the open
// transaction and lookups that feed a decision take row locks.
type DB struct {
	*sql.DB
	q    querier
	inTx bool
}

func NewDB(dsn string) (*DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return New(db), nil
}

// New wraps an open pool.
func New(db *sql.DB) *DB {
	return &DB{DB: db, q: db}
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// VerifyWriteAccess refuses to operate on a read-only server or session.
func (db *DB) VerifyWriteAccess(ctx context.Context) error {
	var globalRO, sessionRO int
	err := db.q.QueryRowContext(ctx, "SELECT @@global.read_only, @@session.transaction_read_only").
		Scan(&globalRO, &sessionRO)
	if err != nil {
		return fmt.Errorf("failed to check write access: %w", err)
	}
	if globalRO != 0 || sessionRO != 0 {
		return ErrReadOnly
	}
	return nil
}

func (db *DB) WithinTx(ctx context.Context, fn func(tx store.Store) error) error {
	if db.inTx {
		return fn(db)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&DB{DB: db.DB, q: tx, inTx: true}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapErr(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// forUpdate returns the locking clause for reads inside a transaction.
func (db *DB) forUpdate() string {
	if db.inTx {
		return " FOR UPDATE"
	}
	return ""
}

// mapErr turns lock races into store.ErrConflict.
func mapErr(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && (myErr.Number == errDeadlock || myErr.Number == errLockWaitTimeout) {
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	}
	return err
}

func queryList[T any](ctx context.Context, q querier, scan func(scanner) (*T, error), query string, args ...any) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// queryOne scans a single row, translating sql.ErrNoRows to store.ErrNotFound.
func queryOne[T any](ctx context.Context, q querier, scan func(scanner) (*T, error), query string, args ...any) (*T, error) {
	item, err := scan(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return item, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func limitClause(limit int) string {
	if limit > 0 {
		return fmt.Sprintf(" LIMIT %d", limit)
	}
	return ""
}

var _ store.Store = (*DB)(nil)
