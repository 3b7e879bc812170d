package persist

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLStorage is a database/sql backed storage. It works with PostgreSQL,
// MySQL and SQLite drivers. Requires a table with schema:
//
//	CREATE TABLE campusdesk_state (
//	    state_key VARCHAR(128) PRIMARY KEY,
//	    data BYTEA NOT NULL,
//	    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
//	);
//
// CreateTable creates it for the configured dialect.
type SQLStorage struct {
	db        *sql.DB
	tableName string
	dialect   SQLDialect
	ownsDB    bool

	mu     sync.RWMutex
	closed bool
}

// SQLDialect represents the SQL dialect for query generation.
type SQLDialect int

const (
	// DialectSQLite uses SQLite syntax (? placeholders).
	DialectSQLite SQLDialect = iota
	// DialectPostgreSQL uses PostgreSQL syntax ($1, $2 placeholders).
	DialectPostgreSQL
	// DialectMySQL uses MySQL syntax (? placeholders).
	DialectMySQL
)

// SQLStorageOption configures SQLStorage behavior.
type SQLStorageOption func(*SQLStorage)

// WithSQLTableName sets the table name. Default: "campusdesk_state".
func WithSQLTableName(name string) SQLStorageOption {
	return func(s *SQLStorage) {
		s.tableName = name
	}
}

// WithSQLDialect sets the SQL dialect. Default: DialectSQLite.
func WithSQLDialect(dialect SQLDialect) SQLStorageOption {
	return func(s *SQLStorage) {
		s.dialect = dialect
	}
}

// NewSQLStorage wraps an open database. Close does not close db.
func NewSQLStorage(db *sql.DB, opts ...SQLStorageOption) *SQLStorage {
	s := &SQLStorage{
		db:        db,
		tableName: "campusdesk_state",
		dialect:   DialectSQLite,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenSQLite opens (or creates) a SQLite database file with the pure-Go
// modernc.org/sqlite driver and ensures the state table exists. The
// returned storage owns the database and closes it on Close.
func OpenSQLite(ctx context.Context, path string, opts ...SQLStorageOption) (*SQLStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := NewSQLStorage(db, append([]SQLStorageOption{WithSQLDialect(DialectSQLite)}, opts...)...)
	s.ownsDB = true
	if err := s.CreateTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	return s, nil
}

func (s *SQLStorage) placeholder(n int) string {
	if s.dialect == DialectPostgreSQL {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStorage) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Load returns the stored bytes for key.
func (s *SQLStorage) Load(ctx context.Context, key string) ([]byte, error) {
	if s.isClosed() {
		return nil, ErrStorageClosed
	}

	query := fmt.Sprintf(`SELECT data FROM %s WHERE state_key = %s`, s.tableName, s.placeholder(1))

	var data []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// Save upserts the bytes for key in a single statement.
func (s *SQLStorage) Save(ctx context.Context, key string, data []byte) error {
	if s.isClosed() {
		return ErrStorageClosed
	}

	var query string
	switch s.dialect {
	case DialectPostgreSQL:
		query = fmt.Sprintf(`
			INSERT INTO %s (state_key, data, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (state_key) DO UPDATE SET
				data = EXCLUDED.data,
				updated_at = NOW()
		`, s.tableName)
	case DialectMySQL:
		query = fmt.Sprintf(`
			INSERT INTO %s (state_key, data, updated_at)
			VALUES (?, ?, NOW())
			ON DUPLICATE KEY UPDATE
				data = VALUES(data),
				updated_at = NOW()
		`, s.tableName)
	default:
		query = fmt.Sprintf(`
			INSERT OR REPLACE INTO %s (state_key, data, updated_at)
			VALUES (?, ?, datetime('now'))
		`, s.tableName)
	}

	_, err := s.db.ExecContext(ctx, query, key, data)
	return err
}

// Delete removes key.
func (s *SQLStorage) Delete(ctx context.Context, key string) error {
	if s.isClosed() {
		return ErrStorageClosed
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE state_key = %s`, s.tableName, s.placeholder(1))
	_, err := s.db.ExecContext(ctx, query, key)
	return err
}

// Close marks the storage closed, closing the database if OpenSQLite
// created it.
func (s *SQLStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

// CreateTable creates the state table if it doesn't exist.
func (s *SQLStorage) CreateTable(ctx context.Context) error {
	var query string
	switch s.dialect {
	case DialectPostgreSQL:
		query = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				state_key VARCHAR(128) PRIMARY KEY,
				data BYTEA NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			)
		`, s.tableName)
	case DialectMySQL:
		query = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				state_key VARCHAR(128) PRIMARY KEY,
				data LONGBLOB NOT NULL,
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
			)
		`, s.tableName)
	default:
		query = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				state_key TEXT PRIMARY KEY,
				data BLOB NOT NULL,
				updated_at TEXT DEFAULT (datetime('now'))
			)
		`, s.tableName)
	}

	_, err := s.db.ExecContext(ctx, query)
	return err
}
