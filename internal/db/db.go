package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("db: record not found")
	// ErrUnavailable is returned when the database cannot be reached.
	ErrUnavailable = errors.New("db: store unavailable")
)

// DuplicateError reports a unique constraint violation. Field is the
// offending column when the driver error names it.
type DuplicateError struct {
	Field string
	err   error
}

func (e *DuplicateError) Error() string {
	if e.Field == "" {
		return "db: duplicate key"
	}
	return "db: duplicate " + e.Field
}

func (e *DuplicateError) Unwrap() error {
	return e.err
}

type DB struct {
	*sql.DB
	driver string
}

// rebind rewrites ? placeholders into the $n form postgres expects.
func (db *DB) rebind(query string) string {
	if db.driver != "postgres" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// State is the lifecycle state of a Manager's connection.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Manager owns the lazily established connection pool. The pool it hands
// out is shared by all concurrent requests.
type Manager struct {
	driver  string
	dsn     string
	timeout time.Duration
	open    func(driver, dsn string) (*sql.DB, error)

	mu    sync.Mutex
	state State
	db    *DB
}

func NewManager(driver, dsn string, connectTimeout time.Duration) *Manager {
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	return &Manager{
		driver:  driver,
		dsn:     dsn,
		timeout: connectTimeout,
		open:    sql.Open,
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// EnsureConnected returns the pool, connecting and migrating on first use.
// A failed attempt leaves the manager Disconnected so the next call retries.
func (m *Manager) EnsureConnected(ctx context.Context) (*DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Connected {
		return m.db, nil
	}
	m.state = Connecting

	db, err := m.connect(ctx)
	if err != nil {
		m.state = Disconnected
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	m.db = db
	m.state = Connected
	return db, nil
}

func (m *Manager) connect(ctx context.Context) (*DB, error) {
	sqlDB, err := m.open(m.driver, m.dsn)
	if err != nil {
		return nil, err
	}

	if m.driver == "sqlite3" {
		// sqlite allows a single writer; one connection also keeps
		// in-memory databases alive for the life of the pool.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(25)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}

	db := &DB{DB: sqlDB, driver: m.driver}
	if err := createTables(ctx, db); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	m.state = Disconnected
	return err
}

// Ping reports whether the store is reachable, connecting if needed.
func (m *Manager) Ping(ctx context.Context) error {
	db, err := m.EnsureConnected(ctx)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func createTables(ctx context.Context, db *DB) error {
	ts, float := "TIMESTAMP", "REAL"
	if db.driver == "postgres" {
		ts, float = "TIMESTAMPTZ", "DOUBLE PRECISION"
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'viewer',
			created_at ` + ts + ` NOT NULL,
			CONSTRAINT users_username_key UNIQUE (username),
			CONSTRAINT users_email_key UNIQUE (email)
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			username TEXT NOT NULL,
			name TEXT NOT NULL,
			expires_at ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS movies (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL,
			year INTEGER NOT NULL,
			rating ` + float + `,
			owner_id TEXT,
			created_at ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS movie_genres (
			movie_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			genre TEXT NOT NULL,
			genre_key TEXT NOT NULL,
			PRIMARY KEY (movie_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_movie_genres_key ON movie_genres (genre_key)`,
		`CREATE INDEX IF NOT EXISTS idx_movies_owner ON movies (owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions (expires_at)`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create table: %v", err)
		}
	}

	return nil
}

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		// "UNIQUE constraint failed: users.username"
		return &DuplicateError{Field: fieldFromText(sqliteErr.Error()), err: err}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return &DuplicateError{Field: fieldFromText(pqErr.Constraint), err: err}
	}

	if connectionLost(err) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

// connectionLost reports errors that mean the server went away after the
// pool was established.
func connectionLost(err error) bool {
	if errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func fieldFromText(s string) string {
	switch {
	case strings.Contains(s, "username"):
		return "username"
	case strings.Contains(s, "email"):
		return "email"
	default:
		return ""
	}
}
