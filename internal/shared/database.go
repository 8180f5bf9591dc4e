package shared

import (
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

// DSN builds a go-sqlite3 data source name with WAL journaling, the given busy timeout and foreign keys enabled.
//
// The path can be ":memory:" for an in-memory database; it is then shared between connections
// so that every worker sees the same store.
func DSN(path string, busyTimeout int) string {
	if busyTimeout <= 0 {
		busyTimeout = 5000
	}
	q := url.Values{}
	q.Set("_busy_timeout", fmt.Sprint(busyTimeout))
	q.Set("_foreign_keys", "on")
	if path == ":memory:" {
		q.Set("cache", "shared")
		q.Set("mode", "memory")
		return "file::memory:?" + q.Encode()
	}
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "NORMAL")
	return "file:" + path + "?" + q.Encode()
}

// NewDatabase opens a connection pool to a SQLite database at the specified path.
// Returns an open database handle or an error if connection fails.
func NewDatabase(path string, busyTimeout int) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", DSN(path, busyTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// ConfigureDatabase sets connection pool settings for the database.
//
// Worker connections are checked out with [sql.DB.Conn]; maxOpenConns bounds how many
// transactions can hold one at the same time.
func ConfigureDatabase(db *sql.DB, maxOpenConns, maxIdleConns int) {
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
}
