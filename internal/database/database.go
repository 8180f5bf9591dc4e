// Package database is the data-access layer shared by every transaction worker.
//
// The embedded engine forbids sharing a connection handle between goroutines, so a
// [Database] hands out one [Conn] per worker identity. A worker obtains its connection once
// with [Database.Worker], passes it down explicitly for its whole lifetime, and returns it
// with [Database.Release]. The same identity always receives the same [Conn] until it is
// released, and no other identity ever receives it while it is held.
//
// Mutations executed through [Conn.Execute] or [Conn.Insert] synchronously notify every
// subscriber registered with [Database.Subscribe] that a write cycle finished.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/cadence/internal/shared"
	"github.com/desertthunder/cadence/internal/statement"
)

// Options configures [Open].
type Options struct {
	Path         string // ":memory:" opens a shared in-memory store
	Schema       string // Which USE block of the bootstrap script applies
	BusyTimeout  int
	MaxOpenConns int
	MaxIdleConns int
	Logger       *log.Logger
}

// OptionsFromConfig maps the [shared.Config] database section onto [Options].
func OptionsFromConfig(c *shared.Config, logger *log.Logger) (Options, error) {
	path, err := c.DatabasePath()
	if err != nil {
		return Options{}, fmt.Errorf("failed to resolve database path: %w", err)
	}
	return Options{
		Path:         path,
		Schema:       c.SchemaName(),
		BusyTimeout:  c.Database.BusyTimeout,
		MaxOpenConns: c.Database.MaxOpenConns,
		MaxIdleConns: c.Database.MaxIdleConns,
		Logger:       logger,
	}, nil
}

// WriteCycle describes a completed mutation.
type WriteCycle struct {
	Worker       string
	Statement    statement.Statement
	RowsAffected int64
}

type subscriber struct {
	id int
	fn func(WriteCycle)
}

// Database owns the connection pool, the per-worker connections and the column map cache.
type Database struct {
	db     *sql.DB
	schema string
	logger *log.Logger

	mu      sync.Mutex
	workers map[string]*Conn
	closed  bool

	subMu       sync.RWMutex
	subscribers []subscriber
	nextSub     int

	colMu   sync.RWMutex
	columns map[string]*ColumnMap
}

// Open opens the store, bootstraps the configured schema and applies forward-compatible column additions.
func Open(ctx context.Context, opts Options) (*Database, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("%w: database path is required", shared.ErrMissingArgument)
	}
	if opts.Schema == "" {
		opts.Schema = "library"
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 8
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 2
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	if opts.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := shared.NewDatabase(opts.Path, opts.BusyTimeout)
	if err != nil {
		return nil, err
	}
	shared.ConfigureDatabase(db, opts.MaxOpenConns, opts.MaxIdleConns)

	d := &Database{
		db:      db,
		schema:  opts.Schema,
		logger:  shared.WithLogger(opts.Logger, "component", "database"),
		workers: make(map[string]*Conn),
		columns: make(map[string]*ColumnMap),
	}

	if err := d.initialize(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// Schema returns the schema name the store was bootstrapped with.
func (d *Database) Schema() string { return d.schema }

// Worker returns the connection owned by the worker id, opening it on first use.
func (d *Database) Worker(ctx context.Context, id string) (*Conn, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, shared.ErrDatabaseClosed
	}
	if c, ok := d.workers[id]; ok {
		d.mu.Unlock()
		return c, nil
	}
	d.mu.Unlock()

	sc, err := d.db.Conn(ctx)
	if err != nil {
		return nil, wrap("acquire connection", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		sc.Close()
		return nil, shared.ErrDatabaseClosed
	}
	if c, ok := d.workers[id]; ok {
		sc.Close()
		return c, nil
	}
	c := &Conn{id: id, conn: sc, db: d}
	d.workers[id] = c
	d.logger.Debug("worker connection opened", "worker", id)
	return c, nil
}

// Release returns the worker's connection to the pool. Releasing an unknown id is a no-op.
func (d *Database) Release(id string) error {
	d.mu.Lock()
	c, ok := d.workers[id]
	delete(d.workers, id)
	d.mu.Unlock()

	if !ok {
		return nil
	}
	d.logger.Debug("worker connection released", "worker", id)
	return c.conn.Close()
}

// WorkerCount returns how many workers currently hold a connection.
func (d *Database) WorkerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.workers)
}

// Subscribe registers fn to run after every write cycle; the returned func removes it.
//
// Subscribers run synchronously on the worker that executed the mutation.
func (d *Database) Subscribe(fn func(WriteCycle)) func() {
	d.subMu.Lock()
	defer d.subMu.Unlock()

	d.nextSub++
	id := d.nextSub
	d.subscribers = append(d.subscribers, subscriber{id: id, fn: fn})

	return func() {
		d.subMu.Lock()
		defer d.subMu.Unlock()
		for i, s := range d.subscribers {
			if s.id == id {
				d.subscribers = append(d.subscribers[:i], d.subscribers[i+1:]...)
				return
			}
		}
	}
}

func (d *Database) notify(wc WriteCycle) {
	d.subMu.RLock()
	subs := make([]subscriber, len(d.subscribers))
	copy(subs, d.subscribers)
	d.subMu.RUnlock()

	for _, s := range subs {
		s.fn(wc)
	}
}

// Close releases every worker connection and closes the pool.
func (d *Database) Close() error {
	d.mu.Lock()
	d.closed = true
	workers := d.workers
	d.workers = make(map[string]*Conn)
	d.mu.Unlock()

	for id, c := range workers {
		if err := c.conn.Close(); err != nil {
			d.logger.Warn("failed to close worker connection", "worker", id, "error", err)
		}
	}
	return d.db.Close()
}

func (d *Database) cachedColumns(table string) (*ColumnMap, bool) {
	d.colMu.RLock()
	defer d.colMu.RUnlock()
	m, ok := d.columns[table]
	return m, ok
}

func (d *Database) cacheColumns(table string, m *ColumnMap) {
	d.colMu.Lock()
	defer d.colMu.Unlock()
	d.columns[table] = m
}

func (d *Database) forgetColumns(table string) {
	d.colMu.Lock()
	defer d.colMu.Unlock()
	delete(d.columns, table)
}
