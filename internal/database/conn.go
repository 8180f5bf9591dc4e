package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/cadence/internal/statement"
)

// Conn is a single engine connection owned by one worker.
type Conn struct {
	id   string
	conn *sql.Conn
	db   *Database
}

// Worker returns the identity that owns this connection.
func (c *Conn) Worker() string { return c.id }

// Database returns the store this connection belongs to.
func (c *Conn) Database() *Database { return c.db }

// Query runs a row-returning statement. Callers close the returned rows.
func (c *Conn) Query(ctx context.Context, stmt statement.Statement) (*sql.Rows, error) {
	c.db.logger.Debug("query", "worker", c.id, "sql", stmt.String())
	rows, err := c.conn.QueryContext(ctx, stmt.SQL(), stmt.Args()...)
	if err != nil {
		return nil, wrap("query", err)
	}
	return rows, nil
}

// QuerySingle returns the first column of the first row, or nil when there are no rows.
func (c *Conn) QuerySingle(ctx context.Context, stmt statement.Statement) (any, error) {
	c.db.logger.Debug("query single", "worker", c.id, "sql", stmt.String())

	var v any
	err := c.conn.QueryRowContext(ctx, stmt.SQL(), stmt.Args()...).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("query single", err)
	}
	if b, ok := v.([]byte); ok {
		return string(b), nil
	}
	return v, nil
}

// QueryInt is [Conn.QuerySingle] for integer results; no rows or null yield 0.
func (c *Conn) QueryInt(ctx context.Context, stmt statement.Statement) (int64, error) {
	v, err := c.QuerySingle(ctx, stmt)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("query int: unexpected result type %T", v)
	}
}

// Execute runs a mutation, notifies write-cycle subscribers and returns the affected row count.
func (c *Conn) Execute(ctx context.Context, stmt statement.Statement) (int64, error) {
	res, err := c.exec(ctx, stmt)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrap("rows affected", err)
	}
	c.db.notify(WriteCycle{Worker: c.id, Statement: stmt, RowsAffected: n})
	return n, nil
}

// Insert runs an INSERT, notifies write-cycle subscribers and returns the new row id.
func (c *Conn) Insert(ctx context.Context, stmt statement.Statement) (int64, error) {
	res, err := c.exec(ctx, stmt)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrap("last insert id", err)
	}
	c.db.notify(WriteCycle{Worker: c.id, Statement: stmt, RowsAffected: 1})
	return id, nil
}

// TableExists reports whether a table with the given name is present in the catalog.
func (c *Conn) TableExists(ctx context.Context, name string) (bool, error) {
	n, err := c.QueryInt(ctx, statement.Count("sqlite_master").Append(
		statement.Where(statement.And(
			statement.Compare("type", "=", "table"),
			statement.Compare("name", "=", name),
		)),
	))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ColumnMap returns the ordinal-to-name mapping of table, parsed from its declaration and cached.
func (c *Conn) ColumnMap(ctx context.Context, table string) (*ColumnMap, error) {
	if m, ok := c.db.cachedColumns(table); ok {
		return m, nil
	}

	v, err := c.QuerySingle(ctx, statement.Select("sqlite_master", "sql").Append(
		statement.Where(statement.And(
			statement.Compare("type", "=", "table"),
			statement.Compare("name", "=", table),
		)),
	))
	if err != nil {
		return nil, err
	}
	ddl, ok := v.(string)
	if !ok || ddl == "" {
		return nil, &Error{Kind: KindSchemaMismatch, Op: "column map", Err: fmt.Errorf("no such table: %s", table)}
	}

	m, err := ParseColumns(ddl)
	if err != nil {
		return nil, &Error{Kind: KindSchemaMismatch, Op: "column map", Err: err}
	}
	c.db.cacheColumns(table, m)
	return m, nil
}

func (c *Conn) exec(ctx context.Context, stmt statement.Statement) (sql.Result, error) {
	c.db.logger.Debug("execute", "worker", c.id, "sql", stmt.String())
	res, err := c.conn.ExecContext(ctx, stmt.SQL(), stmt.Args()...)
	if err != nil {
		return nil, wrap("execute", err)
	}
	return res, nil
}
