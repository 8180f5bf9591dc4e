package database

import (
	"bufio"
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/desertthunder/cadence/internal/shared"
	"github.com/desertthunder/cadence/internal/statement"
)

//go:embed schema.sql
var schemaScript string

const guardDirective = "--IF TABLE NOT EXISTS"

// scriptStatement is one statement of the bootstrap script with the schema block it belongs to
// and the optional table guard preceding it.
type scriptStatement struct {
	Schema string
	Guard  string
	SQL    string
}

// parseScript splits a bootstrap script into statements.
//
// "USE <name>" lines open a schema block. A "--IF TABLE NOT EXISTS <table>" line guards the
// statement that follows it. Other comment lines are dropped and statements end at ";".
func parseScript(script string) []scriptStatement {
	var (
		out    []scriptStatement
		schema string
		guard  string
		buf    []string
	)

	flush := func() {
		text := strings.TrimSpace(strings.Join(buf, "\n"))
		text = strings.TrimSpace(strings.TrimSuffix(text, ";"))
		buf = nil
		if text == "" {
			return
		}
		out = append(out, scriptStatement{Schema: schema, Guard: guard, SQL: text})
		guard = ""
	}

	scanner := bufio.NewScanner(strings.NewReader(script))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case strings.HasPrefix(strings.ToUpper(line), guardDirective):
			flush()
			guard = strings.TrimSpace(line[len(guardDirective):])
			continue
		case strings.HasPrefix(line, "--"):
			continue
		case len(buf) == 0 && isUse(line):
			flush()
			schema = strings.TrimSuffix(strings.TrimSpace(line[len("USE"):]), ";")
			guard = ""
			continue
		}

		buf = append(buf, stripComment(line))
		if strings.HasSuffix(strings.TrimSpace(stripComment(line)), ";") {
			flush()
		}
	}
	flush()
	return out
}

func isUse(line string) bool {
	fields := strings.Fields(line)
	return len(fields) == 2 && strings.EqualFold(fields[0], "USE")
}

// stripComment drops a trailing "--" comment outside string literals.
func stripComment(line string) string {
	quoted := false
	for i := 0; i < len(line)-1; i++ {
		switch {
		case line[i] == '\'':
			quoted = !quoted
		case !quoted && line[i] == '-' && line[i+1] == '-':
			return strings.TrimSpace(line[:i])
		}
	}
	return line
}

// Bootstrap runs the schema block of the embedded script.
//
// Guards are evaluated against the tables that existed before the script started, so a guarded
// seed insert runs together with the CREATE that precedes it on first bootstrap and never again.
func Bootstrap(ctx context.Context, c *Conn, schema string) error {
	return bootstrapScript(ctx, c, schemaScript, schema)
}

func bootstrapScript(ctx context.Context, c *Conn, script, schema string) error {
	var stmts []scriptStatement
	for _, s := range parseScript(script) {
		if strings.EqualFold(s.Schema, schema) {
			stmts = append(stmts, s)
		}
	}
	if len(stmts) == 0 {
		return fmt.Errorf("%w: no bootstrap statements for schema %q", shared.ErrInvalidConfig, schema)
	}

	existing, err := tableNames(ctx, c)
	if err != nil {
		return fmt.Errorf("failed to snapshot catalog: %w", err)
	}

	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return wrap("begin bootstrap", err)
	}
	defer tx.Rollback()

	for _, s := range stmts {
		if s.Guard != "" {
			if _, ok := existing[strings.ToLower(s.Guard)]; ok {
				continue
			}
		}
		if _, err := tx.ExecContext(ctx, s.SQL); err != nil {
			return fmt.Errorf("failed to execute bootstrap statement: %w\nStatement: %s", wrap("bootstrap", err), s.SQL)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrap("commit bootstrap", err)
	}
	return nil
}

func tableNames(ctx context.Context, c *Conn) (map[string]struct{}, error) {
	rows, err := c.Query(ctx, statement.Select("sqlite_master", "name").Append(
		statement.Where(statement.Compare("type", "=", "table")),
	))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, wrap("scan table name", err)
		}
		names[strings.ToLower(name)] = struct{}{}
	}
	return names, wrap("iterate table names", rows.Err())
}

// columnAddition is a column introduced after the first release of a schema.
type columnAddition struct {
	Schema     string
	Table      string
	Column     string
	Definition string
}

var columnAdditions = []columnAddition{
	{Schema: "library", Table: "Tracks", Column: "MimeType", Definition: "TEXT"},
	{Schema: "library", Table: "Tracks", Column: "LastPlayedStamp", Definition: "INTEGER"},
	{Schema: "library", Table: "Tracks", Column: "Rating", Definition: "INTEGER NOT NULL DEFAULT 0"},
	{Schema: "library", Table: "Playlists", Column: "SortColumn", Definition: "INTEGER NOT NULL DEFAULT -1"},
	{Schema: "library", Table: "Playlists", Column: "SortType", Definition: "INTEGER NOT NULL DEFAULT 0"},
}

// Migrate probes every known column addition for schema and adds the columns that are missing.
//
// A probe that fails for any reason counts as the column being absent.
func Migrate(ctx context.Context, c *Conn, schema string) error {
	return migrateColumns(ctx, c, schema, columnAdditions)
}

func migrateColumns(ctx context.Context, c *Conn, schema string, additions []columnAddition) error {
	for _, a := range additions {
		if !strings.EqualFold(a.Schema, schema) {
			continue
		}
		if columnPresent(ctx, c, a.Table, a.Column) {
			continue
		}

		alter := statement.Raw(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", a.Table, a.Column, a.Definition))
		if _, err := c.exec(ctx, alter); err != nil {
			return fmt.Errorf("failed to add column %s.%s: %w", a.Table, a.Column, err)
		}
		c.db.forgetColumns(a.Table)
		c.db.logger.Info("added column", "table", a.Table, "column", a.Column)
	}
	return nil
}

func columnPresent(ctx context.Context, c *Conn, table, column string) bool {
	rows, err := c.Query(ctx, statement.Select(table, column).Append(statement.Limit(1)))
	if err != nil {
		return false
	}
	rows.Close()
	return true
}

func (d *Database) initialize(ctx context.Context) error {
	const worker = "bootstrap"

	c, err := d.Worker(ctx, worker)
	if err != nil {
		return err
	}
	defer d.Release(worker)

	if err := Bootstrap(ctx, c, d.schema); err != nil {
		return err
	}
	return Migrate(ctx, c, d.schema)
}
