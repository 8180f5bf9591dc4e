package tasks

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/desertthunder/cadence/internal/database"
	"github.com/desertthunder/cadence/internal/models"
	"github.com/desertthunder/cadence/internal/repositories"
	"github.com/desertthunder/cadence/internal/statement"
)

var selectColumns = regexp.MustCompile(`(?is)^\s*SELECT\s+(.+?)\s+FROM\s`)

// CountStatement derives a COUNT(*) query from a SELECT by rewriting its column list.
// It reports false when the statement is not a plain SELECT or binds values in its column list.
func CountStatement(stmt statement.Statement) (statement.Statement, bool) {
	text := stmt.SQL()
	m := selectColumns.FindStringSubmatchIndex(text)
	if m == nil {
		return statement.Statement{}, false
	}
	if strings.Contains(text[m[2]:m[3]], "?") {
		return statement.Statement{}, false
	}
	count, err := statement.Parse(text[:m[2]]+"COUNT(*)"+text[m[3]:], stmt.Args()...)
	if err != nil {
		return statement.Statement{}, false
	}
	return count, true
}

// SqlLoad streams the rows of an arbitrary SELECT as tracks through [Transaction.OnHaveTrack].
//
// Rows whose TrackID is already in the library are announced as the library's track; other rows
// are converted column by column. A failing count leaves the total indeterminate.
type SqlLoad struct {
	*Transaction

	query statement.Statement
	count *statement.Statement
	rows  atomic.Int64
}

func NewSqlLoad(lc *LibraryContext, query statement.Statement) *SqlLoad {
	s := &SqlLoad{query: query}
	s.Transaction = newTransaction(lc, KindSqlLoad, "Loading Tracks", s)
	return s
}

// WithCount sets an explicit counting statement used instead of the derived one.
func (s *SqlLoad) WithCount(count statement.Statement) *SqlLoad {
	s.count = &count
	return s
}

// Rows returns how many rows were announced.
func (s *SqlLoad) Rows() int { return int(s.rows.Load()) }

func (s *SqlLoad) Tables() []string { return nil }

func (s *SqlLoad) Run(ctx context.Context, conn *database.Conn) error {
	s.SetTotal(s.total(ctx, conn))
	s.SetStatus("Running query...")

	rows, err := conn.Query(ctx, s.query)
	if err != nil {
		return fmt.Errorf("failed to run query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("failed to read columns: %w", err)
	}

	for rows.Next() {
		if s.CancelRequested() {
			return nil
		}
		start := time.Now()

		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			s.logger.Debug("skipping row", "error", err)
			s.Step()
			continue
		}

		s.haveTrack(s.track(columns, values))
		s.rows.Add(1)
		s.Step()
		s.UpdateAverageDuration(start)
	}

	if err := rows.Err(); err != nil && !s.CancelRequested() {
		return fmt.Errorf("row iteration error: %w", err)
	}
	s.SetStatus("Loaded %d tracks", s.Rows())
	return nil
}

func (s *SqlLoad) total(ctx context.Context, conn *database.Conn) int {
	var count statement.Statement
	if s.count != nil {
		count = *s.count
	} else {
		derived, ok := CountStatement(s.query)
		if !ok {
			return 0
		}
		count = derived
	}

	n, err := conn.QueryInt(ctx, count)
	if err != nil {
		s.logger.Debug("count query failed", "error", err)
		return 0
	}
	return int(n)
}

func (s *SqlLoad) track(columns []string, values []any) *models.Track {
	t := repositories.TrackFromRow(columns, values)
	if t.ID != 0 {
		if known, ok := s.lc.Library.Lookup(t.ID); ok {
			return known
		}
	}
	return t
}
