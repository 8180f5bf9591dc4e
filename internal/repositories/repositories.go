// package repositories provides persistence layer implementations for all model types.
//
// Each repository implements models.Repository[T] for a specific entity type over a single
// worker connection, building every statement with the statement package.
package repositories

import (
	"database/sql"
	"time"

	"github.com/desertthunder/cadence/internal/statement"
)

// MaxBatch bounds the IDs in one chained statement. SQLite rejects expression trees deeper
// than 1000.
const MaxBatch = 500

// Batches splits ids into consecutive chunks of at most size IDs, keeping their order.
func Batches(ids []int64, size int) [][]int64 {
	if size <= 0 {
		size = MaxBatch
	}
	var out [][]int64
	for len(ids) > size {
		out = append(out, ids[:size:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

// IDChain builds "column = a OR column = b ..." over ids in order. Callers keep ids within
// [MaxBatch].
func IDChain(column string, ids []int64) statement.Statement {
	conds := make([]statement.Statement, 0, len(ids))
	for _, id := range ids {
		conds = append(conds, statement.Compare(column, "=", id))
	}
	return statement.Or(conds...)
}

// nullable maps the zero value of a column to SQL null.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func stamp(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}

func fromStamp(v sql.NullInt64) time.Time {
	if !v.Valid || v.Int64 == 0 {
		return time.Time{}
	}
	return time.Unix(v.Int64, 0)
}
