package database

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// Kind classifies engine failures so callers can tell "skip and continue" from "abort".
type Kind int

const (
	KindUnknown Kind = iota
	KindConstraint
	KindConnectionLost
	KindSchemaMismatch
	KindSyntax
	KindBusy
)

func (k Kind) String() string {
	switch k {
	case KindConstraint:
		return "constraint"
	case KindConnectionLost:
		return "connection_lost"
	case KindSchemaMismatch:
		return "schema_mismatch"
	case KindSyntax:
		return "syntax"
	case KindBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// Error wraps an engine error with its [Kind] and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the [Kind] of err, classifying raw driver errors when err is not an [*Error].
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return classify(err)
}

// IsKind reports whether err is of kind k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return &Error{Kind: classify(err), Op: op, Err: err}
}

func classify(err error) Kind {
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return KindConnectionLost
	}

	var se sqlite3.Error
	if !errors.As(err, &se) {
		return KindUnknown
	}

	switch se.Code {
	case sqlite3.ErrConstraint:
		return KindConstraint
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return KindBusy
	case sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrNotADB, sqlite3.ErrCorrupt, sqlite3.ErrMisuse:
		return KindConnectionLost
	case sqlite3.ErrSchema:
		return KindSchemaMismatch
	case sqlite3.ErrError:
		msg := strings.ToLower(se.Error())
		switch {
		case strings.Contains(msg, "no such column"),
			strings.Contains(msg, "no such table"),
			strings.Contains(msg, "has no column named"):
			return KindSchemaMismatch
		case strings.Contains(msg, "syntax error"),
			strings.Contains(msg, "incomplete input"),
			strings.Contains(msg, "unrecognized token"):
			return KindSyntax
		}
	}
	return KindUnknown
}
