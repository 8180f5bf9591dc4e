// Package statement builds SQL text from typed fragments without hand-concatenating values.
//
// A [Statement] is an immutable pair of SQL text and bound arguments. Fragments compose by
// concatenation in clause order:
//
//	stmt := statement.Concat(
//		statement.Select("Tracks", "TrackID", "Title"),
//		statement.Where(statement.Compare("Artist", "=", "Can't")),
//		statement.OrderBy("Title"),
//		statement.Limit(10),
//	)
//	rows, err := conn.Query(ctx, stmt)
//
// Every value except nil is bound through a "?" placeholder; nil renders as the SQL keyword null.
// [Statement.String] renders the literal form (single quotes doubled) for logs and diagnostics.
//
// Argument lists that cannot pair columns with values are programmer errors: constructors panic
// with an [*ArgumentError] before anything reaches the database. Text that comes from outside the
// program goes through [Parse], which returns the same error instead.
package statement

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Statement is an immutable SQL fragment with its bound arguments.
type Statement struct {
	text string
	args []any
}

// Column marks a comparison operand as an identifier instead of a bound value.
type Column string

// ArgumentError reports a constructor call whose arguments cannot form valid SQL.
type ArgumentError struct {
	Op     string
	Count  int
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("statement: %s with %d arguments: %s", e.Op, e.Count, e.Reason)
}

func argPanic(op string, count int, reason string) {
	panic(&ArgumentError{Op: op, Count: count, Reason: reason})
}

// Raw wraps literal SQL text. The number of "?" placeholders outside literals, quoted identifiers
// and comments must match args.
func Raw(text string, args ...any) Statement {
	stmt, err := parse("Raw", text, args)
	if err != nil {
		panic(err)
	}
	return stmt
}

// Parse is [Raw] for runtime text such as a user query: a placeholder mismatch is returned as an
// [*ArgumentError] instead of panicking.
func Parse(text string, args ...any) (Statement, error) {
	return parse("Parse", text, args)
}

func parse(op, text string, args []any) (Statement, error) {
	offsets, numbered := placeholders(text)
	if numbered {
		return Statement{}, &ArgumentError{Op: op, Count: len(args), Reason: "numbered parameters are not supported"}
	}
	if len(offsets) != len(args) {
		return Statement{}, &ArgumentError{Op: op, Count: len(args), Reason: fmt.Sprintf("text has %d placeholders", len(offsets))}
	}
	return Statement{text: strings.TrimSpace(text), args: copyArgs(args)}, nil
}

// Concat joins fragments with single spaces, skipping empty ones.
func Concat(parts ...Statement) Statement {
	var (
		texts []string
		args  []any
	)
	for _, p := range parts {
		if p.IsEmpty() {
			continue
		}
		texts = append(texts, p.text)
		args = append(args, p.args...)
	}
	return Statement{text: strings.Join(texts, " "), args: args}
}

// Append returns s followed by others.
func (s Statement) Append(others ...Statement) Statement {
	return Concat(append([]Statement{s}, others...)...)
}

// SQL returns the statement text with "?" placeholders.
func (s Statement) SQL() string { return s.text }

// Args returns a copy of the bound arguments in placeholder order.
func (s Statement) Args() []any { return copyArgs(s.args) }

// IsEmpty reports whether the statement carries no text.
func (s Statement) IsEmpty() bool { return s.text == "" }

// String renders the statement with every argument inlined as a SQL literal.
func (s Statement) String() string {
	if len(s.args) == 0 {
		return s.text
	}

	var b strings.Builder
	offsets, _ := placeholders(s.text)
	last := 0
	for n, off := range offsets {
		if n >= len(s.args) {
			break
		}
		b.WriteString(s.text[last:off])
		b.WriteString(Literal(s.args[n]))
		last = off + 1
	}
	b.WriteString(s.text[last:])
	return b.String()
}

// Escape doubles every single quote in v.
func Escape(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}

// Literal renders v the way it would appear inlined in SQL text.
func Literal(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return "'" + Escape(val) + "'"
	case []byte:
		return "X'" + hex.EncodeToString(val) + "'"
	case bool:
		if val {
			return "1"
		}
		return "0"
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case time.Time:
		return "'" + val.UTC().Format(time.RFC3339Nano) + "'"
	case time.Duration:
		return strconv.FormatInt(int64(val), 10)
	case fmt.Stringer:
		return "'" + Escape(val.String()) + "'"
	default:
		return "'" + Escape(fmt.Sprint(val)) + "'"
	}
}

// value renders v as a placeholder, or as null when v is nil.
func value(v any) (string, []any) {
	if v == nil {
		return "null", nil
	}
	return "?", []any{v}
}

func copyArgs(args []any) []any {
	if len(args) == 0 {
		return nil
	}
	out := make([]any, len(args))
	copy(out, args)
	return out
}

// placeholders returns the offsets of the "?" parameters in text, skipping string literals,
// quoted identifiers and comments. numbered reports a "?NNN" parameter.
func placeholders(text string) (offsets []int, numbered bool) {
	for i := 0; i < len(text); i++ {
		switch c := text[i]; c {
		case '\'', '"', '`':
			i = closingQuote(text, i, c)
		case '[':
			i = skipPast(text, i+1, "]")
		case '-':
			if strings.HasPrefix(text[i:], "--") {
				i = skipPast(text, i+2, "\n")
			}
		case '/':
			if strings.HasPrefix(text[i:], "/*") {
				i = skipPast(text, i+2, "*/")
			}
		case '?':
			offsets = append(offsets, i)
			if i+1 < len(text) && text[i+1] >= '0' && text[i+1] <= '9' {
				numbered = true
			}
		}
	}
	return offsets, numbered
}

// closingQuote returns the offset of the quote ending the literal opened at i. A doubled quote
// stays inside the literal.
func closingQuote(text string, i int, q byte) int {
	for j := i + 1; j < len(text); j++ {
		if text[j] != q {
			continue
		}
		if j+1 < len(text) && text[j+1] == q {
			j++
			continue
		}
		return j
	}
	return len(text)
}

// skipPast returns the offset of the last byte of the first end at or after i, or len(text).
func skipPast(text string, i int, end string) int {
	if k := strings.Index(text[i:], end); k >= 0 {
		return i + k + len(end) - 1
	}
	return len(text)
}
