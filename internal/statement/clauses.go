package statement

import (
	"fmt"
	"strings"
)

var operators = map[string]struct{}{
	"=": {}, "!=": {}, "<>": {}, "<": {}, "<=": {}, ">": {}, ">=": {}, "LIKE": {}, "IS": {}, "IS NOT": {},
}

// Insert builds an INSERT statement.
//
// With named set, values alternate column name and value: Insert("Tracks", true, "Title", "x", "Year", 1999).
// Otherwise every value is positional: Insert("Tracks", false, nil, "uri", "x").
func Insert(table string, named bool, values ...any) Statement {
	if len(values) == 0 {
		argPanic("Insert", 0, "no values")
	}

	var (
		cols   []string
		places []string
		args   []any
	)
	if named {
		if len(values)%2 != 0 {
			argPanic("Insert", len(values), "column/value pairs must be even")
		}
		for i := 0; i < len(values); i += 2 {
			col, ok := values[i].(string)
			if !ok || col == "" {
				argPanic("Insert", len(values), fmt.Sprintf("argument %d is not a column name", i))
			}
			p, a := value(values[i+1])
			cols = append(cols, col)
			places = append(places, p)
			args = append(args, a...)
		}
	} else {
		for _, v := range values {
			p, a := value(v)
			places = append(places, p)
			args = append(args, a...)
		}
	}

	text := "INSERT INTO " + table
	if named {
		text += " (" + strings.Join(cols, ", ") + ")"
	}
	text += " VALUES (" + strings.Join(places, ", ") + ")"
	return Statement{text: text, args: args}
}

// Update builds an UPDATE ... SET statement from column/value pairs. Callers append a [Where].
func Update(table string, pairs ...any) Statement {
	if len(pairs) == 0 || len(pairs)%2 != 0 {
		argPanic("Update", len(pairs), "column/value pairs must be even and non-empty")
	}

	var (
		sets []string
		args []any
	)
	for i := 0; i < len(pairs); i += 2 {
		col, ok := pairs[i].(string)
		if !ok || col == "" {
			argPanic("Update", len(pairs), fmt.Sprintf("argument %d is not a column name", i))
		}
		p, a := value(pairs[i+1])
		sets = append(sets, col+" = "+p)
		args = append(args, a...)
	}
	return Statement{text: "UPDATE " + table + " SET " + strings.Join(sets, ", "), args: args}
}

// Select builds SELECT columns FROM table; no columns selects *.
func Select(table string, columns ...string) Statement {
	cols := "*"
	if len(columns) > 0 {
		cols = strings.Join(columns, ", ")
	}
	return Statement{text: "SELECT " + cols + " FROM " + table}
}

// Count builds SELECT COUNT(*) FROM table.
func Count(table string) Statement {
	return Select(table, "COUNT(*)")
}

// Delete builds DELETE FROM table. Callers append a [Where] unless the whole table is meant.
func Delete(table string) Statement {
	return Statement{text: "DELETE FROM " + table}
}

// Where prefixes a condition with WHERE. An empty condition yields an empty statement.
func Where(cond Statement) Statement {
	if cond.IsEmpty() {
		return Statement{}
	}
	return Statement{text: "WHERE " + cond.text, args: cond.args}
}

// Compare builds "left op right". A [Column] right operand is rendered as an identifier,
// nil as null (with = and != rewritten to IS and IS NOT).
func Compare(left string, op string, right any) Statement {
	op = strings.ToUpper(strings.TrimSpace(op))
	if _, ok := operators[op]; !ok {
		argPanic("Compare", 3, fmt.Sprintf("unsupported operator %q", op))
	}
	if left == "" {
		argPanic("Compare", 3, "empty left operand")
	}

	switch r := right.(type) {
	case Column:
		return Statement{text: left + " " + op + " " + string(r)}
	case nil:
		switch op {
		case "=", "IS":
			op = "IS"
		case "!=", "<>", "IS NOT":
			op = "IS NOT"
		default:
			argPanic("Compare", 3, fmt.Sprintf("operator %q cannot compare with null", op))
		}
		return Statement{text: left + " " + op + " null"}
	default:
		return Statement{text: left + " " + op + " ?", args: []any{right}}
	}
}

// And joins conditions with AND, skipping empty ones.
func And(conds ...Statement) Statement { return join(" AND ", conds) }

// Or joins conditions with OR, skipping empty ones.
func Or(conds ...Statement) Statement { return join(" OR ", conds) }

// ParenGroup wraps sub in parentheses.
func ParenGroup(sub Statement) Statement {
	if sub.IsEmpty() {
		return Statement{}
	}
	return Statement{text: "(" + sub.text + ")", args: sub.args}
}

// OrderBy builds ORDER BY from column expressions such as "Title" or "Year DESC".
func OrderBy(columns ...string) Statement {
	if len(columns) == 0 {
		argPanic("OrderBy", 0, "no columns")
	}
	return Statement{text: "ORDER BY " + strings.Join(columns, ", ")}
}

// GroupBy builds GROUP BY from column names.
func GroupBy(columns ...string) Statement {
	if len(columns) == 0 {
		argPanic("GroupBy", 0, "no columns")
	}
	return Statement{text: "GROUP BY " + strings.Join(columns, ", ")}
}

// Limit builds LIMIT n.
func Limit(n int) Statement {
	if n < 0 {
		argPanic("Limit", 1, "negative limit")
	}
	return Statement{text: fmt.Sprintf("LIMIT %d", n)}
}

// LimitOffset builds LIMIT n OFFSET offset.
func LimitOffset(offset, n int) Statement {
	if n < 0 || offset < 0 {
		argPanic("LimitOffset", 2, "negative limit or offset")
	}
	return Statement{text: fmt.Sprintf("LIMIT %d OFFSET %d", n, offset)}
}

func join(sep string, conds []Statement) Statement {
	var (
		texts []string
		args  []any
	)
	for _, c := range conds {
		if c.IsEmpty() {
			continue
		}
		texts = append(texts, c.text)
		args = append(args, c.args...)
	}
	return Statement{text: strings.Join(texts, sep), args: args}
}
