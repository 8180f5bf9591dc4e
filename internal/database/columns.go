package database

import (
	"fmt"
	"strings"
)

// ColumnMap maps column ordinals of a table to their declared names.
type ColumnMap struct {
	names []string
	index map[string]int
}

// Len returns the number of columns.
func (m *ColumnMap) Len() int { return len(m.names) }

// Names returns the column names in declaration order.
func (m *ColumnMap) Names() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// Name returns the column at ordinal i.
func (m *ColumnMap) Name(i int) (string, bool) {
	if i < 0 || i >= len(m.names) {
		return "", false
	}
	return m.names[i], true
}

// Index returns the ordinal of the named column, case-insensitively.
func (m *ColumnMap) Index(name string) (int, bool) {
	i, ok := m.index[strings.ToLower(name)]
	return i, ok
}

var tableConstraints = map[string]struct{}{
	"CONSTRAINT": {}, "PRIMARY": {}, "UNIQUE": {}, "CHECK": {}, "FOREIGN": {},
}

// ParseColumns extracts column names from a CREATE TABLE declaration.
func ParseColumns(ddl string) (*ColumnMap, error) {
	open := strings.Index(ddl, "(")
	closing := strings.LastIndex(ddl, ")")
	if open < 0 || closing <= open {
		return nil, fmt.Errorf("malformed table declaration: %q", ddl)
	}

	m := &ColumnMap{index: make(map[string]int)}
	for _, def := range splitTopLevel(ddl[open+1 : closing]) {
		fields := strings.Fields(def)
		if len(fields) == 0 {
			continue
		}
		if _, ok := tableConstraints[strings.ToUpper(fields[0])]; ok {
			continue
		}
		name := strings.Trim(fields[0], "\"`[]")
		m.index[strings.ToLower(name)] = len(m.names)
		m.names = append(m.names, name)
	}

	if len(m.names) == 0 {
		return nil, fmt.Errorf("table declaration has no columns: %q", ddl)
	}
	return m, nil
}

// splitTopLevel splits on commas outside parentheses and quotes.
func splitTopLevel(body string) []string {
	var (
		parts  []string
		depth  int
		quoted rune
		start  int
	)
	for i, r := range body {
		switch {
		case quoted != 0:
			if r == quoted {
				quoted = 0
			}
		case r == '\'' || r == '"' || r == '`':
			quoted = r
		case r == '(':
			depth++
		case r == ')':
			depth--
		case r == ',' && depth == 0:
			parts = append(parts, strings.TrimSpace(body[start:i]))
			start = i + 1
		}
	}
	return append(parts, strings.TrimSpace(body[start:]))
}
