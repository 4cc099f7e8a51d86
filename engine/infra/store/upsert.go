package store

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Masterminds/squirrel"
)

// Row holds the values of one record in UpsertSpec.Columns order.
type Row []any

// UpsertSpec describes create-or-merge by natural key for one table.
// Columns listed in Mutable are overwritten when the key already exists; every
// other column keeps its first written value.
type UpsertSpec struct {
	Table   string
	Key     []string
	Columns []string
	Mutable []string
}

// AllBut returns every column that is not part of the key or excluded.
func (s UpsertSpec) AllBut(excluded ...string) []string {
	out := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		if slices.Contains(s.Key, c) || slices.Contains(excluded, c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (s UpsertSpec) Validate() error {
	if s.Table == "" {
		return fmt.Errorf("upsert: table is required")
	}
	if len(s.Key) == 0 {
		return fmt.Errorf("upsert %s: key is required", s.Table)
	}
	for _, k := range s.Key {
		if !slices.Contains(s.Columns, k) {
			return fmt.Errorf("upsert %s: key column %q not in columns", s.Table, k)
		}
	}
	for _, m := range s.Mutable {
		if !slices.Contains(s.Columns, m) {
			return fmt.Errorf("upsert %s: mutable column %q not in columns", s.Table, m)
		}
		if slices.Contains(s.Key, m) {
			return fmt.Errorf("upsert %s: key column %q cannot be mutable", s.Table, m)
		}
	}
	return nil
}

// Build renders one multi-row INSERT ... ON CONFLICT statement. Rows sharing
// a key collapse to the last occurrence, since a single statement may not
// touch the same row twice.
func (s UpsertSpec) Build(d Dialect, rows ...Row) (string, []any, error) {
	if err := s.Validate(); err != nil {
		return "", nil, err
	}
	if len(rows) == 0 {
		return "", nil, fmt.Errorf("upsert %s: no rows", s.Table)
	}
	rows = s.collapse(rows)
	q := squirrel.Insert(s.Table).Columns(s.Columns...)
	for i, r := range rows {
		if len(r) != len(s.Columns) {
			return "", nil, fmt.Errorf(
				"upsert %s: row %d has %d values, want %d", s.Table, i, len(r), len(s.Columns),
			)
		}
		q = q.Values(r...)
	}
	sql, args, err := q.Suffix(s.conflictClause()).PlaceholderFormat(d.Placeholder()).ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("upsert %s: build query: %w", s.Table, err)
	}
	return sql, args, nil
}

func (s UpsertSpec) conflictClause() string {
	target := strings.Join(s.Key, ", ")
	if len(s.Mutable) == 0 {
		return fmt.Sprintf("ON CONFLICT (%s) DO NOTHING", target)
	}
	sets := make([]string, len(s.Mutable))
	for i, c := range s.Mutable {
		sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", c, c)
	}
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", target, strings.Join(sets, ", "))
}

// collapse keeps the last row for every key. Rows with a nil key component
// are kept as-is so the store reports them.
func (s UpsertSpec) collapse(rows []Row) []Row {
	if len(rows) < 2 {
		return rows
	}
	keyIdx := make([]int, len(s.Key))
	for i, k := range s.Key {
		keyIdx[i] = slices.Index(s.Columns, k)
	}
	last := make(map[string]int, len(rows))
	keys := make([]string, len(rows))
	for i, r := range rows {
		k, ok := rowKey(r, keyIdx)
		if !ok {
			continue
		}
		keys[i] = k
		last[k] = i
	}
	if len(last) == len(rows) {
		return rows
	}
	out := make([]Row, 0, len(rows))
	for i, r := range rows {
		if keys[i] != "" && last[keys[i]] != i {
			continue
		}
		out = append(out, r)
	}
	return out
}

func rowKey(r Row, idx []int) (string, bool) {
	parts := make([]string, len(idx))
	for i, j := range idx {
		if j < 0 || j >= len(r) {
			return "", false
		}
		switch v := r[j].(type) {
		case nil:
			return "", false
		case *string:
			if v == nil {
				return "", false
			}
			parts[i] = *v
		case string:
			parts[i] = v
		default:
			parts[i] = fmt.Sprint(v)
		}
	}
	return "k:" + strings.Join(parts, "\x1f"), true
}
