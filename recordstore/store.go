// Package recordstore defines the Record Store contract: a generic table store
// with filtered select, insert, update, delete and named remote procedures.
package recordstore

import (
	"context"
	"fmt"
	"time"
)

// Remote procedures the site relies on.
const (
	RPCCheckCredentials = "check_credentials"
	RPCIsAdmin          = "is_admin"
)

// Row is a single record keyed by column name.
type Row map[string]any

// Store is implemented by sqlstore (database/sql), postgrest (hosted REST) and repofake (tests).
type Store interface {
	// Select returns the rows of table matching q.
	Select(ctx context.Context, table string, q Query) ([]Row, error)

	// Count returns the number of rows of table matching f.
	Count(ctx context.Context, table string, f Filter) (int, error)

	// Insert stores rows and returns them as persisted (ids and defaults filled in).
	Insert(ctx context.Context, table string, rows ...Row) ([]Row, error)

	// Update applies patch to every row matching f and returns the updated rows.
	Update(ctx context.Context, table string, f Filter, patch Row) ([]Row, error)

	// Delete removes every row matching f.
	Delete(ctx context.Context, table string, f Filter) error

	// RPC invokes a named server-side procedure.
	RPC(ctx context.Context, name string, args map[string]any) (any, error)
}

// Op is a filter comparison operator.
type Op string

const (
	OpEq Op = "eq"
	OpLt Op = "lt"
	OpIn Op = "in"
)

// Condition compares one column against a value.
type Condition struct {
	Column string
	Op     Op
	Value  any
}

// Filter is a conjunction of conditions. An empty filter matches every row.
type Filter []Condition

func Eq(column string, value any) Condition {
	return Condition{Column: column, Op: OpEq, Value: value}
}

func Lt(column string, value any) Condition {
	return Condition{Column: column, Op: OpLt, Value: value}
}

// In matches rows whose column equals any of values.
func In(column string, values ...any) Condition {
	return Condition{Column: column, Op: OpIn, Value: values}
}

// Where builds a filter from conditions.
func Where(conds ...Condition) Filter {
	return Filter(conds)
}

// Order sorts a select.
type Order struct {
	Column string
	Desc   bool
}

// Query describes a select. Zero Columns selects every column, zero Limit is unbounded.
type Query struct {
	Columns []string
	Filter  Filter
	Order   []Order
	Limit   int
}

// Truthy interprets a column value as a boolean the way the hosted store does.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case int64:
		return t != 0
	case int:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t == "true" || t == "t" || t == "1"
	case []byte:
		return Truthy(string(t))
	}
	return false
}

// String returns the textual form of a column value, "" for nil.
func String(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}

// Time parses a column value holding a timestamp. ok is false for nil or unparsable values.
func Time(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}
