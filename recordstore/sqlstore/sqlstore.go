// Package sqlstore implements recordstore.Store on database/sql, for SQLite
// (modernc.org/sqlite) and Postgres (pgx). It also provides the check_credentials
// and is_admin procedures natively.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonkersai/website/recordstore"
	"github.com/pkg/errors"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver
	_ "modernc.org/sqlite"             // sqlite driver
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var _ recordstore.Store = (*Store)(nil)

type Store struct {
	driver string
	conn   *sql.DB
	now    func() time.Time
}

// Open connects to dsn with the given driver and runs the schema migrations.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var (
		conn *sql.DB
		err  error
	)
	switch driver {
	case DriverSQLite:
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(filepath.Clean(dsn)), 0o700); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
		conn, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// keep a single connection so :memory: databases are shared
		conn.SetMaxOpenConns(1)
	case DriverPostgres:
		conn, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	s := &Store{driver: driver, conn: conn, now: time.Now}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// DB exposes the underlying connection pool.
func (s *Store) DB() *sql.DB {
	return s.conn
}

func (s *Store) Select(ctx context.Context, table string, q recordstore.Query) ([]recordstore.Row, error) {
	cols := "*"
	if len(q.Columns) > 0 {
		quoted := make([]string, len(q.Columns))
		for i, c := range q.Columns {
			qc, err := quote(c)
			if err != nil {
				return nil, err
			}
			quoted[i] = qc
		}
		cols = strings.Join(quoted, ", ")
	}
	qt, err := quote(table)
	if err != nil {
		return nil, err
	}

	b := s.builder()
	where, err := b.where(q.Filter)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s%s", cols, qt, where)

	if len(q.Order) > 0 {
		parts := make([]string, len(q.Order))
		for i, o := range q.Order {
			qc, err := quote(o.Column)
			if err != nil {
				return nil, err
			}
			if o.Desc {
				qc += " DESC"
			}
			parts[i] = qc
		}
		query += " ORDER BY " + strings.Join(parts, ", ")
	}
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, wrap(err, "select "+table)
	}
	return scanRows(rows)
}

func (s *Store) Count(ctx context.Context, table string, f recordstore.Filter) (int, error) {
	qt, err := quote(table)
	if err != nil {
		return 0, err
	}
	b := s.builder()
	where, err := b.where(f)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.conn.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s%s", qt, where), b.args...).Scan(&n); err != nil {
		return 0, wrap(err, "count "+table)
	}
	return n, nil
}

func (s *Store) Insert(ctx context.Context, table string, rows ...recordstore.Row) ([]recordstore.Row, error) {
	qt, err := quote(table)
	if err != nil {
		return nil, err
	}
	out := make([]recordstore.Row, 0, len(rows))
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range rows {
		row := make(recordstore.Row, len(r)+1)
		for k, v := range r {
			row[k] = v
		}
		if recordstore.String(row["id"]) == "" && hasIDColumn(table) {
			row["id"] = uuid.New().String()
		}

		b := s.builder()
		cols := make([]string, 0, len(row))
		holders := make([]string, 0, len(row))
		for _, k := range sortedKeys(row) {
			qc, err := quote(k)
			if err != nil {
				return nil, err
			}
			cols = append(cols, qc)
			holders = append(holders, b.bind(row[k]))
		}
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *", qt, strings.Join(cols, ", "), strings.Join(holders, ", "))
		res, err := tx.QueryContext(ctx, query, b.args...)
		if err != nil {
			return nil, wrap(err, "insert "+table)
		}
		inserted, err := scanRows(res)
		if err != nil {
			return nil, err
		}
		out = append(out, inserted...)
	}
	if err := tx.Commit(); err != nil {
		return nil, wrap(err, "commit")
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, table string, f recordstore.Filter, patch recordstore.Row) ([]recordstore.Row, error) {
	if len(patch) == 0 {
		return nil, errors.New("[sqlstore.Update] empty patch")
	}
	qt, err := quote(table)
	if err != nil {
		return nil, err
	}
	b := s.builder()
	sets := make([]string, 0, len(patch))
	for _, k := range sortedKeys(patch) {
		qc, err := quote(k)
		if err != nil {
			return nil, err
		}
		sets = append(sets, qc+" = "+b.bind(patch[k]))
	}
	where, err := b.where(f)
	if err != nil {
		return nil, err
	}
	rows, err := s.conn.QueryContext(ctx, fmt.Sprintf("UPDATE %s SET %s%s RETURNING *", qt, strings.Join(sets, ", "), where), b.args...)
	if err != nil {
		return nil, wrap(err, "update "+table)
	}
	return scanRows(rows)
}

func (s *Store) Delete(ctx context.Context, table string, f recordstore.Filter) error {
	qt, err := quote(table)
	if err != nil {
		return err
	}
	b := s.builder()
	where, err := b.where(f)
	if err != nil {
		return err
	}
	if _, err := s.conn.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s%s", qt, where), b.args...); err != nil {
		return wrap(err, "delete "+table)
	}
	return nil
}

func (s *Store) RPC(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case recordstore.RPCCheckCredentials:
		return s.checkCredentials(ctx, recordstore.String(args["p_email"]), recordstore.String(args["p_password"]))
	case recordstore.RPCIsAdmin:
		return s.isAdmin(ctx)
	}
	return nil, fmt.Errorf("%w: %s", recordstore.ErrUnknownProcedure, name)
}

// builder accumulates bind arguments and renders dialect placeholders.
type builder struct {
	driver string
	args   []any
}

func (s *Store) builder() *builder {
	return &builder{driver: s.driver}
}

func (b *builder) bind(v any) string {
	if t, ok := v.(time.Time); ok {
		v = t.UTC()
	}
	b.args = append(b.args, v)
	if b.driver == DriverPostgres {
		return fmt.Sprintf("$%d", len(b.args))
	}
	return "?"
}

func (b *builder) where(f recordstore.Filter) (string, error) {
	if len(f) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(f))
	for _, c := range f {
		qc, err := quote(c.Column)
		if err != nil {
			return "", err
		}
		switch c.Op {
		case recordstore.OpEq:
			if c.Value == nil {
				parts = append(parts, qc+" IS NULL")
				continue
			}
			parts = append(parts, qc+" = "+b.bind(c.Value))
		case recordstore.OpLt:
			parts = append(parts, qc+" < "+b.bind(c.Value))
		case recordstore.OpIn:
			values, _ := c.Value.([]any)
			if len(values) == 0 {
				parts = append(parts, "1 = 0")
				continue
			}
			holders := make([]string, len(values))
			for i, v := range values {
				holders[i] = b.bind(v)
			}
			parts = append(parts, qc+" IN ("+strings.Join(holders, ", ")+")")
		default:
			return "", fmt.Errorf("unsupported operator %q", c.Op)
		}
	}
	return " WHERE " + strings.Join(parts, " AND "), nil
}

func quote(ident string) (string, error) {
	if !identRe.MatchString(ident) {
		return "", fmt.Errorf("invalid identifier %q", ident)
	}
	return `"` + ident + `"`, nil
}

func scanRows(rows *sql.Rows) ([]recordstore.Row, error) {
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, wrap(err, "columns")
	}
	out := make([]recordstore.Row, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, wrap(err, "scan")
		}
		r := make(recordstore.Row, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				r[c] = string(b)
				continue
			}
			r[c] = values[i]
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(err, "rows")
	}
	return out, nil
}

func sortedKeys(r recordstore.Row) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func hasIDColumn(table string) bool {
	_, ok := joinTables[table]
	return !ok
}

func wrap(err error, op string) error {
	return &recordstore.Error{Code: sqlState(err), Message: op + ": " + err.Error(), Err: err}
}
