// Package fakestore is an in-memory recordstore.Store used by tests.
package fakestore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonkersai/website/recordstore"
)

var _ recordstore.Store = (*FakeStore)(nil)

// Procedure implements a named RPC.
type Procedure func(ctx context.Context, s *FakeStore, args map[string]any) (any, error)

// Call records one store invocation.
type Call struct {
	Method string // select, count, insert, update, delete, rpc
	Target string // table or procedure name
	Filter recordstore.Filter
	Patch  recordstore.Row
	Caller recordstore.Caller // zero when ctx carries none
}

// CallerCheck vets the caller of every call, the way the hosted store vets
// the bearer token. A non-nil error fails the call.
type CallerCheck func(c recordstore.Caller) error

type FakeStore struct {
	lock       sync.RWMutex
	tables     map[string][]recordstore.Row
	procedures map[string]Procedure
	failures   map[string]error // "method:target", "method:*", "*" -> error
	calls      []Call
	check      CallerCheck
	nowTime    func() time.Time
}

// NewFakeStore returns an empty store with check_credentials and is_admin
// behaving like the hosted procedures (verbatim password comparison).
func NewFakeStore() *FakeStore {
	s := &FakeStore{
		tables:     make(map[string][]recordstore.Row),
		procedures: make(map[string]Procedure),
		failures:   make(map[string]error),
		nowTime:    time.Now,
	}
	s.procedures[recordstore.RPCCheckCredentials] = checkCredentials
	s.procedures[recordstore.RPCIsAdmin] = isAdmin
	return s
}

// Seed appends rows to table without recording a call.
func (s *FakeStore) Seed(table string, rows ...recordstore.Row) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, r := range rows {
		s.tables[table] = append(s.tables[table], copyRow(r))
	}
}

// Rows returns a copy of every row in table.
func (s *FakeStore) Rows(table string) []recordstore.Row {
	s.lock.RLock()
	defer s.lock.RUnlock()
	out := make([]recordstore.Row, 0, len(s.tables[table]))
	for _, r := range s.tables[table] {
		out = append(out, copyRow(r))
	}
	return out
}

// SetProcedure registers or replaces an RPC.
func (s *FakeStore) SetProcedure(name string, p Procedure) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.procedures[name] = p
}

// Fail makes every call of method on target return err. Use "*" as target for
// every table/procedure, or method "*" for every call. A nil err clears it.
func (s *FakeStore) Fail(method, target string, err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	key := method + ":" + target
	if method == "*" {
		key = "*"
	}
	if err == nil {
		delete(s.failures, key)
		return
	}
	s.failures[key] = err
}

// SetCallerCheck installs check for every following call; nil removes it.
func (s *FakeStore) SetCallerCheck(check CallerCheck) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.check = check
}

// Calls returns every recorded call in order.
func (s *FakeStore) Calls() []Call {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return append([]Call(nil), s.calls...)
}

// CallCount counts the calls of method on target.
func (s *FakeStore) CallCount(method, target string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Method == method && c.Target == target {
			n++
		}
	}
	return n
}

func (s *FakeStore) record(ctx context.Context, c Call) error {
	c.Caller, _ = recordstore.CallerFromContext(ctx)
	s.calls = append(s.calls, c)
	if s.check != nil {
		if err := s.check(c.Caller); err != nil {
			return err
		}
	}
	for _, key := range []string{c.Method + ":" + c.Target, c.Method + ":*", "*"} {
		if err, ok := s.failures[key]; ok {
			return err
		}
	}
	return nil
}

func (s *FakeStore) Select(ctx context.Context, table string, q recordstore.Query) ([]recordstore.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.record(ctx, Call{Method: "select", Target: table, Filter: q.Filter}); err != nil {
		return nil, err
	}

	matched := make([]recordstore.Row, 0)
	for _, r := range s.tables[table] {
		if matches(r, q.Filter) {
			matched = append(matched, project(r, q.Columns))
		}
	}
	if len(q.Order) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			for _, o := range q.Order {
				c := compare(matched[i][o.Column], matched[j][o.Column])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func (s *FakeStore) Count(ctx context.Context, table string, f recordstore.Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.record(ctx, Call{Method: "count", Target: table, Filter: f}); err != nil {
		return 0, err
	}
	n := 0
	for _, r := range s.tables[table] {
		if matches(r, f) {
			n++
		}
	}
	return n, nil
}

func (s *FakeStore) Insert(ctx context.Context, table string, rows ...recordstore.Row) ([]recordstore.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.record(ctx, Call{Method: "insert", Target: table}); err != nil {
		return nil, err
	}
	out := make([]recordstore.Row, 0, len(rows))
	for _, r := range rows {
		stored := copyRow(r)
		if recordstore.String(stored["id"]) == "" {
			stored["id"] = uuid.New().String()
		}
		if _, ok := stored["created_at"]; !ok {
			stored["created_at"] = s.nowTime().UTC()
		}
		s.tables[table] = append(s.tables[table], stored)
		out = append(out, copyRow(stored))
	}
	return out, nil
}

func (s *FakeStore) Update(ctx context.Context, table string, f recordstore.Filter, patch recordstore.Row) ([]recordstore.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.record(ctx, Call{Method: "update", Target: table, Filter: f, Patch: copyRow(patch)}); err != nil {
		return nil, err
	}
	out := make([]recordstore.Row, 0)
	for _, r := range s.tables[table] {
		if !matches(r, f) {
			continue
		}
		for k, v := range patch {
			r[k] = v
		}
		out = append(out, copyRow(r))
	}
	return out, nil
}

func (s *FakeStore) Delete(ctx context.Context, table string, f recordstore.Filter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.record(ctx, Call{Method: "delete", Target: table, Filter: f}); err != nil {
		return err
	}
	kept := s.tables[table][:0]
	for _, r := range s.tables[table] {
		if !matches(r, f) {
			kept = append(kept, r)
		}
	}
	s.tables[table] = kept
	return nil
}

func (s *FakeStore) RPC(ctx context.Context, name string, args map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.lock.Lock()
	err := s.record(ctx, Call{Method: "rpc", Target: name})
	p, ok := s.procedures[name]
	s.lock.Unlock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", recordstore.ErrUnknownProcedure, name)
	}
	return p(ctx, s, args)
}

func checkCredentials(_ context.Context, s *FakeStore, args map[string]any) (any, error) {
	email := recordstore.String(args["p_email"])
	password := recordstore.String(args["p_password"])
	out := make([]recordstore.Row, 0, 1)
	for _, r := range s.Rows("credentials") {
		if recordstore.String(r["email"]) == email && recordstore.String(r["Password"]) == password {
			out = append(out, recordstore.Row{"user_id": r["id"], "is_admin": recordstore.Truthy(r["is_admin"])})
			break
		}
	}
	return out, nil
}

func isAdmin(ctx context.Context, s *FakeStore, _ map[string]any) (any, error) {
	caller, ok := recordstore.CallerFromContext(ctx)
	if !ok {
		return false, nil
	}
	for _, r := range s.Rows("credentials") {
		if (caller.Email != "" && recordstore.String(r["email"]) == caller.Email) ||
			(caller.UserID != "" && recordstore.String(r["id"]) == caller.UserID) {
			return recordstore.Truthy(r["is_admin"]), nil
		}
	}
	return false, nil
}

func matches(r recordstore.Row, f recordstore.Filter) bool {
	for _, c := range f {
		v := r[c.Column]
		switch c.Op {
		case recordstore.OpEq:
			if compare(v, c.Value) != 0 {
				return false
			}
		case recordstore.OpLt:
			if v == nil || compare(v, c.Value) >= 0 {
				return false
			}
		case recordstore.OpIn:
			values, _ := c.Value.([]any)
			found := false
			for _, candidate := range values {
				if compare(v, candidate) == 0 {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func compare(a, b any) int {
	if ta, ok := recordstore.Time(a); ok {
		if tb, ok := recordstore.Time(b); ok {
			return ta.Compare(tb)
		}
	}
	if _, ok := a.(bool); ok {
		return compareBool(recordstore.Truthy(a), recordstore.Truthy(b))
	}
	if _, ok := b.(bool); ok {
		return compareBool(recordstore.Truthy(a), recordstore.Truthy(b))
	}
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	return strings.Compare(recordstore.String(a), recordstore.String(b))
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

func project(r recordstore.Row, columns []string) recordstore.Row {
	if len(columns) == 0 {
		return copyRow(r)
	}
	out := make(recordstore.Row, len(columns))
	for _, c := range columns {
		out[c] = r[c]
	}
	return out
}

func copyRow(r recordstore.Row) recordstore.Row {
	out := make(recordstore.Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
