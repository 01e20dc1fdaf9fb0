package sqlstore

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/jonkersai/website/recordstore"
)

// sqlState maps driver errors onto the Postgres codes the hosted store reports.
func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return recordstore.CodeUniqueViolation
		case sqlite3.SQLITE_CONSTRAINT_NOTNULL:
			return recordstore.CodeNotNullViolation
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return "23503"
		case sqlite3.SQLITE_READONLY, sqlite3.SQLITE_AUTH:
			return recordstore.CodeInsufficientPrivilege
		}
		if strings.Contains(liteErr.Error(), "constraint failed") {
			return "23000"
		}
	}
	return ""
}
