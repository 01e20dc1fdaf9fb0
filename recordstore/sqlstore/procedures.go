package sqlstore

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"strings"

	"github.com/jonkersai/website/recordstore"
	"golang.org/x/crypto/bcrypt"
)

// checkCredentials mirrors the hosted procedure: it returns one {user_id, is_admin}
// row when email and password match a credential record, none otherwise. Values
// written in bcrypt mode are compared as hashes, legacy values verbatim.
func (s *Store) checkCredentials(ctx context.Context, email, password string) ([]recordstore.Row, error) {
	b := s.builder()
	query := `SELECT "id", "is_admin", "Password", "password_hash" FROM "credentials" WHERE "email" = ` + b.bind(email)

	var (
		id, plain, hash string
		isAdmin         any
	)
	err := s.conn.QueryRowContext(ctx, query, b.args...).Scan(&id, &isAdmin, &plain, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return []recordstore.Row{}, nil
	}
	if err != nil {
		return nil, wrap(err, "check_credentials")
	}

	if !passwordMatches(password, plain, hash) {
		return []recordstore.Row{}, nil
	}
	return []recordstore.Row{{"user_id": id, "is_admin": recordstore.Truthy(isAdmin)}}, nil
}

func passwordMatches(password, plain, hash string) bool {
	for _, stored := range []string{hash, plain} {
		if isBcrypt(stored) {
			if bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil {
				return true
			}
		}
	}
	if plain == "" || isBcrypt(plain) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(plain), []byte(password)) == 1
}

func isBcrypt(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// isAdmin answers for the caller attached to ctx; anonymous callers are never admin.
func (s *Store) isAdmin(ctx context.Context) (bool, error) {
	caller, ok := recordstore.CallerFromContext(ctx)
	if !ok || (caller.Email == "" && caller.UserID == "") {
		return false, nil
	}
	b := s.builder()
	query := `SELECT "is_admin" FROM "credentials" WHERE "email" = ` + b.bind(caller.Email) + ` OR "id" = ` + b.bind(caller.UserID)

	var flag any
	err := s.conn.QueryRowContext(ctx, query, b.args...).Scan(&flag)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrap(err, "is_admin")
	}
	return recordstore.Truthy(flag), nil
}
