package recordstore

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// CredentialMatch is a row returned by check_credentials.
type CredentialMatch struct {
	UserID  string `json:"user_id"`
	IsAdmin bool   `json:"is_admin"`
}

// CheckCredentials calls check_credentials(p_email, p_password). A nil match
// with a nil error means no credential record matched.
func CheckCredentials(ctx context.Context, s Store, email, password string) (*CredentialMatch, error) {
	res, err := s.RPC(ctx, RPCCheckCredentials, map[string]any{
		"p_email":    email,
		"p_password": password,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[CheckCredentials] rpc")
	}
	var matches []CredentialMatch
	if err := Decode(res, &matches); err != nil {
		return nil, errors.Wrap(err, "[CheckCredentials] decode")
	}
	if len(matches) == 0 || matches[0].UserID == "" {
		return nil, nil
	}
	return &matches[0], nil
}

// IsAdmin calls the ambient is_admin() procedure for the caller in ctx.
func IsAdmin(ctx context.Context, s Store) (bool, error) {
	res, err := s.RPC(ctx, RPCIsAdmin, nil)
	if err != nil {
		return false, errors.Wrap(err, "[IsAdmin] rpc")
	}
	return Truthy(res), nil
}

// Decode converts a loosely typed RPC result into out through its JSON form.
func Decode(res any, out any) error {
	if res == nil {
		return nil
	}
	if raw, ok := res.(json.RawMessage); ok {
		return json.Unmarshal(raw, out)
	}
	b, err := json.Marshal(normalize(res))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// normalize turns sqlite integer booleans into JSON friendly values where the
// column name says it is a flag.
func normalize(res any) any {
	rows, ok := res.([]Row)
	if !ok {
		return res
	}
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		m := make(map[string]any, len(r))
		for k, v := range r {
			if k == "is_admin" {
				v = Truthy(v)
			}
			m[k] = v
		}
		out[i] = m
	}
	return out
}

// First returns the first row of a select, or ErrNoRows.
func First(rows []Row, err error) (Row, error) {
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	return rows[0], nil
}
