package users

import (
	"context"

	"github.com/jonkersai/website/recordstore"
)

// CredentialRepo gives typed access to the fallback credentials table.
type CredentialRepo interface {
	// Check runs check_credentials; nil, nil means no record matched.
	Check(ctx context.Context, email, password string) (*recordstore.CredentialMatch, error)
	GetByEmail(ctx context.Context, email string) (*CredentialRecord, error)
	GetByID(ctx context.Context, id string) (*CredentialRecord, error)
	// SetPassword writes both password columns of the record matching email.
	SetPassword(ctx context.Context, email, password, passwordHash string) error
}
