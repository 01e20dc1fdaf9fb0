package users

import (
	"context"

	"github.com/jonkersai/website/recordstore"
	"github.com/pkg/errors"
)

var _ CredentialRepo = (*StoreCredentialRepo)(nil)

// StoreCredentialRepo implements CredentialRepo on a recordstore.Store.
type StoreCredentialRepo struct {
	store recordstore.Store
}

func NewStoreCredentialRepo(store recordstore.Store) *StoreCredentialRepo {
	return &StoreCredentialRepo{store: store}
}

func (r *StoreCredentialRepo) Check(ctx context.Context, email, password string) (*recordstore.CredentialMatch, error) {
	return recordstore.CheckCredentials(ctx, r.store, email, password)
}

func (r *StoreCredentialRepo) GetByEmail(ctx context.Context, email string) (*CredentialRecord, error) {
	return r.getBy(ctx, ColumnEmail, email)
}

func (r *StoreCredentialRepo) GetByID(ctx context.Context, id string) (*CredentialRecord, error) {
	return r.getBy(ctx, ColumnID, id)
}

func (r *StoreCredentialRepo) getBy(ctx context.Context, column, value string) (*CredentialRecord, error) {
	row, err := recordstore.First(r.store.Select(ctx, CredentialsTable, recordstore.Query{
		Filter: recordstore.Where(recordstore.Eq(column, value)),
		Limit:  1,
	}))
	if err != nil {
		return nil, errors.Wrapf(err, "[StoreCredentialRepo] select by %s", column)
	}
	return recordFromRow(row), nil
}

func (r *StoreCredentialRepo) SetPassword(ctx context.Context, email, password, passwordHash string) error {
	_, err := r.store.Update(ctx, CredentialsTable,
		recordstore.Where(recordstore.Eq(ColumnEmail, email)),
		recordstore.Row{
			ColumnPasswordHash: passwordHash,
			ColumnPassword:     password,
		})
	if err != nil {
		return errors.Wrap(err, "[StoreCredentialRepo.SetPassword] update")
	}
	return nil
}

// Create inserts a credential record. Password and PasswordHash are stored as
// given; hashing is the caller's choice.
func (r *StoreCredentialRepo) Create(ctx context.Context, rec CredentialRecord) (*CredentialRecord, error) {
	row := recordstore.Row{
		ColumnEmail:        rec.Email,
		ColumnPassword:     rec.Password,
		ColumnPasswordHash: rec.PasswordHash,
		ColumnIsAdmin:      rec.IsAdmin,
		ColumnName:         rec.Name,
	}
	if rec.ID != "" {
		row[ColumnID] = rec.ID
	}
	inserted, err := r.store.Insert(ctx, CredentialsTable, row)
	if err != nil {
		return nil, errors.Wrap(err, "[StoreCredentialRepo.Create] insert")
	}
	if len(inserted) == 0 {
		return nil, errors.New("[StoreCredentialRepo.Create] insert returned no row")
	}
	return recordFromRow(inserted[0]), nil
}

func recordFromRow(row recordstore.Row) *CredentialRecord {
	return &CredentialRecord{
		ID:           recordstore.String(row[ColumnID]),
		Email:        recordstore.String(row[ColumnEmail]),
		Password:     recordstore.String(row[ColumnPassword]),
		PasswordHash: recordstore.String(row[ColumnPasswordHash]),
		IsAdmin:      recordstore.Truthy(row[ColumnIsAdmin]),
		Name:         recordstore.String(row[ColumnName]),
	}
}
