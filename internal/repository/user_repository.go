package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/beat-license-registry/internal/model"
)

// UserRepo reads account display data.  Buyers and producers share the
// users table; authentication lives with the identity provider.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	return r.get(ctx, r.DB, id)
}

// GetByIDTx fetches a user by id inside a transaction.
func (r *UserRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id string) (model.User, error) {
	return r.get(ctx, tx, id)
}

func (r *UserRepo) get(ctx context.Context, q querier, id string) (model.User, error) {
	var (
		u         model.User
		name      sql.NullString
		firstName sql.NullString
	)
	err := q.QueryRowContext(ctx,
		"SELECT id,email,name,first_name FROM users WHERE id=? LIMIT 1",
		id).Scan(&u.ID, &u.Email, &name, &firstName)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	u.Name = name.String
	u.FirstName = firstName.String
	return u, nil
}
