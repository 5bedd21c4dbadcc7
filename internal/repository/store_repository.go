package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/beat-license-registry/internal/model"
)

// StoreRepo reads seller storefronts.  Each seller owns at most one.
type StoreRepo struct {
	db *sql.DB
}

func NewStoreRepo(db *sql.DB) *StoreRepo { return &StoreRepo{db: db} }

// GetByID returns the store or ErrNotFound.
func (r *StoreRepo) GetByID(ctx context.Context, id string) (model.Store, error) {
	return r.get(ctx, r.db, `SELECT id, owner_user_id, name, slug FROM stores WHERE id = ?`, id)
}

// GetByOwnerTx resolves the storefront of a seller inside a transaction.
func (r *StoreRepo) GetByOwnerTx(ctx context.Context, tx *sql.Tx, ownerUserID string) (model.Store, error) {
	return r.get(ctx, tx, `SELECT id, owner_user_id, name, slug FROM stores WHERE owner_user_id = ? LIMIT 1`, ownerUserID)
}

func (r *StoreRepo) get(ctx context.Context, q querier, query string, arg string) (model.Store, error) {
	var s model.Store
	err := q.QueryRowContext(ctx, query, arg).Scan(&s.ID, &s.OwnerUserID, &s.Name, &s.Slug)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Store{}, ErrNotFound
	}
	return s, err
}
