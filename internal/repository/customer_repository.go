package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/iliyamo/beat-license-registry/internal/model"
	"github.com/iliyamo/beat-license-registry/internal/ports"
)

// CustomerRepo maintains the seller CRM in the customers table.
type CustomerRepo struct{ DB *sql.DB }

func NewCustomerRepo(db *sql.DB) *CustomerRepo { return &CustomerRepo{DB: db} }

// Upsert creates the (email, store) record or folds the purchase into it.
// A new record takes the given name and source; an existing one keeps
// them and only accumulates spend.  Zero-amount purchases leave the
// customer type untouched.
func (r *CustomerRepo) Upsert(ctx context.Context, in ports.CustomerUpsert) error {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return fmt.Errorf("%w: customer email is empty", ErrInvalidInput)
	}
	typ := model.CustomerTypeLead
	if in.AmountCents > 0 {
		typ = model.CustomerTypePaying
	}
	const q = `INSERT INTO customers (id, email, store_id, seller_user_id, name, type, status,
                                      total_spent_cents, last_activity, source)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
               ON DUPLICATE KEY UPDATE
                   type = IF(VALUES(total_spent_cents) > 0, 'paying', type),
                   status = VALUES(status),
                   total_spent_cents = total_spent_cents + VALUES(total_spent_cents),
                   last_activity = VALUES(last_activity)`
	_, err := r.DB.ExecContext(ctx, q,
		uuid.NewString(), email, in.StoreID, in.SellerUserID, in.Name, typ,
		model.CustomerStatusActive, in.AmountCents, in.At.UTC(), in.Source,
	)
	return err
}

var _ ports.CustomerRepository = (*CustomerRepo)(nil)
