package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/beat-license-registry/internal/model"
)

// PurchaseRepo writes and reads the purchase ledger.  Rows are created
// once per transaction; only the license back-reference is patched in
// afterwards, and download tracking belongs to other flows.
type PurchaseRepo struct {
	db *sql.DB
}

// NewPurchaseRepo returns a PurchaseRepo bound to the given database.
func NewPurchaseRepo(db *sql.DB) *PurchaseRepo { return &PurchaseRepo{db: db} }

// CreateTx inserts a ledger entry inside the caller's transaction.  The
// ID must already be allocated.
func (r *PurchaseRepo) CreateTx(ctx context.Context, tx *sql.Tx, p model.Purchase) error {
	const q = `INSERT INTO purchases (id, user_id, product_id, store_id, seller_user_id, amount_cents,
                                      currency, status, payment_method, transaction_id, product_type,
                                      access_granted, download_count, last_accessed_at, created_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		p.ID, p.UserID, p.ProductID, p.StoreID, p.SellerUserID, p.AmountCents,
		p.Currency, p.Status, p.PaymentMethod, nullString(p.TransactionID), p.ProductType,
		p.AccessGranted, p.DownloadCount, p.LastAccessedAt.UTC(), p.CreatedAt.UTC(),
	)
	if isDuplicateKey(err) {
		return ErrConflict
	}
	return err
}

// LinkBeatLicenseTx stores the license back-reference on a purchase.
func (r *PurchaseRepo) LinkBeatLicenseTx(ctx context.Context, tx *sql.Tx, purchaseID, licenseID string) error {
	res, err := tx.ExecContext(ctx, `UPDATE purchases SET beat_license_id = ? WHERE id = ?`, licenseID, purchaseID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID loads one ledger entry or returns ErrNotFound.
func (r *PurchaseRepo) GetByID(ctx context.Context, id string) (model.Purchase, error) {
	return r.get(ctx, r.db, id)
}

// GetByIDTx loads one ledger entry inside the caller's transaction.
func (r *PurchaseRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id string) (model.Purchase, error) {
	return r.get(ctx, tx, id)
}

func (r *PurchaseRepo) get(ctx context.Context, qr querier, id string) (model.Purchase, error) {
	const q = `SELECT id, user_id, product_id, store_id, seller_user_id, amount_cents, currency, status,
                      payment_method, transaction_id, product_type, access_granted, download_count,
                      last_accessed_at, beat_license_id, created_at
               FROM purchases WHERE id = ?`
	var (
		p         model.Purchase
		txID      sql.NullString
		licenseID sql.NullString
	)
	err := qr.QueryRowContext(ctx, q, id).Scan(
		&p.ID, &p.UserID, &p.ProductID, &p.StoreID, &p.SellerUserID, &p.AmountCents, &p.Currency, &p.Status,
		&p.PaymentMethod, &txID, &p.ProductType, &p.AccessGranted, &p.DownloadCount,
		&p.LastAccessedAt, &licenseID, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Purchase{}, ErrNotFound
		}
		return model.Purchase{}, err
	}
	p.TransactionID = stringPtr(txID)
	p.BeatLicenseID = stringPtr(licenseID)
	return p, nil
}
