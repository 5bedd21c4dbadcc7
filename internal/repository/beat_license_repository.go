package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iliyamo/beat-license-registry/internal/model"
)

// BeatLicenseRepo provides access to the beat_licenses table.  Two
// unique indexes back the purchase rules: (user_id, beat_id, tier_type)
// and exclusive_beat_id, a generated column that is the beat id for
// exclusive rows and NULL otherwise.
type BeatLicenseRepo struct {
	db *sql.DB
}

// NewBeatLicenseRepo returns a BeatLicenseRepo bound to the given database.
func NewBeatLicenseRepo(db *sql.DB) *BeatLicenseRepo { return &BeatLicenseRepo{db: db} }

const licenseColumns = `id, purchase_id, beat_id, user_id, store_id, tier_type, tier_name, price_cents,
                        distribution_limit, streaming_limit, commercial_use, music_video_use,
                        radio_broadcasting, stems_included, credit_required, delivered_files,
                        buyer_email, buyer_name, beat_title, producer_name, created_at,
                        contract_generated_at`

// CreateTx inserts an issued license.  A unique index violation means a
// concurrent purchase won the race and is reported as ErrConflict.
func (r *BeatLicenseRepo) CreateTx(ctx context.Context, tx *sql.Tx, l model.BeatLicense) error {
	files, err := json.Marshal(l.DeliveredFiles)
	if err != nil {
		return err
	}
	const q = `INSERT INTO beat_licenses (id, purchase_id, beat_id, user_id, store_id, tier_type, tier_name,
                                          price_cents, distribution_limit, streaming_limit, commercial_use,
                                          music_video_use, radio_broadcasting, stems_included, credit_required,
                                          delivered_files, buyer_email, buyer_name, beat_title, producer_name,
                                          created_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, q,
		l.ID, l.PurchaseID, l.BeatID, l.UserID, l.StoreID, string(l.TierType), l.TierName,
		l.PriceCents, nullInt64(l.Rights.DistributionLimit), nullInt64(l.Rights.StreamingLimit),
		l.Rights.CommercialUse, l.Rights.MusicVideoUse, l.Rights.RadioBroadcasting,
		l.Rights.StemsIncluded, l.Rights.CreditRequired,
		files, l.BuyerEmail, nullString(l.BuyerName), l.BeatTitle, l.ProducerName, l.CreatedAt.UTC(),
	)
	if isDuplicateKey(err) {
		return ErrConflict
	}
	return err
}

// ListByUserBeat returns the licenses a user holds for a beat.  When
// tierType is empty every tier is returned.
func (r *BeatLicenseRepo) ListByUserBeat(ctx context.Context, userID, beatID string, tierType model.TierType) ([]model.BeatLicense, error) {
	return r.listByUserBeat(ctx, r.db, userID, beatID, tierType)
}

// ListByUserBeatTx is ListByUserBeat inside the caller's transaction.
func (r *BeatLicenseRepo) ListByUserBeatTx(ctx context.Context, tx *sql.Tx, userID, beatID string, tierType model.TierType) ([]model.BeatLicense, error) {
	return r.listByUserBeat(ctx, tx, userID, beatID, tierType)
}

func (r *BeatLicenseRepo) listByUserBeat(ctx context.Context, q querier, userID, beatID string, tierType model.TierType) ([]model.BeatLicense, error) {
	if tierType == "" {
		return r.list(ctx, q, `SELECT `+licenseColumns+` FROM beat_licenses
                               WHERE user_id = ? AND beat_id = ? ORDER BY created_at DESC, id DESC`,
			userID, beatID)
	}
	return r.list(ctx, q, `SELECT `+licenseColumns+` FROM beat_licenses
                           WHERE user_id = ? AND beat_id = ? AND tier_type = ? ORDER BY created_at DESC, id DESC`,
		userID, beatID, string(tierType))
}

// GetByID loads one license or returns ErrNotFound.
func (r *BeatLicenseRepo) GetByID(ctx context.Context, id string) (model.BeatLicense, error) {
	return r.one(ctx, `SELECT `+licenseColumns+` FROM beat_licenses WHERE id = ?`, id)
}

// GetByPurchase loads the license issued for a purchase or returns
// ErrNotFound.
func (r *BeatLicenseRepo) GetByPurchase(ctx context.Context, purchaseID string) (model.BeatLicense, error) {
	return r.one(ctx, `SELECT `+licenseColumns+` FROM beat_licenses WHERE purchase_id = ?`, purchaseID)
}

// ListByUser returns all licenses of a buyer, newest first.
func (r *BeatLicenseRepo) ListByUser(ctx context.Context, userID string) ([]model.BeatLicense, error) {
	return r.list(ctx, r.db, `SELECT `+licenseColumns+` FROM beat_licenses
                              WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
}

// ListByStore returns up to limit licenses sold by a store, newest first.
func (r *BeatLicenseRepo) ListByStore(ctx context.Context, storeID string, limit int) ([]model.BeatLicense, error) {
	return r.list(ctx, r.db, `SELECT `+licenseColumns+` FROM beat_licenses
                              WHERE store_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, storeID, limit)
}

// SetContractGeneratedAt stamps the contract timestamp on a license.
func (r *BeatLicenseRepo) SetContractGeneratedAt(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE beat_licenses SET contract_generated_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// The row may exist with an identical timestamp; confirm before
		// reporting it missing.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *BeatLicenseRepo) one(ctx context.Context, query string, args ...any) (model.BeatLicense, error) {
	items, err := r.list(ctx, r.db, query, args...)
	if err != nil {
		return model.BeatLicense{}, err
	}
	if len(items) == 0 {
		return model.BeatLicense{}, ErrNotFound
	}
	return items[0], nil
}

func (r *BeatLicenseRepo) list(ctx context.Context, q querier, query string, args ...any) ([]model.BeatLicense, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.BeatLicense, 0)
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanLicense(rows *sql.Rows) (model.BeatLicense, error) {
	var (
		l           model.BeatLicense
		tierType    string
		distLimit   sql.NullInt64
		streamLimit sql.NullInt64
		files       []byte
		buyerName   sql.NullString
		contractAt  sql.NullTime
	)
	if err := rows.Scan(
		&l.ID, &l.PurchaseID, &l.BeatID, &l.UserID, &l.StoreID, &tierType, &l.TierName, &l.PriceCents,
		&distLimit, &streamLimit, &l.Rights.CommercialUse, &l.Rights.MusicVideoUse,
		&l.Rights.RadioBroadcasting, &l.Rights.StemsIncluded, &l.Rights.CreditRequired, &files,
		&l.BuyerEmail, &buyerName, &l.BeatTitle, &l.ProducerName, &l.CreatedAt, &contractAt,
	); err != nil {
		return model.BeatLicense{}, err
	}
	l.TierType = model.TierType(tierType)
	l.Rights.DistributionLimit = int64Ptr(distLimit)
	l.Rights.StreamingLimit = int64Ptr(streamLimit)
	if len(files) > 0 {
		if err := json.Unmarshal(files, &l.DeliveredFiles); err != nil {
			return model.BeatLicense{}, fmt.Errorf("decode delivered_files for license %s: %w", l.ID, err)
		}
	}
	l.BuyerName = stringPtr(buyerName)
	l.ContractGeneratedAt = timePtr(contractAt)
	l.CreatedAt = l.CreatedAt.UTC()
	return l, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
