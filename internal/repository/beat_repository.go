package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/beat-license-registry/internal/model"
)

// BeatRepo provides access to the beats table.  The lease catalog is
// kept in the lease_tiers JSON column in catalog order.
type BeatRepo struct {
	db *sql.DB
}

// NewBeatRepo returns a BeatRepo bound to the given database.
func NewBeatRepo(db *sql.DB) *BeatRepo { return &BeatRepo{db: db} }

const beatColumns = `id, owner_user_id, title, image_url, audio_url, bpm, musical_key, genre,
                     lease_tiers, is_published, exclusive_sold_at, exclusive_sold_to,
                     exclusive_purchase_id, created_at, updated_at`

// GetByID loads a beat.  It returns ErrNotFound when no row matches.
func (r *BeatRepo) GetByID(ctx context.Context, id string) (model.Beat, error) {
	return r.get(ctx, r.db, `SELECT `+beatColumns+` FROM beats WHERE id = ?`, id)
}

// GetForUpdateTx loads a beat and takes a row lock on it for the rest of
// the transaction.  Concurrent purchase transactions for the same beat
// queue behind the lock, which serializes their duplicate and
// exclusivity checks.
func (r *BeatRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (model.Beat, error) {
	return r.get(ctx, tx, `SELECT `+beatColumns+` FROM beats WHERE id = ? FOR UPDATE`, id)
}

func (r *BeatRepo) get(ctx context.Context, q querier, query, id string) (model.Beat, error) {
	var (
		b          model.Beat
		bpm        sql.NullInt64
		tiersJSON  []byte
		soldAt     sql.NullTime
		soldTo     sql.NullString
		purchaseID sql.NullString
	)
	err := q.QueryRowContext(ctx, query, id).Scan(
		&b.ID, &b.OwnerUserID, &b.Title, &b.ImageURL, &b.AudioURL, &bpm, &b.MusicalKey, &b.Genre,
		&tiersJSON, &b.IsPublished, &soldAt, &soldTo, &purchaseID, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Beat{}, ErrNotFound
		}
		return model.Beat{}, err
	}
	if bpm.Valid {
		v := int(bpm.Int64)
		b.BPM = &v
	}
	if len(tiersJSON) > 0 {
		if err := json.Unmarshal(tiersJSON, &b.Tiers); err != nil {
			return model.Beat{}, fmt.Errorf("decode lease_tiers for beat %s: %w", id, err)
		}
	}
	b.ExclusiveSoldAt = timePtr(soldAt)
	b.ExclusiveSoldTo = stringPtr(soldTo)
	b.ExclusivePurchaseID = stringPtr(purchaseID)
	return b, nil
}

// MarkExclusivelySoldTx withdraws the beat from sale.  The guard on
// exclusive_sold_at makes the transition happen at most once: a second
// call for an already sold beat affects no row and returns ErrConflict.
func (r *BeatRepo) MarkExclusivelySoldTx(ctx context.Context, tx *sql.Tx, beatID, userID, purchaseID string, at time.Time) error {
	const q = `UPDATE beats
               SET exclusive_sold_at = ?, exclusive_sold_to = ?, exclusive_purchase_id = ?,
                   is_published = 0, updated_at = ?
               WHERE id = ? AND exclusive_sold_at IS NULL`
	res, err := tx.ExecContext(ctx, q, at.UTC(), userID, purchaseID, at.UTC(), beatID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// UpdateTiers replaces the lease catalog of a beat that has not been
// sold exclusively.  It returns ErrNotFound for an unknown beat and
// ErrConflict once the beat is sold.
func (r *BeatRepo) UpdateTiers(ctx context.Context, beatID string, tiers []model.Tier, at time.Time) error {
	if tiers == nil {
		tiers = []model.Tier{}
	}
	raw, err := json.Marshal(tiers)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE beats SET lease_tiers = ?, updated_at = ? WHERE id = ? AND exclusive_sold_at IS NULL`,
		raw, at.UTC(), beatID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n > 0 {
		return nil
	}
	// Zero rows: either the beat is missing or it has been sold.
	b, err := r.GetByID(ctx, beatID)
	if err != nil {
		return err
	}
	if b.IsExclusivelySold() {
		return ErrConflict
	}
	return nil
}
