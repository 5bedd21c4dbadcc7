// Package ports declares the storage and side-effect interfaces the
// licensing core depends on.  The MySQL repositories and the in-memory
// store both implement Store.
package ports

import (
	"context"
	"time"

	"github.com/iliyamo/beat-license-registry/internal/model"
)

// Reader is the non-transactional read and metadata-update surface.
// Lookups of a single record return repository.ErrNotFound when the
// record does not exist.
type Reader interface {
	GetBeat(ctx context.Context, beatID string) (model.Beat, error)
	GetStore(ctx context.Context, storeID string) (model.Store, error)
	GetUser(ctx context.Context, userID string) (model.User, error)
	GetLicense(ctx context.Context, licenseID string) (model.BeatLicense, error)

	// GetLicenseByPurchase returns repository.ErrNotFound when the
	// purchase has no license.
	GetLicenseByPurchase(ctx context.Context, purchaseID string) (model.BeatLicense, error)
	// ListLicensesByUser returns newest first.
	ListLicensesByUser(ctx context.Context, userID string) ([]model.BeatLicense, error)
	// ListLicensesByStore returns at most limit licenses, newest first.
	ListLicensesByStore(ctx context.Context, storeID string, limit int) ([]model.BeatLicense, error)
	// ListLicensesByUserBeat filters on tierType unless it is empty.
	ListLicensesByUserBeat(ctx context.Context, userID, beatID string, tierType model.TierType) ([]model.BeatLicense, error)

	SetContractGeneratedAt(ctx context.Context, licenseID string, at time.Time) error
	UpdateBeatTiers(ctx context.Context, beatID string, tiers []model.Tier, at time.Time) error
}

// Tx is the write set of a single purchase.  Every call made through
// one Tx commits or rolls back together.
type Tx interface {
	// GetBeatForUpdate loads the beat and holds it against concurrent
	// purchase transactions until the Tx ends.
	GetBeatForUpdate(ctx context.Context, beatID string) (model.Beat, error)
	ListLicensesByUserBeat(ctx context.Context, userID, beatID string, tierType model.TierType) ([]model.BeatLicense, error)
	GetStoreByOwner(ctx context.Context, ownerUserID string) (model.Store, error)
	GetUser(ctx context.Context, userID string) (model.User, error)
	GetPurchase(ctx context.Context, purchaseID string) (model.Purchase, error)

	CreatePurchase(ctx context.Context, p model.Purchase) error
	CreateBeatLicense(ctx context.Context, l model.BeatLicense) error
	LinkPurchaseLicense(ctx context.Context, purchaseID, licenseID string) error
	MarkBeatExclusivelySold(ctx context.Context, beatID, userID, purchaseID string, at time.Time) error
}

// Store combines reads with transactional writes.  InTx runs fn in one
// transaction; fn's error rolls everything back and is returned as is.
type Store interface {
	Reader
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// CustomerUpsert describes one purchase's contribution to the
// seller-side CRM record of a buyer.
type CustomerUpsert struct {
	Email        string
	StoreID      string
	SellerUserID string
	Name         string
	AmountCents  int64
	Source       string
	At           time.Time
}

// CustomerRepository maintains CRM records keyed by (email, store).
type CustomerRepository interface {
	Upsert(ctx context.Context, in CustomerUpsert) error
}

// PurchaseNotifier hands a committed purchase to the email workflow
// pipeline.
type PurchaseNotifier interface {
	NotifyPurchase(ctx context.Context, n model.PurchaseNotification) error
}

// CacheInvalidator drops cached public responses about a beat.
type CacheInvalidator interface {
	InvalidateBeat(ctx context.Context, beatID string) error
}
