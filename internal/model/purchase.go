package model

import "time"

const (
	PurchaseStatusCompleted = "completed"
	ProductTypeBeatLease    = "beatLease"
)

// Purchase is an entry of the purchase ledger.  The ledger is shared by
// every product type; beat leases carry a back-reference to their
// license in BeatLicenseID once the license row exists.
//
// Fields:
//
//	UserID       – buyer.
//	ProductID    – purchased product (the beat id for leases).
//	StoreID      – store the checkout ran against.
//	SellerUserID – owner of the product at purchase time.
//	AmountCents  – amount charged, in minor units of Currency.
type Purchase struct {
	ID             string    // purchases.id
	UserID         string    // purchases.user_id
	ProductID      string    // purchases.product_id
	StoreID        string    // purchases.store_id
	SellerUserID   string    // purchases.seller_user_id
	AmountCents    int64     // purchases.amount_cents
	Currency       string    // purchases.currency
	Status         string    // purchases.status
	PaymentMethod  string    // purchases.payment_method
	TransactionID  *string   // purchases.transaction_id (nullable)
	ProductType    string    // purchases.product_type
	AccessGranted  bool      // purchases.access_granted
	DownloadCount  int       // purchases.download_count
	LastAccessedAt time.Time // purchases.last_accessed_at
	BeatLicenseID  *string   // purchases.beat_license_id (nullable)
	CreatedAt      time.Time // purchases.created_at
}
