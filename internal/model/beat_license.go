package model

import "time"

// BeatLicense is the rights granted to one buyer for one beat at one
// tier.  Tier terms are copied into the row when it is issued and are
// never re-read from the beat's catalog afterwards.
type BeatLicense struct {
	ID                  string      `json:"id"`
	PurchaseID          string      `json:"purchase_id"`
	BeatID              string      `json:"beat_id"`
	UserID              string      `json:"user_id"`
	StoreID             string      `json:"store_id"`
	TierType            TierType    `json:"tier_type"`
	TierName            string      `json:"tier_name"`
	PriceCents          int64       `json:"price_cents"`
	Rights              UsageRights `json:"rights"`
	DeliveredFiles      []string    `json:"delivered_files"`
	BuyerEmail          string      `json:"buyer_email"`
	BuyerName           *string     `json:"buyer_name,omitempty"`
	BeatTitle           string      `json:"beat_title"`
	ProducerName        string      `json:"producer_name"`
	CreatedAt           time.Time   `json:"created_at"`
	ContractGeneratedAt *time.Time  `json:"contract_generated_at,omitempty"`
}
