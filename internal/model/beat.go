package model

import "time"

// TierType names a license tier a seller can offer for a beat.
type TierType string

const (
	TierBasic     TierType = "basic"
	TierPremium   TierType = "premium"
	TierExclusive TierType = "exclusive"
	TierUnlimited TierType = "unlimited"
)

// Valid reports whether t is one of the known tier types.
func (t TierType) Valid() bool {
	switch t {
	case TierBasic, TierPremium, TierExclusive, TierUnlimited:
		return true
	}
	return false
}

// UsageRights is the contractual metadata attached to a tier.  The values
// are stored and displayed but never enforced programmatically.  A nil
// limit means the seller did not set one.
type UsageRights struct {
	DistributionLimit *int64 `json:"distribution_limit,omitempty"`
	StreamingLimit    *int64 `json:"streaming_limit,omitempty"`
	CommercialUse     bool   `json:"commercial_use"`
	MusicVideoUse     bool   `json:"music_video_use"`
	RadioBroadcasting bool   `json:"radio_broadcasting"`
	StemsIncluded     bool   `json:"stems_included"`
	CreditRequired    bool   `json:"credit_required"`
}

// Clone returns a deep copy so that limit pointers are never shared
// between a catalog entry and a license issued from it.
func (u UsageRights) Clone() UsageRights {
	out := u
	if u.DistributionLimit != nil {
		v := *u.DistributionLimit
		out.DistributionLimit = &v
	}
	if u.StreamingLimit != nil {
		v := *u.StreamingLimit
		out.StreamingLimit = &v
	}
	return out
}

// Tier is one entry of a beat's lease catalog.
type Tier struct {
	Type       TierType `json:"type"`
	Enabled    bool     `json:"enabled"`
	Name       string   `json:"name"`
	PriceCents int64    `json:"price_cents"`
	UsageRights
}

// Beat mirrors the beats table.  Tiers is stored as a JSON column
// (beats.lease_tiers) in catalog order.
//
// ExclusiveSoldAt, ExclusiveSoldTo and ExclusivePurchaseID are either
// all nil or all set; once set the beat is unpublished for good.
type Beat struct {
	ID                  string     // beats.id
	OwnerUserID         string     // beats.owner_user_id
	Title               string     // beats.title
	ImageURL            string     // beats.image_url
	AudioURL            string     // beats.audio_url
	BPM                 *int       // beats.bpm (nullable)
	MusicalKey          string     // beats.musical_key
	Genre               string     // beats.genre
	Tiers               []Tier     // beats.lease_tiers
	IsPublished         bool       // beats.is_published
	ExclusiveSoldAt     *time.Time // beats.exclusive_sold_at (nullable)
	ExclusiveSoldTo     *string    // beats.exclusive_sold_to (nullable)
	ExclusivePurchaseID *string    // beats.exclusive_purchase_id (nullable)
	CreatedAt           time.Time  // beats.created_at
	UpdatedAt           time.Time  // beats.updated_at
}

// IsExclusivelySold reports whether the beat has been withdrawn from sale.
func (b Beat) IsExclusivelySold() bool { return b.ExclusiveSoldAt != nil }
