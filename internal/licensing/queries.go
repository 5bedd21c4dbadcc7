package licensing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/beat-license-registry/internal/model"
	"github.com/iliyamo/beat-license-registry/internal/repository"
	"github.com/iliyamo/beat-license-registry/internal/tier"
)

// DefaultSalesLimit caps GetCreatorBeatSales when no limit is given.
const DefaultSalesLimit = 50

// MaxSalesLimit is the largest page GetCreatorBeatSales returns.
const MaxSalesLimit = 500

const soldExclusivelyReason = "This beat has been sold exclusively"

// BeatSummary is the beat projection attached to a buyer's license.
type BeatSummary struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	ImageURL   string `json:"image_url,omitempty"`
	AudioURL   string `json:"audio_url,omitempty"`
	BPM        *int   `json:"bpm,omitempty"`
	MusicalKey string `json:"musical_key,omitempty"`
	Genre      string `json:"genre,omitempty"`
}

// StoreSummary is the store projection attached to a buyer's license.
type StoreSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// UserLicense is a license with its beat and store.  Beat or Store is
// nil when the referenced record was deleted.
type UserLicense struct {
	model.BeatLicense
	Beat  *BeatSummary  `json:"beat"`
	Store *StoreSummary `json:"store"`
}

// Sale is one row of a seller's sales list.
type Sale struct {
	ID           string         `json:"id"`
	BeatID       string         `json:"beat_id"`
	BeatTitle    string         `json:"beat_title"`
	BeatImageURL string         `json:"beat_image_url,omitempty"`
	TierType     model.TierType `json:"tier_type"`
	TierName     string         `json:"tier_name"`
	PriceCents   int64          `json:"price_cents"`
	BuyerName    *string        `json:"buyer_name,omitempty"`
	BuyerEmail   string         `json:"buyer_email"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Availability reports whether a beat can still be bought.
type Availability struct {
	Available       bool       `json:"available"`
	ExclusiveSoldAt *time.Time `json:"exclusive_sold_at,omitempty"`
}

// TierOffer is an enabled tier with the files a license would deliver.
type TierOffer struct {
	model.Tier
	IncludedFiles []string `json:"included_files"`
}

// TierListing is the purchasable catalog of a beat.
type TierListing struct {
	Available bool        `json:"available"`
	Reason    string      `json:"reason,omitempty"`
	Tiers     []TierOffer `json:"tiers"`
}

// LicenseRef is the short form returned by CheckUserBeatLicense.
type LicenseRef struct {
	ID        string         `json:"id"`
	TierType  model.TierType `json:"tier_type"`
	TierName  string         `json:"tier_name"`
	CreatedAt time.Time      `json:"created_at"`
}

// LicenseCheck answers whether a buyer holds a license for a beat.
type LicenseCheck struct {
	HasLicense bool         `json:"has_license"`
	Licenses   []LicenseRef `json:"licenses"`
}

// GetBeatLicenseByPurchase returns the license issued for a purchase, or
// nil when there is none.
func (r *Registry) GetBeatLicenseByPurchase(ctx context.Context, purchaseID string) (*model.BeatLicense, error) {
	l, err := r.store.GetLicenseByPurchase(ctx, purchaseID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// GetUserBeatLicenses lists a buyer's licenses newest first.
func (r *Registry) GetUserBeatLicenses(ctx context.Context, userID string) ([]UserLicense, error) {
	licenses, err := r.store.ListLicensesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	beats := map[string]*BeatSummary{}
	stores := map[string]*StoreSummary{}
	out := make([]UserLicense, 0, len(licenses))
	for _, l := range licenses {
		ul := UserLicense{BeatLicense: l}
		if b, seen := beats[l.BeatID]; seen {
			ul.Beat = b
		} else {
			if ul.Beat, err = r.beatSummary(ctx, l.BeatID); err != nil {
				return nil, err
			}
			beats[l.BeatID] = ul.Beat
		}
		if s, seen := stores[l.StoreID]; seen {
			ul.Store = s
		} else {
			if ul.Store, err = r.storeSummary(ctx, l.StoreID); err != nil {
				return nil, err
			}
			stores[l.StoreID] = ul.Store
		}
		out = append(out, ul)
	}
	return out, nil
}

func (r *Registry) beatSummary(ctx context.Context, id string) (*BeatSummary, error) {
	b, err := r.store.GetBeat(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &BeatSummary{
		ID: b.ID, Title: b.Title, ImageURL: b.ImageURL, AudioURL: b.AudioURL,
		BPM: b.BPM, MusicalKey: b.MusicalKey, Genre: b.Genre,
	}, nil
}

func (r *Registry) storeSummary(ctx context.Context, id string) (*StoreSummary, error) {
	s, err := r.store.GetStore(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &StoreSummary{ID: s.ID, Name: s.Name, Slug: s.Slug}, nil
}

// GetCreatorBeatSales lists the licenses sold by a store, newest first.
// Only the store owner may call it.  limit <= 0 selects
// DefaultSalesLimit.
func (r *Registry) GetCreatorBeatSales(ctx context.Context, callerID, storeID string, limit int) ([]Sale, error) {
	if strings.TrimSpace(callerID) == "" {
		return nil, ErrNoCaller
	}
	store, err := r.store.GetStore(ctx, storeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrStoreNotFound
		}
		return nil, err
	}
	if store.OwnerUserID != callerID {
		return nil, ErrNotStoreOwner
	}
	if limit <= 0 {
		limit = DefaultSalesLimit
	}
	if limit > MaxSalesLimit {
		limit = MaxSalesLimit
	}

	licenses, err := r.store.ListLicensesByStore(ctx, store.ID, limit)
	if err != nil {
		return nil, err
	}
	images := map[string]string{}
	out := make([]Sale, 0, len(licenses))
	for _, l := range licenses {
		img, seen := images[l.BeatID]
		if !seen {
			b, err := r.store.GetBeat(ctx, l.BeatID)
			switch {
			case err == nil:
				img = b.ImageURL
			case !errors.Is(err, repository.ErrNotFound):
				return nil, err
			}
			images[l.BeatID] = img
		}
		out = append(out, Sale{
			ID: l.ID, BeatID: l.BeatID, BeatTitle: l.BeatTitle, BeatImageURL: img,
			TierType: l.TierType, TierName: l.TierName, PriceCents: l.PriceCents,
			BuyerName: l.BuyerName, BuyerEmail: l.BuyerEmail, CreatedAt: l.CreatedAt,
		})
	}
	return out, nil
}

// IsBeatAvailable reports whether a beat can be purchased.  An unknown
// beat is reported as unavailable.
func (r *Registry) IsBeatAvailable(ctx context.Context, beatID string) (Availability, error) {
	b, err := r.store.GetBeat(ctx, beatID)
	if errors.Is(err, repository.ErrNotFound) {
		return Availability{Available: false}, nil
	}
	if err != nil {
		return Availability{}, err
	}
	if b.IsExclusivelySold() {
		return Availability{Available: false, ExclusiveSoldAt: b.ExclusiveSoldAt}, nil
	}
	return Availability{Available: true}, nil
}

// GetBeatLicenseTiers returns the enabled tiers of a beat, or nil for an
// unknown beat.
func (r *Registry) GetBeatLicenseTiers(ctx context.Context, beatID string) (*TierListing, error) {
	b, err := r.store.GetBeat(ctx, beatID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if b.IsExclusivelySold() {
		return &TierListing{Available: false, Reason: soldExclusivelyReason, Tiers: []TierOffer{}}, nil
	}
	enabled := tier.Enabled(b.Tiers)
	offers := make([]TierOffer, 0, len(enabled))
	for _, t := range enabled {
		offers = append(offers, TierOffer{Tier: t, IncludedFiles: tier.DeliveredFiles(t.Type)})
	}
	return &TierListing{Available: true, Tiers: offers}, nil
}

// CheckUserBeatLicense reports the licenses a buyer holds for a beat,
// restricted to tierType unless it is empty.
func (r *Registry) CheckUserBeatLicense(ctx context.Context, userID, beatID string, tierType model.TierType) (LicenseCheck, error) {
	if tierType != "" && !tierType.Valid() {
		return LicenseCheck{}, fmt.Errorf("%w: unknown tier type %q", repository.ErrInvalidInput, tierType)
	}
	licenses, err := r.store.ListLicensesByUserBeat(ctx, userID, beatID, tierType)
	if err != nil {
		return LicenseCheck{}, err
	}
	refs := make([]LicenseRef, 0, len(licenses))
	for _, l := range licenses {
		refs = append(refs, LicenseRef{ID: l.ID, TierType: l.TierType, TierName: l.TierName, CreatedAt: l.CreatedAt})
	}
	return LicenseCheck{HasLicense: len(refs) > 0, Licenses: refs}, nil
}
