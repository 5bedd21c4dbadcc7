// Package tier resolves entries of a beat's lease catalog and maps tier
// types to the file categories a license delivers.
package tier

import (
	"fmt"

	"github.com/iliyamo/beat-license-registry/internal/model"
	"github.com/iliyamo/beat-license-registry/internal/repository"
)

// File categories delivered with a license.
const (
	FileMP3       = "mp3"
	FileWAV       = "wav"
	FileStems     = "stems"
	FileTrackouts = "trackouts"
)

// ErrUnavailable is returned by Find when the requested tier is missing
// from the catalog or disabled.
var ErrUnavailable = fmt.Errorf("%w: tier not found or not enabled", repository.ErrNotFound)

// Find returns the enabled tier of the given type.  A disabled tier is
// treated exactly like a missing one.
func Find(tiers []model.Tier, t model.TierType) (model.Tier, error) {
	for _, tr := range tiers {
		if tr.Type == t && tr.Enabled {
			return tr, nil
		}
	}
	return model.Tier{}, fmt.Errorf("%w (%s)", ErrUnavailable, t)
}

// Enabled returns the enabled tiers in catalog order.
func Enabled(tiers []model.Tier) []model.Tier {
	out := make([]model.Tier, 0, len(tiers))
	for _, tr := range tiers {
		if tr.Enabled {
			out = append(out, tr)
		}
	}
	return out
}

// DeliveredFiles returns the file categories a license of type t
// delivers.  Unknown types get the basic set.  The result is a fresh
// slice on every call.
func DeliveredFiles(t model.TierType) []string {
	switch t {
	case model.TierPremium:
		return []string{FileMP3, FileWAV, FileStems}
	case model.TierExclusive, model.TierUnlimited:
		return []string{FileMP3, FileWAV, FileStems, FileTrackouts}
	default:
		return []string{FileMP3, FileWAV}
	}
}

// Validate checks a catalog submitted by a seller: every type must be
// known, appear once, and carry a non-negative price.
func Validate(tiers []model.Tier) error {
	seen := make(map[model.TierType]bool, len(tiers))
	for _, tr := range tiers {
		if !tr.Type.Valid() {
			return fmt.Errorf("%w: unknown tier type %q", repository.ErrInvalidInput, tr.Type)
		}
		if seen[tr.Type] {
			return fmt.Errorf("%w: duplicate tier type %q", repository.ErrInvalidInput, tr.Type)
		}
		seen[tr.Type] = true
		if tr.PriceCents < 0 {
			return fmt.Errorf("%w: negative price for tier %q", repository.ErrInvalidInput, tr.Type)
		}
	}
	return nil
}
