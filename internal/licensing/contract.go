package licensing

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/beat-license-registry/internal/logging"
	"github.com/iliyamo/beat-license-registry/internal/model"
	"github.com/iliyamo/beat-license-registry/internal/repository"
	"github.com/iliyamo/beat-license-registry/internal/tier"
)

// MarkContractGenerated stamps the contract time on the caller's own
// license.
func (r *Registry) MarkContractGenerated(ctx context.Context, callerID, licenseID string) error {
	if strings.TrimSpace(callerID) == "" {
		return ErrNoCaller
	}
	l, err := r.store.GetLicense(ctx, licenseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrLicenseNotFound
		}
		return err
	}
	if l.UserID != callerID {
		return ErrNotLicenseOwner
	}
	if err := r.store.SetContractGeneratedAt(ctx, l.ID, r.clock()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrLicenseNotFound
		}
		return err
	}
	r.logger.Info("beat license contract generated", zap.String(logging.FieldLicenseID, l.ID))
	return nil
}

// UpdateBeatTiers replaces the lease catalog of the caller's beat.
// Issued licenses keep the terms they were sold with.
func (r *Registry) UpdateBeatTiers(ctx context.Context, callerID, beatID string, tiers []model.Tier) error {
	if strings.TrimSpace(callerID) == "" {
		return ErrNoCaller
	}
	if err := tier.Validate(tiers); err != nil {
		return err
	}
	b, err := r.store.GetBeat(ctx, beatID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrBeatNotFound
		}
		return err
	}
	if b.OwnerUserID != callerID {
		return ErrNotBeatOwner
	}
	if b.IsExclusivelySold() {
		return ErrExclusivelySold
	}
	if err := r.store.UpdateBeatTiers(ctx, beatID, tiers, r.clock()); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return ErrBeatNotFound
		case errors.Is(err, repository.ErrConflict):
			return ErrExclusivelySold
		}
		return err
	}
	r.invalidate(beatID)
	return nil
}
