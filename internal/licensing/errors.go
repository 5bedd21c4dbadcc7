package licensing

import (
	"fmt"

	"github.com/iliyamo/beat-license-registry/internal/model"
	"github.com/iliyamo/beat-license-registry/internal/repository"
)

// Domain errors.  Each wraps a repository sentinel so handlers can map
// it to a status code with errors.Is.
var (
	ErrBeatNotFound     = fmt.Errorf("%w: beat not found", repository.ErrNotFound)
	ErrStoreNotFound    = fmt.Errorf("%w: store not found", repository.ErrNotFound)
	ErrLicenseNotFound  = fmt.Errorf("%w: license not found", repository.ErrNotFound)
	ErrPurchaseNotFound = fmt.Errorf("%w: purchase not found", repository.ErrNotFound)

	ErrExclusivelySold = fmt.Errorf("%w: this beat has already been sold exclusively", repository.ErrConflict)
	ErrAlreadyLicensed = fmt.Errorf("%w: you already own a license for this beat", repository.ErrConflict)

	ErrNotLicenseOwner = fmt.Errorf("%w: license belongs to another user", repository.ErrForbidden)
	ErrNotStoreOwner   = fmt.Errorf("%w: store belongs to another user", repository.ErrForbidden)
	ErrNotBeatOwner    = fmt.Errorf("%w: beat belongs to another user", repository.ErrForbidden)

	ErrNoCaller = fmt.Errorf("%w: authentication required", repository.ErrUnauthorized)
)

// tierOwnedError reports a repeat purchase of the same non-exclusive tier.
func tierOwnedError(t model.TierType) error {
	return fmt.Errorf("%w: you already own a %s license for this beat", repository.ErrConflict, string(t))
}
