package model

// Store is a seller's storefront.  A seller owns at most one store that
// beat licenses are attributed to.
type Store struct {
	ID          string // stores.id
	OwnerUserID string // stores.owner_user_id
	Name        string // stores.name
	Slug        string // stores.slug
}
