package model

import "time"

const (
	CustomerTypeLead   = "lead"
	CustomerTypePaying = "paying"

	CustomerStatusActive = "active"
)

// Customer is the seller-side CRM record of a buyer, unique per
// (email, store).
type Customer struct {
	ID              string    // customers.id
	Email           string    // customers.email
	StoreID         string    // customers.store_id
	SellerUserID    string    // customers.seller_user_id
	Name            string    // customers.name
	Type            string    // customers.type (lead, paying)
	Status          string    // customers.status
	TotalSpentCents int64     // customers.total_spent_cents
	LastActivity    time.Time // customers.last_activity
	Source          string    // customers.source
}
