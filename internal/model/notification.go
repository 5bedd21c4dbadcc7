package model

// PurchaseNotification is published after a purchase commits so the
// email workflow pipeline can react without reading the primary store.
type PurchaseNotification struct {
	StoreID       string   `json:"store_id"`
	CustomerEmail string   `json:"customer_email"`
	CustomerName  string   `json:"customer_name"`
	ProductID     string   `json:"product_id"`
	ProductName   string   `json:"product_name"`
	ProductType   string   `json:"product_type"`
	OrderID       string   `json:"order_id"`
	AmountCents   int64    `json:"amount_cents"`
	Currency      string   `json:"currency"`
	TierType      TierType `json:"tier_type"`
	PurchasedAt   string   `json:"purchased_at"`
}
