package storage

import "time"

// CommandRecord is one dispatch attempt in the command history.
type CommandRecord struct {
	ID         int64
	UserID     string
	ChatID     string
	Command    string
	Args       string
	Outcome    string
	DurationMs int64
	CreatedAt  time.Time
}

// CachedRole is a backend user lookup kept locally.
type CachedRole struct {
	UserID     string
	Role       string
	Name       string
	MerchantID string
	CachedAt   time.Time
}

// CartItem is one product line in a customer's cart.
type CartItem struct {
	UserID     string
	ProductID  string
	Name       string
	MerchantID string
	Price      float64
	Quantity   int
	AddedAt    time.Time
}

// Subtotal returns price times quantity.
func (c CartItem) Subtotal() float64 {
	return c.Price * float64(c.Quantity)
}
