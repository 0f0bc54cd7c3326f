package backend

import "time"

// User is a backend account.
type User struct {
	ID         string `json:"id"`
	Phone      string `json:"phone_number"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Role       string `json:"role"`
	MerchantID string `json:"merchant_id,omitempty"`
	Status     string `json:"status,omitempty"`
}

// Merchant is a store registered on the platform.
type Merchant struct {
	ID           string    `json:"id"`
	BusinessName string    `json:"business_name"`
	OwnerName    string    `json:"owner_name"`
	Phone        string    `json:"phone_number,omitempty"`
	Email        string    `json:"email,omitempty"`
	Category     string    `json:"category,omitempty"`
	Status       string    `json:"status,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitzero"`
}

// Product is a catalog item.
type Product struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Description  string  `json:"description,omitempty"`
	Price        float64 `json:"price"`
	Stock        int     `json:"stock"`
	Rating       float64 `json:"rating,omitempty"`
	Category     string  `json:"category,omitempty"`
	MerchantID   string  `json:"merchant_id"`
	MerchantName string  `json:"merchant_name,omitempty"`
	IsVisible    *bool   `json:"is_visible,omitempty"`
}

// Visible reports whether the product is listed. Missing flags count as
// visible.
func (p Product) Visible() bool {
	return p.IsVisible == nil || *p.IsVisible
}

// OrderItem is one line of an order.
type OrderItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name,omitempty"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// Order is a placed order.
type Order struct {
	ID            string      `json:"id"`
	Status        string      `json:"status"`
	Total         float64     `json:"total"`
	Items         []OrderItem `json:"items,omitempty"`
	CustomerPhone string      `json:"customer_phone,omitempty"`
	CustomerName  string      `json:"customer_name,omitempty"`
	MerchantID    string      `json:"merchant_id,omitempty"`
	MerchantName  string      `json:"merchant_name,omitempty"`
	PaymentURL    string      `json:"payment_url,omitempty"`
	CreatedAt     time.Time   `json:"created_at,omitzero"`
}

// CreateOrderRequest is the body of POST /api/orders.
type CreateOrderRequest struct {
	CustomerPhone   string      `json:"customer_phone"`
	MerchantID      string      `json:"merchant_id,omitempty"`
	Items           []OrderItem `json:"items"`
	Total           float64     `json:"total"`
	DeliveryAddress string      `json:"delivery_address,omitempty"`
	Notes           string      `json:"notes,omitempty"`
}

// MerchantAnalytics summarizes a merchant's sales over a timeframe.
type MerchantAnalytics struct {
	Timeframe     string  `json:"timeframe,omitempty"`
	OrdersToday   int     `json:"orders_today"`
	RevenueToday  float64 `json:"revenue_today"`
	TotalOrders   int     `json:"total_orders"`
	TotalRevenue  float64 `json:"total_revenue"`
	PendingOrders int     `json:"pending_orders"`
	AverageRating float64 `json:"average_rating,omitempty"`
	TopProduct    string  `json:"top_product,omitempty"`
}

// SystemAnalytics summarizes the whole platform.
type SystemAnalytics struct {
	TotalUsers      int     `json:"total_users"`
	CustomerCount   int     `json:"customer_count"`
	MerchantCount   int     `json:"merchant_count"`
	TotalOrders     int     `json:"total_orders"`
	TotalRevenue    float64 `json:"total_revenue"`
	AvgResponseTime float64 `json:"avg_response_time,omitempty"`
}

// Alert is an active platform alert.
type Alert struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Severity    string `json:"severity,omitempty"`
}

// BroadcastResult is the answer to POST /api/admin/broadcasts.
type BroadcastResult struct {
	RecipientsCount int `json:"recipients_count"`
}

// Order statuses a merchant may set.
var MerchantOrderStatuses = []string{"confirmed", "preparing", "ready", "out_for_delivery", "delivered", "cancelled"}
