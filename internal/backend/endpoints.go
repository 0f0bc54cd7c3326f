package backend

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// NormalizePhone strips every non-digit from phone.
func NormalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
}

func seg(s string) string {
	return url.PathEscape(s)
}

// Users

// GetUser fetches the account registered to phone.
func (c *Client) GetUser(ctx context.Context, phone string) *Response {
	return c.do(ctx, http.MethodGet, "/api/users/"+seg(NormalizePhone(phone)), "GET /api/users/{phone}", nil)
}

// Merchants

// PendingMerchants lists merchant applications awaiting review.
func (c *Client) PendingMerchants(ctx context.Context) *Response {
	return c.do(ctx, http.MethodGet, "/api/admin/merchants/pending", "GET /api/admin/merchants/pending", nil)
}

// ApproveMerchant activates a merchant.
func (c *Client) ApproveMerchant(ctx context.Context, merchantID, adminID string) *Response {
	return c.do(ctx, http.MethodPost, "/api/admin/merchants/"+seg(merchantID)+"/approve",
		"POST /api/admin/merchants/{id}/approve", map[string]string{"approved_by": adminID})
}

// RejectMerchant declines a merchant application.
func (c *Client) RejectMerchant(ctx context.Context, merchantID, reason, adminID string) *Response {
	return c.do(ctx, http.MethodPost, "/api/admin/merchants/"+seg(merchantID)+"/reject",
		"POST /api/admin/merchants/{id}/reject", map[string]string{"reason": reason, "rejected_by": adminID})
}

// SuspendMerchant suspends an active merchant.
func (c *Client) SuspendMerchant(ctx context.Context, merchantID, reason, adminID string) *Response {
	return c.do(ctx, http.MethodPost, "/api/admin/merchants/"+seg(merchantID)+"/suspend",
		"POST /api/admin/merchants/{id}/suspend", map[string]string{"reason": reason, "suspended_by": adminID})
}

// Products

// SearchProducts runs a catalog search. filters are added to the query string.
func (c *Client) SearchProducts(ctx context.Context, query string, filters map[string]string) *Response {
	params := url.Values{"q": {query}}
	for k, v := range filters {
		params.Set(k, v)
	}
	return c.do(ctx, http.MethodGet, "/api/products/search?"+params.Encode(), "GET /api/products/search", nil)
}

// GetProduct fetches one product.
func (c *Client) GetProduct(ctx context.Context, productID string) *Response {
	return c.do(ctx, http.MethodGet, "/api/products/"+seg(productID), "GET /api/products/{id}", nil)
}

// MerchantProducts lists a merchant's products.
func (c *Client) MerchantProducts(ctx context.Context, merchantID string) *Response {
	return c.do(ctx, http.MethodGet, "/api/merchants/"+seg(merchantID)+"/products", "GET /api/merchants/{id}/products", nil)
}

// Orders

// CreateOrder places an order for the customer in req.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) *Response {
	req.CustomerPhone = NormalizePhone(req.CustomerPhone)
	return c.do(ctx, http.MethodPost, "/api/orders", "POST /api/orders", req)
}

// GetOrder fetches an order and its status.
func (c *Client) GetOrder(ctx context.Context, orderID string) *Response {
	return c.do(ctx, http.MethodGet, "/api/orders/"+seg(orderID), "GET /api/orders/{id}", nil)
}

// UpdateOrderStatus moves an order to status on behalf of a merchant.
func (c *Client) UpdateOrderStatus(ctx context.Context, orderID, status, merchantID string) *Response {
	return c.do(ctx, http.MethodPut, "/api/orders/"+seg(orderID), "PUT /api/orders/{id}",
		map[string]string{"status": status, "updated_by": merchantID})
}

// CustomerOrders lists the orders of a customer.
func (c *Client) CustomerOrders(ctx context.Context, phone string) *Response {
	return c.do(ctx, http.MethodGet, "/api/customers/"+seg(NormalizePhone(phone))+"/orders", "GET /api/customers/{phone}/orders", nil)
}

// MerchantOrders lists a merchant's orders, optionally filtered by status.
func (c *Client) MerchantOrders(ctx context.Context, merchantID, status string) *Response {
	path := "/api/merchants/" + seg(merchantID) + "/orders"
	if status != "" {
		path += "?" + url.Values{"status": {status}}.Encode()
	}
	return c.do(ctx, http.MethodGet, path, "GET /api/merchants/{id}/orders", nil)
}

// Analytics

// MerchantAnalytics fetches sales figures for today, week or month.
func (c *Client) MerchantAnalytics(ctx context.Context, merchantID, timeframe string) *Response {
	path := "/api/merchants/" + seg(merchantID) + "/analytics?" + url.Values{"timeframe": {timeframe}}.Encode()
	return c.do(ctx, http.MethodGet, path, "GET /api/merchants/{id}/analytics", nil)
}

// SystemAnalytics fetches platform-wide figures.
func (c *Client) SystemAnalytics(ctx context.Context, adminID string) *Response {
	return c.do(ctx, http.MethodGet, "/api/admin/analytics?"+url.Values{"admin_id": {adminID}}.Encode(), "GET /api/admin/analytics", nil)
}

// Admin

// SendBroadcast asks the backend to broadcast a message to recipientType
// ("all", "customers" or "merchants").
func (c *Client) SendBroadcast(ctx context.Context, adminID, message, recipientType string) *Response {
	return c.do(ctx, http.MethodPost, "/api/admin/broadcasts", "POST /api/admin/broadcasts", map[string]string{
		"admin_id":       adminID,
		"message":        message,
		"recipient_type": recipientType,
	})
}

// SystemAlerts lists active platform alerts.
func (c *Client) SystemAlerts(ctx context.Context) *Response {
	return c.do(ctx, http.MethodGet, "/api/admin/alerts", "GET /api/admin/alerts", nil)
}
