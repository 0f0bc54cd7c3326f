package storage

import (
	"context"
	"fmt"
	"time"

	domerrors "github.com/garyellow/whatsapp-commerce-bot/internal/errors"
)

// AddCartItem adds item to the cart, summing quantities when the product is
// already there. Name, price and merchant are refreshed from item.
func (db *DB) AddCartItem(ctx context.Context, item *CartItem) error {
	if item.Quantity <= 0 {
		return fmt.Errorf("quantity %d: %w", item.Quantity, domerrors.ErrInvalidInput)
	}
	query := `
		INSERT INTO cart_items (user_id, product_id, name, merchant_id, price, quantity, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, product_id) DO UPDATE SET
			name = excluded.name,
			merchant_id = excluded.merchant_id,
			price = excluded.price,
			quantity = cart_items.quantity + excluded.quantity
	`
	if _, err := db.writer.ExecContext(ctx, query, item.UserID, item.ProductID, item.Name,
		item.MerchantID, item.Price, item.Quantity, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to add cart item: %w", err)
	}
	return nil
}

// GetCart returns the cart in insertion order.
func (db *DB) GetCart(ctx context.Context, userID string) ([]CartItem, error) {
	query := `
		SELECT user_id, product_id, name, merchant_id, price, quantity, added_at
		FROM cart_items
		WHERE user_id = ?
		ORDER BY added_at, rowid
	`
	rows, err := db.reader.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []CartItem
	for rows.Next() {
		var (
			item    CartItem
			addedAt int64
		)
		if err := rows.Scan(&item.UserID, &item.ProductID, &item.Name, &item.MerchantID,
			&item.Price, &item.Quantity, &addedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		item.AddedAt = time.Unix(addedAt, 0)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cart: %w", err)
	}
	return items, nil
}

// RemoveCartItem deletes one product from the cart. It returns an error
// wrapping ErrNotFound when the product is not in the cart.
func (db *DB) RemoveCartItem(ctx context.Context, userID, productID string) error {
	result, err := db.writer.ExecContext(ctx,
		`DELETE FROM cart_items WHERE user_id = ? AND product_id = ?`, userID, productID)
	if err != nil {
		return fmt.Errorf("failed to remove cart item: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("cart item %s: %w", productID, domerrors.ErrNotFound)
	}
	return nil
}

// ClearCart empties the cart and returns how many lines were removed.
func (db *DB) ClearCart(ctx context.Context, userID string) (int64, error) {
	result, err := db.writer.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cart: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
