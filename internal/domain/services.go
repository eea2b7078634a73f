package domain

import (
	"context"
	"errors"
)

// Domain service errors surfaced to tool results.
var (
	ErrItemNotFound  = errors.New("item not found")
	ErrEmptyCart     = errors.New("cart is empty")
	ErrNotInCart     = errors.New("item is not in the cart")
	ErrItemUnavailable = errors.New("item is not available")
)

// CatalogService searches the procurement catalog.
type CatalogService interface {
	Search(ctx context.Context, q SearchQuery) ([]Item, error)
	GetItem(ctx context.Context, id string) (*Item, error)
}

// CartService mutates and reads a user's cart.
type CartService interface {
	AddItem(ctx context.Context, userID, itemID string, quantity int) (*Cart, error)
	RemoveItem(ctx context.Context, userID, itemID string) (*Cart, error)
	GetCart(ctx context.Context, userID string) (*Cart, error)
}

// CheckoutService converts a cart into a purchase request.
type CheckoutService interface {
	Checkout(ctx context.Context, userID, notes string) (*PurchaseRequest, error)
}

// Services bundles the domain collaborators handed to the tool layer.
type Services struct {
	Catalog  CatalogService
	Cart     CartService
	Checkout CheckoutService
}
