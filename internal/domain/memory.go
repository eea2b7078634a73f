package domain

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryCatalog is an in-memory CatalogService used in development and
// tests. Search is a case-insensitive substring match over name, category,
// and description, ranked by name match first.
type MemoryCatalog struct {
	mu    sync.RWMutex
	items map[string]Item
}

// NewMemoryCatalog creates a catalog seeded with the given items.
func NewMemoryCatalog(items []Item) *MemoryCatalog {
	c := &MemoryCatalog{items: make(map[string]Item, len(items))}
	for _, it := range items {
		c.items[it.ID] = it
	}
	return c
}

// Search returns matching items up to q.Limit, filtered by price bounds.
func (c *MemoryCatalog) Search(ctx context.Context, q SearchQuery) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(q.Query))
	type scored struct {
		item  Item
		score int
	}
	var matches []scored
	for _, it := range c.items {
		if q.MinPrice != nil && it.Price < *q.MinPrice {
			continue
		}
		if q.MaxPrice != nil && it.Price > *q.MaxPrice {
			continue
		}
		score := matchScore(it, needle)
		if score == 0 {
			continue
		}
		matches = append(matches, scored{item: it, score: score})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].item.Name < matches[j].item.Name
	})

	limit := q.Limit
	if limit <= 0 || limit > len(matches) {
		limit = len(matches)
	}
	out := make([]Item, 0, limit)
	for _, m := range matches[:limit] {
		out = append(out, m.item)
	}
	return out, nil
}

// GetItem returns an item by id.
func (c *MemoryCatalog) GetItem(ctx context.Context, id string) (*Item, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.items[id]
	if !ok {
		return nil, ErrItemNotFound
	}
	return &it, nil
}

func matchScore(it Item, needle string) int {
	if needle == "" {
		return 1
	}
	switch {
	case strings.Contains(strings.ToLower(it.Name), needle):
		return 3
	case strings.Contains(strings.ToLower(it.Category), needle):
		return 2
	case strings.Contains(strings.ToLower(it.Description), needle):
		return 1
	}
	// Fall back to matching every word somewhere in the item.
	words := strings.Fields(needle)
	if len(words) < 2 {
		return 0
	}
	blob := strings.ToLower(it.Name + " " + it.Category + " " + it.Description)
	for _, w := range words {
		if !strings.Contains(blob, w) {
			return 0
		}
	}
	return 1
}

// MemoryCart is an in-memory CartService keyed by user id.
type MemoryCart struct {
	mu      sync.Mutex
	catalog CatalogService
	carts   map[string]*Cart
}

// NewMemoryCart creates a cart service that snapshots prices from catalog.
func NewMemoryCart(catalog CatalogService) *MemoryCart {
	return &MemoryCart{
		catalog: catalog,
		carts:   make(map[string]*Cart),
	}
}

// AddItem adds quantity of an item, merging with an existing line.
func (s *MemoryCart) AddItem(ctx context.Context, userID, itemID string, quantity int) (*Cart, error) {
	item, err := s.catalog.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(item.Availability, "out_of_stock") {
		return nil, ErrItemUnavailable
	}
	if quantity <= 0 {
		quantity = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.carts[userID]
	if cart == nil {
		cart = &Cart{}
		s.carts[userID] = cart
	}

	merged := false
	for i := range cart.Items {
		if cart.Items[i].ItemID == itemID {
			cart.Items[i].Quantity += quantity
			merged = true
			break
		}
	}
	if !merged {
		cart.Items = append(cart.Items, CartItem{
			ItemID:    item.ID,
			ItemName:  item.Name,
			ItemPrice: item.Price,
			Quantity:  quantity,
		})
	}
	cart.Recount()
	return snapshotCart(cart), nil
}

// RemoveItem removes a whole line from the cart.
func (s *MemoryCart) RemoveItem(ctx context.Context, userID, itemID string) (*Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.carts[userID]
	if cart == nil || len(cart.Items) == 0 {
		return nil, ErrEmptyCart
	}
	kept := cart.Items[:0]
	found := false
	for _, it := range cart.Items {
		if it.ItemID == itemID {
			found = true
			continue
		}
		kept = append(kept, it)
	}
	if !found {
		return nil, ErrNotInCart
	}
	cart.Items = kept
	cart.Recount()
	return snapshotCart(cart), nil
}

// GetCart returns the current cart; an empty cart is not an error.
func (s *MemoryCart) GetCart(ctx context.Context, userID string) (*Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart := s.carts[userID]
	if cart == nil {
		return &Cart{Items: []CartItem{}}, nil
	}
	return snapshotCart(cart), nil
}

// clear empties the user's cart. Called by checkout.
func (s *MemoryCart) clear(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, userID)
}

func snapshotCart(c *Cart) *Cart {
	out := &Cart{
		Items:     make([]CartItem, len(c.Items)),
		TotalCost: c.TotalCost,
		ItemCount: c.ItemCount,
	}
	copy(out.Items, c.Items)
	return out
}

// MemoryCheckout converts a MemoryCart into purchase requests held in
// memory.
type MemoryCheckout struct {
	mu       sync.Mutex
	cart     *MemoryCart
	requests map[string]*PurchaseRequest
	now      func() time.Time
}

// NewMemoryCheckout creates a checkout service over the given cart service.
func NewMemoryCheckout(cart *MemoryCart) *MemoryCheckout {
	return &MemoryCheckout{
		cart:     cart,
		requests: make(map[string]*PurchaseRequest),
		now:      time.Now,
	}
}

// Checkout snapshots the cart into a pending purchase request and clears
// the cart.
func (s *MemoryCheckout) Checkout(ctx context.Context, userID, notes string) (*PurchaseRequest, error) {
	cart, err := s.cart.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, ErrEmptyCart
	}

	pr := &PurchaseRequest{
		ID:        uuid.NewString(),
		UserID:    userID,
		Items:     cart.Items,
		TotalCost: cart.TotalCost,
		ItemCount: cart.ItemCount,
		Status:    "pending_approval",
		Notes:     notes,
		CreatedAt: s.now().UTC(),
	}

	s.mu.Lock()
	s.requests[pr.ID] = pr
	s.mu.Unlock()

	s.cart.clear(userID)
	return pr, nil
}
