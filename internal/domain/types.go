// Package domain defines the procurement entities the agent acts on and the
// narrow service interfaces it calls. Catalog search, pricing, and checkout
// business logic live behind these interfaces; the core only snapshots
// their results.
package domain

import "time"

// Item is a catalog entry.
type Item struct {
	ID           string  `json:"id" bson:"_id"`
	Name         string  `json:"name" bson:"name"`
	Category     string  `json:"category" bson:"category"`
	Description  string  `json:"description" bson:"description"`
	Price        float64 `json:"price" bson:"price"`
	Availability string  `json:"availability" bson:"availability"`
}

// CartItem is one line in a user's cart. Name and price are snapshotted at
// add time so later catalog edits do not rewrite history.
type CartItem struct {
	ItemID    string  `json:"itemId" bson:"item_id"`
	ItemName  string  `json:"itemName" bson:"item_name"`
	ItemPrice float64 `json:"itemPrice" bson:"item_price"`
	Quantity  int     `json:"quantity" bson:"quantity"`
}

// Cart is the live cart snapshot returned by cart operations.
type Cart struct {
	Items     []CartItem `json:"items" bson:"items"`
	TotalCost float64    `json:"totalCost" bson:"total_cost"`
	ItemCount int        `json:"itemCount" bson:"item_count"`
}

// PurchaseRequest is created by checkout and routed for approval outside
// the core.
type PurchaseRequest struct {
	ID        string     `json:"id" bson:"_id"`
	UserID    string     `json:"userId" bson:"user_id"`
	Items     []CartItem `json:"items" bson:"items"`
	TotalCost float64    `json:"totalCost" bson:"total_cost"`
	ItemCount int        `json:"itemCount" bson:"item_count"`
	Status    string     `json:"status" bson:"status"`
	Notes     string     `json:"notes,omitempty" bson:"notes,omitempty"`
	CreatedAt time.Time  `json:"createdAt" bson:"created_at"`
}

// SearchQuery filters a catalog search.
type SearchQuery struct {
	Query    string
	Limit    int
	MinPrice *float64
	MaxPrice *float64
}

// Recount recomputes the cart totals from its line items.
func (c *Cart) Recount() {
	total := 0.0
	count := 0
	for _, it := range c.Items {
		total += it.ItemPrice * float64(it.Quantity)
		count += it.Quantity
	}
	// Round to cents to keep snapshots stable across float math.
	c.TotalCost = float64(int64(total*100+0.5)) / 100
	c.ItemCount = count
}
