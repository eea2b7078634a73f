package tools

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/quartermasterhq/quartermaster/internal/domain"
)

// cartEnvelope is the result shape for cart mutations.
type cartEnvelope struct {
	Success bool         `json:"success"`
	Cart    *domain.Cart `json:"cart"`
}

// cartContents is the result shape for cart reads. Message flags an empty
// cart so the model does not mistake it for a failed lookup.
type cartContents struct {
	Items     []domain.CartItem `json:"items"`
	TotalCost float64           `json:"totalCost"`
	ItemCount int               `json:"itemCount"`
	Message   string            `json:"message,omitempty"`
}

// AddToCartTool adds an item to the caller's cart.
type AddToCartTool struct {
	cart   domain.CartService
	schema *jsonschema.Schema
}

// NewAddToCartTool creates the add_to_cart tool.
func NewAddToCartTool(cart domain.CartService) *AddToCartTool {
	return &AddToCartTool{
		cart:   cart,
		schema: compileSchema("add_to_cart", addToCartSchema),
	}
}

func (t *AddToCartTool) Name() string { return "add_to_cart" }

func (t *AddToCartTool) Description() string {
	return "Add an item from the catalog to the user's cart. Quantity defaults to 1 and merges with any existing line for the same item."
}

func (t *AddToCartTool) Schema() json.RawMessage { return json.RawMessage(addToCartSchema) }

func (t *AddToCartTool) RequiresAuth() bool { return true }

func (t *AddToCartTool) Execute(ctx context.Context, userID string, args json.RawMessage) (any, error) {
	obj, err := validateArgs(t.Name(), t.schema, args)
	if err != nil {
		return nil, err
	}

	quantity := 1
	if v, ok := obj["quantity"].(float64); ok {
		quantity = int(v)
	}

	cart, err := t.cart.AddItem(ctx, userID, obj["itemId"].(string), quantity)
	if err != nil {
		return nil, cartError(t.Name(), err)
	}
	return cartEnvelope{Success: true, Cart: cart}, nil
}

// RemoveFromCartTool removes a whole line from the caller's cart.
type RemoveFromCartTool struct {
	cart   domain.CartService
	schema *jsonschema.Schema
}

// NewRemoveFromCartTool creates the remove_from_cart tool.
func NewRemoveFromCartTool(cart domain.CartService) *RemoveFromCartTool {
	return &RemoveFromCartTool{
		cart:   cart,
		schema: compileSchema("remove_from_cart", removeFromCartSchema),
	}
}

func (t *RemoveFromCartTool) Name() string { return "remove_from_cart" }

func (t *RemoveFromCartTool) Description() string {
	return "Remove an item from the user's cart entirely, regardless of quantity."
}

func (t *RemoveFromCartTool) Schema() json.RawMessage { return json.RawMessage(removeFromCartSchema) }

func (t *RemoveFromCartTool) RequiresAuth() bool { return true }

func (t *RemoveFromCartTool) Execute(ctx context.Context, userID string, args json.RawMessage) (any, error) {
	obj, err := validateArgs(t.Name(), t.schema, args)
	if err != nil {
		return nil, err
	}

	cart, err := t.cart.RemoveItem(ctx, userID, obj["itemId"].(string))
	if err != nil {
		return nil, cartError(t.Name(), err)
	}
	return cartEnvelope{Success: true, Cart: cart}, nil
}

// GetCartTool returns the caller's current cart.
type GetCartTool struct {
	cart   domain.CartService
	schema *jsonschema.Schema
}

// NewGetCartTool creates the get_cart tool.
func NewGetCartTool(cart domain.CartService) *GetCartTool {
	return &GetCartTool{
		cart:   cart,
		schema: compileSchema("get_cart", getCartSchema),
	}
}

func (t *GetCartTool) Name() string { return "get_cart" }

func (t *GetCartTool) Description() string {
	return "Get the user's current cart with line items, total cost, and item count. An empty cart is a normal result."
}

func (t *GetCartTool) Schema() json.RawMessage { return json.RawMessage(getCartSchema) }

func (t *GetCartTool) RequiresAuth() bool { return true }

func (t *GetCartTool) Execute(ctx context.Context, userID string, args json.RawMessage) (any, error) {
	if _, err := validateArgs(t.Name(), t.schema, args); err != nil {
		return nil, err
	}

	cart, err := t.cart.GetCart(ctx, userID)
	if err != nil {
		return nil, cartError(t.Name(), err)
	}
	out := cartContents{
		Items:     cart.Items,
		TotalCost: cart.TotalCost,
		ItemCount: cart.ItemCount,
	}
	if out.Items == nil {
		out.Items = []domain.CartItem{}
	}
	if len(out.Items) == 0 {
		out.Message = "empty"
	}
	return out, nil
}

// cartError maps domain failures onto tool error types with messages the
// model can relay to the user.
func cartError(tool string, err error) *ToolError {
	switch {
	case errors.Is(err, domain.ErrItemNotFound):
		return &ToolError{Tool: tool, Type: ErrTypeExecution, Message: "item not found in catalog"}
	case errors.Is(err, domain.ErrItemUnavailable):
		return &ToolError{Tool: tool, Type: ErrTypeExecution, Message: "item is out of stock"}
	case errors.Is(err, domain.ErrEmptyCart):
		return &ToolError{Tool: tool, Type: ErrTypeExecution, Message: "cart is empty"}
	case errors.Is(err, domain.ErrNotInCart):
		return &ToolError{Tool: tool, Type: ErrTypeExecution, Message: "item is not in the cart"}
	default:
		return &ToolError{Tool: tool, Type: ErrTypeExecution, Cause: err}
	}
}
