package tools

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/quartermasterhq/quartermaster/internal/domain"
)

// CheckoutTool converts the caller's cart into a pending purchase request.
type CheckoutTool struct {
	checkout domain.CheckoutService
	schema   *jsonschema.Schema
}

// NewCheckoutTool creates the checkout tool.
func NewCheckoutTool(checkout domain.CheckoutService) *CheckoutTool {
	return &CheckoutTool{
		checkout: checkout,
		schema:   compileSchema("checkout", checkoutSchema),
	}
}

func (t *CheckoutTool) Name() string { return "checkout" }

func (t *CheckoutTool) Description() string {
	return "Submit the user's cart as a purchase request for approval. The cart is cleared on success. Fails when the cart is empty."
}

func (t *CheckoutTool) Schema() json.RawMessage { return json.RawMessage(checkoutSchema) }

func (t *CheckoutTool) RequiresAuth() bool { return true }

func (t *CheckoutTool) Execute(ctx context.Context, userID string, args json.RawMessage) (any, error) {
	obj, err := validateArgs(t.Name(), t.schema, args)
	if err != nil {
		return nil, err
	}

	notes, _ := obj["notes"].(string)
	pr, err := t.checkout.Checkout(ctx, userID, notes)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyCart) {
			return nil, &ToolError{
				Tool:    t.Name(),
				Type:    ErrTypeExecution,
				Message: "cannot check out an empty cart",
			}
		}
		return nil, &ToolError{Tool: t.Name(), Type: ErrTypeExecution, Cause: err}
	}
	return checkoutEnvelope{Success: true, PurchaseRequest: pr}, nil
}

// checkoutEnvelope is the result shape fed back to the model.
type checkoutEnvelope struct {
	Success         bool                    `json:"success"`
	PurchaseRequest *domain.PurchaseRequest `json:"purchaseRequest"`
}
