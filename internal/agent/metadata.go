package agent

import (
	"encoding/json"

	"github.com/quartermasterhq/quartermaster/internal/tools"
)

// metadataAccumulator folds successful tool results into the structured
// metadata attached to the turn's final agent message. Later results win
// per key, so the metadata reflects the state after the last relevant
// call.
type metadataAccumulator struct {
	data map[string]any
}

func newMetadataAccumulator() *metadataAccumulator {
	return &metadataAccumulator{data: make(map[string]any)}
}

// absorb extracts metadata from one tool result. Failed results and
// unparseable payloads contribute nothing.
func (a *metadataAccumulator) absorb(res tools.Result) {
	if res.IsError {
		return
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(res.Content), &payload); err != nil {
		return
	}

	switch res.ToolName {
	case "search_catalog":
		if items, ok := payload["items"]; ok {
			a.data["items"] = items
		}
	case "add_to_cart", "remove_from_cart":
		if cart, ok := payload["cart"]; ok {
			a.data["cart"] = cart
		}
	case "get_cart":
		a.data["cart"] = payload
	case "checkout":
		if pr, ok := payload["purchaseRequest"]; ok {
			a.data["purchaseRequest"] = pr
		}
	}
}

// result returns the accumulated metadata, nil when nothing was absorbed.
func (a *metadataAccumulator) result() map[string]any {
	if len(a.data) == 0 {
		return nil
	}
	return a.data
}
