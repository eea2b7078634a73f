package tools

import (
	"context"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/quartermasterhq/quartermaster/internal/domain"
)

const defaultSearchLimit = 10

// SearchCatalogTool exposes catalog search to the model. It is the only
// tool usable without an authenticated user.
type SearchCatalogTool struct {
	catalog domain.CatalogService
	schema  *jsonschema.Schema
}

// NewSearchCatalogTool creates the search_catalog tool.
func NewSearchCatalogTool(catalog domain.CatalogService) *SearchCatalogTool {
	return &SearchCatalogTool{
		catalog: catalog,
		schema:  compileSchema("search_catalog", searchCatalogSchema),
	}
}

func (t *SearchCatalogTool) Name() string { return "search_catalog" }

func (t *SearchCatalogTool) Description() string {
	return "Search the procurement catalog by free-text query with optional price bounds. Returns matching items with id, name, price, category, and availability."
}

func (t *SearchCatalogTool) Schema() json.RawMessage {
	return json.RawMessage(searchCatalogSchema)
}

func (t *SearchCatalogTool) RequiresAuth() bool { return false }

func (t *SearchCatalogTool) Execute(ctx context.Context, userID string, args json.RawMessage) (any, error) {
	obj, err := validateArgs(t.Name(), t.schema, args)
	if err != nil {
		return nil, err
	}

	q := domain.SearchQuery{
		Query: obj["query"].(string),
		Limit: defaultSearchLimit,
	}
	if v, ok := obj["limit"].(float64); ok {
		q.Limit = int(v)
	}
	if v, ok := obj["minPrice"].(float64); ok {
		q.MinPrice = &v
	}
	if v, ok := obj["maxPrice"].(float64); ok {
		q.MaxPrice = &v
	}
	if q.MinPrice != nil && q.MaxPrice != nil && *q.MinPrice > *q.MaxPrice {
		return nil, &ToolError{
			Tool:    t.Name(),
			Type:    ErrTypeValidation,
			Message: "minPrice must not exceed maxPrice",
		}
	}

	items, err := t.catalog.Search(ctx, q)
	if err != nil {
		return nil, &ToolError{Tool: t.Name(), Type: ErrTypeExecution, Cause: err}
	}
	if items == nil {
		items = []domain.Item{}
	}
	return map[string]any{
		"items": items,
		"count": len(items),
	}, nil
}
