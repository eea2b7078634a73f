package tools

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Argument schemas, advertised to the model verbatim and enforced before
// execution. Keep the two uses in sync by never validating against
// anything but these documents.
const (
	searchCatalogSchema = `{
		"type": "object",
		"properties": {
			"query": {
				"type": "string",
				"minLength": 1,
				"maxLength": 500,
				"description": "Free-text search over item names, categories, and descriptions"
			},
			"limit": {
				"type": "integer",
				"minimum": 1,
				"maximum": 50,
				"description": "Maximum number of results to return"
			},
			"minPrice": {
				"type": "number",
				"minimum": 0,
				"description": "Only return items priced at or above this value"
			},
			"maxPrice": {
				"type": "number",
				"minimum": 0,
				"description": "Only return items priced at or below this value"
			}
		},
		"required": ["query"],
		"additionalProperties": false
	}`

	addToCartSchema = `{
		"type": "object",
		"properties": {
			"itemId": {
				"type": "string",
				"minLength": 1,
				"description": "Catalog id of the item to add"
			},
			"quantity": {
				"type": "integer",
				"minimum": 1,
				"maximum": 1000,
				"description": "Number of units to add; defaults to 1"
			}
		},
		"required": ["itemId"],
		"additionalProperties": false
	}`

	removeFromCartSchema = `{
		"type": "object",
		"properties": {
			"itemId": {
				"type": "string",
				"minLength": 1,
				"description": "Catalog id of the item to remove"
			}
		},
		"required": ["itemId"],
		"additionalProperties": false
	}`

	getCartSchema = `{
		"type": "object",
		"properties": {},
		"additionalProperties": false
	}`

	checkoutSchema = `{
		"type": "object",
		"properties": {
			"notes": {
				"type": "string",
				"maxLength": 2000,
				"description": "Optional note for the approver"
			}
		},
		"additionalProperties": false
	}`
)

// compileSchema compiles a schema document at init time. A malformed schema
// is a programming error.
func compileSchema(name, doc string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	if err := c.AddResource(name+".json", strings.NewReader(doc)); err != nil {
		panic(err)
	}
	return c.MustCompile(name + ".json")
}

// validateArgs checks the raw argument object against schema. Malformed
// JSON and schema violations both come back as *ToolError so the model
// sees them as tool results.
func validateArgs(tool string, schema *jsonschema.Schema, args json.RawMessage) (map[string]any, error) {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return nil, &ToolError{
			Tool:    tool,
			Type:    ErrTypeValidation,
			Message: "arguments are not valid JSON: " + err.Error(),
		}
	}
	if err := schema.Validate(decoded); err != nil {
		return nil, &ToolError{
			Tool:    tool,
			Type:    ErrTypeValidation,
			Message: schemaErrorMessage(err),
		}
	}

	obj, ok := decoded.(map[string]any)
	if !ok {
		return nil, &ToolError{
			Tool:    tool,
			Type:    ErrTypeValidation,
			Message: "arguments must be a JSON object",
		}
	}
	return obj, nil
}

// schemaErrorMessage flattens a validation error into one line the model
// can act on.
func schemaErrorMessage(err error) string {
	var ve *jsonschema.ValidationError
	if errors.As(err, &ve) {
		leaf := ve
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		loc := strings.TrimPrefix(leaf.InstanceLocation, "/")
		if loc == "" {
			return leaf.Message
		}
		return loc + ": " + leaf.Message
	}
	return err.Error()
}
