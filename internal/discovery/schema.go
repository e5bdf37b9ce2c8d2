package discovery

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const priceListingSchemaJSON = `{
  "type": "object",
  "required": ["items"],
  "properties": {
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "price"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string"},
          "description": {"type": ["string", "null"]},
          "price": {
            "type": "object",
            "required": ["amount", "paymentMethod"],
            "properties": {
              "amount": {"type": ["number", "string"]},
              "currency": {"type": ["string", "null"]},
              "paymentMethod": {"type": "string"}
            }
          },
          "params": {"type": ["object", "null"]}
        }
      }
    }
  }
}`

const paymentMethodsSchemaJSON = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["walletAddress", "paymentMethod"],
    "properties": {
      "walletAddress": {"type": "string"},
      "paymentMethod": {"type": "string"}
    }
  }
}`

var (
	priceListingSchema   = mustSchema(priceListingSchemaJSON)
	paymentMethodsSchema = mustSchema(paymentMethodsSchemaJSON)
)

func mustSchema(source string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
	if err != nil {
		panic(fmt.Sprintf("invalid embedded schema: %v", err))
	}
	return schema
}

// validateShape checks a decoded tool response against a schema and joins
// the violations into one error.
func validateShape(schema *gojsonschema.Schema, document interface{}) error {
	result, err := schema.Validate(gojsonschema.NewGoLoader(document))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, fmt.Sprintf("%s: %s", desc.Context().String(), desc.Description()))
	}
	return fmt.Errorf("%s", strings.Join(violations, "; "))
}
