package internal

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/lychee-technology/facets"
)

const jsonSchemaDraft = "https://json-schema.org/draft/2020-12/schema"

// RenderJSONSchema renders the active fields of a category as a JSON Schema
// object for generic form renderers. Presentation attributes without a JSON
// Schema keyword are carried as x- extensions.
func RenderJSONSchema(desc *facets.SchemaDescription) (*jsonschema.Schema, error) {
	properties := make(map[string]*jsonschema.Schema, len(desc.Fields))
	order := make([]string, 0, len(desc.Fields))
	required := make([]string, 0)

	for i := range desc.Fields {
		f := &desc.Fields[i]
		prop, err := fieldSchema(f)
		if err != nil {
			return nil, err
		}
		properties[f.FieldName] = prop
		order = append(order, f.FieldName)
		if f.IsRequired {
			required = append(required, f.FieldName)
		}
	}

	schema := &jsonschema.Schema{
		Schema:               jsonSchemaDraft,
		Title:                desc.Category.DisplayName,
		Description:          desc.Category.Description,
		Type:                 "object",
		Properties:           properties,
		Required:             required,
		AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
		Extra: map[string]any{
			"x-category": desc.Category.Code,
			"x-order":    order,
		},
	}

	if _, err := schema.Resolve(&jsonschema.ResolveOptions{}); err != nil {
		return nil, fmt.Errorf("failed to resolve rendered schema for category %s: %w", desc.Category.Code, err)
	}
	return schema, nil
}

func fieldSchema(f *facets.FieldDefinition) (*jsonschema.Schema, error) {
	s := &jsonschema.Schema{
		Title:       f.DisplayName,
		Description: f.HelpText,
		Extra: map[string]any{
			"x-fieldType":  string(f.FieldType),
			"x-sortOrder":  f.SortOrder,
			"x-searchable": f.IsSearchable,
		},
	}
	if f.Placeholder != "" {
		s.Extra["x-placeholder"] = f.Placeholder
	}
	rules := f.ValidationRules
	if rules == nil {
		rules = &facets.ValidationRules{}
	}

	switch f.FieldType {
	case facets.FieldTypeText, facets.FieldTypeTextArea, facets.FieldTypeFileReference:
		s.Type = "string"
		s.MinLength = rules.MinLength
		s.MaxLength = rules.MaxLength
	case facets.FieldTypeURL:
		s.Type = "string"
		s.Format = "uri"
		s.Pattern = "^https?://"
		s.MinLength = rules.MinLength
		s.MaxLength = rules.MaxLength
	case facets.FieldTypeNumber:
		s.Type = "number"
		s.Minimum = rules.Min
		s.Maximum = rules.Max
		if rules.Precision != nil {
			s.Extra["x-precision"] = *rules.Precision
		}
	case facets.FieldTypeBoolean:
		s.Type = "boolean"
	case facets.FieldTypeSelect:
		s.Type = "string"
		s.Enum = optionEnum(f.Options)
	case facets.FieldTypeMultiSelect:
		s.Type = "array"
		s.Items = &jsonschema.Schema{Type: "string", Enum: optionEnum(f.Options)}
		s.UniqueItems = true
		s.MinItems = rules.MinItems
		s.MaxItems = rules.MaxItems
	case facets.FieldTypeDate:
		s.Type = "string"
		s.Format = "date"
	default:
		return nil, fmt.Errorf("unsupported field type %s", f.FieldType)
	}
	return s, nil
}

func optionEnum(options []string) []any {
	enum := make([]any, len(options))
	for i, opt := range options {
		enum[i] = opt
	}
	return enum
}

// ValidateDocument checks a JSON-compatible document against a rendered schema.
// The document is normalized through JSON first so typed Go slices and maps
// validate like decoded request bodies.
func ValidateDocument(schema *jsonschema.Schema, document any) error {
	raw, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("failed to unmarshal document: %w", err)
	}

	resolved, err := schema.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		return fmt.Errorf("failed to resolve JSON schema: %w", err)
	}
	if err := resolved.Validate(instance); err != nil {
		return fmt.Errorf("JSON validation failed: %w", err)
	}
	return nil
}
