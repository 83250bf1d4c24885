package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/lychee-technology/facets"
	"github.com/lychee-technology/facets/internal"
	"go.uber.org/zap"
)

// Long strings without an explicit x-fieldType become text areas.
const textAreaMinLength = 500

func runGenerateSeed(args []string) error {
	flags := flag.NewFlagSet("generate-seed", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: facets-tools generate-seed -schema-file <schema.json> [options]")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	schemaFile := flags.String("schema-file", "", "Path to the JSON Schema document of one category")
	code := flags.String("category", "", "Category code (defaults to the schema's x-category)")
	outputFile := flags.String("out", "", "Path of the seed file to write (defaults to <code>.json next to the schema)")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if *schemaFile == "" {
		return fmt.Errorf("-schema-file must be provided")
	}

	seed, err := generateSeed(*schemaFile, *code, *outputFile)
	if err != nil {
		return err
	}
	zap.S().Infow("Generated seed", "category", seed.Code, "fields", len(seed.Fields))
	return nil
}

// generateSeed converts a JSON Schema document into a category seed and
// merges it into an existing seed file: existing fields are kept as they are
// and new properties are appended.
func generateSeed(schemaPath, code, outputPath string) (*internal.CategorySeed, error) {
	data, err := os.ReadFile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("parse schema JSON: %w", err)
	}

	generated, err := seedFromSchema(schema, code)
	if err != nil {
		return nil, err
	}

	if outputPath == "" {
		outputPath = filepath.Join(filepath.Dir(schemaPath), strings.ToLower(generated.Code)+".json")
	}

	existing, err := loadExistingSeed(outputPath)
	if err != nil {
		return nil, fmt.Errorf("load existing seed: %w", err)
	}
	merged := mergeSeeds(existing, generated)

	raw, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode seed: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(outputPath, append(raw, '\n'), 0o644); err != nil {
		return nil, fmt.Errorf("write seed file: %w", err)
	}
	return merged, nil
}

func seedFromSchema(schema map[string]any, code string) (*internal.CategorySeed, error) {
	if code == "" {
		code, _ = schema["x-category"].(string)
	}
	if code == "" {
		return nil, fmt.Errorf("category code missing: pass -category or set x-category in the schema")
	}
	if t, _ := schema["type"].(string); t != "" && t != "object" {
		return nil, fmt.Errorf("schema type must be object, got %q", t)
	}

	seed := &internal.CategorySeed{
		CategoryRequest: facets.CategoryRequest{
			Code:        strings.ToUpper(code),
			DisplayName: stringValue(schema, "title"),
			Description: stringValue(schema, "description"),
		},
	}
	if seed.DisplayName == "" {
		seed.DisplayName = humanize(strings.ToLower(code))
	}

	properties, _ := schema["properties"].(map[string]any)
	required := stringList(schema["required"])
	for i, name := range propertyOrder(schema, properties) {
		prop, ok := properties[name].(map[string]any)
		if !ok {
			continue
		}
		field, err := fieldFromProperty(name, prop)
		if err != nil {
			return nil, err
		}
		if _, ok := prop["x-sortOrder"]; !ok {
			field.SortOrder = i
		}
		field.IsRequired = slices.Contains(required, name)
		seed.Fields = append(seed.Fields, field)
	}
	return seed, nil
}

// propertyOrder lists x-order first, then the remaining properties by name.
func propertyOrder(schema map[string]any, properties map[string]any) []string {
	order := make([]string, 0, len(properties))
	seen := make(map[string]bool, len(properties))
	for _, name := range stringList(schema["x-order"]) {
		if _, ok := properties[name]; ok && !seen[name] {
			order = append(order, name)
			seen[name] = true
		}
	}
	rest := make([]string, 0, len(properties))
	for name := range properties {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(order, rest...)
}

func fieldFromProperty(name string, prop map[string]any) (facets.FieldRequest, error) {
	fieldType, err := propertyFieldType(prop)
	if err != nil {
		return facets.FieldRequest{}, fmt.Errorf("property %s: %w", name, err)
	}

	field := facets.FieldRequest{
		FieldName:   name,
		DisplayName: stringValue(prop, "title"),
		FieldType:   fieldType,
		HelpText:    stringValue(prop, "description"),
		Placeholder: stringValue(prop, "x-placeholder"),
	}
	if field.DisplayName == "" {
		field.DisplayName = humanize(name)
	}
	if order, ok := prop["x-sortOrder"].(float64); ok {
		field.SortOrder = int(order)
	}
	field.IsSearchable, _ = prop["x-searchable"].(bool)

	rules := &facets.ValidationRules{}
	switch fieldType {
	case facets.FieldTypeSelect:
		field.Options = stringList(prop["enum"])
	case facets.FieldTypeMultiSelect:
		if items, ok := prop["items"].(map[string]any); ok {
			field.Options = stringList(items["enum"])
		}
		rules.MinItems = intValue(prop, "minItems")
		rules.MaxItems = intValue(prop, "maxItems")
	case facets.FieldTypeNumber:
		rules.Min = floatValue(prop, "minimum")
		rules.Max = floatValue(prop, "maximum")
		rules.Precision = intValue(prop, "x-precision")
		if rules.Precision == nil && prop["type"] == "integer" {
			zero := 0
			rules.Precision = &zero
		}
	case facets.FieldTypeText, facets.FieldTypeTextArea, facets.FieldTypeURL, facets.FieldTypeFileReference:
		rules.MinLength = intValue(prop, "minLength")
		rules.MaxLength = intValue(prop, "maxLength")
	}
	if !rules.IsEmpty() {
		field.ValidationRules = rules
	}
	return field, nil
}

func propertyFieldType(prop map[string]any) (facets.FieldType, error) {
	if tag, ok := prop["x-fieldType"].(string); ok {
		return facets.ParseFieldType(tag)
	}

	switch t, _ := prop["type"].(string); t {
	case "number", "integer":
		return facets.FieldTypeNumber, nil
	case "boolean":
		return facets.FieldTypeBoolean, nil
	case "array":
		items, _ := prop["items"].(map[string]any)
		if items == nil || len(stringList(items["enum"])) == 0 {
			return "", fmt.Errorf("array properties need an items enum")
		}
		return facets.FieldTypeMultiSelect, nil
	case "string":
		switch {
		case len(stringList(prop["enum"])) > 0:
			return facets.FieldTypeSelect, nil
		case prop["format"] == "uri" || prop["format"] == "url":
			return facets.FieldTypeURL, nil
		case prop["format"] == "date":
			return facets.FieldTypeDate, nil
		}
		if maxLength := intValue(prop, "maxLength"); maxLength != nil && *maxLength >= textAreaMinLength {
			return facets.FieldTypeTextArea, nil
		}
		return facets.FieldTypeText, nil
	default:
		return "", fmt.Errorf("unsupported schema type %q", t)
	}
}

// loadExistingSeed reads an existing seed file. Returns nil if the file does not exist.
func loadExistingSeed(path string) (*internal.CategorySeed, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return internal.ReadSeedFile(path)
}

func mergeSeeds(existing, generated *internal.CategorySeed) *internal.CategorySeed {
	if existing == nil {
		return generated
	}
	merged := *existing
	merged.Fields = slices.Clone(existing.Fields)
	for _, field := range generated.Fields {
		idx := slices.IndexFunc(merged.Fields, func(f facets.FieldRequest) bool { return f.FieldName == field.FieldName })
		if idx < 0 {
			merged.Fields = append(merged.Fields, field)
			continue
		}
		if merged.Fields[idx].FieldType != field.FieldType {
			zap.S().Warnw("Keeping existing field type", "field", field.FieldName,
				"existing", merged.Fields[idx].FieldType, "generated", field.FieldType)
		}
	}
	return &merged
}

func humanize(name string) string {
	words := strings.Fields(strings.ReplaceAll(name, "_", " "))
	if len(words) == 0 {
		return name
	}
	words[0] = strings.ToUpper(words[0][:1]) + words[0][1:]
	return strings.Join(words, " ")
}

func stringValue(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func stringList(raw any) []string {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func intValue(m map[string]any, key string) *int {
	f, ok := m[key].(float64)
	if !ok {
		return nil
	}
	i := int(f)
	return &i
}

func floatValue(m map[string]any, key string) *float64 {
	f, ok := m[key].(float64)
	if !ok {
		return nil
	}
	return &f
}
