package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
)

func runDescribeSchema(args []string) error {
	flags := flag.NewFlagSet("describe-schema", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: facets-tools describe-schema -category <code> [options]")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	config := bindConfigFlags(flags)
	code := flags.String("category", "", "Category code")
	format := flags.String("format", "jsonschema", "Output format: jsonschema or fields")
	strip := flags.Bool("strip-extensions", false, "Remove x-* extension keywords from the JSON Schema output")
	outputFile := flags.String("out", "", "Write the output to this file instead of stdout")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	ctx := context.Background()
	engine, err := openEngine(ctx, config)
	if err != nil {
		return err
	}
	defer engine.close()

	category, err := engine.categoryByCode(ctx, *code)
	if err != nil {
		return err
	}

	var doc any
	switch *format {
	case "jsonschema":
		schema, err := engine.DescribeJSONSchema(ctx, category.ID)
		if err != nil {
			return err
		}
		doc = schema
		if *strip {
			if doc, err = stripExtensions(schema); err != nil {
				return err
			}
		}
	case "fields":
		if doc, err = engine.DescribeSchema(ctx, category.ID); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown format %q", *format)
	}

	var out io.Writer = os.Stdout
	if *outputFile != "" {
		f, err := os.Create(*outputFile)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	if err := writeJSON(out, doc); err != nil {
		return err
	}
	if *outputFile != "" {
		zap.S().Infow("Described schema", "category", category.Code, "outputPath", *outputFile)
	}
	return nil
}

func writeJSON(w io.Writer, doc any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

// stripExtensions round-trips doc through JSON and removes every key starting with "x-".
func stripExtensions(doc any) (any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	return removeExtensionKeys(generic), nil
}

func removeExtensionKeys(node any) any {
	switch v := node.(type) {
	case map[string]any:
		for key, child := range v {
			if strings.HasPrefix(key, "x-") {
				delete(v, key)
				continue
			}
			v[key] = removeExtensionKeys(child)
		}
		return v
	case []any:
		for i, child := range v {
			v[i] = removeExtensionKeys(child)
		}
		return v
	default:
		return node
	}
}
