package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Errorf("failed to set up logger: %w", err))
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	commands := map[string]func([]string) error{
		"init-db":           runInitDB,
		"seed":              runSeed,
		"describe-schema":   runDescribeSchema,
		"generate-seed":     runGenerateSeed,
		"import-attributes": runImportAttributes,
		"export-attributes": runExportAttributes,
	}
	run, ok := commands[os.Args[1]]
	if !ok {
		sugar.Errorf("unknown command %q", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err := run(os.Args[2:]); err != nil {
		sugar.Fatalf("%s: %v", os.Args[1], err)
	}
}

func printUsage() {
	logger := zap.S()
	logger.Info("Usage: facets-tools <command> [options]")
	logger.Info("")
	logger.Info("Commands:")
	logger.Info("  init-db               Create the catalog, attribute and profile tables")
	logger.Info("  seed                  Apply category seed files to the catalog")
	logger.Info("  describe-schema       Print the schema of a category as JSON Schema")
	logger.Info("  generate-seed         Generate a category seed file from a JSON Schema document")
	logger.Info("  import-attributes     Submit profile attributes from a CSV file")
	logger.Info("  export-attributes     Export the attribute values of a category to Parquet")
}
