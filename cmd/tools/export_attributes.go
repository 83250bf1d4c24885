package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/lychee-technology/facets/factory"
)

func runExportAttributes(args []string) error {
	flags := flag.NewFlagSet("export-attributes", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: facets-tools export-attributes -category <code> [options]")
		fmt.Println("")
		fmt.Println("Writes the category's attribute values to a Parquet file and, when an")
		fmt.Println("S3 bucket is configured, uploads it.")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	config := bindConfigFlags(flags)
	exportCfg := &config.Export
	flags.StringVar(&exportCfg.DuckDBPath, "duckdb", getenvDefault("EXPORT_DUCKDB_PATH", exportCfg.DuckDBPath), "DuckDB database used for staging (empty for in-memory)")
	flags.IntVar(&exportCfg.MemoryLimitMB, "duckdb-memory-mb", getenvDefaultInt("EXPORT_DUCKDB_MEMORY_MB", exportCfg.MemoryLimitMB), "DuckDB memory limit in MB (0 keeps the default)")
	flags.IntVar(&exportCfg.Threads, "duckdb-threads", getenvDefaultInt("EXPORT_DUCKDB_THREADS", exportCfg.Threads), "DuckDB worker threads (0 keeps the default)")
	flags.StringVar(&exportCfg.OutputDirectory, "out-dir", getenvDefault("EXPORT_OUTPUT_DIR", exportCfg.OutputDirectory), "directory that keeps the Parquet file")
	flags.StringVar(&exportCfg.S3Bucket, "s3-bucket", getenvDefault("EXPORT_S3_BUCKET", exportCfg.S3Bucket), "S3 bucket to upload to")
	flags.StringVar(&exportCfg.S3Prefix, "s3-prefix", getenvDefault("EXPORT_S3_PREFIX", exportCfg.S3Prefix), "key prefix inside the bucket")
	flags.StringVar(&exportCfg.S3Region, "s3-region", getenvDefault("EXPORT_S3_REGION", exportCfg.S3Region), "S3 region")
	flags.StringVar(&exportCfg.S3Endpoint, "s3-endpoint", getenvDefault("EXPORT_S3_ENDPOINT", exportCfg.S3Endpoint), "custom S3 endpoint, e.g. http://localhost:9000")
	flags.StringVar(&exportCfg.S3AccessKey, "s3-access-key", getenvDefault("EXPORT_S3_ACCESS_KEY", ""), "static S3 access key")
	flags.StringVar(&exportCfg.S3SecretKey, "s3-secret-key", getenvDefault("EXPORT_S3_SECRET_KEY", ""), "static S3 secret key")
	flags.BoolVar(&exportCfg.S3UsePathStyle, "s3-path-style", getenvDefaultBool("EXPORT_S3_PATH_STYLE", exportCfg.S3UsePathStyle), "use path-style S3 addressing")
	code := flags.String("category", "", "Category code to export")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	exportCfg.Enabled = true

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

	exporter, closeExporter, err := factory.NewExporter(ctx, config, engine.snapshots, engine.values)
	if err != nil {
		return err
	}
	defer closeExporter()

	result, err := exporter.ExportCategory(ctx, category.ID)
	if err != nil {
		return err
	}
	fmt.Printf("Exported %d values of %s in %v\n", result.Rows, result.CategoryCode, result.Duration)
	if result.LocalPath != "" {
		fmt.Printf("File: %s\n", result.LocalPath)
	}
	if result.Location != "" {
		fmt.Printf("Uploaded: %s\n", result.Location)
	}
	return nil
}
