package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/lychee-technology/facets/internal"
)

func runSeed(args []string) error {
	flags := flag.NewFlagSet("seed", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: facets-tools seed -dir <seed directory> [options]")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	config := bindConfigFlags(flags)
	dir := flags.String("dir", getenvDefault("SEED_DIR", "seeds"), "Directory containing category seed files")

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

	report, err := internal.NewSeedLoader(engine, *dir).LoadDirectory(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Categories created: %d, skipped: %d\n", report.CategoriesCreated, report.CategoriesSkipped)
	fmt.Printf("Fields created: %d, skipped: %d\n", report.FieldsCreated, report.FieldsSkipped)
	return nil
}
