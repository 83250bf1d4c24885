package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/facets"
	"github.com/lychee-technology/facets/factory"
	"github.com/lychee-technology/facets/internal"
)

func runInitDB(args []string) error {
	flags := flag.NewFlagSet("init-db", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: facets-tools init-db [options]")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	config := bindConfigFlags(flags)
	seedDir := flags.String("seed-dir", getenvDefault("SEED_DIR", ""), "Directory containing category seed files to apply (optional)")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	config.Catalog.SeedDirectory = *seedDir

	return initDatabase(context.Background(), config)
}

func initDatabase(ctx context.Context, config *facets.Config) error {
	if config.Database.SQLitePath != "" {
		// The embedded engine creates its tables and applies seeds on open.
		engine, err := factory.NewEmbeddedEngine(ctx, config)
		if err != nil {
			return err
		}
		defer engine.Close()
		fmt.Printf("SQLite database initialized: %s\n", config.Database.SQLitePath)
		return nil
	}

	pool, err := factory.NewPool(ctx, config)
	if err != nil {
		return fmt.Errorf("create connection pool: %w", err)
	}
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	if err := withTx(ctx, conn, func(tx pgx.Tx) error {
		return ensureTables(ctx, tx, config.Database.TableNames)
	}); err != nil {
		conn.Release()
		return err
	}
	conn.Release()

	if config.Catalog.SeedDirectory != "" {
		// NewEngineWithConfig applies the seeds once the tables exist.
		if _, err := factory.NewEngineWithConfig(config, pool); err != nil {
			return err
		}
	}

	fmt.Println("Database initialized successfully.")
	return nil
}

func ensureTables(ctx context.Context, tx pgx.Tx, tables facets.TableNames) error {
	for _, stmt := range internal.PostgresDDL(tables) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply ddl: %w", err)
		}
	}
	fmt.Printf("Ensured tables: %s, %s, %s, %s, %s\n",
		tables.Categories, tables.Fields, tables.AttributeValues, tables.ProfileVersions, tables.Profiles)
	return nil
}

func withTx(ctx context.Context, conn *pgxpool.Conn, fn func(pgx.Tx) error) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w; rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}
