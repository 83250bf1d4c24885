package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/lychee-technology/facets"
	"github.com/lychee-technology/facets/factory"
	"github.com/lychee-technology/facets/internal"
	"github.com/lychee-technology/facets/internal/export"
)

// bindConfigFlags registers the connection flags shared by every command.
// Defaults come from the environment, flags override them.
func bindConfigFlags(flags *flag.FlagSet) *facets.Config {
	config := facets.DefaultConfig()
	db := &config.Database
	tables := &db.TableNames

	flags.StringVar(&db.Host, "db-host", getenvDefault("DB_HOST", db.Host), "database host")
	flags.IntVar(&db.Port, "db-port", getenvDefaultInt("DB_PORT", db.Port), "database port")
	flags.StringVar(&db.Database, "db-name", getenvDefault("DB_NAME", db.Database), "database name")
	flags.StringVar(&db.Username, "db-user", getenvDefault("DB_USER", db.Username), "database user")
	flags.StringVar(&db.Password, "db-password", getenvDefault("DB_PASSWORD", ""), "database password")
	flags.StringVar(&db.SSLMode, "db-ssl-mode", getenvDefault("DB_SSL_MODE", db.SSLMode), "database sslmode")
	flags.BoolVar(&db.UseIAMAuth, "db-use-iam", getenvDefaultBool("DB_USE_IAM", false), "authenticate with a generated IAM token")
	flags.StringVar(&db.Region, "db-region", getenvDefault("DB_REGION", ""), "AWS region for IAM authentication")
	flags.StringVar(&db.SQLitePath, "sqlite", getenvDefault("SQLITE_PATH", ""), "use the embedded SQLite database at this path instead of PostgreSQL")

	flags.StringVar(&tables.Categories, "categories-table", getenvDefault("CATEGORIES_TABLE", tables.Categories), "category table name")
	flags.StringVar(&tables.Fields, "fields-table", getenvDefault("FIELDS_TABLE", tables.Fields), "field definition table name")
	flags.StringVar(&tables.AttributeValues, "values-table", getenvDefault("ATTRIBUTE_VALUES_TABLE", tables.AttributeValues), "attribute value table name")
	flags.StringVar(&tables.ProfileVersions, "versions-table", getenvDefault("PROFILE_VERSIONS_TABLE", tables.ProfileVersions), "profile version table name")
	flags.StringVar(&tables.Profiles, "profiles-table", getenvDefault("PROFILES_TABLE", tables.Profiles), "profile table name")

	return config
}

// toolEngine is an engine plus direct access to its schema snapshots and
// attribute store.
type toolEngine struct {
	facets.Engine
	snapshots export.SnapshotReader
	values    internal.AttributeRepository
	close     func()
}

func openEngine(ctx context.Context, config *facets.Config) (*toolEngine, error) {
	if config.Database.SQLitePath != "" {
		embedded, err := factory.NewEmbeddedEngine(ctx, config)
		if err != nil {
			return nil, err
		}
		return &toolEngine{
			Engine:    embedded,
			snapshots: embedded,
			values:    embedded.Attributes(),
			close:     func() { embedded.Close() },
		}, nil
	}

	pool, err := factory.NewPool(ctx, config)
	if err != nil {
		return nil, err
	}
	engine, err := factory.NewEngineWithConfig(config, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	snapshots, ok := engine.(export.SnapshotReader)
	if !ok {
		pool.Close()
		return nil, fmt.Errorf("engine does not expose schema snapshots")
	}
	return &toolEngine{
		Engine:    engine,
		snapshots: snapshots,
		values:    internal.NewPostgresAttributeRepository(pool, config.Database.TableNames, config.Attributes.WriteBatchSize),
		close:     pool.Close,
	}, nil
}

func (e *toolEngine) categoryByCode(ctx context.Context, code string) (*facets.Category, error) {
	if code == "" {
		return nil, fmt.Errorf("-category is required")
	}
	return e.GetCategoryByCode(ctx, code)
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getenvDefaultInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getenvDefaultBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return def
}
