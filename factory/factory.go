package factory

import (
	"context"
	"fmt"
	"slices"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dsql/auth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/facets"
	"github.com/lychee-technology/facets/internal"
	"go.uber.org/zap"
)

// queryPool is the subset of a pool needed to list tables.
type queryPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// enginePool is what the PostgreSQL repositories need from a pool.
type enginePool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Test hooks.
var (
	tableCollector   = collectTablesFromPool
	generateIAMToken = defaultIAMToken
)

// NewEngineWithConfig creates an Engine backed by PostgreSQL. The tables named
// in config.Database.TableNames must already exist (see facets-tools init-db).
// When config.Catalog.SeedDirectory is set, its category seeds are applied.
//
// Usage:
//
//	config := facets.DefaultConfig()
//	pool, err := factory.NewPool(ctx, config)
//	if err != nil {
//	    // handle error
//	}
//	engine, err := factory.NewEngineWithConfig(config, pool)
func NewEngineWithConfig(config *facets.Config, pool *pgxpool.Pool) (facets.Engine, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return newEngine(context.Background(), config, pool)
}

func newEngine(ctx context.Context, config *facets.Config, pool enginePool) (*internal.Engine, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	tables, err := tableCollector(pool)
	if err != nil {
		return nil, err
	}
	if missing := missingTables(tables, config.Database.TableNames); len(missing) > 0 {
		return nil, fmt.Errorf("required tables are missing in the database: %s", strings.Join(missing, ", "))
	}

	names := config.Database.TableNames
	engine := internal.NewEngine(
		internal.NewPostgresCatalogRepository(pool, names),
		internal.NewPostgresAttributeRepository(pool, names, config.Attributes.WriteBatchSize),
		internal.NewPostgresProfileRepository(pool, names),
		config,
	)
	zap.S().Infow("facets engine ready", "backend", "postgres", "tables", len(tables))

	if err := applySeeds(ctx, engine, config.Catalog.SeedDirectory); err != nil {
		return nil, err
	}
	return engine, nil
}

func applySeeds(ctx context.Context, engine *internal.Engine, dir string) error {
	if dir == "" {
		return nil
	}
	report, err := internal.NewSeedLoader(engine, dir).LoadDirectory(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply category seeds: %w", err)
	}
	zap.S().Infow("category seeds applied", "directory", dir,
		"categoriesCreated", report.CategoriesCreated, "fieldsCreated", report.FieldsCreated)
	return nil
}

func collectTablesFromPool(pool queryPool) ([]string, error) {
	rows, err := pool.Query(context.Background(), `SELECT table_name FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'`)
	if err != nil {
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, tableName)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return tables, nil
}

func missingTables(existing []string, names facets.TableNames) []string {
	var missing []string
	for _, name := range []string{names.Categories, names.Fields, names.AttributeValues, names.ProfileVersions, names.Profiles} {
		if !slices.Contains(existing, name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// NewPool opens a pgx pool for config.Database. With UseIAMAuth every new
// connection authenticates with a freshly generated DSQL token.
func NewPool(ctx context.Context, config *facets.Config) (*pgxpool.Pool, error) {
	db := config.Database
	if err := internal.ValidatePostgresConfig(db); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(internal.PostgresDSN(db, db.Password))
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	poolCfg.MaxConnLifetime = db.ConnMaxLifetime
	poolCfg.MaxConnIdleTime = db.ConnMaxIdleTime
	if db.MaxIdleConns > 0 && db.MaxIdleConns <= db.MaxConnections {
		poolCfg.MinConns = int32(db.MaxIdleConns)
	}
	if db.Timeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = db.Timeout
	}
	if db.UseIAMAuth {
		poolCfg.BeforeConnect = func(ctx context.Context, cc *pgx.ConnConfig) error {
			password, err := resolvePassword(ctx, db)
			if err != nil {
				return err
			}
			cc.Password = password
			return nil
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// resolvePassword returns an IAM token when enabled, falling back to the
// static password if token generation fails and one is configured.
func resolvePassword(ctx context.Context, db facets.DatabaseConfig) (string, error) {
	if !db.UseIAMAuth {
		return db.Password, nil
	}
	token, err := generateIAMToken(ctx, db.Host, db.Region)
	if err == nil && token != "" {
		return token, nil
	}
	if db.Password != "" {
		zap.S().Warnw("failed to generate IAM auth token; falling back to configured password", "host", db.Host, "err", err)
		return db.Password, nil
	}
	if err == nil {
		err = fmt.Errorf("empty token")
	}
	return "", fmt.Errorf("generate IAM auth token: %w", err)
}

func defaultIAMToken(ctx context.Context, endpoint, region string) (string, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return "", fmt.Errorf("load aws config: %w", err)
	}
	return auth.GenerateDbConnectAuthToken(ctx, endpoint, awsCfg.Region, awsCfg.Credentials)
}
