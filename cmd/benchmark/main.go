package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/lychee-technology/facets"
	"github.com/lychee-technology/facets/factory"
	"go.uber.org/zap"
)

type options struct {
	config       *facets.Config
	categories   []string
	profiles     int
	searches     int
	seed         int64
	seedProvided bool
}

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(fmt.Errorf("failed to set up logger: %w", err))
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	log := logger.Sugar()

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		log.Fatalf("invalid flags: %v", err)
	}
	ctx := context.Background()

	engine, closeEngine, err := openEngine(ctx, opts.config)
	if err != nil {
		log.Fatalf("failed to open engine: %v", err)
	}
	defer closeEngine()

	if !opts.seedProvided {
		log.Infof("Using random seed %d", opts.seed)
	}
	random := rand.New(rand.NewSource(opts.seed))

	categories, err := targetCategories(ctx, engine, opts.categories)
	if err != nil {
		log.Fatalf("failed to resolve categories: %v", err)
	}
	if len(categories) == 0 {
		log.Info("No categories to benchmark. Apply seeds first with -seed-dir.")
		return
	}

	for _, category := range categories {
		desc, err := engine.DescribeSchema(ctx, category.ID)
		if err != nil {
			log.Fatalf("failed to describe %s: %v", category.Code, err)
		}
		gen := newGenerator(random, desc)

		written, err := gen.populate(ctx, engine, opts.profiles)
		if err != nil {
			log.Fatalf("failed to populate %s: %v", category.Code, err)
		}
		report, err := gen.runSearches(ctx, engine, opts.searches)
		if err != nil {
			log.Fatalf("failed to search %s: %v", category.Code, err)
		}

		log.Infow("Benchmark complete",
			"category", category.Code,
			"profiles", opts.profiles,
			"values", written.values,
			"submitTotal", written.elapsed,
			"submitPerProfile", perOp(written.elapsed, opts.profiles),
			"searches", report.count,
			"searchP50", report.percentile(50),
			"searchP95", report.percentile(95),
			"avgMatches", report.avgMatches())
	}
}

func parseFlags(args []string) (*options, error) {
	flags := flag.NewFlagSet("benchmark", flag.ContinueOnError)
	opts := &options{config: facets.DefaultConfig()}
	db := &opts.config.Database

	flags.StringVar(&db.Host, "db-host", getenvDefault("DB_HOST", db.Host), "database host")
	flags.IntVar(&db.Port, "db-port", getenvDefaultInt("DB_PORT", db.Port), "database port")
	flags.StringVar(&db.Database, "db-name", getenvDefault("DB_NAME", db.Database), "database name")
	flags.StringVar(&db.Username, "db-user", getenvDefault("DB_USER", db.Username), "database user")
	flags.StringVar(&db.Password, "db-password", getenvDefault("DB_PASSWORD", "postgres"), "database password")
	flags.StringVar(&db.SSLMode, "db-ssl-mode", getenvDefault("DB_SSL_MODE", db.SSLMode), "database sslmode")
	flags.StringVar(&db.SQLitePath, "sqlite", getenvDefault("SQLITE_PATH", ""), "benchmark the embedded SQLite engine at this path")
	flags.StringVar(&opts.config.Catalog.SeedDirectory, "seed-dir", getenvDefault("SEED_DIR", filepath.Join("..", "..", "seeds")), "category seed files applied before generating data")
	flags.IntVar(&opts.profiles, "profiles", 10000, "number of profiles to generate per category")
	flags.IntVar(&opts.searches, "searches", 200, "number of searches to run per category")
	categoryList := flags.String("categories", "", "comma-separated category codes (default: every active category)")
	seed := flags.Int64("seed", 0, "random seed (0 uses current time)")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if opts.profiles < 0 || opts.searches < 0 {
		return nil, fmt.Errorf("profile and search counts must be non-negative")
	}

	if *seed == 0 {
		opts.seed = time.Now().UnixNano()
	} else {
		opts.seed = *seed
		opts.seedProvided = true
	}
	opts.categories = splitList(*categoryList)
	return opts, nil
}

func openEngine(ctx context.Context, config *facets.Config) (facets.Engine, func(), error) {
	if config.Database.SQLitePath != "" {
		engine, err := factory.NewEmbeddedEngine(ctx, config)
		if err != nil {
			return nil, nil, err
		}
		return engine, func() { engine.Close() }, nil
	}

	pool, err := factory.NewPool(ctx, config)
	if err != nil {
		return nil, nil, err
	}
	engine, err := factory.NewEngineWithConfig(config, pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return engine, pool.Close, nil
}

func targetCategories(ctx context.Context, engine facets.Engine, codes []string) ([]facets.Category, error) {
	if len(codes) == 0 {
		return engine.ListCategories(ctx, false)
	}
	out := make([]facets.Category, 0, len(codes))
	for _, code := range codes {
		category, err := engine.GetCategoryByCode(ctx, code)
		if err != nil {
			return nil, err
		}
		out = append(out, *category)
	}
	return out, nil
}

type searchReport struct {
	count     int
	latencies []time.Duration
	matches   int
}

func (r *searchReport) percentile(p int) time.Duration {
	if len(r.latencies) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), r.latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := (len(sorted) - 1) * p / 100
	return sorted[idx]
}

func (r *searchReport) avgMatches() float64 {
	if r.count == 0 {
		return 0
	}
	return float64(r.matches) / float64(r.count)
}

func perOp(total time.Duration, n int) time.Duration {
	if n == 0 {
		return 0
	}
	return total / time.Duration(n)
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
