package factory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lychee-technology/facets"
	"github.com/lychee-technology/facets/internal"
	"go.uber.org/zap"
)

// EmbeddedEngine is an Engine stored in a local SQLite file.
type EmbeddedEngine struct {
	*internal.Engine
	repo *internal.SQLiteRepository
	db   *sql.DB
}

// Close releases the SQLite database.
func (e *EmbeddedEngine) Close() error {
	return e.db.Close()
}

// NewEmbeddedEngine opens (creating when needed) the SQLite database at
// config.Database.SQLitePath and returns an engine over it.
func NewEmbeddedEngine(ctx context.Context, config *facets.Config) (*EmbeddedEngine, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	path := config.Database.SQLitePath
	if path == "" {
		return nil, &facets.ConfigError{Field: "database.sqlitePath", Message: "is required for the embedded engine"}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := internal.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	repo := internal.NewSQLiteRepository(db, config.Database.TableNames, config.Attributes.WriteBatchSize)
	if err := repo.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	engine := internal.NewEngine(repo, repo, repo, config)
	zap.S().Infow("facets engine ready", "backend", "sqlite", "path", path)

	if err := applySeeds(ctx, engine, config.Catalog.SeedDirectory); err != nil {
		db.Close()
		return nil, err
	}
	return &EmbeddedEngine{Engine: engine, repo: repo, db: db}, nil
}

// Attributes exposes the attribute store behind the engine for tools that
// read it directly, such as the exporter.
func (e *EmbeddedEngine) Attributes() internal.AttributeRepository {
	return e.repo
}
