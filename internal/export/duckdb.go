package export

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/lychee-technology/facets"
	"go.uber.org/zap"
)

// DuckDBClient wraps a database/sql DB opened with the DuckDB driver.
type DuckDBClient struct {
	DB  *sql.DB
	cfg facets.ExportConfig
}

// ValidateDuckDBConfig performs basic sanity checks on the DuckDB settings of an export.
func ValidateDuckDBConfig(cfg facets.ExportConfig) error {
	if cfg.MemoryLimitMB < 0 {
		return fmt.Errorf("invalid memoryLimitMB: must be >= 0")
	}
	if cfg.Threads < 0 {
		return fmt.Errorf("invalid threads: must be >= 0")
	}
	return nil
}

// NewDuckDBClient opens DuckDB at cfg.DuckDBPath, or in memory when the path
// is empty, and applies the configured resource pragmas.
func NewDuckDBClient(ctx context.Context, cfg facets.ExportConfig) (*DuckDBClient, error) {
	if err := ValidateDuckDBConfig(cfg); err != nil {
		return nil, err
	}

	db, err := sql.Open("duckdb", cfg.DuckDBPath)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	// Pragma failures leave DuckDB on its defaults.
	if cfg.MemoryLimitMB > 0 {
		if _, err := db.ExecContext(pingCtx, fmt.Sprintf("PRAGMA memory_limit='%dMB';", cfg.MemoryLimitMB)); err != nil {
			zap.S().Warnw("duckdb: set memory_limit failed", "err", err, "memoryLimitMB", cfg.MemoryLimitMB)
		}
	}
	if cfg.Threads > 0 {
		if _, err := db.ExecContext(pingCtx, fmt.Sprintf("PRAGMA threads=%d;", cfg.Threads)); err != nil {
			zap.S().Warnw("duckdb: set threads failed", "err", err, "threads", cfg.Threads)
		}
	}

	return &DuckDBClient{DB: db, cfg: cfg}, nil
}

// Close closes the underlying DuckDB DB.
func (c *DuckDBClient) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

// HealthCheck runs a trivial query against DuckDB.
func (c *DuckDBClient) HealthCheck(ctx context.Context) error {
	if c == nil || c.DB == nil {
		return fmt.Errorf("duckdb client not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var v int
	if err := c.DB.QueryRowContext(ctx, "SELECT 1;").Scan(&v); err != nil {
		return fmt.Errorf("duckdb health query failed: %w", err)
	}
	if v != 1 {
		return fmt.Errorf("unexpected duckdb health result: %d", v)
	}
	return nil
}

// quoteLiteral renders s as a DuckDB string literal. COPY targets cannot be bound as parameters.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
