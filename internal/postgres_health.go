package internal

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/facets"
)

// ValidatePostgresConfig checks the connection settings needed to reach PostgreSQL.
func ValidatePostgresConfig(cfg facets.DatabaseConfig) error {
	if cfg.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("database.port must be a valid TCP port")
	}
	if cfg.Database == "" {
		return fmt.Errorf("database.database is required")
	}
	if cfg.Username == "" {
		return fmt.Errorf("database.username is required")
	}
	if cfg.UseIAMAuth && cfg.Region == "" {
		return fmt.Errorf("database.region is required with IAM authentication")
	}
	if cfg.MaxConnections <= 0 {
		return fmt.Errorf("database.maxConnections must be greater than 0")
	}
	return nil
}

// PostgresDSN renders a connection URL. The password is passed separately
// when IAM tokens are used, so it may be empty here.
func PostgresDSN(cfg facets.DatabaseConfig, password string) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Path:   "/" + cfg.Database,
	}
	if password != "" {
		u.User = url.UserPassword(cfg.Username, password)
	} else {
		u.User = url.User(cfg.Username)
	}
	q := url.Values{}
	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	}
	if cfg.MaxConnections > 0 {
		q.Set("pool_max_conns", strconv.Itoa(cfg.MaxConnections))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// PostgresHealthCheck connects with dsn and runs a trivial query.
// A zero timeout means five seconds.
func PostgresHealthCheck(ctx context.Context, dsn string, timeout time.Duration) error {
	if dsn == "" {
		return fmt.Errorf("empty dsn")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	if _, err := pool.Exec(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("postgres simple query failed: %w", err)
	}
	return nil
}
