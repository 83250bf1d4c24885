package e2e_harness

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/lychee-technology/facets"
	"github.com/lychee-technology/facets/internal/export"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	s3AccessKey = "facets"
	s3SecretKey = "facets-secret"
)

// TestHarness holds lightweight runners for dependencies used by E2E tests.
type TestHarness struct {
	PGContainer testcontainers.Container
	PGDSN       string
	PGDB        *sql.DB
	Pool        *pgxpool.Pool
	S3Container testcontainers.Container
	S3Endpoint  string
	Duck        *export.DuckDBClient
}

// StartPostgres starts a postgres container, waits until it accepts
// connections and opens both a database/sql handle and a pgx pool.
// Caller is responsible for calling StopPostgres.
func (h *TestHarness) StartPostgres(ctx context.Context) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_USER":     "postgres",
			"POSTGRES_DB":       "facets",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", err
	}
	h.PGContainer = container

	host, err := container.Host(ctx)
	if err != nil {
		return "", err
	}
	mapped, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return "", err
	}
	h.PGDSN = fmt.Sprintf("postgres://postgres:password@%s:%s/facets?sslmode=disable", host, mapped.Port())

	db, err := sql.Open("postgres", h.PGDSN)
	if err != nil {
		return "", err
	}
	deadline := time.Now().Add(20 * time.Second)
	for {
		err := db.PingContext(ctx)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			db.Close()
			return "", fmt.Errorf("postgres did not become ready: %w", err)
		}
		time.Sleep(200 * time.Millisecond)
	}
	h.PGDB = db

	pool, err := pgxpool.New(ctx, h.PGDSN)
	if err != nil {
		return "", fmt.Errorf("open pgx pool: %w", err)
	}
	h.Pool = pool
	return h.PGDSN, nil
}

// StopPostgres stops the Postgres container and closes the DB handles.
func (h *TestHarness) StopPostgres(ctx context.Context) error {
	if h.Pool != nil {
		h.Pool.Close()
		h.Pool = nil
	}
	if h.PGDB != nil {
		h.PGDB.Close()
		h.PGDB = nil
	}
	if h.PGContainer != nil {
		if err := h.PGContainer.Terminate(ctx); err != nil {
			return err
		}
		h.PGContainer = nil
	}
	return nil
}

// StartS3 starts a MinIO container and returns its endpoint.
func (h *TestHarness) StartS3(ctx context.Context) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "minio/minio:latest",
		ExposedPorts: []string{"9000/tcp"},
		Cmd:          []string{"server", "/data"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     s3AccessKey,
			"MINIO_ROOT_PASSWORD": s3SecretKey,
		},
		WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", err
	}
	h.S3Container = container
	host, err := container.Host(ctx)
	if err != nil {
		return "", err
	}
	mapped, err := container.MappedPort(ctx, "9000")
	if err != nil {
		return "", err
	}
	h.S3Endpoint = fmt.Sprintf("http://%s:%s", host, mapped.Port())
	return h.S3Endpoint, nil
}

// StopS3 stops the MinIO container.
func (h *TestHarness) StopS3(ctx context.Context) error {
	if h.S3Container != nil {
		if err := h.S3Container.Terminate(ctx); err != nil {
			return err
		}
		h.S3Container = nil
	}
	return nil
}

// ExportConfig returns export settings pointing at the MinIO container.
func (h *TestHarness) ExportConfig(bucket string) facets.ExportConfig {
	cfg := facets.DefaultConfig().Export
	cfg.Enabled = true
	cfg.S3Bucket = bucket
	cfg.S3Region = "us-east-1"
	cfg.S3Endpoint = h.S3Endpoint
	cfg.S3AccessKey = s3AccessKey
	cfg.S3SecretKey = s3SecretKey
	cfg.S3UsePathStyle = true
	return cfg
}

// StartDuckDB opens an in-memory DuckDB client for exports.
func (h *TestHarness) StartDuckDB(ctx context.Context, cfg facets.ExportConfig) error {
	c, err := export.NewDuckDBClient(ctx, cfg)
	if err != nil {
		return err
	}
	h.Duck = c
	return nil
}

// StopDuckDB closes the duckdb client.
func (h *TestHarness) StopDuckDB() error {
	if h.Duck != nil {
		if err := h.Duck.Close(); err != nil {
			return err
		}
		h.Duck = nil
	}
	return nil
}
