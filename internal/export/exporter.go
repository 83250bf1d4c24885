package export

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/lychee-technology/facets"
	"github.com/lychee-technology/facets/internal"
	"go.uber.org/zap"
)

const exportColumns = `profile_id VARCHAR NOT NULL,
	field_id BIGINT NOT NULL,
	field_name VARCHAR NOT NULL,
	field_type VARCHAR NOT NULL,
	field_active BOOLEAN NOT NULL,
	value VARCHAR NOT NULL,
	number_value DOUBLE,
	updated_at BIGINT NOT NULL`

// Result describes one finished category export.
type Result struct {
	CategoryID   int64
	CategoryCode string
	Rows         int
	// LocalPath is empty when the file only lived in a scratch directory.
	LocalPath string
	S3Key     string
	Location  string
	Duration  time.Duration
}

// SnapshotReader resolves the schema of the exported category.
type SnapshotReader interface {
	Snapshot(ctx context.Context, categoryID int64) (*facets.SchemaSnapshot, error)
}

// Exporter writes every stored attribute value of a category to a Parquet
// file through DuckDB and optionally uploads it to S3.
type Exporter struct {
	snapshots SnapshotReader
	values    internal.AttributeRepository
	duck      *DuckDBClient
	uploader  ObjectUploader
	breaker   *CircuitBreaker
	cfg       facets.ExportConfig
	nowFunc   func() time.Time
}

// NewExporter creates an exporter. uploader may be nil when cfg.S3Bucket is empty.
func NewExporter(snapshots SnapshotReader, values internal.AttributeRepository, duck *DuckDBClient, uploader ObjectUploader, cfg facets.ExportConfig) *Exporter {
	return &Exporter{
		snapshots: snapshots,
		values:    values,
		duck:      duck,
		uploader:  uploader,
		breaker:   NewCircuitBreaker(cfg.UploadFailureThreshold, cfg.UploadFailureWindow, cfg.UploadCooldown),
		cfg:       cfg,
		nowFunc:   time.Now,
	}
}

// ExportCategory exports the attribute values of one category.
func (e *Exporter) ExportCategory(ctx context.Context, categoryID int64) (*Result, error) {
	start := e.nowFunc()
	if e.cfg.S3Bucket != "" && e.uploader == nil {
		return nil, fmt.Errorf("export: s3 bucket %q configured without an uploader", e.cfg.S3Bucket)
	}

	snapshot, err := e.snapshots.Snapshot(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	values, err := e.values.ListCategoryValues(ctx, categoryID)
	if err != nil {
		return nil, facets.NewStorageError("failed to list category values", err)
	}

	dir := e.cfg.OutputDirectory
	scratch := dir == ""
	if scratch {
		if dir, err = os.MkdirTemp("", "facets-export-*"); err != nil {
			return nil, fmt.Errorf("export: create scratch directory: %w", err)
		}
		defer os.RemoveAll(dir)
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export: create output directory: %w", err)
	}

	fileName := fmt.Sprintf("%s_%s.parquet", strings.ToLower(snapshot.Category.Code), uuid.Must(uuid.NewV7()).String())
	localPath := filepath.Join(dir, fileName)
	if err := e.writeParquet(ctx, snapshot, values, localPath); err != nil {
		return nil, err
	}

	result := &Result{
		CategoryID:   categoryID,
		CategoryCode: snapshot.Category.Code,
		Rows:         len(values),
	}
	if !scratch {
		result.LocalPath = localPath
	}

	if e.cfg.S3Bucket != "" {
		key := objectKey(e.cfg.S3Prefix, snapshot.Category.Code, fileName)
		location, err := e.upload(ctx, localPath, key)
		if err != nil {
			return nil, err
		}
		result.S3Key = key
		result.Location = location
	}

	result.Duration = e.nowFunc().Sub(start)
	zap.S().Infow("attribute export finished",
		"categoryID", categoryID, "category", snapshot.Category.Code, "rows", result.Rows,
		"localPath", result.LocalPath, "s3Key", result.S3Key, "duration", result.Duration)
	return result, nil
}

// writeParquet loads values into a temporary DuckDB table and copies it to path.
// Temporary tables are connection scoped, so one connection is pinned for the whole export.
func (e *Exporter) writeParquet(ctx context.Context, snapshot *facets.SchemaSnapshot, values []facets.AttributeValue, path string) error {
	if e.duck == nil || e.duck.DB == nil {
		return fmt.Errorf("export: duckdb client not initialized")
	}
	conn, err := e.duck.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("export: acquire duckdb connection: %w", err)
	}
	defer conn.Close()

	table := "export_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("CREATE TEMP TABLE %s (%s)", table, exportColumns)); err != nil {
		return fmt.Errorf("export: create staging table: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), "DROP TABLE IF EXISTS "+table); err != nil {
			zap.S().Warnw("export: drop staging table failed", "table", table, "err", err)
		}
	}()

	if err := stageValues(ctx, conn, table, snapshot, values); err != nil {
		return err
	}

	copySQL := fmt.Sprintf("COPY (SELECT * FROM %s ORDER BY profile_id, field_id) TO %s (FORMAT PARQUET, COMPRESSION 'ZSTD')",
		table, quoteLiteral(path))
	if _, err := conn.ExecContext(ctx, copySQL); err != nil {
		return fmt.Errorf("export: duckdb copy: %w", err)
	}
	return nil
}

func stageValues(ctx context.Context, conn *sql.Conn, table string, snapshot *facets.SchemaSnapshot, values []facets.AttributeValue) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("export: begin staging: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (?, ?, ?, ?, ?, ?, ?, ?)", table))
	if err != nil {
		return fmt.Errorf("export: prepare staging insert: %w", err)
	}
	defer stmt.Close()

	skipped := 0
	for _, v := range values {
		def, ok := snapshot.FieldByID(v.FieldID)
		if !ok {
			skipped++
			continue
		}
		var number sql.NullFloat64
		if def.FieldType == facets.FieldTypeNumber {
			if f, err := strconv.ParseFloat(v.Value, 64); err == nil {
				number = sql.NullFloat64{Float64: f, Valid: true}
			}
		}
		if _, err := stmt.ExecContext(ctx, v.ProfileID.String(), v.FieldID, def.FieldName, string(def.FieldType),
			def.IsActive, v.Value, number, v.UpdatedAt); err != nil {
			return fmt.Errorf("export: stage value: %w", err)
		}
	}
	if skipped > 0 {
		zap.S().Warnw("export: skipped values of unknown fields", "categoryID", snapshot.Category.ID, "skipped", skipped)
	}
	return tx.Commit()
}

func (e *Exporter) upload(ctx context.Context, localPath, key string) (string, error) {
	if e.breaker.IsOpen() {
		return "", ErrCircuitOpen
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("export: open parquet file: %w", err)
	}
	defer f.Close()

	out, err := e.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.cfg.S3Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/vnd.apache.parquet"),
	})
	if err != nil {
		if !isPermanentS3Error(err) && ctx.Err() == nil {
			e.breaker.RecordFailure()
		}
		zap.S().Warnw("export: upload failed", "bucket", e.cfg.S3Bucket, "key", key, "reason", describeS3Error(err), "err", err)
		return "", fmt.Errorf("export: upload s3://%s/%s: %w", e.cfg.S3Bucket, key, err)
	}
	e.breaker.RecordSuccess()
	return out.Location, nil
}
