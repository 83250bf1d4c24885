package internal

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/facets"
	"go.uber.org/zap"
)

// PostgresAttributeRepository stores canonical attribute values in PostgreSQL.
type PostgresAttributeRepository struct {
	pool      pgxPool
	tables    facets.TableNames
	batchSize int
}

func NewPostgresAttributeRepository(pool pgxPool, tables facets.TableNames, batchSize int) *PostgresAttributeRepository {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &PostgresAttributeRepository{pool: pool, tables: tables, batchSize: batchSize}
}

func (r *PostgresAttributeRepository) WithProfileTx(ctx context.Context, fn func(tx AttributeTx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // no-op if committed

	if err := fn(&pgAttributeTx{tx: tx, tables: r.tables, batchSize: r.batchSize}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *PostgresAttributeRepository) ListValues(ctx context.Context, profileID uuid.UUID) ([]facets.AttributeValue, error) {
	query := fmt.Sprintf(
		"SELECT profile_id, field_id, category_id, value, updated_at FROM %s WHERE profile_id = $1 ORDER BY field_id",
		sanitizeIdentifier(r.tables.AttributeValues),
	)
	return queryPgValues(ctx, r.pool, query, profileID)
}

func (r *PostgresAttributeRepository) ListCategoryValues(ctx context.Context, categoryID int64) ([]facets.AttributeValue, error) {
	query := fmt.Sprintf(
		"SELECT profile_id, field_id, category_id, value, updated_at FROM %s WHERE category_id = $1 ORDER BY profile_id, field_id",
		sanitizeIdentifier(r.tables.AttributeValues),
	)
	return queryPgValues(ctx, r.pool, query, categoryID)
}

func queryPgValues(ctx context.Context, q pgxQuerier, query string, args ...any) ([]facets.AttributeValue, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attribute values: %w", err)
	}
	defer rows.Close()

	values := make([]facets.AttributeValue, 0)
	for rows.Next() {
		var v facets.AttributeValue
		if err := rows.Scan(&v.ProfileID, &v.FieldID, &v.CategoryID, &v.Value, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan attribute value: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attribute values: %w", err)
	}
	return values, nil
}

func (r *PostgresAttributeRepository) StoredFieldIDs(ctx context.Context, profileID uuid.UUID, categoryID int64) (map[int64]bool, error) {
	return storedPgFieldIDs(ctx, r.pool, r.tables.AttributeValues, profileID, categoryID)
}

func storedPgFieldIDs(ctx context.Context, q pgxQuerier, table string, profileID uuid.UUID, categoryID int64) (map[int64]bool, error) {
	query := fmt.Sprintf("SELECT field_id FROM %s WHERE profile_id = $1 AND category_id = $2", sanitizeIdentifier(table))
	rows, err := q.Query(ctx, query, profileID, categoryID)
	if err != nil {
		return nil, fmt.Errorf("query stored fields: %w", err)
	}
	defer rows.Close()

	stored := make(map[int64]bool)
	for rows.Next() {
		var fieldID int64
		if err := rows.Scan(&fieldID); err != nil {
			return nil, fmt.Errorf("scan stored field: %w", err)
		}
		stored[fieldID] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stored fields: %w", err)
	}
	return stored, nil
}

func (r *PostgresAttributeRepository) ProfileVersion(ctx context.Context, profileID uuid.UUID) (int64, error) {
	query := fmt.Sprintf("SELECT version FROM %s WHERE profile_id = $1", sanitizeIdentifier(r.tables.ProfileVersions))
	var version int64
	if err := r.pool.QueryRow(ctx, query, profileID).Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("query profile version: %w", err)
	}
	return version, nil
}

func (r *PostgresAttributeRepository) ValuesByField(ctx context.Context, fieldID int64, profileIDs []uuid.UUID) (map[uuid.UUID]string, error) {
	values := make(map[uuid.UUID]string, len(profileIDs))
	if len(profileIDs) == 0 {
		return values, nil
	}
	query := fmt.Sprintf(
		"SELECT profile_id, value FROM %s WHERE field_id = $1 AND profile_id = ANY($2)",
		sanitizeIdentifier(r.tables.AttributeValues),
	)
	rows, err := r.pool.Query(ctx, query, fieldID, profileIDs)
	if err != nil {
		return nil, fmt.Errorf("query field values: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			profileID uuid.UUID
			value     string
		)
		if err := rows.Scan(&profileID, &value); err != nil {
			return nil, fmt.Errorf("scan field value: %w", err)
		}
		values[profileID] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate field values: %w", err)
	}
	return values, nil
}

type pgAttributeTx struct {
	tx        pgx.Tx
	tables    facets.TableNames
	batchSize int
}

func (t *pgAttributeTx) BumpProfileVersion(ctx context.Context, profileID uuid.UUID, updatedAt int64) (int64, error) {
	query := fmt.Sprintf(
		`INSERT INTO %s (profile_id, version, updated_at) VALUES ($1, 1, $2)
			ON CONFLICT (profile_id) DO UPDATE SET version = %[1]s.version + 1, updated_at = EXCLUDED.updated_at
			RETURNING version`,
		sanitizeIdentifier(t.tables.ProfileVersions),
	)
	var version int64
	if err := t.tx.QueryRow(ctx, query, profileID, updatedAt).Scan(&version); err != nil {
		return 0, fmt.Errorf("bump profile version: %w", err)
	}
	return version, nil
}

// LoadSchema share-locks the category and its field rows so a concurrent
// deactivation or field update waits until this transaction commits.
func (t *pgAttributeTx) LoadSchema(ctx context.Context, categoryID int64) (*facets.Category, []facets.FieldDefinition, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1 FOR SHARE", categoryColumns, sanitizeIdentifier(t.tables.Categories))
	category, err := getPgCategory(ctx, t.tx, query, categoryID)
	if err != nil || category == nil {
		return nil, nil, err
	}
	fields, err := listPgFields(ctx, t.tx, t.tables.Fields, categoryID, " FOR SHARE")
	if err != nil {
		return nil, nil, err
	}
	return category, fields, nil
}

func (t *pgAttributeTx) StoredFieldIDs(ctx context.Context, profileID uuid.UUID, categoryID int64) (map[int64]bool, error) {
	return storedPgFieldIDs(ctx, t.tx, t.tables.AttributeValues, profileID, categoryID)
}

func (t *pgAttributeTx) UpsertValues(ctx context.Context, values []facets.AttributeValue) error {
	for _, batch := range chunk(values, t.batchSize) {
		valuesClause, args := buildAttributeValuesClause(batch, postgresPlaceholder)
		query := fmt.Sprintf(
			`INSERT INTO %s (profile_id, field_id, category_id, value, updated_at) VALUES %s
				ON CONFLICT (profile_id, field_id)
				DO UPDATE SET category_id = EXCLUDED.category_id, value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
			sanitizeIdentifier(t.tables.AttributeValues),
			valuesClause,
		)
		zap.S().Debugw("upsert attribute values", "query", query, "count", len(batch))
		if _, err := t.tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert attribute values: %w", err)
		}
	}
	return nil
}
