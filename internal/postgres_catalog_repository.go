package internal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lychee-technology/facets"
	"go.uber.org/zap"
)

const pgUniqueViolation = "23505"

// pgxPool is the subset of *pgxpool.Pool used by the repositories.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// pgxQuerier is implemented by both pools and transactions.
type pgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// PostgresCatalogRepository stores categories and field definitions in PostgreSQL.
type PostgresCatalogRepository struct {
	pool   pgxPool
	tables facets.TableNames
}

func NewPostgresCatalogRepository(pool pgxPool, tables facets.TableNames) *PostgresCatalogRepository {
	return &PostgresCatalogRepository{pool: pool, tables: tables}
}

func (r *PostgresCatalogRepository) InsertCategory(ctx context.Context, category *facets.Category) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (code, display_name, description, sort_order, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		sanitizeIdentifier(r.tables.Categories),
	)
	zap.S().Debugw("insert category", "query", query, "code", category.Code)
	err := r.pool.QueryRow(ctx, query,
		category.Code,
		category.DisplayName,
		category.Description,
		category.SortOrder,
		category.IsActive,
		category.CreatedAt,
		category.UpdatedAt,
	).Scan(&category.ID)
	if err != nil {
		if isPgUniqueViolation(err) {
			return fmt.Errorf("insert category %s: %w", category.Code, ErrDuplicateKey)
		}
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (r *PostgresCatalogRepository) GetCategory(ctx context.Context, categoryID int64) (*facets.Category, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", categoryColumns, sanitizeIdentifier(r.tables.Categories))
	return getPgCategory(ctx, r.pool, query, categoryID)
}

func (r *PostgresCatalogRepository) GetCategoryByCode(ctx context.Context, code string) (*facets.Category, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE code = $1", categoryColumns, sanitizeIdentifier(r.tables.Categories))
	return getPgCategory(ctx, r.pool, query, code)
}

func getPgCategory(ctx context.Context, q pgxQuerier, query string, arg any) (*facets.Category, error) {
	category, err := scanCategory(q.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query category: %w", err)
	}
	return category, nil
}

func (r *PostgresCatalogRepository) ListCategories(ctx context.Context, includeInactive bool) ([]facets.Category, error) {
	query := fmt.Sprintf("SELECT %s FROM %s", categoryColumns, sanitizeIdentifier(r.tables.Categories))
	if !includeInactive {
		query += " WHERE is_active = TRUE"
	}
	query += " ORDER BY sort_order, id"

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	categories := make([]facets.Category, 0)
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, *category)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}

func (r *PostgresCatalogRepository) SetCategoryActive(ctx context.Context, categoryID int64, active bool, updatedAt int64) error {
	query := fmt.Sprintf("UPDATE %s SET is_active = $2, updated_at = $3 WHERE id = $1", sanitizeIdentifier(r.tables.Categories))
	tag, err := r.pool.Exec(ctx, query, categoryID, active, updatedAt)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update category: category %d not found", categoryID)
	}
	return nil
}

func (r *PostgresCatalogRepository) InsertField(ctx context.Context, def *facets.FieldDefinition) error {
	rules, options, err := encodeFieldJSON(def)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(
		`INSERT INTO %s (category_id, field_name, display_name, field_type, is_required, is_searchable, sort_order,
			placeholder, help_text, validation_rules, options, is_active, revision, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15) RETURNING id`,
		sanitizeIdentifier(r.tables.Fields),
	)
	zap.S().Debugw("insert field", "query", query, "categoryID", def.CategoryID, "fieldName", def.FieldName)
	err = r.pool.QueryRow(ctx, query,
		def.CategoryID,
		def.FieldName,
		def.DisplayName,
		string(def.FieldType),
		def.IsRequired,
		def.IsSearchable,
		def.SortOrder,
		def.Placeholder,
		def.HelpText,
		rules,
		options,
		def.IsActive,
		def.Revision,
		def.CreatedAt,
		def.UpdatedAt,
	).Scan(&def.ID)
	if err != nil {
		if isPgUniqueViolation(err) {
			return fmt.Errorf("insert field %s: %w", def.FieldName, ErrDuplicateKey)
		}
		return fmt.Errorf("insert field: %w", err)
	}
	return nil
}

const pgUpdateFieldSQL = `UPDATE %s SET display_name = $2, field_type = $3, is_required = $4, is_searchable = $5, sort_order = $6,
	placeholder = $7, help_text = $8, validation_rules = $9, options = $10, is_active = $11, revision = $12, updated_at = $13
	WHERE id = $1`

func pgUpdateFieldArgs(def *facets.FieldDefinition) ([]any, error) {
	rules, options, err := encodeFieldJSON(def)
	if err != nil {
		return nil, err
	}
	return []any{
		def.ID,
		def.DisplayName,
		string(def.FieldType),
		def.IsRequired,
		def.IsSearchable,
		def.SortOrder,
		def.Placeholder,
		def.HelpText,
		rules,
		options,
		def.IsActive,
		def.Revision,
		def.UpdatedAt,
	}, nil
}

func (r *PostgresCatalogRepository) UpdateField(ctx context.Context, def *facets.FieldDefinition) error {
	args, err := pgUpdateFieldArgs(def)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(pgUpdateFieldSQL, sanitizeIdentifier(r.tables.Fields))
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update field: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update field: field %d not found", def.ID)
	}
	return nil
}

// ChangeFieldType writes def only while the stored row still carries
// expectedRevision and no value references the field. The field row is locked
// first, so writers holding it share-locked finish before values are checked.
func (r *PostgresCatalogRepository) ChangeFieldType(ctx context.Context, def *facets.FieldDefinition, expectedRevision int64) error {
	args, err := pgUpdateFieldArgs(def)
	if err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // no-op if committed

	lockQuery := fmt.Sprintf("SELECT revision FROM %s WHERE id = $1 FOR UPDATE", sanitizeIdentifier(r.tables.Fields))
	var revision int64
	if err := tx.QueryRow(ctx, lockQuery, def.ID).Scan(&revision); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("change field type: field %d not found", def.ID)
		}
		return fmt.Errorf("lock field: %w", err)
	}
	if revision != expectedRevision {
		return fmt.Errorf("change field type: revision %d, expected %d: %w", revision, expectedRevision, ErrFieldInUse)
	}

	query := fmt.Sprintf(pgUpdateFieldSQL+" AND NOT EXISTS (SELECT 1 FROM %s WHERE field_id = $1)",
		sanitizeIdentifier(r.tables.Fields), sanitizeIdentifier(r.tables.AttributeValues))
	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("change field type: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("change field type: %w", ErrFieldInUse)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *PostgresCatalogRepository) GetField(ctx context.Context, fieldID int64) (*facets.FieldDefinition, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", fieldColumns, sanitizeIdentifier(r.tables.Fields))
	def, err := scanField(r.pool.QueryRow(ctx, query, fieldID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query field: %w", err)
	}
	return def, nil
}

func (r *PostgresCatalogRepository) ListFields(ctx context.Context, categoryID int64) ([]facets.FieldDefinition, error) {
	return listPgFields(ctx, r.pool, r.tables.Fields, categoryID, "")
}

func listPgFields(ctx context.Context, q pgxQuerier, table string, categoryID int64, lock string) ([]facets.FieldDefinition, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE category_id = $1 ORDER BY sort_order, id%s", fieldColumns, sanitizeIdentifier(table), lock)
	rows, err := q.Query(ctx, query, categoryID)
	if err != nil {
		return nil, fmt.Errorf("query fields: %w", err)
	}
	defer rows.Close()

	fields := make([]facets.FieldDefinition, 0)
	for rows.Next() {
		def, err := scanField(rows)
		if err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		fields = append(fields, *def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fields: %w", err)
	}
	return fields, nil
}

func (r *PostgresCatalogRepository) CountFieldValues(ctx context.Context, fieldID int64) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE field_id = $1", sanitizeIdentifier(r.tables.AttributeValues))
	var count int64
	if err := r.pool.QueryRow(ctx, query, fieldID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count field values: %w", err)
	}
	return count, nil
}
