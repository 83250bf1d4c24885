package internal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lychee-technology/facets"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// sqliteInListLimit keeps IN lists well below SQLite's bind parameter limit.
const sqliteInListLimit = 500

type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func isSQLiteUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func sqliteJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

// OpenSQLite opens an embedded database file. Writers take the database lock
// when their transaction begins, and a single connection is kept so an
// in-memory path stays one database.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// SQLiteRepository implements the catalog, attribute and profile repositories
// on an embedded SQLite database.
type SQLiteRepository struct {
	db        *sql.DB
	tables    facets.TableNames
	batchSize int
}

func NewSQLiteRepository(db *sql.DB, tables facets.TableNames, batchSize int) *SQLiteRepository {
	if batchSize <= 0 || batchSize > sqliteInListLimit/attributeValueColumnCount {
		batchSize = sqliteInListLimit / attributeValueColumnCount
	}
	return &SQLiteRepository{db: db, tables: tables, batchSize: batchSize}
}

// EnsureSchema creates missing tables and indexes.
func (r *SQLiteRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range SQLiteDDL(r.tables) {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply sqlite ddl: %w", err)
		}
	}
	return nil
}

// Category operations

func (r *SQLiteRepository) InsertCategory(ctx context.Context, category *facets.Category) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (code, display_name, description, sort_order, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sanitizeIdentifier(r.tables.Categories),
	)
	res, err := r.db.ExecContext(ctx, query,
		category.Code,
		category.DisplayName,
		category.Description,
		category.SortOrder,
		category.IsActive,
		category.CreatedAt,
		category.UpdatedAt,
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return fmt.Errorf("insert category %s: %w", category.Code, ErrDuplicateKey)
		}
		return fmt.Errorf("insert category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read category id: %w", err)
	}
	category.ID = id
	return nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, categoryID int64) (*facets.Category, error) {
	return getSQLiteCategory(ctx, r.db, r.tables.Categories, "id", categoryID)
}

func (r *SQLiteRepository) GetCategoryByCode(ctx context.Context, code string) (*facets.Category, error) {
	return getSQLiteCategory(ctx, r.db, r.tables.Categories, "code", code)
}

func getSQLiteCategory(ctx context.Context, q sqlQuerier, table, column string, arg any) (*facets.Category, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", categoryColumns, sanitizeIdentifier(table), column)
	category, err := scanCategory(q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query category: %w", err)
	}
	return category, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, includeInactive bool) ([]facets.Category, error) {
	query := fmt.Sprintf("SELECT %s FROM %s", categoryColumns, sanitizeIdentifier(r.tables.Categories))
	if !includeInactive {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY sort_order, id"

	rows, err := r.db.QueryContext(ctx, query)
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

func (r *SQLiteRepository) SetCategoryActive(ctx context.Context, categoryID int64, active bool, updatedAt int64) error {
	query := fmt.Sprintf("UPDATE %s SET is_active = ?, updated_at = ? WHERE id = ?", sanitizeIdentifier(r.tables.Categories))
	res, err := r.db.ExecContext(ctx, query, active, updatedAt, categoryID)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update category: category %d not found", categoryID)
	}
	return nil
}

// Field operations

func (r *SQLiteRepository) InsertField(ctx context.Context, def *facets.FieldDefinition) error {
	rules, options, err := encodeFieldJSON(def)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(
		`INSERT INTO %s (category_id, field_name, display_name, field_type, is_required, is_searchable, sort_order,
			placeholder, help_text, validation_rules, options, is_active, revision, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sanitizeIdentifier(r.tables.Fields),
	)
	res, err := r.db.ExecContext(ctx, query,
		def.CategoryID,
		def.FieldName,
		def.DisplayName,
		string(def.FieldType),
		def.IsRequired,
		def.IsSearchable,
		def.SortOrder,
		def.Placeholder,
		def.HelpText,
		sqliteJSON(rules),
		sqliteJSON(options),
		def.IsActive,
		def.Revision,
		def.CreatedAt,
		def.UpdatedAt,
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return fmt.Errorf("insert field %s: %w", def.FieldName, ErrDuplicateKey)
		}
		return fmt.Errorf("insert field: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read field id: %w", err)
	}
	def.ID = id
	return nil
}

const sqliteUpdateFieldSQL = `UPDATE %s SET display_name = ?, field_type = ?, is_required = ?, is_searchable = ?, sort_order = ?,
	placeholder = ?, help_text = ?, validation_rules = ?, options = ?, is_active = ?, revision = ?, updated_at = ?
	WHERE id = ?`

func sqliteUpdateFieldArgs(def *facets.FieldDefinition) ([]any, error) {
	rules, options, err := encodeFieldJSON(def)
	if err != nil {
		return nil, err
	}
	return []any{
		def.DisplayName,
		string(def.FieldType),
		def.IsRequired,
		def.IsSearchable,
		def.SortOrder,
		def.Placeholder,
		def.HelpText,
		sqliteJSON(rules),
		sqliteJSON(options),
		def.IsActive,
		def.Revision,
		def.UpdatedAt,
		def.ID,
	}, nil
}

func (r *SQLiteRepository) UpdateField(ctx context.Context, def *facets.FieldDefinition) error {
	args, err := sqliteUpdateFieldArgs(def)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(sqliteUpdateFieldSQL, sanitizeIdentifier(r.tables.Fields))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update field: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update field: field %d not found", def.ID)
	}
	return nil
}

// ChangeFieldType applies def in one statement guarded by the expected
// revision and the absence of stored values.
func (r *SQLiteRepository) ChangeFieldType(ctx context.Context, def *facets.FieldDefinition, expectedRevision int64) error {
	args, err := sqliteUpdateFieldArgs(def)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(sqliteUpdateFieldSQL+" AND revision = ? AND NOT EXISTS (SELECT 1 FROM %s WHERE field_id = ?)",
		sanitizeIdentifier(r.tables.Fields), sanitizeIdentifier(r.tables.AttributeValues))
	args = append(args, expectedRevision, def.ID)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("change field type: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("change field type: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("change field type: %w", ErrFieldInUse)
	}
	return nil
}

func (r *SQLiteRepository) GetField(ctx context.Context, fieldID int64) (*facets.FieldDefinition, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", fieldColumns, sanitizeIdentifier(r.tables.Fields))
	def, err := scanField(r.db.QueryRowContext(ctx, query, fieldID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query field: %w", err)
	}
	return def, nil
}

func (r *SQLiteRepository) ListFields(ctx context.Context, categoryID int64) ([]facets.FieldDefinition, error) {
	return listSQLiteFields(ctx, r.db, r.tables.Fields, categoryID)
}

func listSQLiteFields(ctx context.Context, q sqlQuerier, table string, categoryID int64) ([]facets.FieldDefinition, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE category_id = ? ORDER BY sort_order, id", fieldColumns, sanitizeIdentifier(table))
	rows, err := q.QueryContext(ctx, query, categoryID)
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

func (r *SQLiteRepository) CountFieldValues(ctx context.Context, fieldID int64) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE field_id = ?", sanitizeIdentifier(r.tables.AttributeValues))
	var count int64
	if err := r.db.QueryRowContext(ctx, query, fieldID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count field values: %w", err)
	}
	return count, nil
}

// Attribute operations

func (r *SQLiteRepository) WithProfileTx(ctx context.Context, fn func(tx AttributeTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op if committed

	if err := fn(&sqliteAttributeTx{tx: tx, tables: r.tables, batchSize: r.batchSize}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListValues(ctx context.Context, profileID uuid.UUID) ([]facets.AttributeValue, error) {
	query := fmt.Sprintf(
		"SELECT profile_id, field_id, category_id, value, updated_at FROM %s WHERE profile_id = ? ORDER BY field_id",
		sanitizeIdentifier(r.tables.AttributeValues),
	)
	return querySQLiteValues(ctx, r.db, query, profileID.String())
}

func (r *SQLiteRepository) ListCategoryValues(ctx context.Context, categoryID int64) ([]facets.AttributeValue, error) {
	query := fmt.Sprintf(
		"SELECT profile_id, field_id, category_id, value, updated_at FROM %s WHERE category_id = ? ORDER BY profile_id, field_id",
		sanitizeIdentifier(r.tables.AttributeValues),
	)
	return querySQLiteValues(ctx, r.db, query, categoryID)
}

func querySQLiteValues(ctx context.Context, q sqlQuerier, query string, args ...any) ([]facets.AttributeValue, error) {
	rows, err := q.QueryContext(ctx, query, args...)
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

func (r *SQLiteRepository) StoredFieldIDs(ctx context.Context, profileID uuid.UUID, categoryID int64) (map[int64]bool, error) {
	return storedSQLiteFieldIDs(ctx, r.db, r.tables.AttributeValues, profileID, categoryID)
}

func storedSQLiteFieldIDs(ctx context.Context, q sqlQuerier, table string, profileID uuid.UUID, categoryID int64) (map[int64]bool, error) {
	query := fmt.Sprintf("SELECT field_id FROM %s WHERE profile_id = ? AND category_id = ?", sanitizeIdentifier(table))
	rows, err := q.QueryContext(ctx, query, profileID.String(), categoryID)
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

func (r *SQLiteRepository) ProfileVersion(ctx context.Context, profileID uuid.UUID) (int64, error) {
	query := fmt.Sprintf("SELECT version FROM %s WHERE profile_id = ?", sanitizeIdentifier(r.tables.ProfileVersions))
	var version int64
	if err := r.db.QueryRowContext(ctx, query, profileID.String()).Scan(&version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("query profile version: %w", err)
	}
	return version, nil
}

func (r *SQLiteRepository) ValuesByField(ctx context.Context, fieldID int64, profileIDs []uuid.UUID) (map[uuid.UUID]string, error) {
	values := make(map[uuid.UUID]string, len(profileIDs))
	for _, batch := range chunk(profileIDs, sqliteInListLimit) {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(batch)), ", ")
		query := fmt.Sprintf(
			"SELECT profile_id, value FROM %s WHERE field_id = ? AND profile_id IN (%s)",
			sanitizeIdentifier(r.tables.AttributeValues),
			placeholders,
		)
		args := make([]any, 0, len(batch)+1)
		args = append(args, fieldID)
		for _, id := range batch {
			args = append(args, id.String())
		}

		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("query field values: %w", err)
		}
		for rows.Next() {
			var (
				profileID uuid.UUID
				value     string
			)
			if err := rows.Scan(&profileID, &value); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan field value: %w", err)
			}
			values[profileID] = value
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterate field values: %w", err)
		}
	}
	return values, nil
}

type sqliteAttributeTx struct {
	tx        *sql.Tx
	tables    facets.TableNames
	batchSize int
}

func (t *sqliteAttributeTx) BumpProfileVersion(ctx context.Context, profileID uuid.UUID, updatedAt int64) (int64, error) {
	query := fmt.Sprintf(
		`INSERT INTO %s (profile_id, version, updated_at) VALUES (?, 1, ?)
			ON CONFLICT (profile_id) DO UPDATE SET version = version + 1, updated_at = excluded.updated_at
			RETURNING version`,
		sanitizeIdentifier(t.tables.ProfileVersions),
	)
	var version int64
	if err := t.tx.QueryRowContext(ctx, query, profileID.String(), updatedAt).Scan(&version); err != nil {
		return 0, fmt.Errorf("bump profile version: %w", err)
	}
	return version, nil
}

func (t *sqliteAttributeTx) LoadSchema(ctx context.Context, categoryID int64) (*facets.Category, []facets.FieldDefinition, error) {
	category, err := getSQLiteCategory(ctx, t.tx, t.tables.Categories, "id", categoryID)
	if err != nil || category == nil {
		return nil, nil, err
	}
	fields, err := listSQLiteFields(ctx, t.tx, t.tables.Fields, categoryID)
	if err != nil {
		return nil, nil, err
	}
	return category, fields, nil
}

func (t *sqliteAttributeTx) StoredFieldIDs(ctx context.Context, profileID uuid.UUID, categoryID int64) (map[int64]bool, error) {
	return storedSQLiteFieldIDs(ctx, t.tx, t.tables.AttributeValues, profileID, categoryID)
}

func (t *sqliteAttributeTx) UpsertValues(ctx context.Context, values []facets.AttributeValue) error {
	for _, batch := range chunk(values, t.batchSize) {
		valuesClause, args := buildAttributeValuesClause(batch, sqlitePlaceholder)
		query := fmt.Sprintf(
			`INSERT INTO %s (profile_id, field_id, category_id, value, updated_at) VALUES %s
				ON CONFLICT (profile_id, field_id)
				DO UPDATE SET category_id = excluded.category_id, value = excluded.value, updated_at = excluded.updated_at`,
			sanitizeIdentifier(t.tables.AttributeValues),
			valuesClause,
		)
		zap.S().Debugw("upsert attribute values", "query", query, "count", len(batch))
		if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert attribute values: %w", err)
		}
	}
	return nil
}

// Profile operations

func (r *SQLiteRepository) UpsertProfile(ctx context.Context, p *facets.Profile) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (profile_id) DO UPDATE SET
				category_id = excluded.category_id,
				display_name = excluded.display_name,
				city = excluded.city,
				experience_years = excluded.experience_years,
				rate_min = excluded.rate_min,
				rate_max = excluded.rate_max,
				is_available = excluded.is_available,
				updated_at = excluded.updated_at`,
		sanitizeIdentifier(r.tables.Profiles),
		profileColumns,
	)
	if _, err := r.db.ExecContext(ctx, query,
		p.ProfileID.String(),
		nullableInt64(p.CategoryID),
		p.DisplayName,
		p.City,
		p.ExperienceYears,
		p.RateMin,
		p.RateMax,
		p.IsAvailable,
		p.UpdatedAt,
	); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetProfile(ctx context.Context, profileID uuid.UUID) (*facets.Profile, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE profile_id = ?", profileColumns, sanitizeIdentifier(r.tables.Profiles))
	profile, err := scanProfile(r.db.QueryRowContext(ctx, query, profileID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query profile: %w", err)
	}
	return profile, nil
}

func (r *SQLiteRepository) SearchProfiles(ctx context.Context, q *ProfileQuery) ([]*facets.Profile, int64, error) {
	table := sanitizeIdentifier(r.tables.Profiles)
	where, args := buildProfileWhere(q, sqlitePlaceholder)

	var total int64
	if err := r.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s%s", table, where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count profiles: %w", err)
	}
	if total == 0 {
		return []*facets.Profile{}, 0, nil
	}

	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY display_name, profile_id LIMIT ? OFFSET ?", profileColumns, table, where)
	rows, err := r.db.QueryContext(ctx, query, append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	profiles := make([]*facets.Profile, 0, q.Limit)
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate profiles: %w", err)
	}
	return profiles, total, nil
}
