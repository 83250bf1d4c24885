package internal

import (
	"context"
	"fmt"

	"github.com/lychee-technology/facets"
)

// PostgresDDL returns the statements that create every table and index on PostgreSQL.
func PostgresDDL(tables facets.TableNames) []string {
	categories := sanitizeIdentifier(tables.Categories)
	fields := sanitizeIdentifier(tables.Fields)
	values := sanitizeIdentifier(tables.AttributeValues)
	versions := sanitizeIdentifier(tables.ProfileVersions)
	profiles := sanitizeIdentifier(tables.Profiles)

	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	code TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	sort_order INTEGER NOT NULL DEFAULT 0,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL
)`, categories),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	category_id BIGINT NOT NULL REFERENCES %s (id),
	field_name TEXT NOT NULL,
	display_name TEXT NOT NULL,
	field_type TEXT NOT NULL,
	is_required BOOLEAN NOT NULL DEFAULT FALSE,
	is_searchable BOOLEAN NOT NULL DEFAULT FALSE,
	sort_order INTEGER NOT NULL DEFAULT 0,
	placeholder TEXT NOT NULL DEFAULT '',
	help_text TEXT NOT NULL DEFAULT '',
	validation_rules JSONB,
	options JSONB,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	revision BIGINT NOT NULL DEFAULT 1,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL,
	UNIQUE (category_id, field_name)
)`, fields, categories),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	profile_id UUID NOT NULL,
	field_id BIGINT NOT NULL REFERENCES %s (id),
	category_id BIGINT NOT NULL,
	value TEXT NOT NULL,
	updated_at BIGINT NOT NULL,
	PRIMARY KEY (profile_id, field_id)
)`, values, fields),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (field_id, profile_id)`, indexName(tables.AttributeValues, "field"), values),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (category_id, profile_id)`, indexName(tables.AttributeValues, "category"), values),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	profile_id UUID PRIMARY KEY,
	version BIGINT NOT NULL,
	updated_at BIGINT NOT NULL
)`, versions),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	profile_id UUID PRIMARY KEY,
	category_id BIGINT,
	display_name TEXT NOT NULL,
	city TEXT NOT NULL DEFAULT '',
	experience_years INTEGER,
	rate_min DOUBLE PRECISION,
	rate_max DOUBLE PRECISION,
	is_available BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at BIGINT NOT NULL
)`, profiles),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (category_id, display_name, profile_id)`, indexName(tables.Profiles, "search"), profiles),
	}
}

// SQLiteDDL returns the statements that create every table and index on SQLite.
func SQLiteDDL(tables facets.TableNames) []string {
	categories := sanitizeIdentifier(tables.Categories)
	fields := sanitizeIdentifier(tables.Fields)
	values := sanitizeIdentifier(tables.AttributeValues)
	versions := sanitizeIdentifier(tables.ProfileVersions)
	profiles := sanitizeIdentifier(tables.Profiles)

	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	code TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	sort_order INTEGER NOT NULL DEFAULT 0,
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
)`, categories),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	category_id INTEGER NOT NULL REFERENCES %s (id),
	field_name TEXT NOT NULL,
	display_name TEXT NOT NULL,
	field_type TEXT NOT NULL,
	is_required INTEGER NOT NULL DEFAULT 0,
	is_searchable INTEGER NOT NULL DEFAULT 0,
	sort_order INTEGER NOT NULL DEFAULT 0,
	placeholder TEXT NOT NULL DEFAULT '',
	help_text TEXT NOT NULL DEFAULT '',
	validation_rules TEXT,
	options TEXT,
	is_active INTEGER NOT NULL DEFAULT 1,
	revision INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE (category_id, field_name)
)`, fields, categories),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	profile_id TEXT NOT NULL,
	field_id INTEGER NOT NULL REFERENCES %s (id),
	category_id INTEGER NOT NULL,
	value TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (profile_id, field_id)
)`, values, fields),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (field_id, profile_id)`, indexName(tables.AttributeValues, "field"), values),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (category_id, profile_id)`, indexName(tables.AttributeValues, "category"), values),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	profile_id TEXT PRIMARY KEY,
	version INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
)`, versions),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	profile_id TEXT PRIMARY KEY,
	category_id INTEGER,
	display_name TEXT NOT NULL,
	city TEXT NOT NULL DEFAULT '',
	experience_years INTEGER,
	rate_min REAL,
	rate_max REAL,
	is_available INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
)`, profiles),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (category_id, display_name, profile_id)`, indexName(tables.Profiles, "search"), profiles),
	}
}

// EnsurePostgresSchema applies PostgresDDL through the given pool.
func EnsurePostgresSchema(ctx context.Context, pool pgxPool, tables facets.TableNames) error {
	for _, stmt := range PostgresDDL(tables) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply postgres ddl: %w", err)
		}
	}
	return nil
}
