package internal

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/lychee-technology/facets"
)

// ErrDuplicateKey is returned by repositories when a unique constraint rejects a write.
var ErrDuplicateKey = errors.New("duplicate key")

// ErrFieldInUse is returned by ChangeFieldType when values reference the field
// or its revision moved since it was read.
var ErrFieldInUse = errors.New("field in use")

// CatalogRepository persists categories and field definitions. Lookups
// return nil without error when the row does not exist.
type CatalogRepository interface {
	// Category operations
	InsertCategory(ctx context.Context, category *facets.Category) error
	GetCategory(ctx context.Context, categoryID int64) (*facets.Category, error)
	GetCategoryByCode(ctx context.Context, code string) (*facets.Category, error)
	ListCategories(ctx context.Context, includeInactive bool) ([]facets.Category, error)
	SetCategoryActive(ctx context.Context, categoryID int64, active bool, updatedAt int64) error

	// Field operations
	InsertField(ctx context.Context, def *facets.FieldDefinition) error
	UpdateField(ctx context.Context, def *facets.FieldDefinition) error
	ChangeFieldType(ctx context.Context, def *facets.FieldDefinition, expectedRevision int64) error
	GetField(ctx context.Context, fieldID int64) (*facets.FieldDefinition, error)
	ListFields(ctx context.Context, categoryID int64) ([]facets.FieldDefinition, error)
	CountFieldValues(ctx context.Context, fieldID int64) (int64, error)
}

// AttributeTx is the write surface available while a profile is locked.
type AttributeTx interface {
	// BumpProfileVersion increments the profile's attribute version and returns
	// the new value. It blocks concurrent writers of the same profile until commit.
	BumpProfileVersion(ctx context.Context, profileID uuid.UUID, updatedAt int64) (int64, error)
	LoadSchema(ctx context.Context, categoryID int64) (*facets.Category, []facets.FieldDefinition, error)
	StoredFieldIDs(ctx context.Context, profileID uuid.UUID, categoryID int64) (map[int64]bool, error)
	UpsertValues(ctx context.Context, values []facets.AttributeValue) error
}

// AttributeRepository stores canonical attribute values keyed by (profile, field).
type AttributeRepository interface {
	// WithProfileTx runs fn in a single transaction, committing only when fn returns nil.
	WithProfileTx(ctx context.Context, fn func(tx AttributeTx) error) error

	ListValues(ctx context.Context, profileID uuid.UUID) ([]facets.AttributeValue, error)
	StoredFieldIDs(ctx context.Context, profileID uuid.UUID, categoryID int64) (map[int64]bool, error)
	ProfileVersion(ctx context.Context, profileID uuid.UUID) (int64, error)

	// ValuesByField returns the stored values of one field for the given profiles.
	ValuesByField(ctx context.Context, fieldID int64, profileIDs []uuid.UUID) (map[uuid.UUID]string, error)
	// ListCategoryValues returns every stored value of a category, ordered by profile then field.
	ListCategoryValues(ctx context.Context, categoryID int64) ([]facets.AttributeValue, error)
}

// ProfileQuery selects profiles by their structured columns.
type ProfileQuery struct {
	CategoryID int64
	Structured facets.StructuredFilter
	Limit      int
	Offset     int
}

// ProfileRepository mirrors the structured profile columns used by search.
type ProfileRepository interface {
	UpsertProfile(ctx context.Context, profile *facets.Profile) error
	GetProfile(ctx context.Context, profileID uuid.UUID) (*facets.Profile, error)
	// SearchProfiles returns one page ordered by display name then profile id,
	// plus the total number of matches.
	SearchProfiles(ctx context.Context, query *ProfileQuery) ([]*facets.Profile, int64, error)
}

// SnapshotSource resolves schema snapshots for the write and read paths.
type SnapshotSource interface {
	Snapshot(ctx context.Context, categoryID int64) (*facets.SchemaSnapshot, error)
	// FreshSnapshot reads the schema from storage, bypassing and refreshing any cache.
	FreshSnapshot(ctx context.Context, categoryID int64) (*facets.SchemaSnapshot, error)
	Invalidate(categoryID int64)
}
