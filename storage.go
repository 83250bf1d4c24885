package facets

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
)

// SchemaCatalog manages categories and their field definitions.
type SchemaCatalog interface {
	// Category operations
	RegisterCategory(ctx context.Context, req *CategoryRequest) (*Category, error)
	GetCategory(ctx context.Context, categoryID int64) (*Category, error)
	GetCategoryByCode(ctx context.Context, code string) (*Category, error)
	ListCategories(ctx context.Context, includeInactive bool) ([]Category, error)
	ActivateCategory(ctx context.Context, categoryID int64) error
	DeactivateCategory(ctx context.Context, categoryID int64) error

	// Field operations
	AddField(ctx context.Context, req *FieldRequest) (*FieldDefinition, error)
	UpdateField(ctx context.Context, fieldID int64, update *FieldUpdate) (*FieldDefinition, error)
	GetField(ctx context.Context, fieldID int64) (*FieldDefinition, error)
	ListActiveFields(ctx context.Context, categoryID int64) ([]FieldDefinition, error)
	ActivateField(ctx context.Context, fieldID int64) error
	DeactivateField(ctx context.Context, fieldID int64) error

	// Snapshot returns every field of the category, active or not, as of now.
	Snapshot(ctx context.Context, categoryID int64) (*SchemaSnapshot, error)
}

// Engine is the public surface of the attribute engine.
type Engine interface {
	SchemaCatalog

	// Schema description
	DescribeSchema(ctx context.Context, categoryID int64) (*SchemaDescription, error)
	DescribeJSONSchema(ctx context.Context, categoryID int64) (*jsonschema.Schema, error)

	// Attribute operations
	SubmitAttributes(ctx context.Context, req *SubmissionRequest) (*SubmissionResult, error)
	GetAttributes(ctx context.Context, profileID uuid.UUID) ([]FieldValue, error)
	IsComplete(ctx context.Context, profileID uuid.UUID, categoryID int64) (bool, error)
	Completeness(ctx context.Context, profileID uuid.UUID, categoryID int64) (*CompletenessReport, error)

	// Search operations
	Search(ctx context.Context, req *SearchRequest) (*SearchResult, error)

	// SyncProfile mirrors the structured columns of a profile owned elsewhere.
	SyncProfile(ctx context.Context, profile *Profile) error
}
