package internal

import (
	"context"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"github.com/lychee-technology/facets"
	"go.uber.org/zap"
)

// Engine wires the schema catalog, validator, attribute store and query
// engine behind the public facets.Engine interface.
type Engine struct {
	*Catalog

	registry *FieldTypeRegistry
	store    *AttributeStore
	query    *QueryEngine
	values   AttributeRepository
	profiles ProfileRepository
	nowFunc  func() time.Time
}

var _ facets.Engine = (*Engine)(nil)

// NewEngine assembles an engine over the given repositories.
func NewEngine(catalogRepo CatalogRepository, values AttributeRepository, profiles ProfileRepository, config *facets.Config) *Engine {
	catalog := NewCatalog(catalogRepo, config.Catalog)
	registry := NewFieldTypeRegistry(config.Attributes.MaxValueLength)
	validator := NewValidator(catalog, values, registry, config.Attributes.MaxFieldsPerSubmission)

	return &Engine{
		Catalog:  catalog,
		registry: registry,
		store:    NewAttributeStore(catalog, values, validator),
		query:    NewQueryEngine(catalog, profiles, values, registry, config.Query),
		values:   values,
		profiles: profiles,
		nowFunc:  time.Now,
	}
}

// Registry exposes the field type registry used by the engine.
func (e *Engine) Registry() *FieldTypeRegistry {
	return e.registry
}

// DescribeSchema returns the active fields of a category in display order.
func (e *Engine) DescribeSchema(ctx context.Context, categoryID int64) (*facets.SchemaDescription, error) {
	snapshot, err := e.Snapshot(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	return &facets.SchemaDescription{
		Category: snapshot.Category,
		Fields:   snapshot.ActiveFields(),
	}, nil
}

// DescribeJSONSchema renders DescribeSchema as a JSON Schema document.
func (e *Engine) DescribeJSONSchema(ctx context.Context, categoryID int64) (*jsonschema.Schema, error) {
	desc, err := e.DescribeSchema(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	schema, err := RenderJSONSchema(desc)
	if err != nil {
		return nil, facets.NewInternalError("failed to render JSON schema", err)
	}
	return schema, nil
}

func (e *Engine) SubmitAttributes(ctx context.Context, req *facets.SubmissionRequest) (*facets.SubmissionResult, error) {
	if req == nil {
		return nil, facets.NewFacetsError(facets.ErrorTypeValidation, facets.ErrCodeValidationFailed, "submission request cannot be nil")
	}
	return e.store.Upsert(ctx, req.ProfileID, req.CategoryID, req.Values, req.Options)
}

func (e *Engine) GetAttributes(ctx context.Context, profileID uuid.UUID) ([]facets.FieldValue, error) {
	return e.store.Get(ctx, profileID)
}

func (e *Engine) IsComplete(ctx context.Context, profileID uuid.UUID, categoryID int64) (bool, error) {
	return e.store.IsProfileComplete(ctx, profileID, categoryID)
}

func (e *Engine) Completeness(ctx context.Context, profileID uuid.UUID, categoryID int64) (*facets.CompletenessReport, error) {
	return e.store.Completeness(ctx, profileID, categoryID)
}

func (e *Engine) Search(ctx context.Context, req *facets.SearchRequest) (*facets.SearchResult, error) {
	return e.query.Search(ctx, req)
}

// ProfileVersion returns the attribute version of a profile, zero before its first write.
func (e *Engine) ProfileVersion(ctx context.Context, profileID uuid.UUID) (int64, error) {
	version, err := e.values.ProfileVersion(ctx, profileID)
	if err != nil {
		return 0, facets.NewStorageError("failed to load profile version", err)
	}
	return version, nil
}

// SyncProfile mirrors the structured columns of a profile.
func (e *Engine) SyncProfile(ctx context.Context, profile *facets.Profile) error {
	if err := e.validateProfile(ctx, profile); err != nil {
		return err
	}

	mirrored := *profile
	mirrored.DisplayName = strings.TrimSpace(profile.DisplayName)
	mirrored.City = strings.TrimSpace(profile.City)
	mirrored.UpdatedAt = e.nowFunc().UnixMilli()
	if err := e.profiles.UpsertProfile(ctx, &mirrored); err != nil {
		return facets.NewStorageError("failed to sync profile", err)
	}

	zap.S().Debugw("profile synced", "profileID", mirrored.ProfileID, "categoryID", mirrored.CategoryID)
	return nil
}

// GetProfile returns the mirrored structured columns of a profile.
func (e *Engine) GetProfile(ctx context.Context, profileID uuid.UUID) (*facets.Profile, error) {
	profile, err := e.profiles.GetProfile(ctx, profileID)
	if err != nil {
		return nil, facets.NewStorageError("failed to load profile", err)
	}
	if profile == nil {
		return nil, facets.NewProfileNotFoundError(profileID.String())
	}
	return profile, nil
}

func (e *Engine) validateProfile(ctx context.Context, p *facets.Profile) error {
	invalid := func(field, reason string) error {
		return facets.NewValidationError(facets.FieldErrors{field: reason})
	}
	switch {
	case p == nil:
		return facets.NewFacetsError(facets.ErrorTypeValidation, facets.ErrCodeValidationFailed, "profile cannot be nil")
	case p.ProfileID == uuid.Nil:
		return invalid("profileId", reasonRequired)
	case strings.TrimSpace(p.DisplayName) == "":
		return invalid("displayName", reasonRequired)
	case p.ExperienceYears != nil && *p.ExperienceYears < 0:
		return invalid("experienceYears", reasonBelowMinimum)
	case p.RateMin != nil && *p.RateMin < 0:
		return invalid("rateMin", reasonBelowMinimum)
	case p.RateMax != nil && *p.RateMax < 0:
		return invalid("rateMax", reasonBelowMinimum)
	case p.RateMin != nil && p.RateMax != nil && *p.RateMin > *p.RateMax:
		return invalid("rateMin", reasonAboveMaximum)
	}
	if p.CategoryID != 0 {
		if _, err := e.GetCategory(ctx, p.CategoryID); err != nil {
			return err
		}
	}
	return nil
}
