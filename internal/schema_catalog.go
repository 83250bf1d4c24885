package internal

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/lychee-technology/facets"
	"go.uber.org/zap"
)

var (
	categoryCodePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]{0,63}$`)
	fieldNamePattern    = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)
)

const maxPrecision = 10

// Catalog is the schema catalog backed by a CatalogRepository. Snapshots are
// cached per category and dropped on every local change to that category.
type Catalog struct {
	repo    CatalogRepository
	cache   *snapshotCache
	nowFunc func() time.Time
}

// NewCatalog creates a catalog. Caching is disabled unless cfg enables it.
func NewCatalog(repo CatalogRepository, cfg facets.CatalogConfig) *Catalog {
	var cache *snapshotCache
	if cfg.CacheEnabled {
		cache = newSnapshotCache(cfg.CacheTTL)
	}
	return &Catalog{
		repo:    repo,
		cache:   cache,
		nowFunc: time.Now,
	}
}

func (c *Catalog) nowMillis() int64 {
	return c.nowFunc().UnixMilli()
}

// Invalidate drops the cached snapshot of a category.
func (c *Catalog) Invalidate(categoryID int64) {
	c.cache.invalidate(categoryID)
}

// RegisterCategory creates a new active category.
func (c *Catalog) RegisterCategory(ctx context.Context, req *facets.CategoryRequest) (*facets.Category, error) {
	if req == nil {
		return nil, facets.NewInvalidCategoryError("category request cannot be nil")
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if !categoryCodePattern.MatchString(code) {
		return nil, facets.NewInvalidCategoryError(
			fmt.Sprintf("category code %q must be upper snake case", req.Code))
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		return nil, facets.NewInvalidCategoryError("category display name is required")
	}

	existing, err := c.repo.GetCategoryByCode(ctx, code)
	if err != nil {
		return nil, facets.NewStorageError("failed to look up category", err)
	}
	if existing != nil {
		return nil, facets.NewDuplicateCategoryError(code)
	}

	now := c.nowMillis()
	category := &facets.Category{
		Code:        code,
		DisplayName: displayName,
		Description: strings.TrimSpace(req.Description),
		SortOrder:   req.SortOrder,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := c.repo.InsertCategory(ctx, category); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return nil, facets.NewDuplicateCategoryError(code)
		}
		return nil, facets.NewStorageError("failed to insert category", err)
	}

	zap.S().Infow("category registered", "categoryID", category.ID, "code", category.Code)
	return category, nil
}

// GetCategory returns a category by id.
func (c *Catalog) GetCategory(ctx context.Context, categoryID int64) (*facets.Category, error) {
	category, err := c.repo.GetCategory(ctx, categoryID)
	if err != nil {
		return nil, facets.NewStorageError("failed to load category", err)
	}
	if category == nil {
		return nil, facets.NewUnknownCategoryError(categoryID)
	}
	return category, nil
}

// GetCategoryByCode returns a category by its code.
func (c *Catalog) GetCategoryByCode(ctx context.Context, code string) (*facets.Category, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	category, err := c.repo.GetCategoryByCode(ctx, normalized)
	if err != nil {
		return nil, facets.NewStorageError("failed to load category", err)
	}
	if category == nil {
		return nil, facets.NewUnknownCategoryCodeError(normalized)
	}
	return category, nil
}

// ListCategories returns categories ordered by sort order then id.
func (c *Catalog) ListCategories(ctx context.Context, includeInactive bool) ([]facets.Category, error) {
	categories, err := c.repo.ListCategories(ctx, includeInactive)
	if err != nil {
		return nil, facets.NewStorageError("failed to list categories", err)
	}
	return categories, nil
}

// ActivateCategory marks a category active. Activating an active category is a no-op.
func (c *Catalog) ActivateCategory(ctx context.Context, categoryID int64) error {
	return c.setCategoryActive(ctx, categoryID, true)
}

// DeactivateCategory hides a category from new submissions. Stored values are kept.
func (c *Catalog) DeactivateCategory(ctx context.Context, categoryID int64) error {
	return c.setCategoryActive(ctx, categoryID, false)
}

func (c *Catalog) setCategoryActive(ctx context.Context, categoryID int64, active bool) error {
	category, err := c.GetCategory(ctx, categoryID)
	if err != nil {
		return err
	}
	if category.IsActive == active {
		return nil
	}
	if err := c.repo.SetCategoryActive(ctx, categoryID, active, c.nowMillis()); err != nil {
		return facets.NewStorageError("failed to update category", err)
	}
	c.Invalidate(categoryID)
	zap.S().Infow("category state changed", "categoryID", categoryID, "active", active)
	return nil
}

// AddField declares a new active field in a category.
func (c *Catalog) AddField(ctx context.Context, req *facets.FieldRequest) (*facets.FieldDefinition, error) {
	if req == nil {
		return nil, facets.NewInvalidFieldDefinitionError("", "field request cannot be nil")
	}
	if _, err := c.GetCategory(ctx, req.CategoryID); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.FieldName)
	if !fieldNamePattern.MatchString(name) {
		return nil, facets.NewInvalidFieldDefinitionError(req.FieldName,
			"field name must start with a lower case letter and contain only lower case letters, digits and underscores")
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		return nil, facets.NewInvalidFieldDefinitionError(name, "display name is required")
	}
	fieldType, err := facets.ParseFieldType(string(req.FieldType))
	if err != nil {
		return nil, facets.NewInvalidFieldDefinitionError(name, err.Error())
	}

	now := c.nowMillis()
	def := &facets.FieldDefinition{
		CategoryID:      req.CategoryID,
		FieldName:       name,
		DisplayName:     displayName,
		FieldType:       fieldType,
		IsRequired:      req.IsRequired,
		IsSearchable:    req.IsSearchable,
		SortOrder:       req.SortOrder,
		Placeholder:     strings.TrimSpace(req.Placeholder),
		HelpText:        strings.TrimSpace(req.HelpText),
		ValidationRules: cloneRules(req.ValidationRules),
		Options:         cleanOptions(req.Options),
		IsActive:        true,
		Revision:        1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := validateDefinition(def); err != nil {
		return nil, err
	}

	existing, err := c.repo.ListFields(ctx, req.CategoryID)
	if err != nil {
		return nil, facets.NewStorageError("failed to list fields", err)
	}
	for _, f := range existing {
		if f.FieldName == name {
			return nil, facets.NewDuplicateFieldNameError(req.CategoryID, name)
		}
	}

	if err := c.repo.InsertField(ctx, def); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return nil, facets.NewDuplicateFieldNameError(req.CategoryID, name)
		}
		return nil, facets.NewStorageError("failed to insert field", err)
	}
	c.Invalidate(req.CategoryID)

	zap.S().Infow("field added", "categoryID", def.CategoryID, "fieldID", def.ID, "fieldName", def.FieldName, "fieldType", def.FieldType)
	return def, nil
}

// UpdateField edits presentation and validation attributes of a field. The
// type of a field cannot change once values reference it.
func (c *Catalog) UpdateField(ctx context.Context, fieldID int64, update *facets.FieldUpdate) (*facets.FieldDefinition, error) {
	current, err := c.GetField(ctx, fieldID)
	if err != nil {
		return nil, err
	}
	if update == nil {
		return current, nil
	}

	next := *current
	next.Options = slices.Clone(current.Options)
	next.ValidationRules = cloneRules(current.ValidationRules)
	validationChanged := false
	typeChanged := false

	if update.DisplayName != nil {
		displayName := strings.TrimSpace(*update.DisplayName)
		if displayName == "" {
			return nil, facets.NewInvalidFieldDefinitionError(current.FieldName, "display name is required")
		}
		next.DisplayName = displayName
	}

	if update.FieldType != nil {
		fieldType, err := facets.ParseFieldType(string(*update.FieldType))
		if err != nil {
			return nil, facets.NewInvalidFieldDefinitionError(current.FieldName, err.Error())
		}
		if fieldType != current.FieldType {
			count, err := c.repo.CountFieldValues(ctx, fieldID)
			if err != nil {
				return nil, facets.NewStorageError("failed to count field values", err)
			}
			if count > 0 {
				return nil, facets.NewFieldTypeLockedError(fieldID, current.FieldName)
			}
			typeChanged = true
			next.FieldType = fieldType
			if update.ValidationRules == nil {
				next.ValidationRules = nil
			}
			if update.Options == nil && !fieldType.HasOptions() {
				next.Options = nil
			}
			validationChanged = true
		}
	}

	if update.IsRequired != nil && *update.IsRequired != current.IsRequired {
		next.IsRequired = *update.IsRequired
		validationChanged = true
	}
	if update.IsSearchable != nil {
		next.IsSearchable = *update.IsSearchable
	}
	if update.SortOrder != nil {
		next.SortOrder = *update.SortOrder
	}
	if update.Placeholder != nil {
		next.Placeholder = strings.TrimSpace(*update.Placeholder)
	}
	if update.HelpText != nil {
		next.HelpText = strings.TrimSpace(*update.HelpText)
	}
	if update.ValidationRules != nil {
		next.ValidationRules = cloneRules(update.ValidationRules)
	}
	if update.Options != nil {
		next.Options = cleanOptions(update.Options)
	}
	if !reflect.DeepEqual(next.ValidationRules, current.ValidationRules) || !slices.Equal(next.Options, current.Options) {
		validationChanged = true
	}

	if err := validateDefinition(&next); err != nil {
		return nil, err
	}
	if validationChanged {
		next.Revision++
	}
	next.UpdatedAt = c.nowMillis()

	if typeChanged {
		err = c.repo.ChangeFieldType(ctx, &next, current.Revision)
		if errors.Is(err, ErrFieldInUse) {
			return nil, facets.NewFieldTypeLockedError(fieldID, current.FieldName)
		}
	} else {
		err = c.repo.UpdateField(ctx, &next)
	}
	if err != nil {
		return nil, facets.NewStorageError("failed to update field", err)
	}
	c.Invalidate(next.CategoryID)

	zap.S().Infow("field updated", "fieldID", fieldID, "revision", next.Revision, "validationChanged", validationChanged)
	return &next, nil
}

// GetField returns a field definition by id, active or not.
func (c *Catalog) GetField(ctx context.Context, fieldID int64) (*facets.FieldDefinition, error) {
	def, err := c.repo.GetField(ctx, fieldID)
	if err != nil {
		return nil, facets.NewStorageError("failed to load field", err)
	}
	if def == nil {
		return nil, facets.NewUnknownFieldError(fieldID)
	}
	return def, nil
}

// ListActiveFields returns the active fields of a category in display order.
func (c *Catalog) ListActiveFields(ctx context.Context, categoryID int64) ([]facets.FieldDefinition, error) {
	snapshot, err := c.Snapshot(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	return snapshot.ActiveFields(), nil
}

// ActivateField makes a field accept values again. Activating an active field is a no-op.
func (c *Catalog) ActivateField(ctx context.Context, fieldID int64) error {
	return c.setFieldActive(ctx, fieldID, true)
}

// DeactivateField hides a field from forms, validation and search. Stored values are kept.
func (c *Catalog) DeactivateField(ctx context.Context, fieldID int64) error {
	return c.setFieldActive(ctx, fieldID, false)
}

func (c *Catalog) setFieldActive(ctx context.Context, fieldID int64, active bool) error {
	current, err := c.GetField(ctx, fieldID)
	if err != nil {
		return err
	}
	if current.IsActive == active {
		return nil
	}

	next := *current
	next.IsActive = active
	next.Revision++
	next.UpdatedAt = c.nowMillis()
	if err := c.repo.UpdateField(ctx, &next); err != nil {
		return facets.NewStorageError("failed to update field", err)
	}
	c.Invalidate(current.CategoryID)

	zap.S().Infow("field state changed", "fieldID", fieldID, "active", active, "revision", next.Revision)
	return nil
}

// Snapshot returns the category with all of its fields, served from cache when fresh.
func (c *Catalog) Snapshot(ctx context.Context, categoryID int64) (*facets.SchemaSnapshot, error) {
	if snapshot, ok := c.cache.get(categoryID); ok {
		return snapshot, nil
	}
	return c.FreshSnapshot(ctx, categoryID)
}

// FreshSnapshot loads the category schema from the repository and replaces
// any cached copy.
func (c *Catalog) FreshSnapshot(ctx context.Context, categoryID int64) (*facets.SchemaSnapshot, error) {
	category, err := c.GetCategory(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	fields, err := c.repo.ListFields(ctx, categoryID)
	if err != nil {
		return nil, facets.NewStorageError("failed to list fields", err)
	}
	sortFields(fields)

	snapshot := &facets.SchemaSnapshot{
		Category: *category,
		Fields:   fields,
		LoadedAt: c.nowFunc(),
	}
	c.cache.put(snapshot)
	zap.S().Debugw("schema snapshot loaded", "categoryID", categoryID, "fields", len(fields))
	return snapshot, nil
}

func sortFields(fields []facets.FieldDefinition) {
	slices.SortStableFunc(fields, func(a, b facets.FieldDefinition) int {
		return compareFieldOrder(&a, &b)
	})
}

func cloneRules(rules *facets.ValidationRules) *facets.ValidationRules {
	if rules.IsEmpty() {
		return nil
	}
	clone := *rules
	return &clone
}

func cleanOptions(options []string) []string {
	if options == nil {
		return nil
	}
	cleaned := make([]string, 0, len(options))
	for _, opt := range options {
		cleaned = append(cleaned, strings.TrimSpace(opt))
	}
	return cleaned
}

// validateDefinition checks options and rules against the field type.
func validateDefinition(def *facets.FieldDefinition) error {
	name := def.FieldName
	if !def.FieldType.IsValid() {
		return facets.NewInvalidFieldDefinitionError(name, fmt.Sprintf("unknown field type %q", def.FieldType))
	}

	if def.FieldType.HasOptions() {
		if len(def.Options) == 0 {
			return facets.NewInvalidFieldDefinitionError(name, fmt.Sprintf("%s fields require at least one option", def.FieldType))
		}
		seen := NewSet[string]()
		for _, opt := range def.Options {
			if opt == "" {
				return facets.NewInvalidFieldDefinitionError(name, "options cannot be empty")
			}
			if seen.Contains(opt) {
				return facets.NewInvalidFieldDefinitionError(name, fmt.Sprintf("duplicate option %q", opt))
			}
			seen.Add(opt)
		}
	} else if len(def.Options) > 0 {
		return facets.NewInvalidFieldDefinitionError(name, "options are only allowed for SELECT and MULTI_SELECT fields")
	}

	rules := def.ValidationRules
	if rules.IsEmpty() {
		def.ValidationRules = nil
		return nil
	}

	lengthType := def.FieldType == facets.FieldTypeText || def.FieldType == facets.FieldTypeTextArea ||
		def.FieldType == facets.FieldTypeURL || def.FieldType == facets.FieldTypeFileReference
	if (rules.MinLength != nil || rules.MaxLength != nil) && !lengthType {
		return facets.NewInvalidFieldDefinitionError(name, fmt.Sprintf("length rules do not apply to %s fields", def.FieldType))
	}
	if (rules.Min != nil || rules.Max != nil || rules.Precision != nil) && def.FieldType != facets.FieldTypeNumber {
		return facets.NewInvalidFieldDefinitionError(name, fmt.Sprintf("numeric rules do not apply to %s fields", def.FieldType))
	}
	if (rules.MinItems != nil || rules.MaxItems != nil) && def.FieldType != facets.FieldTypeMultiSelect {
		return facets.NewInvalidFieldDefinitionError(name, fmt.Sprintf("item rules do not apply to %s fields", def.FieldType))
	}

	for rule, v := range map[string]*int{"minLength": rules.MinLength, "maxLength": rules.MaxLength, "minItems": rules.MinItems, "maxItems": rules.MaxItems} {
		if v != nil && *v < 0 {
			return facets.NewInvalidFieldDefinitionError(name, fmt.Sprintf("%s cannot be negative", rule))
		}
	}
	if rules.MinLength != nil && rules.MaxLength != nil && *rules.MinLength > *rules.MaxLength {
		return facets.NewInvalidFieldDefinitionError(name, "minLength exceeds maxLength")
	}
	if rules.Min != nil && rules.Max != nil && *rules.Min > *rules.Max {
		return facets.NewInvalidFieldDefinitionError(name, "min exceeds max")
	}
	if rules.Precision != nil && (*rules.Precision < 0 || *rules.Precision > maxPrecision) {
		return facets.NewInvalidFieldDefinitionError(name, fmt.Sprintf("precision must be between 0 and %d", maxPrecision))
	}
	if rules.MinItems != nil && rules.MaxItems != nil && *rules.MinItems > *rules.MaxItems {
		return facets.NewInvalidFieldDefinitionError(name, "minItems exceeds maxItems")
	}
	if rules.MinItems != nil && *rules.MinItems > len(def.Options) {
		return facets.NewInvalidFieldDefinitionError(name, "minItems exceeds the number of options")
	}
	return nil
}
