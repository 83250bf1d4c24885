package internal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lychee-technology/facets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T, cfg facets.CatalogConfig) (*Catalog, *SQLiteRepository) {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewSQLiteRepository(db, facets.DefaultTableNames(), 0)
	require.NoError(t, repo.EnsureSchema(context.Background()))
	return NewCatalog(repo, cfg), repo
}

func TestCatalog_RegisterCategory(t *testing.T) {
	ctx := context.Background()
	catalog, _ := newTestCatalog(t, facets.CatalogConfig{})

	category, err := catalog.RegisterCategory(ctx, &facets.CategoryRequest{Code: " singer ", DisplayName: " Singer "})
	require.NoError(t, err)
	assert.Equal(t, "SINGER", category.Code)
	assert.Equal(t, "Singer", category.DisplayName)
	assert.True(t, category.IsActive)
	assert.NotZero(t, category.ID)

	_, err = catalog.RegisterCategory(ctx, &facets.CategoryRequest{Code: "SINGER", DisplayName: "Again"})
	assert.True(t, facets.HasErrorCode(err, facets.ErrCodeDuplicateCategory))

	_, err = catalog.RegisterCategory(ctx, &facets.CategoryRequest{Code: "9LIVES", DisplayName: "Bad"})
	assert.True(t, facets.HasErrorCode(err, facets.ErrCodeInvalidCategory))

	_, err = catalog.RegisterCategory(ctx, &facets.CategoryRequest{Code: "DANCER"})
	assert.True(t, facets.HasErrorCode(err, facets.ErrCodeInvalidCategory))

	byCode, err := catalog.GetCategoryByCode(ctx, "singer")
	require.NoError(t, err)
	assert.Equal(t, category.ID, byCode.ID)

	_, err = catalog.GetCategoryByCode(ctx, "PAINTER")
	assert.True(t, facets.HasErrorCode(err, facets.ErrCodeUnknownCategory))
}

func TestCatalog_ListCategoriesOrder(t *testing.T) {
	ctx := context.Background()
	catalog, _ := newTestCatalog(t, facets.CatalogConfig{})

	for _, req := range []facets.CategoryRequest{
		{Code: "MUSICIAN", DisplayName: "Musician", SortOrder: 2},
		{Code: "ACTOR", DisplayName: "Actor", SortOrder: 1},
		{Code: "DANCER", DisplayName: "Dancer", SortOrder: 2},
	} {
		_, err := catalog.RegisterCategory(ctx, &req)
		require.NoError(t, err)
	}
	musician, err := catalog.GetCategoryByCode(ctx, "MUSICIAN")
	require.NoError(t, err)
	require.NoError(t, catalog.DeactivateCategory(ctx, musician.ID))

	all, err := catalog.ListCategories(ctx, true)
	require.NoError(t, err)
	codes := make([]string, 0, len(all))
	for _, c := range all {
		codes = append(codes, c.Code)
	}
	assert.Equal(t, []string{"ACTOR", "MUSICIAN", "DANCER"}, codes)

	active, err := catalog.ListCategories(ctx, false)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestCatalog_AddField(t *testing.T) {
	ctx := context.Background()
	catalog, _ := newTestCatalog(t, facets.CatalogConfig{})
	category, err := catalog.RegisterCategory(ctx, &facets.CategoryRequest{Code: "MUSICIAN", DisplayName: "Musician"})
	require.NoError(t, err)

	def, err := catalog.AddField(ctx, &facets.FieldRequest{
		CategoryID:  category.ID,
		FieldName:   "instruments",
		DisplayName: "Instruments",
		FieldType:   facets.FieldTypeMultiSelect,
		Options:     []string{" Sitar", "Tabla ", "Guitar"},
		ValidationRules: &facets.ValidationRules{
			MinItems: intPtr(1),
			MaxItems: intPtr(2),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Sitar", "Tabla", "Guitar"}, def.Options)
	assert.Equal(t, int64(1), def.Revision)
	assert.True(t, def.IsActive)

	stored, err := catalog.GetField(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, def.Options, stored.Options)
	assert.Equal(t, 2, *stored.ValidationRules.MaxItems)

	tests := []struct {
		name string
		req  facets.FieldRequest
		code string
	}{
		{
			name: "duplicate name",
			req:  facets.FieldRequest{FieldName: "instruments", DisplayName: "x", FieldType: facets.FieldTypeText},
			code: facets.ErrCodeDuplicateFieldName,
		},
		{
			name: "bad name",
			req:  facets.FieldRequest{FieldName: "Genre", DisplayName: "Genre", FieldType: facets.FieldTypeText},
			code: facets.ErrCodeInvalidFieldDefinition,
		},
		{
			name: "unknown type",
			req:  facets.FieldRequest{FieldName: "genre", DisplayName: "Genre", FieldType: "COLOR"},
			code: facets.ErrCodeInvalidFieldDefinition,
		},
		{
			name: "select without options",
			req:  facets.FieldRequest{FieldName: "genre", DisplayName: "Genre", FieldType: facets.FieldTypeSelect},
			code: facets.ErrCodeInvalidFieldDefinition,
		},
		{
			name: "duplicate options",
			req:  facets.FieldRequest{FieldName: "genre", DisplayName: "Genre", FieldType: facets.FieldTypeSelect, Options: []string{"Jazz", "Jazz"}},
			code: facets.ErrCodeInvalidFieldDefinition,
		},
		{
			name: "options on text",
			req:  facets.FieldRequest{FieldName: "genre", DisplayName: "Genre", FieldType: facets.FieldTypeText, Options: []string{"Jazz"}},
			code: facets.ErrCodeInvalidFieldDefinition,
		},
		{
			name: "numeric rules on text",
			req: facets.FieldRequest{FieldName: "genre", DisplayName: "Genre", FieldType: facets.FieldTypeText,
				ValidationRules: &facets.ValidationRules{Min: floatPtr(1)}},
			code: facets.ErrCodeInvalidFieldDefinition,
		},
		{
			name: "inverted bounds",
			req: facets.FieldRequest{FieldName: "gigs", DisplayName: "Gigs", FieldType: facets.FieldTypeNumber,
				ValidationRules: &facets.ValidationRules{Min: floatPtr(10), Max: floatPtr(1)}},
			code: facets.ErrCodeInvalidFieldDefinition,
		},
		{
			name: "unknown category",
			req:  facets.FieldRequest{CategoryID: 404, FieldName: "genre", DisplayName: "Genre", FieldType: facets.FieldTypeText},
			code: facets.ErrCodeUnknownCategory,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			if req.CategoryID == 0 {
				req.CategoryID = category.ID
			}
			_, err := catalog.AddField(ctx, &req)
			require.Error(t, err)
			assert.True(t, facets.HasErrorCode(err, tt.code), "got %v", err)
		})
	}
}

func TestCatalog_UpdateField(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	category, fields := f.registerActor(t)
	catalog := f.engine.Catalog

	t.Run("presentation changes keep the revision", func(t *testing.T) {
		label := "Showreel"
		order := 9
		updated, err := catalog.UpdateField(ctx, fields["demo_reel"].ID, &facets.FieldUpdate{DisplayName: &label, SortOrder: &order})
		require.NoError(t, err)
		assert.Equal(t, "Showreel", updated.DisplayName)
		assert.Equal(t, fields["demo_reel"].Revision, updated.Revision)
	})

	t.Run("validation changes bump the revision", func(t *testing.T) {
		required := true
		updated, err := catalog.UpdateField(ctx, fields["union_member"].ID, &facets.FieldUpdate{IsRequired: &required})
		require.NoError(t, err)
		assert.Equal(t, fields["union_member"].Revision+1, updated.Revision)

		updated, err = catalog.UpdateField(ctx, fields["languages"].ID, &facets.FieldUpdate{Options: []string{"English", "French", "Hindi", "Tamil"}})
		require.NoError(t, err)
		assert.Equal(t, fields["languages"].Revision+1, updated.Revision)
	})

	t.Run("type change without values", func(t *testing.T) {
		textArea := facets.FieldTypeTextArea
		updated, err := catalog.UpdateField(ctx, fields["stage_name"].ID, &facets.FieldUpdate{FieldType: &textArea})
		require.NoError(t, err)
		assert.Equal(t, facets.FieldTypeTextArea, updated.FieldType)
	})

	t.Run("type is locked once values exist", func(t *testing.T) {
		profileID := f.syncProfile(t, category.ID, "Lock")
		_, err := f.submit(profileID, category.ID, facets.Submission{"years_experience": 2}, facets.SubmitOptions{Partial: true})
		require.NoError(t, err)

		text := facets.FieldTypeText
		_, err = catalog.UpdateField(ctx, fields["years_experience"].ID, &facets.FieldUpdate{FieldType: &text})
		assert.True(t, facets.HasErrorCode(err, facets.ErrCodeFieldTypeLocked))
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := catalog.UpdateField(ctx, 9999, &facets.FieldUpdate{})
		assert.True(t, facets.HasErrorCode(err, facets.ErrCodeUnknownField))
	})

	t.Run("reactivation", func(t *testing.T) {
		id := fields["demo_reel"].ID
		require.NoError(t, catalog.DeactivateField(ctx, id))
		active, err := catalog.ListActiveFields(ctx, category.ID)
		require.NoError(t, err)
		assert.Len(t, active, 4)

		require.NoError(t, catalog.ActivateField(ctx, id))
		active, err = catalog.ListActiveFields(ctx, category.ID)
		require.NoError(t, err)
		assert.Len(t, active, 5)
	})
}

func TestCatalog_SnapshotCaching(t *testing.T) {
	ctx := context.Background()
	catalog, repo := newTestCatalog(t, facets.CatalogConfig{CacheEnabled: true, CacheTTL: time.Minute})
	category, err := catalog.RegisterCategory(ctx, &facets.CategoryRequest{Code: "PAINTER", DisplayName: "Painter"})
	require.NoError(t, err)

	first, err := catalog.Snapshot(ctx, category.ID)
	require.NoError(t, err)
	second, err := catalog.Snapshot(ctx, category.ID)
	require.NoError(t, err)
	assert.Same(t, first, second)

	// Writes that bypass the catalog are invisible until the entry is dropped.
	require.NoError(t, repo.SetCategoryActive(ctx, category.ID, false, 1))
	cached, err := catalog.Snapshot(ctx, category.ID)
	require.NoError(t, err)
	assert.True(t, cached.Category.IsActive)

	catalog.Invalidate(category.ID)
	fresh, err := catalog.Snapshot(ctx, category.ID)
	require.NoError(t, err)
	assert.False(t, fresh.Category.IsActive)

	_, err = catalog.AddField(ctx, &facets.FieldRequest{CategoryID: category.ID, FieldName: "medium", DisplayName: "Medium", FieldType: facets.FieldTypeText})
	require.NoError(t, err)
	afterAdd, err := catalog.Snapshot(ctx, category.ID)
	require.NoError(t, err)
	assert.Len(t, afterAdd.Fields, 1)
}

// undercountingRepo reports no stored values, as if they were committed right
// after the count was taken.
type undercountingRepo struct {
	*SQLiteRepository
}

func (undercountingRepo) CountFieldValues(context.Context, int64) (int64, error) {
	return 0, nil
}

func TestCatalog_TypeChangeRechecksValuesOnWrite(t *testing.T) {
	ctx := context.Background()
	_, repo := newTestCatalog(t, facets.CatalogConfig{})
	catalog := NewCatalog(undercountingRepo{repo}, facets.CatalogConfig{})

	category, err := catalog.RegisterCategory(ctx, &facets.CategoryRequest{Code: "SINGER", DisplayName: "Singer"})
	require.NoError(t, err)
	def, err := catalog.AddField(ctx, &facets.FieldRequest{
		CategoryID: category.ID, FieldName: "vocal_range", DisplayName: "Vocal range", FieldType: facets.FieldTypeText,
	})
	require.NoError(t, err)

	require.NoError(t, repo.WithProfileTx(ctx, func(tx AttributeTx) error {
		return tx.UpsertValues(ctx, []facets.AttributeValue{
			{ProfileID: uuid.New(), FieldID: def.ID, CategoryID: category.ID, Value: "alto", UpdatedAt: 1},
		})
	}))

	number := facets.FieldTypeNumber
	_, err = catalog.UpdateField(ctx, def.ID, &facets.FieldUpdate{FieldType: &number})
	assert.True(t, facets.HasErrorCode(err, facets.ErrCodeFieldTypeLocked))

	stored, err := catalog.GetField(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, facets.FieldTypeText, stored.FieldType)
	assert.Equal(t, def.Revision, stored.Revision)
}
