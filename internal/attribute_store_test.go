package internal

import (
	"testing"

	"github.com/google/uuid"
	"github.com/lychee-technology/facets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaleReason(t *testing.T) {
	v := NewValidator(nil, nil, NewFieldTypeRegistry(0), 0)
	snapshot := dancerSnapshot()
	validated, errs := v.Check(snapshot, facets.Submission{"height_cm": 180, "dance_styles": "Ballet"}, facets.SubmitOptions{}, nil)
	require.Empty(t, errs)

	current := func(mutate func(fields []facets.FieldDefinition)) []facets.FieldDefinition {
		fields := dancerSnapshot().Fields
		if mutate != nil {
			mutate(fields)
		}
		return fields
	}
	byName := func(fields []facets.FieldDefinition, name string) *facets.FieldDefinition {
		for i := range fields {
			if fields[i].FieldName == name {
				return &fields[i]
			}
		}
		t.Fatalf("no field %s", name)
		return nil
	}
	active := &facets.Category{ID: 2, IsActive: true}

	tests := []struct {
		name     string
		category *facets.Category
		fields   []facets.FieldDefinition
		partial  bool
		want     string
	}{
		{name: "unchanged", category: active, fields: current(nil)},
		{name: "category removed", category: nil, fields: current(nil), want: "category no longer exists"},
		{name: "category deactivated", category: &facets.Category{ID: 2}, fields: current(nil), want: "category was deactivated"},
		{
			name:     "written field deactivated",
			category: active,
			fields:   current(func(f []facets.FieldDefinition) { byName(f, "height_cm").IsActive = false }),
			want:     "field 'height_cm' was deactivated",
		},
		{
			name:     "written field revised",
			category: active,
			fields:   current(func(f []facets.FieldDefinition) { byName(f, "height_cm").Revision = 2 }),
			want:     "field 'height_cm' changed",
		},
		{
			name:     "untouched field revised",
			category: active,
			fields:   current(func(f []facets.FieldDefinition) { byName(f, "debut").Revision = 5 }),
		},
		{
			name:     "required set changed",
			category: active,
			fields:   current(func(f []facets.FieldDefinition) { byName(f, "debut").IsRequired = true }),
			want:     "required fields changed",
		},
		{
			name:     "required set changed on partial write",
			category: active,
			fields:   current(func(f []facets.FieldDefinition) { byName(f, "debut").IsRequired = true }),
			partial:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, staleReason(validated, tt.category, tt.fields, tt.partial))
		})
	}
}

func TestRequiredIDs(t *testing.T) {
	assert.Equal(t, []int64{10}, requiredIDs(dancerSnapshot().Fields))
	assert.Empty(t, requiredIDs(nil))
}

func TestAttributeStore_RejectsNilProfile(t *testing.T) {
	f := newEngineFixture(t)
	category, _ := f.registerActor(t)

	_, err := f.submit(uuid.Nil, category.ID, facets.Submission{"years_experience": 1}, facets.SubmitOptions{})
	require.Error(t, err)
	fe, ok := facets.AsFacetsError(err)
	require.True(t, ok)
	assert.Equal(t, facets.ErrorTypeValidation, fe.Type)
	assert.Equal(t, "profileId", fe.Field)
}

func TestAttributeStore_GetSpansCategories(t *testing.T) {
	f := newEngineFixture(t)
	actor, _ := f.registerActor(t)

	singer, err := f.engine.RegisterCategory(f.ctx, &facets.CategoryRequest{Code: "SINGER", DisplayName: "Singer"})
	require.NoError(t, err)
	_, err = f.engine.AddField(f.ctx, &facets.FieldRequest{
		CategoryID:  singer.ID,
		FieldName:   "vocal_range",
		DisplayName: "Vocal range",
		FieldType:   facets.FieldTypeSelect,
		Options:     []string{"Soprano", "Alto", "Tenor", "Bass"},
	})
	require.NoError(t, err)

	profileID := f.syncProfile(t, actor.ID, "Dev")
	_, err = f.submit(profileID, actor.ID, facets.Submission{"years_experience": 9}, facets.SubmitOptions{})
	require.NoError(t, err)
	result, err := f.submit(profileID, singer.ID, facets.Submission{"vocal_range": "Tenor"}, facets.SubmitOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Version, "one version counter per profile")

	values, err := f.engine.GetAttributes(f.ctx, profileID)
	require.NoError(t, err)
	require.Len(t, values, 2)

	found := map[string]string{}
	for _, v := range values {
		found[v.Field.FieldName] = v.Value
	}
	assert.Equal(t, map[string]string{"years_experience": "9", "vocal_range": "Tenor"}, found)
}
