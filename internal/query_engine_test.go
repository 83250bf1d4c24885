package internal

import (
	"testing"
	"time"

	"github.com/lychee-technology/facets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryEngine_NormalizePage(t *testing.T) {
	q := NewQueryEngine(nil, nil, nil, nil, facets.QueryConfig{DefaultPageSize: 10, MaxPageSize: 50})

	tests := []struct {
		name             string
		page, size       int
		wantPage, wantSz int
		wantErr          bool
	}{
		{name: "defaults", page: 0, size: 0, wantPage: 1, wantSz: 10},
		{name: "explicit", page: 3, size: 25, wantPage: 3, wantSz: 25},
		{name: "clamped", page: 1, size: 500, wantPage: 1, wantSz: 50},
		{name: "negative page", page: -1, size: 10, wantErr: true},
		{name: "negative size", page: 1, size: -5, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, size, err := q.normalizePage(tt.page, tt.size)
			if tt.wantErr {
				assert.True(t, facets.HasErrorCode(err, facets.ErrCodeInvalidPage))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPage, page)
			assert.Equal(t, tt.wantSz, size)
		})
	}
}

func TestQueryEngine_Defaults(t *testing.T) {
	q := NewQueryEngine(nil, nil, nil, nil, facets.QueryConfig{})
	assert.Equal(t, defaultPageSize, q.cfg.DefaultPageSize)
	assert.Equal(t, defaultMaxPageSize, q.cfg.MaxPageSize)
	assert.Equal(t, defaultMaxCandidates, q.cfg.MaxCandidates)
}

func TestFilterOperands(t *testing.T) {
	assert.Equal(t, []string{"a"}, filterOperands(facets.AttributeFilter{Value: "a"}))
	assert.Equal(t, []string{"a", "b"}, filterOperands(facets.AttributeFilter{Values: []string{"a", "b"}}))
	assert.Equal(t, []string{"a", "b"}, filterOperands(facets.AttributeFilter{Value: "a", Values: []string{"b"}}))
	assert.Empty(t, filterOperands(facets.AttributeFilter{}))
}

func TestValidateStructured(t *testing.T) {
	assert.NoError(t, validateStructured(&facets.StructuredFilter{}))
	assert.NoError(t, validateStructured(&facets.StructuredFilter{MinExperienceYears: intPtr(2), MaxExperienceYears: intPtr(2)}))

	err := validateStructured(&facets.StructuredFilter{MinExperienceYears: intPtr(-1)})
	assert.True(t, facets.HasErrorCode(err, facets.ErrCodeInvalidFilter))

	err = validateStructured(&facets.StructuredFilter{MinExperienceYears: intPtr(9), MaxExperienceYears: intPtr(3)})
	fe, ok := facets.AsFacetsError(err)
	require.True(t, ok)
	assert.Equal(t, "minExperienceYears", fe.Field)

	err = validateStructured(&facets.StructuredFilter{RateMax: floatPtr(-1)})
	assert.True(t, facets.HasErrorCode(err, facets.ErrCodeInvalidFilter))
}

func TestBuildSearchResult(t *testing.T) {
	start := time.Now()

	empty := buildSearchResult(nil, 0, 1, 20, start)
	assert.NotNil(t, empty.Data)
	assert.Equal(t, 0, empty.TotalPages)
	assert.False(t, empty.HasNext)
	assert.False(t, empty.HasPrevious)

	middle := buildSearchResult([]*facets.Profile{{}, {}}, 45, 2, 20, start)
	assert.Equal(t, 3, middle.TotalPages)
	assert.Equal(t, 2, middle.CurrentPage)
	assert.Equal(t, 20, middle.ItemsPerPage)
	assert.True(t, middle.HasNext)
	assert.True(t, middle.HasPrevious)
}

func TestQueryEngine_ScansCandidatesInBatches(t *testing.T) {
	f := newEngineFixture(t)
	category, _ := f.registerActor(t)
	for name, years := range map[string]int{"A": 4, "B": 14, "C": 24} {
		id := f.syncProfile(t, category.ID, name)
		_, err := f.submit(id, category.ID, facets.Submission{"years_experience": years}, facets.SubmitOptions{})
		require.NoError(t, err)
	}

	q := NewQueryEngine(f.engine.Catalog, f.repo, f.repo, f.engine.Registry(), facets.QueryConfig{MaxCandidates: 2})

	t.Run("match beyond the first batch", func(t *testing.T) {
		result, err := q.Search(f.ctx, &facets.SearchRequest{
			CategoryID: category.ID,
			Attributes: []facets.AttributeFilter{{FieldName: "years_experience", Operator: facets.OperatorBetween, Values: []string{"20", "30"}}},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, result.TotalRecords)
		require.Len(t, result.Data, 1)
		assert.Equal(t, "C", result.Data[0].DisplayName)
	})

	t.Run("count spans every batch", func(t *testing.T) {
		result, err := q.Search(f.ctx, &facets.SearchRequest{
			CategoryID: category.ID,
			Attributes: []facets.AttributeFilter{{FieldName: "years_experience", Operator: facets.OperatorGreaterEq, Value: "0"}},
		})
		require.NoError(t, err)
		assert.Equal(t, 3, result.TotalRecords)
		require.Len(t, result.Data, 3)
		assert.Equal(t, "A", result.Data[0].DisplayName)
		assert.Equal(t, "C", result.Data[2].DisplayName)
	})

	t.Run("page taken from a later batch", func(t *testing.T) {
		result, err := q.Search(f.ctx, &facets.SearchRequest{
			CategoryID:   category.ID,
			Page:         2,
			ItemsPerPage: 1,
			Attributes:   []facets.AttributeFilter{{FieldName: "years_experience", Operator: facets.OperatorGreaterEq, Value: "0"}},
		})
		require.NoError(t, err)
		assert.Equal(t, 3, result.TotalRecords)
		require.Len(t, result.Data, 1)
		assert.Equal(t, "B", result.Data[0].DisplayName)
		assert.True(t, result.HasNext)
	})
}
