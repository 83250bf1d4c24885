package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lychee-technology/facets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const actorSeed = `{
  "code": "ACTOR",
  "displayName": "Actor",
  "sortOrder": 1,
  "fields": [
    {"fieldName": "years_experience", "displayName": "Years of experience", "fieldType": "NUMBER",
     "isRequired": true, "isSearchable": true, "sortOrder": 1, "validationRules": {"min": 0, "max": 80}},
    {"fieldName": "demo_reel", "displayName": "Demo reel", "fieldType": "url", "sortOrder": 2}
  ]
}`

const singerSeed = `{
  "code": "SINGER",
  "displayName": "Singer",
  "sortOrder": 2,
  "fields": [
    {"fieldName": "vocal_range", "displayName": "Vocal range", "fieldType": "SELECT",
     "options": ["Soprano", "Alto", "Tenor", "Bass"], "isSearchable": true}
  ]
}`

func writeSeed(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestSeedLoader_LoadDirectory(t *testing.T) {
	f := newEngineFixture(t)
	dir := t.TempDir()
	writeSeed(t, dir, "01_actor.json", actorSeed)
	writeSeed(t, dir, "02_singer.json", singerSeed)
	writeSeed(t, dir, "README.md", "not a seed")

	loader := NewSeedLoader(f.engine, dir)
	report, err := loader.LoadDirectory(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, &SeedReport{CategoriesCreated: 2, FieldsCreated: 3}, report)

	actor, err := f.engine.GetCategoryByCode(f.ctx, "ACTOR")
	require.NoError(t, err)
	desc, err := f.engine.DescribeSchema(f.ctx, actor.ID)
	require.NoError(t, err)
	require.Len(t, desc.Fields, 2)
	assert.Equal(t, facets.FieldTypeURL, desc.Fields[1].FieldType)
	assert.Equal(t, 80.0, *desc.Fields[0].ValidationRules.Max)

	t.Run("rerun is a no-op", func(t *testing.T) {
		report, err := loader.LoadDirectory(f.ctx)
		require.NoError(t, err)
		assert.Equal(t, &SeedReport{CategoriesSkipped: 2, FieldsSkipped: 3}, report)
	})

	t.Run("new fields are added to existing categories", func(t *testing.T) {
		writeSeed(t, dir, "03_singer_more.json", `{"code": "singer", "displayName": "Singer",
		  "fields": [{"fieldName": "genres", "displayName": "Genres", "fieldType": "MULTI_SELECT", "options": ["Pop", "Folk"]}]}`)
		report, err := loader.LoadDirectory(f.ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.FieldsCreated)
		assert.Equal(t, 3, report.CategoriesSkipped)
	})
}

func TestSeedLoader_Errors(t *testing.T) {
	f := newEngineFixture(t)

	_, err := NewSeedLoader(f.engine, filepath.Join(t.TempDir(), "missing")).LoadDirectory(f.ctx)
	assert.Error(t, err)

	dir := t.TempDir()
	writeSeed(t, dir, "bad.json", `{"code": `)
	_, err = NewSeedLoader(f.engine, dir).LoadDirectory(f.ctx)
	assert.ErrorContains(t, err, "failed to parse seed file")

	invalid := t.TempDir()
	writeSeed(t, invalid, "bad_type.json", `{"code": "X", "displayName": "X", "fields": [{"fieldName": "a", "displayName": "A", "fieldType": "COLOR"}]}`)
	_, err = NewSeedLoader(f.engine, invalid).LoadDirectory(f.ctx)
	assert.Error(t, err)
}

func TestReadSeedFile(t *testing.T) {
	dir := t.TempDir()
	writeSeed(t, dir, "actor.json", actorSeed)

	seed, err := ReadSeedFile(filepath.Join(dir, "actor.json"))
	require.NoError(t, err)
	assert.Equal(t, "ACTOR", seed.Code)
	assert.Equal(t, 1, seed.SortOrder)
	require.Len(t, seed.Fields, 2)
	assert.True(t, seed.Fields[0].IsRequired)
}
