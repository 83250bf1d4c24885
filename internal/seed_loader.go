package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/lychee-technology/facets"
	"go.uber.org/zap"
)

// CategorySeed is the content of one seed file: a category and its fields.
type CategorySeed struct {
	facets.CategoryRequest
	Fields []facets.FieldRequest `json:"fields"`
}

// SeedReport counts what a seed run created and what already existed.
type SeedReport struct {
	CategoriesCreated int `json:"categoriesCreated"`
	CategoriesSkipped int `json:"categoriesSkipped"`
	FieldsCreated     int `json:"fieldsCreated"`
	FieldsSkipped     int `json:"fieldsSkipped"`
}

// SeedLoader applies category seed files through the public catalog
// operations. Existing categories and fields are left untouched, so a seed
// run can be repeated safely.
type SeedLoader struct {
	catalog   facets.SchemaCatalog
	directory string
}

func NewSeedLoader(catalog facets.SchemaCatalog, directory string) *SeedLoader {
	return &SeedLoader{catalog: catalog, directory: directory}
}

// LoadDirectory applies every *.json file of the seed directory in name order.
func (l *SeedLoader) LoadDirectory(ctx context.Context) (*SeedReport, error) {
	entries, err := os.ReadDir(l.directory)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed directory: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		files = append(files, filepath.Join(l.directory, entry.Name()))
	}
	slices.Sort(files)

	report := &SeedReport{}
	for _, file := range files {
		seed, err := ReadSeedFile(file)
		if err != nil {
			return report, err
		}
		if err := l.Apply(ctx, seed, report); err != nil {
			return report, fmt.Errorf("failed to apply seed file %s: %w", file, err)
		}
	}

	zap.S().Infow("seed directory applied",
		"directory", l.directory,
		"files", len(files),
		"categoriesCreated", report.CategoriesCreated,
		"fieldsCreated", report.FieldsCreated,
	)
	return report, nil
}

// ReadSeedFile parses one seed file.
func ReadSeedFile(path string) (*CategorySeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	var seed CategorySeed
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	return &seed, nil
}

// Apply registers the seed's category and adds the fields it does not have yet.
func (l *SeedLoader) Apply(ctx context.Context, seed *CategorySeed, report *SeedReport) error {
	category, err := l.catalog.GetCategoryByCode(ctx, seed.Code)
	switch {
	case facets.HasErrorCode(err, facets.ErrCodeUnknownCategory):
		if category, err = l.catalog.RegisterCategory(ctx, &seed.CategoryRequest); err != nil {
			return err
		}
		report.CategoriesCreated++
	case err != nil:
		return err
	default:
		report.CategoriesSkipped++
	}

	snapshot, err := l.catalog.Snapshot(ctx, category.ID)
	if err != nil {
		return err
	}
	for _, field := range seed.Fields {
		if _, exists := snapshot.Field(strings.TrimSpace(field.FieldName)); exists {
			report.FieldsSkipped++
			continue
		}
		req := field
		req.CategoryID = category.ID
		if _, err := l.catalog.AddField(ctx, &req); err != nil {
			return err
		}
		report.FieldsCreated++
	}
	return nil
}
