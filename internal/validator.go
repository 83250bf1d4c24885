package internal

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/lychee-technology/facets"
)

// storedFieldReader reports which fields of a category a profile already has values for.
type storedFieldReader interface {
	StoredFieldIDs(ctx context.Context, profileID uuid.UUID, categoryID int64) (map[int64]bool, error)
}

// ValidatedValue is one submitted value that passed its field's contract.
type ValidatedValue struct {
	Field     facets.FieldDefinition
	Canonical string
}

// ValidatedSubmission is the outcome of a successful validation. Values holds
// the non-blank values in display order; Provided holds their field ids.
type ValidatedSubmission struct {
	CategoryID int64
	Snapshot   *facets.SchemaSnapshot
	Values     []ValidatedValue
	Provided   map[int64]bool
}

// Validator checks raw submissions against a category's field definitions.
type Validator struct {
	schemas   SnapshotSource
	stored    storedFieldReader
	registry  *FieldTypeRegistry
	maxFields int
}

// NewValidator creates a validator. maxFields bounds the number of keys in one
// submission; zero disables the bound.
func NewValidator(schemas SnapshotSource, stored storedFieldReader, registry *FieldTypeRegistry, maxFields int) *Validator {
	return &Validator{
		schemas:   schemas,
		stored:    stored,
		registry:  registry,
		maxFields: maxFields,
	}
}

// ValidateSubmission resolves the current schema of the category and checks
// every submitted value. Complete submissions also consult the profile's
// stored values for the required-field check. All problems are returned at
// once as a validation error.
func (v *Validator) ValidateSubmission(ctx context.Context, profileID uuid.UUID, categoryID int64, submission facets.Submission, opts facets.SubmitOptions) (*ValidatedSubmission, error) {
	if v.maxFields > 0 && len(submission) > v.maxFields {
		return nil, facets.NewFacetsError(facets.ErrorTypeValidation, facets.ErrCodeValidationFailed,
			fmt.Sprintf("submission has %d fields, at most %d are allowed", len(submission), v.maxFields))
	}

	snapshot, err := v.schemas.Snapshot(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	if !snapshot.Category.IsActive {
		return nil, facets.NewCategoryInactiveError(categoryID)
	}

	var stored map[int64]bool
	if !opts.Partial {
		stored, err = v.stored.StoredFieldIDs(ctx, profileID, categoryID)
		if err != nil {
			return nil, facets.NewStorageError("failed to load stored values", err)
		}
	}

	validated, fieldErrs := v.Check(snapshot, submission, opts, stored)
	if len(fieldErrs) > 0 {
		return nil, facets.NewValidationError(fieldErrs)
	}
	return validated, nil
}

// Check validates a submission against a snapshot without touching storage.
// stored lists the fields that already have a value and is only consulted
// when opts.Partial is false.
func (v *Validator) Check(snapshot *facets.SchemaSnapshot, submission facets.Submission, opts facets.SubmitOptions, stored map[int64]bool) (*ValidatedSubmission, facets.FieldErrors) {
	fieldErrs := facets.FieldErrors{}
	validated := &ValidatedSubmission{
		CategoryID: snapshot.Category.ID,
		Snapshot:   snapshot,
		Values:     make([]ValidatedValue, 0, len(submission)),
		Provided:   make(map[int64]bool, len(submission)),
	}

	names := SortedKeys(submission)
	for _, name := range names {
		def, ok := snapshot.Field(name)
		if !ok {
			fieldErrs.Add(name, reasonUnknownField)
			continue
		}
		if !def.IsActive {
			fieldErrs.Add(name, reasonFieldInactive)
			continue
		}
		canonical, reason, ok := v.registry.Parse(def, submission[name])
		if !ok {
			fieldErrs.Add(name, reason)
			continue
		}
		if canonical == "" {
			continue
		}
		validated.Values = append(validated.Values, ValidatedValue{Field: *def, Canonical: canonical})
		validated.Provided[def.ID] = true
	}

	if !opts.Partial {
		for _, name := range missingRequired(snapshot.Fields, stored, validated.Provided) {
			fieldErrs.Add(name, reasonRequired)
		}
	}

	if len(fieldErrs) > 0 {
		return nil, fieldErrs
	}
	slices.SortStableFunc(validated.Values, func(a, b ValidatedValue) int {
		return compareFieldOrder(&a.Field, &b.Field)
	})
	return validated, nil
}

// missingRequired returns the names of active required fields present in
// neither set, in display order.
func missingRequired(fields []facets.FieldDefinition, stored, provided map[int64]bool) []string {
	missing := make([]string, 0)
	for _, f := range fields {
		if !f.IsActive || !f.IsRequired {
			continue
		}
		if !stored[f.ID] && !provided[f.ID] {
			missing = append(missing, f.FieldName)
		}
	}
	return missing
}

func compareFieldOrder(a, b *facets.FieldDefinition) int {
	if a.SortOrder != b.SortOrder {
		return a.SortOrder - b.SortOrder
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}
