package internal

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/lychee-technology/facets"
	"go.uber.org/zap"
)

// AttributeStore persists validated attribute values, one row per (profile, field).
type AttributeStore struct {
	schemas   SnapshotSource
	values    AttributeRepository
	validator *Validator
	nowFunc   func() time.Time
}

func NewAttributeStore(schemas SnapshotSource, values AttributeRepository, validator *Validator) *AttributeStore {
	return &AttributeStore{
		schemas:   schemas,
		values:    values,
		validator: validator,
		nowFunc:   time.Now,
	}
}

// Upsert validates a submission and writes all of its values in one
// transaction. The profile's version row is bumped first, which serializes
// concurrent writers of the same profile. The schema is re-read inside the
// transaction; any drift from the snapshot used for validation fails the
// whole write with a stale schema error.
func (s *AttributeStore) Upsert(ctx context.Context, profileID uuid.UUID, categoryID int64, submission facets.Submission, opts facets.SubmitOptions) (*facets.SubmissionResult, error) {
	if profileID == uuid.Nil {
		return nil, facets.NewFacetsError(facets.ErrorTypeValidation, facets.ErrCodeValidationFailed, "profile id is required").
			WithField("profileId")
	}
	start := time.Now()

	validated, err := s.validator.ValidateSubmission(ctx, profileID, categoryID, submission, opts)
	if err != nil {
		return nil, err
	}

	var result *facets.SubmissionResult
	now := s.nowFunc().UnixMilli()
	err = s.values.WithProfileTx(ctx, func(tx AttributeTx) error {
		version, err := tx.BumpProfileVersion(ctx, profileID, now)
		if err != nil {
			return facets.NewStorageError("failed to lock profile", err)
		}
		if opts.ExpectedVersion != nil && *opts.ExpectedVersion != version-1 {
			return facets.NewVersionConflictError(*opts.ExpectedVersion, version-1)
		}

		category, fields, err := tx.LoadSchema(ctx, categoryID)
		if err != nil {
			return facets.NewStorageError("failed to reload schema", err)
		}
		if reason := staleReason(validated, category, fields, opts.Partial); reason != "" {
			s.schemas.Invalidate(categoryID)
			zap.S().Warnw("stale schema rejected submission", "profileID", profileID, "categoryID", categoryID, "reason", reason)
			return facets.NewStaleSchemaError(categoryID, reason)
		}

		stored, err := tx.StoredFieldIDs(ctx, profileID, categoryID)
		if err != nil {
			return facets.NewStorageError("failed to load stored values", err)
		}
		if !opts.Partial {
			if missing := missingRequired(fields, stored, validated.Provided); len(missing) > 0 {
				fieldErrs := facets.FieldErrors{}
				for _, name := range missing {
					fieldErrs.Add(name, reasonRequired)
				}
				return facets.NewValidationError(fieldErrs)
			}
		}

		rows := make([]facets.AttributeValue, 0, len(validated.Values))
		written := make([]facets.FieldValue, 0, len(validated.Values))
		for _, v := range validated.Values {
			rows = append(rows, facets.AttributeValue{
				ProfileID:  profileID,
				FieldID:    v.Field.ID,
				CategoryID: categoryID,
				Value:      v.Canonical,
				UpdatedAt:  now,
			})
			written = append(written, facets.FieldValue{Field: v.Field, Value: v.Canonical})
			stored[v.Field.ID] = true
		}
		if err := tx.UpsertValues(ctx, rows); err != nil {
			return facets.NewStorageError("failed to write attribute values", err)
		}

		result = &facets.SubmissionResult{
			ProfileID:  profileID,
			CategoryID: categoryID,
			Written:    written,
			Version:    version,
			Complete:   len(missingRequired(fields, stored, nil)) == 0,
		}
		return nil
	})
	if err != nil {
		if _, ok := facets.AsFacetsError(err); ok {
			return nil, err
		}
		return nil, facets.NewStorageError("failed to apply submission", err)
	}

	EmitLatency(ctx, "submit", time.Since(start).Milliseconds())
	EmitCount(ctx, "submit", int64(len(result.Written)))
	zap.S().Infow("attributes submitted",
		"profileID", profileID,
		"categoryID", categoryID,
		"written", len(result.Written),
		"version", result.Version,
		"complete", result.Complete,
	)
	return result, nil
}

// staleReason compares the schema read inside the write transaction with the
// snapshot used for validation. It returns an empty string when they agree.
func staleReason(validated *ValidatedSubmission, category *facets.Category, fields []facets.FieldDefinition, partial bool) string {
	if category == nil {
		return "category no longer exists"
	}
	if !category.IsActive {
		return "category was deactivated"
	}

	current := make(map[int64]*facets.FieldDefinition, len(fields))
	for i := range fields {
		current[fields[i].ID] = &fields[i]
	}
	for _, v := range validated.Values {
		f, ok := current[v.Field.ID]
		if !ok || !f.IsActive {
			return fmt.Sprintf("field '%s' was deactivated", v.Field.FieldName)
		}
		if f.Revision != v.Field.Revision || f.FieldType != v.Field.FieldType {
			return fmt.Sprintf("field '%s' changed", v.Field.FieldName)
		}
	}

	if !partial {
		before := requiredIDs(validated.Snapshot.Fields)
		after := requiredIDs(fields)
		if !slices.Equal(before, after) {
			return "required fields changed"
		}
	}
	return ""
}

func requiredIDs(fields []facets.FieldDefinition) []int64 {
	ids := make([]int64, 0)
	for _, f := range fields {
		if f.IsActive && f.IsRequired {
			ids = append(ids, f.ID)
		}
	}
	slices.Sort(ids)
	return ids
}

// Get returns every stored value of a profile, including values of
// deactivated fields, ordered by the fields' sort order then id.
func (s *AttributeStore) Get(ctx context.Context, profileID uuid.UUID) ([]facets.FieldValue, error) {
	values, err := s.values.ListValues(ctx, profileID)
	if err != nil {
		return nil, facets.NewStorageError("failed to load attribute values", err)
	}

	snapshots := make(map[int64]*facets.SchemaSnapshot)
	result := make([]facets.FieldValue, 0, len(values))
	for _, v := range values {
		def, err := s.resolveField(ctx, snapshots, v.CategoryID, v.FieldID)
		if err != nil {
			return nil, err
		}
		if def == nil {
			zap.S().Warnw("attribute value references unknown field", "profileID", profileID, "fieldID", v.FieldID)
			continue
		}
		result = append(result, facets.FieldValue{Field: *def, Value: v.Value})
	}

	slices.SortStableFunc(result, func(a, b facets.FieldValue) int {
		return compareFieldOrder(&a.Field, &b.Field)
	})
	return result, nil
}

// resolveField looks a field up in the category's snapshot, reloading once
// when a cached snapshot predates the field.
func (s *AttributeStore) resolveField(ctx context.Context, snapshots map[int64]*facets.SchemaSnapshot, categoryID, fieldID int64) (*facets.FieldDefinition, error) {
	snapshot, ok := snapshots[categoryID]
	if !ok {
		var err error
		if snapshot, err = s.schemas.Snapshot(ctx, categoryID); err != nil {
			return nil, err
		}
		snapshots[categoryID] = snapshot
	}
	if def, ok := snapshot.FieldByID(fieldID); ok {
		return def, nil
	}

	s.schemas.Invalidate(categoryID)
	snapshot, err := s.schemas.Snapshot(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	snapshots[categoryID] = snapshot
	def, _ := snapshot.FieldByID(fieldID)
	return def, nil
}

// Completeness recomputes which active required fields of the category the
// profile has no stored value for. The required set is read from storage, so
// fields added by another instance count immediately.
func (s *AttributeStore) Completeness(ctx context.Context, profileID uuid.UUID, categoryID int64) (*facets.CompletenessReport, error) {
	snapshot, err := s.schemas.FreshSnapshot(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	stored, err := s.values.StoredFieldIDs(ctx, profileID, categoryID)
	if err != nil {
		return nil, facets.NewStorageError("failed to load stored values", err)
	}

	missing := missingRequired(snapshot.Fields, stored, nil)
	return &facets.CompletenessReport{
		ProfileID:  profileID,
		CategoryID: categoryID,
		Complete:   len(missing) == 0,
		Missing:    missing,
	}, nil
}

// IsProfileComplete reports whether every active required field has a stored value.
func (s *AttributeStore) IsProfileComplete(ctx context.Context, profileID uuid.UUID, categoryID int64) (bool, error) {
	report, err := s.Completeness(ctx, profileID, categoryID)
	if err != nil {
		return false, err
	}
	return report.Complete, nil
}
