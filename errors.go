package facets

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeSchema              ErrorType = "schema"
	ErrorTypeValidation          ErrorType = "validation"
	ErrorTypeStaleSchema         ErrorType = "stale_schema"
	ErrorTypeUnsupportedOperator ErrorType = "unsupported_operator"
	ErrorTypeNotFound            ErrorType = "not_found"
	ErrorTypeConflict            ErrorType = "conflict"
	ErrorTypeInternal            ErrorType = "internal"
)

// Error codes
const (
	// Schema errors
	ErrCodeDuplicateCategory      = "DUPLICATE_CATEGORY"
	ErrCodeDuplicateFieldName     = "DUPLICATE_FIELD_NAME"
	ErrCodeInvalidCategory        = "INVALID_CATEGORY"
	ErrCodeInvalidFieldDefinition = "INVALID_FIELD_DEFINITION"
	ErrCodeFieldTypeLocked        = "FIELD_TYPE_LOCKED"
	ErrCodeCategoryInactive       = "CATEGORY_INACTIVE"
	ErrCodeFieldNotSearchable     = "FIELD_NOT_SEARCHABLE"
	ErrCodeInvalidFilter          = "INVALID_FILTER"
	ErrCodeInvalidPage            = "INVALID_PAGE"

	// Lookup errors
	ErrCodeUnknownCategory = "UNKNOWN_CATEGORY"
	ErrCodeUnknownField    = "UNKNOWN_FIELD"
	ErrCodeProfileNotFound = "PROFILE_NOT_FOUND"

	// Write-path errors
	ErrCodeValidationFailed    = "VALIDATION_FAILED"
	ErrCodeStaleSchema         = "STALE_SCHEMA"
	ErrCodeVersionConflict     = "VERSION_CONFLICT"
	ErrCodeUnsupportedOperator = "UNSUPPORTED_OPERATOR"

	// Operational errors
	ErrCodeStorageFailure = "STORAGE_FAILURE"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

// FieldErrors maps a submitted field name to a human-readable reason.
type FieldErrors map[string]string

// Add records a reason for a field. The first reason recorded for a field wins.
func (fe FieldErrors) Add(field, reason string) {
	if _, exists := fe[field]; exists {
		return
	}
	fe[field] = reason
}

// Fields returns the offending field names in sorted order.
func (fe FieldErrors) Fields() []string {
	names := make([]string, 0, len(fe))
	for name := range fe {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String renders the errors deterministically.
func (fe FieldErrors) String() string {
	parts := make([]string, 0, len(fe))
	for _, name := range fe.Fields() {
		parts = append(parts, fmt.Sprintf("%s: %s", name, fe[name]))
	}
	return strings.Join(parts, "; ")
}

// FacetsError is the single error type surfaced by the engine.
type FacetsError struct {
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Fields  FieldErrors    `json:"fields,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *FacetsError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("[%s:%s] %s: %s", e.Type, e.Code, e.Message, e.Fields.String())
	}
	if e.Field != "" {
		return fmt.Sprintf("[%s:%s] field '%s': %s", e.Type, e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

func (e *FacetsError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a single detail to a FacetsError
func (e *FacetsError) WithDetail(key string, value any) *FacetsError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause adds a cause to a FacetsError
func (e *FacetsError) WithCause(cause error) *FacetsError {
	e.Cause = cause
	return e
}

// WithField adds field context to a FacetsError
func (e *FacetsError) WithField(field string) *FacetsError {
	e.Field = field
	return e
}

// NewFacetsError creates a new FacetsError
func NewFacetsError(errorType ErrorType, code, message string) *FacetsError {
	return &FacetsError{
		Type:    errorType,
		Code:    code,
		Message: message,
		Details: make(map[string]any),
	}
}

// AsFacetsError extracts a *FacetsError from an error chain.
func AsFacetsError(err error) (*FacetsError, bool) {
	var fe *FacetsError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// IsErrorType reports whether err carries a FacetsError of the given type.
func IsErrorType(err error, errorType ErrorType) bool {
	fe, ok := AsFacetsError(err)
	return ok && fe.Type == errorType
}

// HasErrorCode reports whether err carries a FacetsError with the given code.
func HasErrorCode(err error, code string) bool {
	fe, ok := AsFacetsError(err)
	return ok && fe.Code == code
}

// ValidationErrors returns the field errors of a validation failure, or nil.
func ValidationErrors(err error) FieldErrors {
	fe, ok := AsFacetsError(err)
	if !ok || fe.Type != ErrorTypeValidation {
		return nil
	}
	return fe.Fields
}

// Schema error constructors

// NewDuplicateCategoryError reports a category code that is already registered.
func NewDuplicateCategoryError(code string) *FacetsError {
	return NewFacetsError(ErrorTypeSchema, ErrCodeDuplicateCategory,
		fmt.Sprintf("category '%s' already exists", code)).WithDetail("code", code)
}

// NewDuplicateFieldNameError reports a field name already used in a category,
// active or not.
func NewDuplicateFieldNameError(categoryID int64, fieldName string) *FacetsError {
	return NewFacetsError(ErrorTypeSchema, ErrCodeDuplicateFieldName,
		fmt.Sprintf("field '%s' already exists in category %d", fieldName, categoryID)).
		WithField(fieldName).
		WithDetail("category_id", categoryID)
}

// NewInvalidCategoryError reports a malformed category request.
func NewInvalidCategoryError(message string) *FacetsError {
	return NewFacetsError(ErrorTypeSchema, ErrCodeInvalidCategory, message)
}

// NewInvalidFieldDefinitionError reports a malformed field request.
func NewInvalidFieldDefinitionError(fieldName, message string) *FacetsError {
	return NewFacetsError(ErrorTypeSchema, ErrCodeInvalidFieldDefinition, message).WithField(fieldName)
}

// NewFieldTypeLockedError reports an attempt to change the type of a field that has stored values.
func NewFieldTypeLockedError(fieldID int64, fieldName string) *FacetsError {
	return NewFacetsError(ErrorTypeSchema, ErrCodeFieldTypeLocked,
		"field type cannot change once values are stored; create a new field instead").
		WithField(fieldName).
		WithDetail("field_id", fieldID)
}

// NewCategoryInactiveError reports a write against a deactivated category.
func NewCategoryInactiveError(categoryID int64) *FacetsError {
	return NewFacetsError(ErrorTypeSchema, ErrCodeCategoryInactive,
		fmt.Sprintf("category %d is inactive", categoryID)).WithDetail("category_id", categoryID)
}

// NewFieldNotSearchableError reports a search filter on a non-searchable field.
func NewFieldNotSearchableError(fieldName string) *FacetsError {
	return NewFacetsError(ErrorTypeSchema, ErrCodeFieldNotSearchable, "field is not searchable").WithField(fieldName)
}

// NewInvalidFilterError reports a malformed search filter.
func NewInvalidFilterError(fieldName, message string) *FacetsError {
	return NewFacetsError(ErrorTypeSchema, ErrCodeInvalidFilter, message).WithField(fieldName)
}

// NewInvalidPageError reports bad pagination input.
func NewInvalidPageError(message string) *FacetsError {
	return NewFacetsError(ErrorTypeSchema, ErrCodeInvalidPage, message)
}

// Lookup error constructors

// NewUnknownCategoryError reports a category id that does not exist.
func NewUnknownCategoryError(categoryID int64) *FacetsError {
	return NewFacetsError(ErrorTypeNotFound, ErrCodeUnknownCategory,
		fmt.Sprintf("category %d not found", categoryID)).WithDetail("category_id", categoryID)
}

// NewUnknownCategoryCodeError reports a category code that does not exist.
func NewUnknownCategoryCodeError(code string) *FacetsError {
	return NewFacetsError(ErrorTypeNotFound, ErrCodeUnknownCategory,
		fmt.Sprintf("category '%s' not found", code)).WithDetail("code", code)
}

// NewUnknownFieldError reports a field id that does not exist.
func NewUnknownFieldError(fieldID int64) *FacetsError {
	return NewFacetsError(ErrorTypeNotFound, ErrCodeUnknownField,
		fmt.Sprintf("field %d not found", fieldID)).WithDetail("field_id", fieldID)
}

// NewUnknownFieldNameError reports a field name unknown to a category.
func NewUnknownFieldNameError(categoryID int64, fieldName string) *FacetsError {
	return NewFacetsError(ErrorTypeNotFound, ErrCodeUnknownField,
		fmt.Sprintf("field '%s' not found in category %d", fieldName, categoryID)).
		WithField(fieldName).
		WithDetail("category_id", categoryID)
}

// NewProfileNotFoundError reports a profile id that does not exist.
func NewProfileNotFoundError(profileID string) *FacetsError {
	return NewFacetsError(ErrorTypeNotFound, ErrCodeProfileNotFound,
		fmt.Sprintf("profile %s not found", profileID)).WithDetail("profile_id", profileID)
}

// Write-path error constructors

// NewValidationError wraps the complete set of per-field problems of a submission.
func NewValidationError(fields FieldErrors) *FacetsError {
	return &FacetsError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeValidationFailed,
		Message: "submission failed validation",
		Fields:  fields,
		Details: make(map[string]any),
	}
}

// NewStaleSchemaError reports a write validated against a schema that changed
// before commit. Callers should refetch the schema and retry.
func NewStaleSchemaError(categoryID int64, message string) *FacetsError {
	return NewFacetsError(ErrorTypeStaleSchema, ErrCodeStaleSchema, message).WithDetail("category_id", categoryID)
}

// NewVersionConflictError reports a failed optimistic version check.
func NewVersionConflictError(expected, actual int64) *FacetsError {
	return NewFacetsError(ErrorTypeConflict, ErrCodeVersionConflict,
		fmt.Sprintf("profile attribute version is %d, expected %d", actual, expected)).
		WithDetail("expected", expected).
		WithDetail("actual", actual)
}

// NewUnsupportedOperatorError reports a filter operator the field type cannot evaluate.
func NewUnsupportedOperatorError(fieldName string, fieldType FieldType, op Operator) *FacetsError {
	return NewFacetsError(ErrorTypeUnsupportedOperator, ErrCodeUnsupportedOperator,
		fmt.Sprintf("operator '%s' is not supported for %s fields", op, fieldType)).
		WithField(fieldName).
		WithDetail("operator", string(op)).
		WithDetail("field_type", string(fieldType))
}

// Operational error constructors

// NewStorageError wraps an underlying storage failure. Writes that fail this
// way are never partially committed.
func NewStorageError(message string, cause error) *FacetsError {
	return NewFacetsError(ErrorTypeInternal, ErrCodeStorageFailure, message).WithCause(cause)
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *FacetsError {
	return NewFacetsError(ErrorTypeInternal, ErrCodeInternalError, message).WithCause(cause)
}
