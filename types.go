package facets

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FieldType is the closed set of attribute value kinds a field definition can declare.
type FieldType string

const (
	FieldTypeText          FieldType = "TEXT"
	FieldTypeTextArea      FieldType = "TEXTAREA"
	FieldTypeNumber        FieldType = "NUMBER"
	FieldTypeBoolean       FieldType = "BOOLEAN"
	FieldTypeSelect        FieldType = "SELECT"
	FieldTypeMultiSelect   FieldType = "MULTI_SELECT"
	FieldTypeURL           FieldType = "URL"
	FieldTypeFileReference FieldType = "FILE_REFERENCE"
	FieldTypeDate          FieldType = "DATE"
)

// FieldTypes lists every supported field type in declaration order.
var FieldTypes = []FieldType{
	FieldTypeText,
	FieldTypeTextArea,
	FieldTypeNumber,
	FieldTypeBoolean,
	FieldTypeSelect,
	FieldTypeMultiSelect,
	FieldTypeURL,
	FieldTypeFileReference,
	FieldTypeDate,
}

// ParseFieldType normalizes a field type tag. "FILE-REFERENCE" and lower case
// spellings are accepted.
func ParseFieldType(tag string) (FieldType, error) {
	normalized := strings.ToUpper(strings.TrimSpace(tag))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	for _, ft := range FieldTypes {
		if string(ft) == normalized {
			return ft, nil
		}
	}
	return "", fmt.Errorf("unknown field type: %q", tag)
}

// IsValid reports whether the tag is one of the declared field types.
func (ft FieldType) IsValid() bool {
	_, err := ParseFieldType(string(ft))
	return err == nil && strings.ToUpper(string(ft)) == string(ft)
}

// HasOptions reports whether values of this type are drawn from the field's option list.
func (ft FieldType) HasOptions() bool {
	return ft == FieldTypeSelect || ft == FieldTypeMultiSelect
}

// UnmarshalJSON accepts any spelling ParseFieldType understands.
func (ft *FieldType) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseFieldType(raw)
	if err != nil {
		return err
	}
	*ft = parsed
	return nil
}

// ValidationRules holds the type-specific constraints of a field definition.
// Only the rules applicable to the field's type may be set.
type ValidationRules struct {
	MinLength *int     `json:"minLength,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	Precision *int     `json:"precision,omitempty"`
	MinItems  *int     `json:"minItems,omitempty"`
	MaxItems  *int     `json:"maxItems,omitempty"`
}

// IsEmpty reports whether no rule is set.
func (r *ValidationRules) IsEmpty() bool {
	if r == nil {
		return true
	}
	return r.MinLength == nil && r.MaxLength == nil && r.Min == nil && r.Max == nil &&
		r.Precision == nil && r.MinItems == nil && r.MaxItems == nil
}

// Category is a professional role (artist type) owning a distinct attribute schema.
type Category struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
	SortOrder   int    `json:"sortOrder"`
	IsActive    bool   `json:"isActive"`
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt"`
}

// FieldDefinition declares one dynamic attribute of a category.
type FieldDefinition struct {
	ID              int64            `json:"id"`
	CategoryID      int64            `json:"categoryId"`
	FieldName       string           `json:"fieldName"`
	DisplayName     string           `json:"displayName"`
	FieldType       FieldType        `json:"fieldType"`
	IsRequired      bool             `json:"isRequired"`
	IsSearchable    bool             `json:"isSearchable"`
	SortOrder       int              `json:"sortOrder"`
	Placeholder     string           `json:"placeholder,omitempty"`
	HelpText        string           `json:"helpText,omitempty"`
	ValidationRules *ValidationRules `json:"validationRules,omitempty"`
	Options         []string         `json:"options,omitempty"`
	IsActive        bool             `json:"isActive"`
	// Revision is bumped on every change that affects how values are validated.
	Revision  int64 `json:"revision"`
	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
}

// HasOption reports whether token is one of the declared options.
func (f *FieldDefinition) HasOption(token string) bool {
	for _, opt := range f.Options {
		if opt == token {
			return true
		}
	}
	return false
}

// AttributeValue is the stored, canonically encoded value of one field for one profile.
type AttributeValue struct {
	ProfileID  uuid.UUID `json:"profileId"`
	FieldID    int64     `json:"fieldId"`
	CategoryID int64     `json:"categoryId"`
	Value      string    `json:"value"`
	UpdatedAt  int64     `json:"updatedAt"`
}

// FieldValue pairs a stored canonical value with its field definition.
type FieldValue struct {
	Field FieldDefinition `json:"field"`
	Value string          `json:"value"`
}

// CategoryRequest is the input of RegisterCategory.
type CategoryRequest struct {
	Code        string `json:"code"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
	SortOrder   int    `json:"sortOrder"`
}

// FieldRequest is the input of AddField.
type FieldRequest struct {
	CategoryID      int64            `json:"categoryId"`
	FieldName       string           `json:"fieldName"`
	DisplayName     string           `json:"displayName"`
	FieldType       FieldType        `json:"fieldType"`
	IsRequired      bool             `json:"isRequired"`
	IsSearchable    bool             `json:"isSearchable"`
	SortOrder       int              `json:"sortOrder"`
	ValidationRules *ValidationRules `json:"validationRules,omitempty"`
	Options         []string         `json:"options,omitempty"`
	Placeholder     string           `json:"placeholder,omitempty"`
	HelpText        string           `json:"helpText,omitempty"`
}

// FieldUpdate carries optional changes to an existing field definition.
// A nil pointer leaves the attribute untouched.
type FieldUpdate struct {
	DisplayName     *string          `json:"displayName,omitempty"`
	FieldType       *FieldType       `json:"fieldType,omitempty"`
	IsRequired      *bool            `json:"isRequired,omitempty"`
	IsSearchable    *bool            `json:"isSearchable,omitempty"`
	SortOrder       *int             `json:"sortOrder,omitempty"`
	Placeholder     *string          `json:"placeholder,omitempty"`
	HelpText        *string          `json:"helpText,omitempty"`
	ValidationRules *ValidationRules `json:"validationRules,omitempty"`
	Options         []string         `json:"options,omitempty"`
}

// SchemaSnapshot is the state of a category's field definitions at a point in time.
// Fields holds active and inactive definitions ordered by sort order then id.
type SchemaSnapshot struct {
	Category Category          `json:"category"`
	Fields   []FieldDefinition `json:"fields"`
	LoadedAt time.Time         `json:"loadedAt"`
}

// ActiveField returns the active definition with the given name.
func (s *SchemaSnapshot) ActiveField(name string) (*FieldDefinition, bool) {
	for i := range s.Fields {
		if s.Fields[i].FieldName == name && s.Fields[i].IsActive {
			return &s.Fields[i], true
		}
	}
	return nil, false
}

// Field returns the definition with the given name regardless of its active flag.
func (s *SchemaSnapshot) Field(name string) (*FieldDefinition, bool) {
	for i := range s.Fields {
		if s.Fields[i].FieldName == name {
			return &s.Fields[i], true
		}
	}
	return nil, false
}

// FieldByID returns the definition with the given id.
func (s *SchemaSnapshot) FieldByID(id int64) (*FieldDefinition, bool) {
	for i := range s.Fields {
		if s.Fields[i].ID == id {
			return &s.Fields[i], true
		}
	}
	return nil, false
}

// ActiveFields returns the active definitions in display order.
func (s *SchemaSnapshot) ActiveFields() []FieldDefinition {
	active := make([]FieldDefinition, 0, len(s.Fields))
	for _, f := range s.Fields {
		if f.IsActive {
			active = append(active, f)
		}
	}
	return active
}

// RequiredFields returns the active, required definitions in display order.
func (s *SchemaSnapshot) RequiredFields() []FieldDefinition {
	required := make([]FieldDefinition, 0)
	for _, f := range s.Fields {
		if f.IsActive && f.IsRequired {
			required = append(required, f)
		}
	}
	return required
}

// SchemaDescription drives dynamic form rendering for one category.
type SchemaDescription struct {
	Category Category          `json:"category"`
	Fields   []FieldDefinition `json:"fields"`
}

// Submission maps field names to raw submitted values. Values are strings or
// JSON-native values (numbers, booleans, arrays of strings).
type Submission map[string]any

// SubmitOptions tunes a submission.
type SubmitOptions struct {
	// Partial skips the required-field completeness check.
	Partial bool `json:"partial"`
	// ExpectedVersion, when set, must equal the profile's current attribute version.
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

// SubmissionRequest is the input of SubmitAttributes.
type SubmissionRequest struct {
	ProfileID  uuid.UUID     `json:"profileId"`
	CategoryID int64         `json:"categoryId"`
	Values     Submission    `json:"values"`
	Options    SubmitOptions `json:"options"`
}

// SubmissionResult reports a successfully applied submission.
type SubmissionResult struct {
	ProfileID  uuid.UUID    `json:"profileId"`
	CategoryID int64        `json:"categoryId"`
	Written    []FieldValue `json:"written"`
	Version    int64        `json:"version"`
	Complete   bool         `json:"complete"`
}

// CompletenessReport lists the required fields a profile has no value for.
type CompletenessReport struct {
	ProfileID  uuid.UUID `json:"profileId"`
	CategoryID int64     `json:"categoryId"`
	Complete   bool      `json:"complete"`
	Missing    []string  `json:"missing,omitempty"`
}

// Profile mirrors the fixed structured columns owned by the profile service.
type Profile struct {
	ProfileID       uuid.UUID `json:"profileId"`
	CategoryID      int64     `json:"categoryId"`
	DisplayName     string    `json:"displayName"`
	City            string    `json:"city,omitempty"`
	ExperienceYears *int      `json:"experienceYears,omitempty"`
	RateMin         *float64  `json:"rateMin,omitempty"`
	RateMax         *float64  `json:"rateMax,omitempty"`
	IsAvailable     bool      `json:"isAvailable"`
	UpdatedAt       int64     `json:"updatedAt"`
}

// Operator is a comparison applied to an attribute filter.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "not_equals"
	OperatorContains    Operator = "contains"
	OperatorStartsWith  Operator = "starts_with"
	OperatorGreaterThan Operator = "gt"
	OperatorGreaterEq   Operator = "gte"
	OperatorLessThan    Operator = "lt"
	OperatorLessEq      Operator = "lte"
	OperatorBetween     Operator = "between"
	OperatorIn          Operator = "in"
	OperatorContainsAny Operator = "contains_any"
)

// AttributeFilter is a (fieldName, operator, value) search triple. Between
// takes Values[0] and Values[1] as inclusive bounds; In and ContainsAny take
// the whole Values list.
type AttributeFilter struct {
	FieldName string   `json:"fieldName"`
	Operator  Operator `json:"operator"`
	Value     string   `json:"value,omitempty"`
	Values    []string `json:"values,omitempty"`
}

// StructuredFilter constrains the fixed profile columns.
type StructuredFilter struct {
	MinExperienceYears *int     `json:"minExperienceYears,omitempty"`
	MaxExperienceYears *int     `json:"maxExperienceYears,omitempty"`
	RateMin            *float64 `json:"rateMin,omitempty"`
	RateMax            *float64 `json:"rateMax,omitempty"`
	City               string   `json:"city,omitempty"`
	AvailableOnly      bool     `json:"availableOnly,omitempty"`
}

// SearchRequest combines structured and attribute filters with pagination.
type SearchRequest struct {
	CategoryID   int64             `json:"categoryId,omitempty"`
	Structured   StructuredFilter  `json:"structured"`
	Attributes   []AttributeFilter `json:"attributes,omitempty"`
	Page         int               `json:"page"`
	ItemsPerPage int               `json:"itemsPerPage"`
}

// SearchResult is one page of matching profiles.
type SearchResult struct {
	Data          []*Profile    `json:"data"`
	TotalRecords  int           `json:"totalRecords"`
	TotalPages    int           `json:"totalPages"`
	CurrentPage   int           `json:"currentPage"`
	ItemsPerPage  int           `json:"itemsPerPage"`
	HasNext       bool          `json:"hasNext"`
	HasPrevious   bool          `json:"hasPrevious"`
	ExecutionTime time.Duration `json:"executionTime"`
}

// TableNames names every table the engine reads or writes.
type TableNames struct {
	Categories      string `json:"categories"`
	Fields          string `json:"fields"`
	AttributeValues string `json:"attributeValues"`
	ProfileVersions string `json:"profileVersions"`
	Profiles        string `json:"profiles"`
}
