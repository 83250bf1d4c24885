package internal

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lychee-technology/facets"
)

// rowScanner is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const categoryColumns = "id, code, display_name, description, sort_order, is_active, created_at, updated_at"

const fieldColumns = "id, category_id, field_name, display_name, field_type, is_required, is_searchable, sort_order, " +
	"placeholder, help_text, validation_rules, options, is_active, revision, created_at, updated_at"

const profileColumns = "profile_id, category_id, display_name, city, experience_years, rate_min, rate_max, is_available, updated_at"

func scanCategory(row rowScanner) (*facets.Category, error) {
	var c facets.Category
	if err := row.Scan(&c.ID, &c.Code, &c.DisplayName, &c.Description, &c.SortOrder, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanField(row rowScanner) (*facets.FieldDefinition, error) {
	var (
		f         facets.FieldDefinition
		fieldType string
		rulesJSON []byte
		optsJSON  []byte
	)
	if err := row.Scan(
		&f.ID,
		&f.CategoryID,
		&f.FieldName,
		&f.DisplayName,
		&fieldType,
		&f.IsRequired,
		&f.IsSearchable,
		&f.SortOrder,
		&f.Placeholder,
		&f.HelpText,
		&rulesJSON,
		&optsJSON,
		&f.IsActive,
		&f.Revision,
		&f.CreatedAt,
		&f.UpdatedAt,
	); err != nil {
		return nil, err
	}
	f.FieldType = facets.FieldType(fieldType)

	if len(rulesJSON) > 0 && string(rulesJSON) != "null" {
		var rules facets.ValidationRules
		if err := json.Unmarshal(rulesJSON, &rules); err != nil {
			return nil, fmt.Errorf("decode validation rules of field %d: %w", f.ID, err)
		}
		f.ValidationRules = cloneRules(&rules)
	}
	if len(optsJSON) > 0 && string(optsJSON) != "null" {
		if err := json.Unmarshal(optsJSON, &f.Options); err != nil {
			return nil, fmt.Errorf("decode options of field %d: %w", f.ID, err)
		}
	}
	return &f, nil
}

func scanProfile(row rowScanner) (*facets.Profile, error) {
	var (
		p          facets.Profile
		categoryID *int64
	)
	if err := row.Scan(&p.ProfileID, &categoryID, &p.DisplayName, &p.City, &p.ExperienceYears, &p.RateMin, &p.RateMax, &p.IsAvailable, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if categoryID != nil {
		p.CategoryID = *categoryID
	}
	return &p, nil
}

// encodeFieldJSON renders the JSON columns of a field. Absent rules and options encode as nil.
func encodeFieldJSON(def *facets.FieldDefinition) (rules []byte, options []byte, err error) {
	if !def.ValidationRules.IsEmpty() {
		if rules, err = json.Marshal(def.ValidationRules); err != nil {
			return nil, nil, fmt.Errorf("encode validation rules: %w", err)
		}
	}
	if len(def.Options) > 0 {
		if options, err = json.Marshal(def.Options); err != nil {
			return nil, nil, fmt.Errorf("encode options: %w", err)
		}
	}
	return rules, options, nil
}

// placeholderFunc renders the n-th (1-based) bind parameter of a dialect.
type placeholderFunc func(n int) string

func postgresPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

func sqlitePlaceholder(int) string { return "?" }

// buildProfileWhere compiles the structured filters of a profile query.
// The rate filter is an overlap test between the requested range and the
// profile's own range; profiles without any rate never match it.
func buildProfileWhere(q *ProfileQuery, ph placeholderFunc) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(format string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(format, ph(len(args))))
	}

	if q.CategoryID != 0 {
		add("category_id = %s", q.CategoryID)
	}
	s := q.Structured
	if s.MinExperienceYears != nil {
		add("experience_years >= %s", *s.MinExperienceYears)
	}
	if s.MaxExperienceYears != nil {
		add("experience_years <= %s", *s.MaxExperienceYears)
	}
	if s.RateMin != nil {
		add("COALESCE(rate_max, rate_min) >= %s", *s.RateMin)
	}
	if s.RateMax != nil {
		add("COALESCE(rate_min, rate_max) <= %s", *s.RateMax)
	}
	if city := strings.TrimSpace(s.City); city != "" {
		add("LOWER(city) = LOWER(%s)", city)
	}
	if s.AvailableOnly {
		add("is_available = %s", true)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

const attributeValueColumnCount = 5

// buildAttributeValuesClause renders a multi-row VALUES list for attribute upserts.
func buildAttributeValuesClause(values []facets.AttributeValue, ph placeholderFunc) (string, []any) {
	rows := make([]string, 0, len(values))
	args := make([]any, 0, len(values)*attributeValueColumnCount)
	for _, v := range values {
		placeholders := make([]string, attributeValueColumnCount)
		for i := range placeholders {
			placeholders[i] = ph(len(args) + i + 1)
		}
		rows = append(rows, "("+strings.Join(placeholders, ", ")+")")
		args = append(args, v.ProfileID, v.FieldID, v.CategoryID, v.Value, v.UpdatedAt)
	}
	return strings.Join(rows, ", "), args
}
