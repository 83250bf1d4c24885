package internal

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/lychee-technology/facets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func field(name string, ft facets.FieldType) *facets.FieldDefinition {
	return &facets.FieldDefinition{ID: 1, FieldName: name, FieldType: ft, IsActive: true, IsSearchable: true}
}

func TestFieldTypeRegistry_Parse(t *testing.T) {
	registry := NewFieldTypeRegistry(20)

	selectDef := field("role", facets.FieldTypeSelect)
	selectDef.Options = []string{"Lead", "Supporting", "Extra"}

	multiDef := field("languages", facets.FieldTypeMultiSelect)
	multiDef.Options = []string{"English", "French", "Hindi"}
	multiDef.ValidationRules = &facets.ValidationRules{MaxItems: intPtr(2)}

	boundedNumber := field("years_experience", facets.FieldTypeNumber)
	boundedNumber.ValidationRules = &facets.ValidationRules{Min: floatPtr(0), Max: floatPtr(80)}

	priced := field("day_rate", facets.FieldTypeNumber)
	priced.ValidationRules = &facets.ValidationRules{Precision: intPtr(2)}

	shortText := field("stage_name", facets.FieldTypeText)
	shortText.ValidationRules = &facets.ValidationRules{MinLength: intPtr(2), MaxLength: intPtr(5)}

	tests := []struct {
		name       string
		def        *facets.FieldDefinition
		raw        any
		wantValue  string
		wantReason string
		wantOK     bool
	}{
		{name: "text trimmed", def: field("bio", facets.FieldTypeText), raw: "  hello ", wantValue: "hello", wantOK: true},
		{name: "text keeps newline", def: field("bio", facets.FieldTypeText), raw: "line one\nline two", wantValue: "line one\nline two", wantOK: true},
		{name: "textarea keeps newline", def: field("bio", facets.FieldTypeTextArea), raw: "a\nb", wantValue: "a\nb", wantOK: true},
		{name: "text rejects number", def: field("bio", facets.FieldTypeText), raw: 12.0, wantReason: "not a string"},
		{name: "text default max length", def: field("bio", facets.FieldTypeText), raw: "abcdefghijklmnopqrstuvwxyz", wantReason: "too long"},
		{name: "text min length", def: shortText, raw: "a", wantReason: "too short"},
		{name: "text max length", def: shortText, raw: "abcdef", wantReason: "too long"},
		{name: "blank string", def: field("bio", facets.FieldTypeText), raw: "   ", wantValue: "", wantOK: true},
		{name: "nil value", def: field("years", facets.FieldTypeNumber), raw: nil, wantValue: "", wantOK: true},

		{name: "number from string", def: field("n", facets.FieldTypeNumber), raw: "007.50", wantValue: "7.5", wantOK: true},
		{name: "number from float", def: field("n", facets.FieldTypeNumber), raw: 12.0, wantValue: "12", wantOK: true},
		{name: "number from int", def: field("n", facets.FieldTypeNumber), raw: 3, wantValue: "3", wantOK: true},
		{name: "number exponent", def: field("n", facets.FieldTypeNumber), raw: "1e3", wantValue: "1000", wantOK: true},
		{name: "number negative zero", def: field("n", facets.FieldTypeNumber), raw: "-0", wantValue: "0", wantOK: true},
		{name: "number words", def: field("n", facets.FieldTypeNumber), raw: "abc", wantReason: "not a number"},
		{name: "number nan", def: field("n", facets.FieldTypeNumber), raw: "NaN", wantReason: "not a number"},
		{name: "number infinity", def: field("n", facets.FieldTypeNumber), raw: "Inf", wantReason: "not a number"},
		{name: "number boolean", def: field("n", facets.FieldTypeNumber), raw: true, wantReason: "not a number"},
		{name: "number below minimum", def: boundedNumber, raw: "-1", wantReason: "below minimum"},
		{name: "number above maximum", def: boundedNumber, raw: 81, wantReason: "above maximum"},
		{name: "number leading zero", def: field("n", facets.FieldTypeNumber), raw: "05", wantValue: "5", wantOK: true},
		{name: "number beyond float precision", def: field("n", facets.FieldTypeNumber), raw: "9007199254740993", wantValue: "9007199254740993", wantOK: true},
		{name: "number long integer", def: field("n", facets.FieldTypeNumber), raw: "12345678901234567890", wantValue: "12345678901234567890", wantOK: true},
		{name: "number long fraction", def: field("n", facets.FieldTypeNumber), raw: "0.12345678901234567890123", wantValue: "0.12345678901234567890123", wantOK: true},
		{name: "number json text", def: field("n", facets.FieldTypeNumber), raw: json.Number("2.50"), wantValue: "2.5", wantOK: true},
		{name: "number fractional float", def: field("n", facets.FieldTypeNumber), raw: 0.1, wantValue: "0.1", wantOK: true},
		{name: "number huge exponent", def: field("n", facets.FieldTypeNumber), raw: "1e99999", wantReason: "not a number"},
		{name: "number at minimum", def: boundedNumber, raw: "0", wantValue: "0", wantOK: true},
		{name: "number precision padded", def: priced, raw: "150.5", wantValue: "150.50", wantOK: true},
		{name: "number precision exceeded", def: priced, raw: "150.555", wantReason: "too many decimal places"},

		{name: "boolean string", def: field("b", facets.FieldTypeBoolean), raw: "true", wantValue: "true", wantOK: true},
		{name: "boolean upper case", def: field("b", facets.FieldTypeBoolean), raw: "TRUE", wantReason: "not a boolean"},
		{name: "boolean padded", def: field("b", facets.FieldTypeBoolean), raw: " False ", wantReason: "not a boolean"},
		{name: "boolean native", def: field("b", facets.FieldTypeBoolean), raw: false, wantValue: "false", wantOK: true},
		{name: "boolean yes", def: field("b", facets.FieldTypeBoolean), raw: "yes", wantReason: "not a boolean"},
		{name: "boolean one", def: field("b", facets.FieldTypeBoolean), raw: "1", wantReason: "not a boolean"},

		{name: "select option", def: selectDef, raw: "Lead", wantValue: "Lead", wantOK: true},
		{name: "select case sensitive", def: selectDef, raw: "lead", wantReason: "not an allowed option"},

		{name: "multi select list", def: multiDef, raw: []any{"French", "English"}, wantValue: `["French","English"]`, wantOK: true},
		{name: "multi select csv", def: multiDef, raw: "English, Hindi", wantValue: `["English","Hindi"]`, wantOK: true},
		{name: "multi select json text", def: multiDef, raw: `["Hindi"]`, wantValue: `["Hindi"]`, wantOK: true},
		{name: "multi select empty list", def: multiDef, raw: []string{}, wantValue: "", wantOK: true},
		{name: "multi select unknown", def: multiDef, raw: []string{"Klingon"}, wantReason: "not an allowed option"},
		{name: "multi select duplicate", def: multiDef, raw: []string{"English", "English"}, wantReason: "duplicate option"},
		{name: "multi select too many", def: multiDef, raw: []string{"English", "French", "Hindi"}, wantReason: "too many items"},
		{name: "multi select not list", def: multiDef, raw: 5.0, wantReason: "not a list"},

		{name: "url verbatim", def: field("u", facets.FieldTypeURL), raw: "HTTPS://Example.COM/Reel", wantValue: "HTTPS://Example.COM/Reel", wantOK: true},
		{name: "url trimmed", def: field("u", facets.FieldTypeURL), raw: "  https://x/a b ", wantValue: "https://x/a b", wantOK: true},
		{name: "url without scheme", def: field("u", facets.FieldTypeURL), raw: "example.com/reel", wantReason: "invalid url"},
		{name: "url ftp", def: field("u", facets.FieldTypeURL), raw: "ftp://example.com", wantReason: "invalid url"},
		{name: "url garbage", def: field("u", facets.FieldTypeURL), raw: "not a url", wantReason: "invalid url"},

		{name: "file reference verbatim", def: field("f", facets.FieldTypeFileReference), raw: "uploads/abc.pdf", wantValue: "uploads/abc.pdf", wantOK: true},

		{name: "date plain", def: field("d", facets.FieldTypeDate), raw: "2024-02-29", wantValue: "2024-02-29", wantOK: true},
		{name: "date rfc3339", def: field("d", facets.FieldTypeDate), raw: "2024-03-01T10:00:00+05:30", wantValue: "2024-03-01", wantOK: true},
		{name: "date invalid day", def: field("d", facets.FieldTypeDate), raw: "2023-02-29", wantReason: "invalid date"},
		{name: "date free text", def: field("d", facets.FieldTypeDate), raw: "next week", wantReason: "invalid date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, reason, ok := registry.Parse(tt.def, tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantReason, reason)
			if tt.wantOK {
				assert.Equal(t, tt.wantValue, value)
			}
		})
	}
}

func TestFieldTypeRegistry_ParseIsIdempotent(t *testing.T) {
	registry := NewFieldTypeRegistry(0)
	multiDef := field("languages", facets.FieldTypeMultiSelect)
	multiDef.Options = []string{"English", "French"}

	cases := []struct {
		def *facets.FieldDefinition
		raw any
	}{
		{field("n", facets.FieldTypeNumber), "0012.500"},
		{field("u", facets.FieldTypeURL), "HTTP://Example.com/a?b=c"},
		{field("d", facets.FieldTypeDate), "2024-01-05T23:00:00Z"},
		{multiDef, []any{"French", "English"}},
	}

	for _, c := range cases {
		first, _, ok := registry.Parse(c.def, c.raw)
		require.True(t, ok)
		second, _, ok := registry.Parse(c.def, first)
		require.True(t, ok)
		assert.Equal(t, first, second, "canonical form of %s must parse to itself", c.def.FieldType)
	}
}

func TestFieldTypeRegistry_Decode(t *testing.T) {
	registry := NewFieldTypeRegistry(0)

	v, err := registry.Decode(field("n", facets.FieldTypeNumber), "12.5")
	require.NoError(t, err)
	assert.Equal(t, 12.5, v)

	v, err = registry.Decode(field("b", facets.FieldTypeBoolean), "true")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = registry.Decode(field("m", facets.FieldTypeMultiSelect), `["a","b"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, v)

	v, err = registry.Decode(field("d", facets.FieldTypeDate), "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), v)

	_, err = registry.Decode(field("n", facets.FieldTypeNumber), "x")
	assert.Error(t, err)
}

func TestFieldTypeRegistry_SupportsOperator(t *testing.T) {
	registry := NewFieldTypeRegistry(0)

	assert.True(t, registry.SupportsOperator(facets.FieldTypeNumber, facets.OperatorBetween))
	assert.True(t, registry.SupportsOperator(facets.FieldTypeText, facets.OperatorContains))
	assert.True(t, registry.SupportsOperator(facets.FieldTypeMultiSelect, facets.OperatorContainsAny))
	assert.False(t, registry.SupportsOperator(facets.FieldTypeBoolean, facets.OperatorGreaterThan))
	assert.False(t, registry.SupportsOperator(facets.FieldTypeFileReference, facets.OperatorContains))
	assert.False(t, registry.SupportsOperator(facets.FieldTypeMultiSelect, facets.OperatorEquals))
	assert.False(t, registry.SupportsOperator(facets.FieldType("COLOR"), facets.OperatorEquals))
}

func TestFieldTypeRegistry_MatchesPredicate(t *testing.T) {
	registry := NewFieldTypeRegistry(0)

	selectDef := field("role", facets.FieldTypeSelect)
	selectDef.Options = []string{"Lead", "Supporting"}
	multiDef := field("languages", facets.FieldTypeMultiSelect)
	multiDef.Options = []string{"English", "French", "Hindi"}

	tests := []struct {
		name      string
		def       *facets.FieldDefinition
		canonical string
		op        facets.Operator
		operands  []string
		want      bool
	}{
		{name: "numeric not lexicographic", def: field("n", facets.FieldTypeNumber), canonical: "9", op: facets.OperatorLessThan, operands: []string{"10"}, want: true},
		{name: "numeric gte", def: field("n", facets.FieldTypeNumber), canonical: "5", op: facets.OperatorGreaterEq, operands: []string{"5.0"}, want: true},
		{name: "numeric between", def: field("n", facets.FieldTypeNumber), canonical: "12", op: facets.OperatorBetween, operands: []string{"10", "20"}, want: true},
		{name: "numeric beyond float precision", def: field("n", facets.FieldTypeNumber), canonical: "9007199254740993", op: facets.OperatorGreaterThan, operands: []string{"9007199254740992"}, want: true},
		{name: "numeric long fraction equals", def: field("n", facets.FieldTypeNumber), canonical: "0.12345678901234567890123", op: facets.OperatorEquals, operands: []string{"0.12345678901234567890124"}, want: false},
		{name: "numeric outside", def: field("n", facets.FieldTypeNumber), canonical: "21", op: facets.OperatorBetween, operands: []string{"10", "20"}, want: false},
		{name: "text contains case insensitive", def: field("t", facets.FieldTypeText), canonical: "Method Acting", op: facets.OperatorContains, operands: []string{"method"}, want: true},
		{name: "text starts with", def: field("t", facets.FieldTypeText), canonical: "Method Acting", op: facets.OperatorStartsWith, operands: []string{"acting"}, want: false},
		{name: "text in", def: field("t", facets.FieldTypeText), canonical: "Mumbai", op: facets.OperatorIn, operands: []string{"Delhi", "Mumbai"}, want: true},
		{name: "boolean equals", def: field("b", facets.FieldTypeBoolean), canonical: "true", op: facets.OperatorEquals, operands: []string{"true"}, want: true},
		{name: "select not equals", def: selectDef, canonical: "Lead", op: facets.OperatorNotEquals, operands: []string{"Supporting"}, want: true},
		{name: "multi contains all", def: multiDef, canonical: `["English","Hindi"]`, op: facets.OperatorContains, operands: []string{"English", "Hindi"}, want: true},
		{name: "multi contains missing", def: multiDef, canonical: `["English"]`, op: facets.OperatorContains, operands: []string{"French"}, want: false},
		{name: "multi contains any", def: multiDef, canonical: `["English"]`, op: facets.OperatorContainsAny, operands: []string{"French", "English"}, want: true},
		{name: "date calendar order", def: field("d", facets.FieldTypeDate), canonical: "2024-10-02", op: facets.OperatorGreaterThan, operands: []string{"2024-09-30"}, want: true},
		{name: "date between rfc3339 operand", def: field("d", facets.FieldTypeDate), canonical: "2024-01-15", op: facets.OperatorBetween, operands: []string{"2024-01-01T00:00:00Z", "2024-01-31"}, want: true},
		{name: "url contains", def: field("u", facets.FieldTypeURL), canonical: "https://vimeo.com/123", op: facets.OperatorContains, operands: []string{"VIMEO"}, want: true},
		{name: "file reference equals", def: field("f", facets.FieldTypeFileReference), canonical: "f-1", op: facets.OperatorEquals, operands: []string{"f-1"}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := registry.MatchesPredicate(tt.def, tt.canonical, tt.op, tt.operands)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFieldTypeRegistry_CompilePredicateErrors(t *testing.T) {
	registry := NewFieldTypeRegistry(0)
	selectDef := field("role", facets.FieldTypeSelect)
	selectDef.Options = []string{"Lead"}

	_, err := registry.CompilePredicate(field("b", facets.FieldTypeBoolean), facets.OperatorGreaterThan, []string{"true"})
	assert.True(t, facets.HasErrorCode(err, facets.ErrCodeUnsupportedOperator))

	_, err = registry.CompilePredicate(field("n", facets.FieldTypeNumber), facets.OperatorGreaterThan, []string{"many"})
	assert.True(t, facets.HasErrorCode(err, facets.ErrCodeInvalidFilter))

	_, err = registry.CompilePredicate(field("n", facets.FieldTypeNumber), facets.OperatorBetween, []string{"5"})
	assert.True(t, facets.HasErrorCode(err, facets.ErrCodeInvalidFilter))

	_, err = registry.CompilePredicate(field("n", facets.FieldTypeNumber), facets.OperatorBetween, []string{"9", "1"})
	assert.True(t, facets.HasErrorCode(err, facets.ErrCodeInvalidFilter))

	_, err = registry.CompilePredicate(selectDef, facets.OperatorEquals, []string{"Cameo"})
	assert.True(t, facets.HasErrorCode(err, facets.ErrCodeInvalidFilter))

	_, err = registry.CompilePredicate(field("t", facets.FieldTypeText), facets.OperatorEquals, []string{"  "})
	assert.True(t, facets.HasErrorCode(err, facets.ErrCodeInvalidFilter))
}

func TestFieldTypeRegistry_OperandsIgnoreRules(t *testing.T) {
	registry := NewFieldTypeRegistry(0)
	def := field("years", facets.FieldTypeNumber)
	def.ValidationRules = &facets.ValidationRules{Min: floatPtr(1)}

	got, err := registry.MatchesPredicate(def, "3", facets.OperatorGreaterThan, []string{"0"})
	require.NoError(t, err)
	assert.True(t, got)
}
