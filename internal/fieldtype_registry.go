package internal

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lychee-technology/facets"
)

// Reasons reported per field when a submitted value is rejected.
const (
	reasonRequired        = "required"
	reasonUnknownField    = "unknown field"
	reasonFieldInactive   = "field inactive"
	reasonNotString       = "not a string"
	reasonNotNumber       = "not a number"
	reasonNotBoolean      = "not a boolean"
	reasonNotOption       = "not an allowed option"
	reasonDuplicateOption = "duplicate option"
	reasonNotList         = "not a list"
	reasonInvalidURL      = "invalid url"
	reasonInvalidDate     = "invalid date"
	reasonTooShort        = "too short"
	reasonTooLong         = "too long"
	reasonBelowMinimum    = "below minimum"
	reasonAboveMaximum    = "above maximum"
	reasonTooPrecise      = "too many decimal places"
	reasonTooFewItems     = "too few items"
	reasonTooManyItems    = "too many items"
	reasonEmptyValue      = "empty value"
)

const dateLayout = "2006-01-02"

var numberPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d{1,3})?$`)

// FieldTypeRegistry parses, decodes and compares attribute values for the
// closed set of field types.
type FieldTypeRegistry struct {
	defaultMaxLength int
}

// NewFieldTypeRegistry creates a registry. defaultMaxLength bounds text-like
// values whose field declares no maxLength; zero disables the bound.
func NewFieldTypeRegistry(defaultMaxLength int) *FieldTypeRegistry {
	return &FieldTypeRegistry{defaultMaxLength: defaultMaxLength}
}

// IsBlank reports whether raw carries no value at all.
func IsBlank(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []string:
		return len(v) == 0
	case []any:
		return len(v) == 0
	default:
		return false
	}
}

// Parse validates raw against the field definition and returns its canonical
// encoding. When ok is false, reason explains the rejection. An empty
// canonical value with ok set means raw was blank.
func (r *FieldTypeRegistry) Parse(def *facets.FieldDefinition, raw any) (canonical string, reason string, ok bool) {
	if IsBlank(raw) {
		return "", "", true
	}

	switch def.FieldType {
	case facets.FieldTypeText, facets.FieldTypeTextArea:
		return r.parseText(def, raw)
	case facets.FieldTypeNumber:
		return parseNumber(def, raw)
	case facets.FieldTypeBoolean:
		return parseBoolean(raw)
	case facets.FieldTypeSelect:
		return parseSelect(def, raw)
	case facets.FieldTypeMultiSelect:
		return parseMultiSelect(def, raw)
	case facets.FieldTypeURL:
		return r.parseURL(def, raw)
	case facets.FieldTypeFileReference:
		return r.parseFileReference(def, raw)
	case facets.FieldTypeDate:
		return parseDate(raw)
	default:
		return "", fmt.Sprintf("unsupported field type %s", def.FieldType), false
	}
}

// Decode turns a canonical value back into its typed form: string, float64,
// bool, []string or time.Time for dates.
func (r *FieldTypeRegistry) Decode(def *facets.FieldDefinition, canonical string) (any, error) {
	switch def.FieldType {
	case facets.FieldTypeText, facets.FieldTypeTextArea, facets.FieldTypeSelect,
		facets.FieldTypeURL, facets.FieldTypeFileReference:
		return canonical, nil
	case facets.FieldTypeNumber:
		v, err := strconv.ParseFloat(canonical, 64)
		if err != nil {
			return nil, fmt.Errorf("decode number %q: %w", canonical, err)
		}
		return v, nil
	case facets.FieldTypeBoolean:
		v, err := strconv.ParseBool(canonical)
		if err != nil {
			return nil, fmt.Errorf("decode boolean %q: %w", canonical, err)
		}
		return v, nil
	case facets.FieldTypeMultiSelect:
		var tokens []string
		if err := json.Unmarshal([]byte(canonical), &tokens); err != nil {
			return nil, fmt.Errorf("decode multi select %q: %w", canonical, err)
		}
		return tokens, nil
	case facets.FieldTypeDate:
		v, err := time.Parse(dateLayout, canonical)
		if err != nil {
			return nil, fmt.Errorf("decode date %q: %w", canonical, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported field type %s", def.FieldType)
	}
}

func asString(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v), true
	case json.Number:
		return v.String(), true
	default:
		return "", false
	}
}

func (r *FieldTypeRegistry) checkLength(def *facets.FieldDefinition, s string) (string, bool) {
	n := utf8.RuneCountInString(s)
	rules := def.ValidationRules
	if rules != nil && rules.MinLength != nil && n < *rules.MinLength {
		return reasonTooShort, false
	}
	if rules != nil && rules.MaxLength != nil {
		if n > *rules.MaxLength {
			return reasonTooLong, false
		}
		return "", true
	}
	if r.defaultMaxLength > 0 && n > r.defaultMaxLength {
		return reasonTooLong, false
	}
	return "", true
}

func (r *FieldTypeRegistry) parseText(def *facets.FieldDefinition, raw any) (string, string, bool) {
	s, ok := raw.(string)
	if !ok {
		return "", reasonNotString, false
	}
	s = strings.TrimSpace(s)
	if reason, ok := r.checkLength(def, s); !ok {
		return "", reason, false
	}
	return s, "", true
}

func parseNumber(def *facets.FieldDefinition, raw any) (string, string, bool) {
	v := new(big.Rat)
	switch n := raw.(type) {
	case float64:
		if !ratFromFloat(v, n) {
			return "", reasonNotNumber, false
		}
	case float32:
		if !ratFromFloat(v, float64(n)) {
			return "", reasonNotNumber, false
		}
	case int:
		v.SetInt64(int64(n))
	case int32:
		v.SetInt64(int64(n))
	case int64:
		v.SetInt64(n)
	default:
		s, ok := asString(raw)
		if !ok || !numberPattern.MatchString(s) {
			return "", reasonNotNumber, false
		}
		if _, ok := v.SetString(s); !ok {
			return "", reasonNotNumber, false
		}
	}

	rules := def.ValidationRules
	if rules != nil && rules.Min != nil {
		if bound := new(big.Rat); ratFromFloat(bound, *rules.Min) && v.Cmp(bound) < 0 {
			return "", reasonBelowMinimum, false
		}
	}
	if rules != nil && rules.Max != nil {
		if bound := new(big.Rat); ratFromFloat(bound, *rules.Max) && v.Cmp(bound) > 0 {
			return "", reasonAboveMaximum, false
		}
	}

	places := decimalPlaces(v)
	if rules != nil && rules.Precision != nil {
		if places > *rules.Precision {
			return "", reasonTooPrecise, false
		}
		return v.FloatString(*rules.Precision), "", true
	}
	return v.FloatString(places), "", true
}

// ratFromFloat sets z to the shortest decimal that round-trips f, so 0.1
// becomes 1/10 rather than its binary approximation.
func ratFromFloat(z *big.Rat, f float64) bool {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	_, ok := z.SetString(strconv.FormatFloat(f, 'f', -1, 64))
	return ok
}

// decimalPlaces returns the digits after the point needed to print v exactly.
// v must have a terminating decimal expansion.
func decimalPlaces(v *big.Rat) int {
	d := new(big.Int).Set(v.Denom())
	twos := int(d.TrailingZeroBits())
	d.Rsh(d, uint(twos))

	fives := 0
	five := big.NewInt(5)
	q, m := new(big.Int), new(big.Int)
	for d.Cmp(big.NewInt(1)) > 0 {
		q.QuoRem(d, five, m)
		if m.Sign() != 0 {
			break
		}
		d.Set(q)
		fives++
	}
	return max(twos, fives)
}

func parseBoolean(raw any) (string, string, bool) {
	switch v := raw.(type) {
	case bool:
		return strconv.FormatBool(v), "", true
	case string:
		if v == "true" || v == "false" {
			return v, "", true
		}
	}
	return "", reasonNotBoolean, false
}

func parseSelect(def *facets.FieldDefinition, raw any) (string, string, bool) {
	s, ok := asString(raw)
	if !ok {
		return "", reasonNotString, false
	}
	if !def.HasOption(s) {
		return "", reasonNotOption, false
	}
	return s, "", true
}

func multiSelectTokens(raw any) ([]string, string, bool) {
	switch v := raw.(type) {
	case []string:
		return slices.Clone(v), "", true
	case []any:
		tokens := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, reasonNotOption, false
			}
			tokens = append(tokens, s)
		}
		return tokens, "", true
	case string:
		s := strings.TrimSpace(v)
		if strings.HasPrefix(s, "[") {
			var tokens []string
			if err := json.Unmarshal([]byte(s), &tokens); err != nil {
				return nil, reasonNotList, false
			}
			return tokens, "", true
		}
		return strings.Split(s, ","), "", true
	default:
		return nil, reasonNotList, false
	}
}

func parseMultiSelect(def *facets.FieldDefinition, raw any) (string, string, bool) {
	tokens, reason, ok := multiSelectTokens(raw)
	if !ok {
		return "", reason, false
	}
	if len(tokens) == 0 {
		return "", "", true
	}

	seen := NewSet[string]()
	for i, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			return "", reasonEmptyValue, false
		}
		if !def.HasOption(token) {
			return "", reasonNotOption, false
		}
		if seen.Contains(token) {
			return "", reasonDuplicateOption, false
		}
		seen.Add(token)
		tokens[i] = token
	}

	rules := def.ValidationRules
	if rules != nil && rules.MinItems != nil && len(tokens) < *rules.MinItems {
		return "", reasonTooFewItems, false
	}
	if rules != nil && rules.MaxItems != nil && len(tokens) > *rules.MaxItems {
		return "", reasonTooManyItems, false
	}

	encoded, err := json.Marshal(tokens)
	if err != nil {
		return "", reasonNotList, false
	}
	return string(encoded), "", true
}

func (r *FieldTypeRegistry) parseURL(def *facets.FieldDefinition, raw any) (string, string, bool) {
	s, ok := asString(raw)
	if !ok {
		return "", reasonNotString, false
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return "", reasonInvalidURL, false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", reasonInvalidURL, false
	}
	if reason, ok := r.checkLength(def, s); !ok {
		return "", reason, false
	}
	return s, "", true
}

func (r *FieldTypeRegistry) parseFileReference(def *facets.FieldDefinition, raw any) (string, string, bool) {
	s, ok := asString(raw)
	if !ok {
		return "", reasonNotString, false
	}
	if reason, ok := r.checkLength(def, s); !ok {
		return "", reason, false
	}
	return s, "", true
}

func parseDate(raw any) (string, string, bool) {
	if t, ok := raw.(time.Time); ok {
		return t.Format(dateLayout), "", true
	}
	s, ok := asString(raw)
	if !ok {
		return "", reasonInvalidDate, false
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.Format(dateLayout), "", true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Format(dateLayout), "", true
	}
	return "", reasonInvalidDate, false
}

// OperatorsFor lists the filter operators a field type can evaluate.
func OperatorsFor(ft facets.FieldType) []facets.Operator {
	switch ft {
	case facets.FieldTypeText, facets.FieldTypeTextArea:
		return []facets.Operator{facets.OperatorEquals, facets.OperatorNotEquals, facets.OperatorContains,
			facets.OperatorStartsWith, facets.OperatorIn}
	case facets.FieldTypeNumber:
		return []facets.Operator{facets.OperatorEquals, facets.OperatorNotEquals, facets.OperatorGreaterThan,
			facets.OperatorGreaterEq, facets.OperatorLessThan, facets.OperatorLessEq, facets.OperatorBetween}
	case facets.FieldTypeBoolean:
		return []facets.Operator{facets.OperatorEquals, facets.OperatorNotEquals}
	case facets.FieldTypeSelect:
		return []facets.Operator{facets.OperatorEquals, facets.OperatorNotEquals, facets.OperatorIn}
	case facets.FieldTypeMultiSelect:
		return []facets.Operator{facets.OperatorContains, facets.OperatorContainsAny}
	case facets.FieldTypeURL:
		return []facets.Operator{facets.OperatorEquals, facets.OperatorContains, facets.OperatorStartsWith}
	case facets.FieldTypeFileReference:
		return []facets.Operator{facets.OperatorEquals}
	case facets.FieldTypeDate:
		return []facets.Operator{facets.OperatorEquals, facets.OperatorGreaterThan, facets.OperatorGreaterEq,
			facets.OperatorLessThan, facets.OperatorLessEq, facets.OperatorBetween}
	default:
		return nil
	}
}

// SupportsOperator reports whether op is meaningful for the field type.
func (r *FieldTypeRegistry) SupportsOperator(ft facets.FieldType, op facets.Operator) bool {
	return slices.Contains(OperatorsFor(ft), op)
}

// Predicate is an attribute filter compiled against one field definition.
type Predicate struct {
	Field    facets.FieldDefinition
	Operator facets.Operator
	operands []string
	numbers  []*big.Rat
}

// CompilePredicate checks the operator and operands of a filter and returns a
// reusable predicate. Operands are parsed with the field's own type rules.
func (r *FieldTypeRegistry) CompilePredicate(def *facets.FieldDefinition, op facets.Operator, operands []string) (*Predicate, error) {
	if !r.SupportsOperator(def.FieldType, op) {
		return nil, facets.NewUnsupportedOperatorError(def.FieldName, def.FieldType, op)
	}

	switch op {
	case facets.OperatorBetween:
		if len(operands) != 2 {
			return nil, facets.NewInvalidFilterError(def.FieldName, "between takes exactly two values")
		}
	case facets.OperatorIn, facets.OperatorContainsAny:
		if len(operands) == 0 {
			return nil, facets.NewInvalidFilterError(def.FieldName, fmt.Sprintf("%s takes at least one value", op))
		}
	case facets.OperatorContains:
		if len(operands) == 0 || (def.FieldType != facets.FieldTypeMultiSelect && len(operands) != 1) {
			return nil, facets.NewInvalidFilterError(def.FieldName, "contains takes exactly one value")
		}
	default:
		if len(operands) != 1 {
			return nil, facets.NewInvalidFilterError(def.FieldName, fmt.Sprintf("%s takes exactly one value", op))
		}
	}

	pred := &Predicate{Field: *def, Operator: op, operands: make([]string, 0, len(operands))}
	for _, operand := range operands {
		normalized, reason, ok := r.parseOperand(def, op, operand)
		if !ok {
			return nil, facets.NewInvalidFilterError(def.FieldName, fmt.Sprintf("invalid value %q: %s", operand, reason))
		}
		pred.operands = append(pred.operands, normalized)
	}

	if def.FieldType == facets.FieldTypeNumber {
		pred.numbers = make([]*big.Rat, len(pred.operands))
		for i, operand := range pred.operands {
			v, ok := new(big.Rat).SetString(operand)
			if !ok {
				return nil, facets.NewInvalidFilterError(def.FieldName, fmt.Sprintf("invalid value %q: %s", operand, reasonNotNumber))
			}
			pred.numbers[i] = v
		}
		if op == facets.OperatorBetween && pred.numbers[0].Cmp(pred.numbers[1]) > 0 {
			return nil, facets.NewInvalidFilterError(def.FieldName, "lower bound exceeds upper bound")
		}
	}
	if def.FieldType == facets.FieldTypeDate && op == facets.OperatorBetween && pred.operands[0] > pred.operands[1] {
		return nil, facets.NewInvalidFilterError(def.FieldName, "lower bound exceeds upper bound")
	}

	return pred, nil
}

// parseOperand normalizes a filter operand. Validation rules such as min or
// maxLength constrain stored values, not operands, so they are ignored here.
func (r *FieldTypeRegistry) parseOperand(def *facets.FieldDefinition, op facets.Operator, operand string) (string, string, bool) {
	trimmed := strings.TrimSpace(operand)
	if trimmed == "" {
		return "", reasonEmptyValue, false
	}

	unruled := *def
	unruled.ValidationRules = nil

	switch def.FieldType {
	case facets.FieldTypeText, facets.FieldTypeTextArea:
		if op == facets.OperatorContains || op == facets.OperatorStartsWith {
			return strings.ToLower(trimmed), "", true
		}
		return trimmed, "", true
	case facets.FieldTypeMultiSelect:
		return parseSelect(&unruled, trimmed)
	case facets.FieldTypeURL:
		if op == facets.OperatorContains || op == facets.OperatorStartsWith {
			return strings.ToLower(trimmed), "", true
		}
		return (&FieldTypeRegistry{}).parseURL(&unruled, trimmed)
	default:
		return (&FieldTypeRegistry{}).Parse(&unruled, trimmed)
	}
}

// Matches evaluates the predicate against one stored canonical value.
func (p *Predicate) Matches(canonical string) bool {
	switch p.Field.FieldType {
	case facets.FieldTypeNumber:
		v, ok := new(big.Rat).SetString(canonical)
		if !ok {
			return false
		}
		return compareNumbers(p.Operator, v, p.numbers)
	case facets.FieldTypeDate:
		return compareDates(p.Operator, canonical, p.operands)
	case facets.FieldTypeMultiSelect:
		var tokens []string
		if err := json.Unmarshal([]byte(canonical), &tokens); err != nil {
			return false
		}
		if p.Operator == facets.OperatorContainsAny {
			for _, operand := range p.operands {
				if slices.Contains(tokens, operand) {
					return true
				}
			}
			return false
		}
		for _, operand := range p.operands {
			if !slices.Contains(tokens, operand) {
				return false
			}
		}
		return true
	default:
		return matchString(p.Operator, canonical, p.operands)
	}
}

func matchString(op facets.Operator, value string, operands []string) bool {
	switch op {
	case facets.OperatorEquals:
		return value == operands[0]
	case facets.OperatorNotEquals:
		return value != operands[0]
	case facets.OperatorContains:
		return strings.Contains(strings.ToLower(value), operands[0])
	case facets.OperatorStartsWith:
		return strings.HasPrefix(strings.ToLower(value), operands[0])
	case facets.OperatorIn:
		return slices.Contains(operands, value)
	default:
		return false
	}
}

// compareDates orders ISO-8601 date text, which sorts lexicographically.
func compareDates(op facets.Operator, value string, operands []string) bool {
	switch op {
	case facets.OperatorEquals:
		return value == operands[0]
	case facets.OperatorNotEquals:
		return value != operands[0]
	case facets.OperatorGreaterThan:
		return value > operands[0]
	case facets.OperatorGreaterEq:
		return value >= operands[0]
	case facets.OperatorLessThan:
		return value < operands[0]
	case facets.OperatorLessEq:
		return value <= operands[0]
	case facets.OperatorBetween:
		return value >= operands[0] && value <= operands[1]
	default:
		return false
	}
}

func compareNumbers(op facets.Operator, value *big.Rat, operands []*big.Rat) bool {
	switch op {
	case facets.OperatorEquals:
		return value.Cmp(operands[0]) == 0
	case facets.OperatorNotEquals:
		return value.Cmp(operands[0]) != 0
	case facets.OperatorGreaterThan:
		return value.Cmp(operands[0]) > 0
	case facets.OperatorGreaterEq:
		return value.Cmp(operands[0]) >= 0
	case facets.OperatorLessThan:
		return value.Cmp(operands[0]) < 0
	case facets.OperatorLessEq:
		return value.Cmp(operands[0]) <= 0
	case facets.OperatorBetween:
		return value.Cmp(operands[0]) >= 0 && value.Cmp(operands[1]) <= 0
	default:
		return false
	}
}

// MatchesPredicate evaluates a single filter against a stored canonical value.
func (r *FieldTypeRegistry) MatchesPredicate(def *facets.FieldDefinition, canonical string, op facets.Operator, operands []string) (bool, error) {
	pred, err := r.CompilePredicate(def, op, operands)
	if err != nil {
		return false, err
	}
	return pred.Matches(canonical), nil
}
