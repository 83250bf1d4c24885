package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lychee-technology/facets"
)

var (
	cities    = []string{"Mumbai", "Delhi", "Bengaluru", "Chennai", "Kolkata", "Pune", "Goa", "Jaipur"}
	wordsPool = []string{"stage", "studio", "live", "classical", "modern", "touring", "session", "lead", "ensemble", "solo"}
	dateStart = time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
)

// Optional fields get a value this often.
const optionalFillRate = 0.7

// generator produces random but valid submissions and searches for one category.
type generator struct {
	r          *rand.Rand
	desc       *facets.SchemaDescription
	searchable []facets.FieldDefinition
}

func newGenerator(r *rand.Rand, desc *facets.SchemaDescription) *generator {
	g := &generator{r: r, desc: desc}
	for _, def := range desc.Fields {
		if def.IsActive && def.IsSearchable && filterable(def.FieldType) {
			g.searchable = append(g.searchable, def)
		}
	}
	return g
}

type populateReport struct {
	values  int
	elapsed time.Duration
}

func (g *generator) populate(ctx context.Context, engine facets.Engine, count int) (*populateReport, error) {
	report := &populateReport{}
	start := time.Now()
	for i := range count {
		profile := g.profile(i)
		if err := engine.SyncProfile(ctx, profile); err != nil {
			return nil, fmt.Errorf("sync profile %d: %w", i, err)
		}
		result, err := engine.SubmitAttributes(ctx, &facets.SubmissionRequest{
			ProfileID:  profile.ProfileID,
			CategoryID: g.desc.Category.ID,
			Values:     g.submission(),
		})
		if err != nil {
			return nil, fmt.Errorf("submit profile %d: %w", i, err)
		}
		report.values += len(result.Written)
	}
	report.elapsed = time.Since(start)
	return report, nil
}

func (g *generator) profile(i int) *facets.Profile {
	experience := g.r.Intn(30)
	rateMin := float64(100 + g.r.Intn(400))
	rateMax := rateMin + float64(g.r.Intn(600))
	return &facets.Profile{
		ProfileID:       uuid.New(),
		CategoryID:      g.desc.Category.ID,
		DisplayName:     fmt.Sprintf("%s %d", g.desc.Category.DisplayName, i+1),
		City:            randomChoice(g.r, cities),
		ExperienceYears: &experience,
		RateMin:         &rateMin,
		RateMax:         &rateMax,
		IsAvailable:     g.r.Intn(4) != 0,
	}
}

func (g *generator) submission() facets.Submission {
	sub := make(facets.Submission, len(g.desc.Fields))
	for i := range g.desc.Fields {
		def := &g.desc.Fields[i]
		if !def.IsActive {
			continue
		}
		if !def.IsRequired && g.r.Float64() > optionalFillRate {
			continue
		}
		sub[def.FieldName] = g.value(def)
	}
	return sub
}

func (g *generator) value(def *facets.FieldDefinition) any {
	rules := def.ValidationRules
	if rules == nil {
		rules = &facets.ValidationRules{}
	}
	switch def.FieldType {
	case facets.FieldTypeNumber:
		return g.number(rules)
	case facets.FieldTypeBoolean:
		return g.r.Intn(2) == 0
	case facets.FieldTypeSelect:
		return randomChoice(g.r, def.Options)
	case facets.FieldTypeMultiSelect:
		lo, hi := 1, len(def.Options)
		if rules.MinItems != nil && *rules.MinItems > lo {
			lo = *rules.MinItems
		}
		if rules.MaxItems != nil && *rules.MaxItems < hi {
			hi = *rules.MaxItems
		}
		return uniqueSample(g.r, def.Options, lo+g.r.Intn(hi-lo+1))
	case facets.FieldTypeURL:
		return fmt.Sprintf("https://example.com/%s/%d", strings.ToLower(g.desc.Category.Code), g.r.Intn(1_000_000))
	case facets.FieldTypeDate:
		return dateStart.AddDate(0, 0, g.r.Intn(12000)).Format(time.DateOnly)
	case facets.FieldTypeFileReference:
		return "doc-" + strings.ReplaceAll(uuid.NewString(), "-", "")
	default:
		return g.text(rules)
	}
}

func (g *generator) number(rules *facets.ValidationRules) string {
	lo, hi := 0.0, 100.0
	if rules.Min != nil {
		lo = *rules.Min
	}
	if rules.Max != nil {
		hi = *rules.Max
	} else if rules.Min != nil {
		hi = lo + 100
	}
	precision := 2
	if rules.Precision != nil {
		precision = *rules.Precision
	}
	v := lo + g.r.Float64()*(hi-lo)
	scale := math.Pow(10, float64(precision))
	v = math.Floor(v*scale) / scale
	if v < lo {
		v = lo
	}
	return strconv.FormatFloat(v, 'f', precision, 64)
}

func (g *generator) text(rules *facets.ValidationRules) string {
	text := strings.Join(uniqueSample(g.r, wordsPool, 2+g.r.Intn(3)), " ")
	if rules.MaxLength != nil && len(text) > *rules.MaxLength {
		text = text[:*rules.MaxLength]
	}
	for rules.MinLength != nil && len(text) < *rules.MinLength {
		text += " " + randomChoice(g.r, wordsPool)
	}
	return text
}

// filter builds a random attribute filter that some generated profiles match.
func (g *generator) filter(def *facets.FieldDefinition) facets.AttributeFilter {
	f := facets.AttributeFilter{FieldName: def.FieldName}
	switch def.FieldType {
	case facets.FieldTypeNumber:
		a, _ := strconv.ParseFloat(g.number(ruleSet(def)), 64)
		b, _ := strconv.ParseFloat(g.number(ruleSet(def)), 64)
		f.Operator = facets.OperatorBetween
		f.Values = []string{formatNumber(math.Min(a, b)), formatNumber(math.Max(a, b))}
	case facets.FieldTypeBoolean:
		f.Operator = facets.OperatorEquals
		f.Value = strconv.FormatBool(g.r.Intn(2) == 0)
	case facets.FieldTypeSelect:
		f.Operator = facets.OperatorEquals
		f.Value = randomChoice(g.r, def.Options)
	case facets.FieldTypeMultiSelect:
		f.Operator = facets.OperatorContainsAny
		f.Values = uniqueSample(g.r, def.Options, 2)
	case facets.FieldTypeDate:
		a := dateStart.AddDate(0, 0, g.r.Intn(12000))
		f.Operator = facets.OperatorBetween
		f.Values = []string{a.Format(time.DateOnly), a.AddDate(5, 0, 0).Format(time.DateOnly)}
	}
	return f
}

func (g *generator) runSearches(ctx context.Context, engine facets.Engine, count int) (*searchReport, error) {
	report := &searchReport{latencies: make([]time.Duration, 0, count)}
	for range count {
		req := &facets.SearchRequest{CategoryID: g.desc.Category.ID, ItemsPerPage: 20, Page: 1}
		if len(g.searchable) > 0 {
			for _, idx := range g.r.Perm(len(g.searchable))[:min(len(g.searchable), 1+g.r.Intn(2))] {
				req.Attributes = append(req.Attributes, g.filter(&g.searchable[idx]))
			}
		}
		start := time.Now()
		result, err := engine.Search(ctx, req)
		if err != nil {
			return nil, err
		}
		report.latencies = append(report.latencies, time.Since(start))
		report.matches += result.TotalRecords
		report.count++
	}
	return report, nil
}

func filterable(ft facets.FieldType) bool {
	switch ft {
	case facets.FieldTypeNumber, facets.FieldTypeBoolean, facets.FieldTypeSelect, facets.FieldTypeMultiSelect, facets.FieldTypeDate:
		return true
	}
	return false
}

func ruleSet(def *facets.FieldDefinition) *facets.ValidationRules {
	if def.ValidationRules == nil {
		return &facets.ValidationRules{}
	}
	return def.ValidationRules
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func randomChoice(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}

func uniqueSample(r *rand.Rand, values []string, count int) []string {
	if count <= 0 {
		return []string{}
	}
	if count >= len(values) {
		return append([]string{}, values...)
	}

	perm := r.Perm(len(values))
	result := make([]string, 0, count)
	for i := 0; i < count; i++ {
		result = append(result, values[perm[i]])
	}
	return result
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
