package internal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lychee-technology/facets"
	"go.uber.org/zap"
)

const (
	defaultPageSize      = 20
	defaultMaxPageSize   = 100
	defaultMaxCandidates = 10000
)

// QueryEngine answers profile searches that combine structured profile
// columns with attribute filters evaluated by the field type registry.
type QueryEngine struct {
	schemas  SnapshotSource
	profiles ProfileRepository
	values   AttributeRepository
	registry *FieldTypeRegistry
	cfg      facets.QueryConfig
}

func NewQueryEngine(schemas SnapshotSource, profiles ProfileRepository, values AttributeRepository, registry *FieldTypeRegistry, cfg facets.QueryConfig) *QueryEngine {
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = defaultPageSize
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = defaultMaxPageSize
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = defaultMaxCandidates
	}
	return &QueryEngine{
		schemas:  schemas,
		profiles: profiles,
		values:   values,
		registry: registry,
		cfg:      cfg,
	}
}

// Search returns one page of profiles matching every supplied filter,
// ordered by display name then profile id.
func (q *QueryEngine) Search(ctx context.Context, req *facets.SearchRequest) (*facets.SearchResult, error) {
	start := time.Now()
	if req == nil {
		req = &facets.SearchRequest{}
	}

	page, size, err := q.normalizePage(req.Page, req.ItemsPerPage)
	if err != nil {
		return nil, err
	}
	if err := validateStructured(&req.Structured); err != nil {
		return nil, err
	}

	if q.cfg.DefaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.cfg.DefaultTimeout)
		defer cancel()
	}

	if len(req.Attributes) == 0 {
		profiles, total, err := q.profiles.SearchProfiles(ctx, &ProfileQuery{
			CategoryID: req.CategoryID,
			Structured: req.Structured,
			Limit:      size,
			Offset:     (page - 1) * size,
		})
		if err != nil {
			return nil, facets.NewStorageError("failed to search profiles", err)
		}
		EmitLatency(ctx, "search", time.Since(start).Milliseconds())
		return buildSearchResult(profiles, int(total), page, size, start), nil
	}

	predicates, err := q.compileFilters(ctx, req)
	if err != nil {
		return nil, err
	}

	from := (page - 1) * size
	var (
		window  []*facets.Profile
		matched int
		scanned int64
	)
	for offset := 0; ; offset += q.cfg.MaxCandidates {
		batch, total, err := q.profiles.SearchProfiles(ctx, &ProfileQuery{
			CategoryID: req.CategoryID,
			Structured: req.Structured,
			Limit:      q.cfg.MaxCandidates,
			Offset:     offset,
		})
		if err != nil {
			return nil, facets.NewStorageError("failed to search profiles", err)
		}
		scanned += int64(len(batch))

		hits, err := q.applyPredicates(ctx, batch, predicates)
		if err != nil {
			return nil, err
		}
		for _, p := range hits {
			if matched >= from && len(window) < size {
				window = append(window, p)
			}
			matched++
		}

		if len(batch) < q.cfg.MaxCandidates || int64(offset+len(batch)) >= total {
			break
		}
	}
	EmitCount(ctx, "search_candidates", scanned)
	EmitLatency(ctx, "search_attributes", time.Since(start).Milliseconds())
	return buildSearchResult(window, matched, page, size, start), nil
}

func (q *QueryEngine) normalizePage(page, size int) (int, int, error) {
	if page < 0 {
		return 0, 0, facets.NewInvalidPageError("page cannot be negative")
	}
	if size < 0 {
		return 0, 0, facets.NewInvalidPageError("items per page cannot be negative")
	}
	if page == 0 {
		page = 1
	}
	if size == 0 {
		size = q.cfg.DefaultPageSize
	}
	if size > q.cfg.MaxPageSize {
		size = q.cfg.MaxPageSize
	}
	return page, size, nil
}

func validateStructured(s *facets.StructuredFilter) error {
	if s.MinExperienceYears != nil && *s.MinExperienceYears < 0 {
		return facets.NewInvalidFilterError("minExperienceYears", "experience cannot be negative")
	}
	if s.MaxExperienceYears != nil && *s.MaxExperienceYears < 0 {
		return facets.NewInvalidFilterError("maxExperienceYears", "experience cannot be negative")
	}
	if s.MinExperienceYears != nil && s.MaxExperienceYears != nil && *s.MinExperienceYears > *s.MaxExperienceYears {
		return facets.NewInvalidFilterError("minExperienceYears", "minimum experience exceeds maximum")
	}
	if s.RateMin != nil && *s.RateMin < 0 {
		return facets.NewInvalidFilterError("rateMin", "rate cannot be negative")
	}
	if s.RateMax != nil && *s.RateMax < 0 {
		return facets.NewInvalidFilterError("rateMax", "rate cannot be negative")
	}
	if s.RateMin != nil && s.RateMax != nil && *s.RateMin > *s.RateMax {
		return facets.NewInvalidFilterError("rateMin", "minimum rate exceeds maximum")
	}
	return nil
}

// compileFilters resolves every attribute filter against the active schema of
// the requested category.
func (q *QueryEngine) compileFilters(ctx context.Context, req *facets.SearchRequest) ([]*Predicate, error) {
	if req.CategoryID == 0 {
		return nil, facets.NewInvalidFilterError(req.Attributes[0].FieldName, "attribute filters require a category")
	}
	snapshot, err := q.schemas.Snapshot(ctx, req.CategoryID)
	if err != nil {
		return nil, err
	}

	predicates := make([]*Predicate, 0, len(req.Attributes))
	for _, f := range req.Attributes {
		def, ok := snapshot.ActiveField(f.FieldName)
		if !ok {
			return nil, facets.NewUnknownFieldNameError(req.CategoryID, f.FieldName)
		}
		if !def.IsSearchable {
			return nil, facets.NewFieldNotSearchableError(f.FieldName)
		}
		pred, err := q.registry.CompilePredicate(def, f.Operator, filterOperands(f))
		if err != nil {
			return nil, err
		}
		predicates = append(predicates, pred)
	}
	return predicates, nil
}

// filterOperands flattens Value and Values into one operand list.
func filterOperands(f facets.AttributeFilter) []string {
	switch {
	case f.Value == "":
		return f.Values
	case len(f.Values) == 0:
		return []string{f.Value}
	default:
		return append([]string{f.Value}, f.Values...)
	}
}

// applyPredicates narrows the candidates one predicate at a time. Profiles
// without a stored value for a filtered field never match.
func (q *QueryEngine) applyPredicates(ctx context.Context, candidates []*facets.Profile, predicates []*Predicate) ([]*facets.Profile, error) {
	matched := candidates
	for _, pred := range predicates {
		if len(matched) == 0 {
			break
		}
		ids := make([]uuid.UUID, len(matched))
		for i, p := range matched {
			ids[i] = p.ProfileID
		}

		values, err := q.values.ValuesByField(ctx, pred.Field.ID, ids)
		if err != nil {
			return nil, facets.NewStorageError("failed to load attribute values", err)
		}

		next := make([]*facets.Profile, 0, len(matched))
		for _, p := range matched {
			if v, ok := values[p.ProfileID]; ok && pred.Matches(v) {
				next = append(next, p)
			}
		}
		zap.S().Debugw("attribute filter applied",
			"field", pred.Field.FieldName, "operator", pred.Operator, "before", len(matched), "after", len(next))
		matched = next
	}
	return matched, nil
}

func buildSearchResult(profiles []*facets.Profile, total, page, size int, start time.Time) *facets.SearchResult {
	if profiles == nil {
		profiles = []*facets.Profile{}
	}
	totalPages := 0
	if total > 0 {
		totalPages = (total + size - 1) / size
	}
	return &facets.SearchResult{
		Data:          profiles,
		TotalRecords:  total,
		TotalPages:    totalPages,
		CurrentPage:   page,
		ItemsPerPage:  size,
		HasNext:       page < totalPages,
		HasPrevious:   page > 1,
		ExecutionTime: time.Since(start),
	}
}
