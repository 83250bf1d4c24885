package internal

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/facets"
	"go.uber.org/zap"
)

// PostgresProfileRepository reads and mirrors structured profile columns in PostgreSQL.
type PostgresProfileRepository struct {
	pool   pgxPool
	tables facets.TableNames
}

func NewPostgresProfileRepository(pool pgxPool, tables facets.TableNames) *PostgresProfileRepository {
	return &PostgresProfileRepository{pool: pool, tables: tables}
}

func (r *PostgresProfileRepository) UpsertProfile(ctx context.Context, p *facets.Profile) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (profile_id) DO UPDATE SET
				category_id = EXCLUDED.category_id,
				display_name = EXCLUDED.display_name,
				city = EXCLUDED.city,
				experience_years = EXCLUDED.experience_years,
				rate_min = EXCLUDED.rate_min,
				rate_max = EXCLUDED.rate_max,
				is_available = EXCLUDED.is_available,
				updated_at = EXCLUDED.updated_at`,
		sanitizeIdentifier(r.tables.Profiles),
		profileColumns,
	)
	if _, err := r.pool.Exec(ctx, query,
		p.ProfileID,
		nullableInt64(p.CategoryID),
		p.DisplayName,
		p.City,
		p.ExperienceYears,
		p.RateMin,
		p.RateMax,
		p.IsAvailable,
		p.UpdatedAt,
	); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (r *PostgresProfileRepository) GetProfile(ctx context.Context, profileID uuid.UUID) (*facets.Profile, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE profile_id = $1", profileColumns, sanitizeIdentifier(r.tables.Profiles))
	profile, err := scanProfile(r.pool.QueryRow(ctx, query, profileID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query profile: %w", err)
	}
	return profile, nil
}

func (r *PostgresProfileRepository) SearchProfiles(ctx context.Context, q *ProfileQuery) ([]*facets.Profile, int64, error) {
	table := sanitizeIdentifier(r.tables.Profiles)
	where, args := buildProfileWhere(q, postgresPlaceholder)

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", table, where)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count profiles: %w", err)
	}
	if total == 0 {
		return []*facets.Profile{}, 0, nil
	}

	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY display_name, profile_id LIMIT $%d OFFSET $%d",
		profileColumns, table, where, len(args)+1, len(args)+2)
	pageArgs := append(append([]any{}, args...), q.Limit, q.Offset)
	zap.S().Debugw("search profiles", "query", query, "args", pageArgs)

	rows, err := r.pool.Query(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	profiles := make([]*facets.Profile, 0, q.Limit)
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate profiles: %w", err)
	}
	return profiles, total, nil
}
