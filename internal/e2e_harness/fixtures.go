package e2e_harness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"github.com/lychee-technology/facets"
	"github.com/lychee-technology/facets/internal"
)

// BootstrapSchema applies the PostgreSQL DDL through a database/sql handle.
func BootstrapSchema(ctx context.Context, db *sql.DB, tables facets.TableNames) error {
	for _, stmt := range internal.PostgresDDL(tables) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

// EnsureBucket creates bucket unless it already exists.
func EnsureBucket(ctx context.Context, client *s3.Client, bucket string) error {
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err == nil {
		return nil
	}
	if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
				return nil
			}
		}
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

// MusicianSeed is the catalog and profiles created by SeedMusicians.
type MusicianSeed struct {
	Category *facets.Category
	Sitarist uuid.UUID
	Drummer  uuid.UUID
}

// SeedMusicians registers the MUSICIAN category and two complete profiles.
func SeedMusicians(ctx context.Context, engine facets.Engine) (*MusicianSeed, error) {
	category, err := engine.RegisterCategory(ctx, &facets.CategoryRequest{Code: "MUSICIAN", DisplayName: "Musician"})
	if err != nil {
		return nil, fmt.Errorf("register category: %w", err)
	}

	fields := []facets.FieldRequest{
		{FieldName: "instruments", DisplayName: "Instruments", FieldType: facets.FieldTypeMultiSelect,
			Options: []string{"Sitar", "Tabla", "Drums"}, IsRequired: true, IsSearchable: true, SortOrder: 1},
		{FieldName: "gigs_per_year", DisplayName: "Gigs per year", FieldType: facets.FieldTypeNumber,
			IsSearchable: true, SortOrder: 2, ValidationRules: &facets.ValidationRules{Min: aws.Float64(0)}},
		{FieldName: "touring", DisplayName: "Touring", FieldType: facets.FieldTypeBoolean, IsSearchable: true, SortOrder: 3},
	}
	for i := range fields {
		fields[i].CategoryID = category.ID
		if _, err := engine.AddField(ctx, &fields[i]); err != nil {
			return nil, fmt.Errorf("add field %s: %w", fields[i].FieldName, err)
		}
	}

	seed := &MusicianSeed{Category: category, Sitarist: uuid.New(), Drummer: uuid.New()}
	profiles := []struct {
		id     uuid.UUID
		name   string
		values facets.Submission
	}{
		{seed.Sitarist, "Anoushka", facets.Submission{"instruments": []string{"Sitar"}, "gigs_per_year": 48, "touring": true}},
		{seed.Drummer, "Marco", facets.Submission{"instruments": []string{"Drums", "Tabla"}, "gigs_per_year": "120", "touring": "false"}},
	}
	for _, p := range profiles {
		if err := engine.SyncProfile(ctx, &facets.Profile{ProfileID: p.id, CategoryID: category.ID, DisplayName: p.name, City: "Mumbai", IsAvailable: true}); err != nil {
			return nil, fmt.Errorf("sync profile %s: %w", p.name, err)
		}
		if _, err := engine.SubmitAttributes(ctx, &facets.SubmissionRequest{ProfileID: p.id, CategoryID: category.ID, Values: p.values}); err != nil {
			return nil, fmt.Errorf("submit attributes %s: %w", p.name, err)
		}
	}
	return seed, nil
}
