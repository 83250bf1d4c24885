package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lychee-technology/facets"
	"go.uber.org/zap"
)

const profileIDColumn = "profile_id"

// ImportError describes why a single CSV row or cell was rejected.
type ImportError struct {
	RowNumber int    // CSV row number (1-based, including header)
	Column    string // CSV column that caused the error, empty for row-level errors
	RawValue  string
	Reason    string
}

func (e *ImportError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("row %d: %s", e.RowNumber, e.Reason)
	}
	return fmt.Sprintf("row %d, column %q: value %q - %s", e.RowNumber, e.Column, e.RawValue, e.Reason)
}

// ImportResult contains the results of a CSV import.
type ImportResult struct {
	TotalRows    int // data rows, excluding the header
	SuccessCount int
	FailedCount  int
	Errors       []*ImportError
	Duration     time.Duration
}

// Summary returns a human-readable summary of the import result.
func (r *ImportResult) Summary() string {
	return fmt.Sprintf("Import completed: %d/%d rows successful, %d failed, duration: %v",
		r.SuccessCount, r.TotalRows, r.FailedCount, r.Duration)
}

func runImportAttributes(args []string) error {
	flags := flag.NewFlagSet("import-attributes", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: facets-tools import-attributes -category <code> -file <values.csv> [options]")
		fmt.Println("")
		fmt.Println("The CSV needs a profile_id column; every other column is a field name.")
		fmt.Println("Multi-select cells separate options with '|'. Empty cells are skipped.")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	config := bindConfigFlags(flags)
	code := flags.String("category", "", "Category code the values belong to")
	file := flags.String("file", "", "CSV file to import")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if *file == "" {
		return fmt.Errorf("-file is required")
	}

	ctx := context.Background()
	engine, err := openEngine(ctx, config)
	if err != nil {
		return err
	}
	defer engine.close()

	category, err := engine.categoryByCode(ctx, *code)
	if err != nil {
		return err
	}

	f, err := os.Open(*file)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer f.Close()

	result, err := importAttributes(ctx, engine, category.ID, f)
	if err != nil {
		return err
	}
	fmt.Println(result.Summary())
	for _, importErr := range result.Errors {
		fmt.Println("  " + importErr.Error())
	}
	if result.FailedCount > 0 {
		return fmt.Errorf("%d rows failed", result.FailedCount)
	}
	return nil
}

// importAttributes submits every CSV row as a partial submission for its
// profile. Rows fail independently.
func importAttributes(ctx context.Context, engine facets.Engine, categoryID int64, reader io.Reader) (*ImportResult, error) {
	start := time.Now()

	desc, err := engine.DescribeSchema(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	fieldTypes := make(map[string]facets.FieldType, len(desc.Fields))
	for _, def := range desc.Fields {
		fieldTypes[def.FieldName] = def.FieldType
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	header, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	idColumn := -1
	for idx, col := range header {
		header[idx] = strings.TrimSpace(col)
		if header[idx] == profileIDColumn {
			idColumn = idx
		}
	}
	if idColumn < 0 {
		return nil, fmt.Errorf("CSV header has no %s column", profileIDColumn)
	}

	result := &ImportResult{Errors: make([]*ImportError, 0)}
	rowNum := 1 // header
	for {
		rowNum++
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		result.TotalRows++
		if err != nil {
			result.fail(&ImportError{RowNumber: rowNum, Reason: fmt.Sprintf("CSV parsing error: %v", err)})
			continue
		}

		profileID, err := uuid.Parse(strings.TrimSpace(record[idColumn]))
		if err != nil {
			result.fail(&ImportError{RowNumber: rowNum, Column: profileIDColumn, RawValue: record[idColumn], Reason: "invalid profile id"})
			continue
		}

		raw := make(map[string]string, len(header))
		submission := make(facets.Submission, len(header))
		for idx, col := range header {
			if idx == idColumn || idx >= len(record) {
				continue
			}
			cell := strings.TrimSpace(record[idx])
			if cell == "" {
				continue
			}
			raw[col] = cell
			submission[col] = cellValue(fieldTypes[col], cell)
		}
		if len(submission) == 0 {
			result.SuccessCount++
			continue
		}

		_, err = engine.SubmitAttributes(ctx, &facets.SubmissionRequest{
			ProfileID:  profileID,
			CategoryID: categoryID,
			Values:     submission,
			Options:    facets.SubmitOptions{Partial: true},
		})
		if err != nil {
			result.fail(rowErrors(rowNum, raw, err)...)
			continue
		}
		result.SuccessCount++
	}

	result.Duration = time.Since(start)
	zap.S().Infow("CSV import finished", "category", desc.Category.Code,
		"rows", result.TotalRows, "failed", result.FailedCount, "duration", result.Duration)
	return result, nil
}

func (r *ImportResult) fail(errs ...*ImportError) {
	r.FailedCount++
	r.Errors = append(r.Errors, errs...)
}

// cellValue turns a CSV cell into the submission value for a field type.
// Unknown columns pass through so the validator can reject them.
func cellValue(fieldType facets.FieldType, cell string) any {
	if fieldType != facets.FieldTypeMultiSelect {
		return cell
	}
	parts := strings.Split(cell, "|")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// rowErrors expands a submission failure into one error per offending column.
func rowErrors(rowNum int, raw map[string]string, err error) []*ImportError {
	fe, ok := facets.AsFacetsError(err)
	if !ok || len(fe.Fields) == 0 {
		return []*ImportError{{RowNumber: rowNum, Reason: err.Error()}}
	}
	out := make([]*ImportError, 0, len(fe.Fields))
	for _, name := range fe.Fields.Fields() {
		out = append(out, &ImportError{RowNumber: rowNum, Column: name, RawValue: raw[name], Reason: fe.Fields[name]})
	}
	return out
}
