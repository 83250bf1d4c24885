package internal

import (
	"strings"

	"github.com/jackc/pgx/v5"
)

func sanitizeIdentifier(name string) string {
	if name == "" {
		return ""
	}
	parts := strings.Split(name, ".")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.Trim(part, " \"")
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}
	if len(clean) == 0 {
		clean = []string{name}
	}
	return pgx.Identifier(clean).Sanitize()
}

// indexName derives an index identifier from a possibly schema-qualified table name.
func indexName(table, suffix string) string {
	base := strings.ReplaceAll(strings.Trim(table, "\""), ".", "_")
	return sanitizeIdentifier("idx_" + base + "_" + suffix)
}

// chunk splits items into consecutive slices of at most size elements.
func chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) <= size {
		if len(items) == 0 {
			return nil
		}
		return [][]T{items}
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for i := 0; i < len(items); i += size {
		end := min(i+size, len(items))
		chunks = append(chunks, items[i:end])
	}
	return chunks
}

func nullableInt64(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
