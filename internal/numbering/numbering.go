// Package numbering issues document numbers from per-kind PostgreSQL
// sequences. Numbers are unique and monotonically increasing per kind
// but may have gaps after rolled-back transactions.
package numbering

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var prefixes = map[string]string{
	"sales_case":  "SC",
	"quotation":   "QT",
	"sales_order": "SO",
	"invoice":     "IN",
}

// Source implements shared.NumberSource on a doc_sequences table.
type Source struct {
	pool *pgxpool.Pool
}

// NewSource constructs a Source.
func NewSource(pool *pgxpool.Pool) *Source {
	return &Source{pool: pool}
}

// Next returns the next document number for kind, e.g. "QT-2026-000042".
func (s *Source) Next(ctx context.Context, kind string) (string, error) {
	prefix, ok := prefixes[kind]
	if !ok {
		return "", fmt.Errorf("numbering: unknown kind %q", kind)
	}

	var n int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO doc_sequences (kind, last_value)
		VALUES ($1, 1)
		ON CONFLICT (kind) DO UPDATE SET last_value = doc_sequences.last_value + 1
		RETURNING last_value`, kind).Scan(&n)
	if err != nil {
		return "", fmt.Errorf("numbering: next %s: %w", kind, err)
	}
	return fmt.Sprintf("%s-%d-%06d", prefix, time.Now().UTC().Year(), n), nil
}
