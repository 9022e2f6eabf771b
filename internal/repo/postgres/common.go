package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/footprint-labs/footprint-go/internal/domain"
	"github.com/footprint-labs/footprint-go/internal/repo"
)

type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func nullIfEmpty(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func encodeResults(results *domain.RunResults) ([]byte, error) {
	if results == nil {
		results = domain.NewRunResults()
	}
	blob, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("encode results: %w", err)
	}
	return blob, nil
}

func decodeResults(raw []byte) (*domain.RunResults, error) {
	if len(raw) == 0 {
		return domain.NewRunResults(), nil
	}
	out := domain.NewRunResults()
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	return out, nil
}

func handleNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repo.ErrNotFound
	}
	return err
}

// requireTransition converts a zero-row CAS update into ErrStaleTransition.
func requireTransition(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return repo.ErrStaleTransition
	}
	return nil
}
