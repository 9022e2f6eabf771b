package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/footprint-labs/footprint-go/internal/domain"
	"github.com/footprint-labs/footprint-go/internal/repo"
)

type ExportStore struct {
	db DB
}

func NewExportStore(db DB) *ExportStore {
	if db == nil {
		return nil
	}
	return &ExportStore{db: db}
}

func (s *ExportStore) CreateExport(ctx context.Context, export domain.Export) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("export store not initialized")
	}
	if err := export.Validate(); err != nil {
		return err
	}
	aoiJSON, err := json.Marshal(export.AOI)
	if err != nil {
		return fmt.Errorf("encode aoi: %w", err)
	}
	sourcesJSON, err := json.Marshal(export.Sources)
	if err != nil {
		return fmt.Errorf("encode sources: %w", err)
	}
	formatsJSON, err := json.Marshal(export.Formats)
	if err != nil {
		return fmt.Errorf("encode formats: %w", err)
	}
	configs := export.SourceConfigs
	if configs == nil {
		configs = map[domain.Source]map[string]any{}
	}
	configsJSON, err := json.Marshal(configs)
	if err != nil {
		return fmt.Errorf("encode source configs: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO exports (
			export_id,
			owner_id,
			name,
			description,
			area_of_interest,
			sources,
			output_formats,
			source_configs,
			is_public,
			notify_email,
			created_at,
			updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		strings.TrimSpace(export.ID),
		strings.TrimSpace(export.OwnerID),
		strings.TrimSpace(export.Name),
		export.Description,
		aoiJSON,
		sourcesJSON,
		formatsJSON,
		configsJSON,
		export.IsPublic,
		nullIfEmpty(export.NotifyEmail),
		normalizeTime(export.CreatedAt),
		normalizeTime(export.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert export: %w", err)
	}
	return nil
}

func (s *ExportStore) GetExport(ctx context.Context, id string) (domain.Export, error) {
	if s == nil || s.db == nil {
		return domain.Export{}, fmt.Errorf("export store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Export{}, fmt.Errorf("export id is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT export_id, owner_id, name, description, area_of_interest,
			sources, output_formats, source_configs, is_public, notify_email, created_at, updated_at
		 FROM exports
		 WHERE export_id = $1`,
		id,
	)
	return scanExport(row)
}

func (s *ExportStore) ListExports(ctx context.Context, filter repo.ExportFilter) ([]domain.Export, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("export store not initialized")
	}
	query := `SELECT export_id, owner_id, name, description, area_of_interest,
		sources, output_formats, source_configs, is_public, notify_email, created_at, updated_at
	 FROM exports`
	var (
		where []string
		args  []any
	)
	if strings.TrimSpace(filter.OwnerID) != "" {
		args = append(args, strings.TrimSpace(filter.OwnerID))
		where = append(where, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if filter.IsPublic != nil {
		args = append(args, *filter.IsPublic)
		where = append(where, fmt.Sprintf("is_public = $%d", len(args)))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Export
	for rows.Next() {
		export, err := scanExport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, export)
	}
	return out, rows.Err()
}

func (s *ExportStore) HasActiveRun(ctx context.Context, exportID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("export store not initialized")
	}
	exportID = strings.TrimSpace(exportID)
	if exportID == "" {
		return false, fmt.Errorf("export id is required")
	}
	var exists bool
	err := s.db.QueryRowContext(
		ctx,
		`SELECT EXISTS (
			SELECT 1 FROM export_runs
			WHERE export_id = $1 AND status IN ('pending','queued','processing')
		)`,
		exportID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active run: %w", err)
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExport(row rowScanner) (domain.Export, error) {
	var (
		export      domain.Export
		description sql.NullString
		notifyEmail sql.NullString
		aoiJSON     []byte
		sourcesJSON []byte
		formatsJSON []byte
		configsJSON []byte
	)
	if err := row.Scan(&export.ID, &export.OwnerID, &export.Name, &description, &aoiJSON,
		&sourcesJSON, &formatsJSON, &configsJSON, &export.IsPublic, &notifyEmail,
		&export.CreatedAt, &export.UpdatedAt); err != nil {
		return domain.Export{}, handleNotFound(err)
	}
	export.Description = description.String
	export.NotifyEmail = notifyEmail.String
	if err := json.Unmarshal(aoiJSON, &export.AOI); err != nil {
		return domain.Export{}, fmt.Errorf("decode aoi: %w", err)
	}
	if err := json.Unmarshal(sourcesJSON, &export.Sources); err != nil {
		return domain.Export{}, fmt.Errorf("decode sources: %w", err)
	}
	if err := json.Unmarshal(formatsJSON, &export.Formats); err != nil {
		return domain.Export{}, fmt.Errorf("decode formats: %w", err)
	}
	if len(configsJSON) > 0 {
		if err := json.Unmarshal(configsJSON, &export.SourceConfigs); err != nil {
			return domain.Export{}, fmt.Errorf("decode source configs: %w", err)
		}
	}
	return export, nil
}
