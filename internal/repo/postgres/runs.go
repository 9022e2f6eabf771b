package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/footprint-labs/footprint-go/internal/domain"
	"github.com/footprint-labs/footprint-go/internal/repo"
)

type RunStore struct {
	db DB
}

func NewRunStore(db DB) *RunStore {
	if db == nil {
		return nil
	}
	return &RunStore{db: db}
}

func (s *RunStore) CreateRun(ctx context.Context, run domain.ExportRun) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	if err := run.Validate(); err != nil {
		return err
	}
	resultsJSON, err := encodeResults(run.Results)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO export_runs (
			run_id,
			export_id,
			status,
			results,
			started_at,
			completed_at,
			error_message,
			task_id,
			archive_key,
			tiles_key,
			created_at,
			updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		strings.TrimSpace(run.ID),
		strings.TrimSpace(run.ExportID),
		string(run.Status),
		resultsJSON,
		nullTime(run.StartedAt),
		nullTime(run.CompletedAt),
		nullIfEmpty(run.ErrorMessage),
		nullIfEmpty(run.TaskID),
		nullIfEmpty(run.ArchiveKey),
		nullIfEmpty(run.TilesKey),
		normalizeTime(run.CreatedAt),
		normalizeTime(run.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

const runColumns = `run_id, export_id, status, results, started_at, completed_at,
	error_message, task_id, archive_key, tiles_key, created_at, updated_at`

func (s *RunStore) GetRun(ctx context.Context, id string) (domain.ExportRun, error) {
	if s == nil || s.db == nil {
		return domain.ExportRun{}, fmt.Errorf("run store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ExportRun{}, fmt.Errorf("run id is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+runColumns+` FROM export_runs WHERE run_id = $1`,
		id,
	)
	return scanRun(row)
}

func (s *RunStore) ListRuns(ctx context.Context, filter repo.RunFilter) ([]domain.ExportRun, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("run store not initialized")
	}
	query := `SELECT ` + runColumns + ` FROM export_runs`
	var (
		where []string
		args  []any
	)
	if strings.TrimSpace(filter.ExportID) != "" {
		args = append(args, strings.TrimSpace(filter.ExportID))
		where = append(where, fmt.Sprintf("export_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
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
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.ExportRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *RunStore) SetTaskID(ctx context.Context, id, taskID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE export_runs SET task_id = $2, updated_at = NOW() WHERE run_id = $1`,
		strings.TrimSpace(id),
		strings.TrimSpace(taskID),
	)
	if err != nil {
		return fmt.Errorf("set task id: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *RunStore) MarkQueued(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE export_runs
		 SET status = 'queued', updated_at = NOW()
		 WHERE run_id = $1 AND status = 'pending'`,
		strings.TrimSpace(id),
	)
	if err != nil {
		return fmt.Errorf("mark queued: %w", err)
	}
	return requireTransition(res)
}

func (s *RunStore) MarkProcessing(ctx context.Context, id string, startedAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE export_runs
		 SET status = 'processing', started_at = $2, updated_at = NOW()
		 WHERE run_id = $1 AND status = 'queued'`,
		strings.TrimSpace(id),
		startedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	return requireTransition(res)
}

func (s *RunStore) Complete(ctx context.Context, id string, results *domain.RunResults, archiveKey, tilesKey string, completedAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	resultsJSON, err := encodeResults(results)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE export_runs
		 SET status = 'completed', results = $2, archive_key = $3, tiles_key = $4,
			completed_at = $5, updated_at = NOW()
		 WHERE run_id = $1 AND status = 'processing'`,
		strings.TrimSpace(id),
		resultsJSON,
		nullIfEmpty(archiveKey),
		nullIfEmpty(tilesKey),
		completedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return requireTransition(res)
}

func (s *RunStore) Fail(ctx context.Context, id string, errorMessage string, completedAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE export_runs
		 SET status = 'failed', error_message = $2, completed_at = $3, updated_at = NOW()
		 WHERE run_id = $1 AND status NOT IN ('completed','failed')`,
		strings.TrimSpace(id),
		errorMessage,
		completedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("fail run: %w", err)
	}
	return requireTransition(res)
}

func (s *RunStore) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.ExportRun, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("run store not initialized")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+runColumnsPrefixed("r")+`
		 FROM export_runs r
		 JOIN exports e ON e.export_id = r.export_id
		 WHERE r.status IN ('completed','failed')
		   AND r.created_at < $1
		   AND e.is_public = FALSE
		 ORDER BY r.created_at ASC
		 LIMIT $2`,
		cutoff.UTC(),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list finished runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.ExportRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *RunStore) DeleteRun(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM export_runs WHERE run_id = $1`,
		strings.TrimSpace(id),
	)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func runColumnsPrefixed(alias string) string {
	cols := strings.Split(runColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

func scanRun(row rowScanner) (domain.ExportRun, error) {
	var (
		run          domain.ExportRun
		status       string
		resultsJSON  []byte
		startedAt    sql.NullTime
		completedAt  sql.NullTime
		errorMessage sql.NullString
		taskID       sql.NullString
		archiveKey   sql.NullString
		tilesKey     sql.NullString
	)
	if err := row.Scan(&run.ID, &run.ExportID, &status, &resultsJSON, &startedAt, &completedAt,
		&errorMessage, &taskID, &archiveKey, &tilesKey, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return domain.ExportRun{}, handleNotFound(err)
	}
	run.Status = domain.NormalizeRunState(status)
	results, err := decodeResults(resultsJSON)
	if err != nil {
		return domain.ExportRun{}, err
	}
	run.Results = results
	if startedAt.Valid {
		t := startedAt.Time
		run.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	run.ErrorMessage = errorMessage.String
	run.TaskID = taskID.String
	run.ArchiveKey = archiveKey.String
	run.TilesKey = tilesKey.String
	return run, nil
}
