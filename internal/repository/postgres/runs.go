package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/qaengine/qaengine/internal/apperr"
	"github.com/qaengine/qaengine/internal/domain"
)

// RunRepository stores run results for the control API's history view.
type RunRepository struct {
	db *DB
}

func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// RunRow is the summary row the list endpoint serves.
type RunRow struct {
	RunID       string          `db:"run_id" json:"run_id"`
	PlanID      string          `db:"plan_id" json:"plan_id"`
	TargetURL   string          `db:"target_url" json:"target_url"`
	StartedAt   time.Time       `db:"started_at" json:"started_at"`
	CompletedAt time.Time       `db:"completed_at" json:"completed_at"`
	Totals      json.RawMessage `db:"totals" json:"totals"`
}

// Insert stores a completed run. Duplicate run ids conflict.
func (r *RunRepository) Insert(ctx context.Context, run *domain.RunResult) error {
	totals, err := json.Marshal(run.Totals)
	if err != nil {
		return err
	}
	result, err := json.Marshal(run)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO runs (run_id, plan_id, target_url, started_at, completed_at, totals, result)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(ctx, query,
		run.RunID, run.PlanID, run.TargetURL, run.StartedAt, run.CompletedAt, totals, result,
	); err != nil {
		if isUniqueViolation(err) {
			return apperr.ErrValidation("run already recorded: " + run.RunID)
		}
		return apperr.ErrDatabase(err)
	}
	return nil
}

// Get loads the full run result by id.
func (r *RunRepository) Get(ctx context.Context, runID string) (*domain.RunResult, error) {
	var raw json.RawMessage
	err := r.db.GetContext(ctx, &raw, `SELECT result FROM runs WHERE run_id = $1`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound("run", runID)
	}
	if err != nil {
		return nil, apperr.ErrDatabase(err)
	}

	var run domain.RunResult
	if err := json.Unmarshal(raw, &run); err != nil {
		return nil, apperr.ErrDatabase(err)
	}
	return &run, nil
}

// ListRecent returns the newest run summaries for targetURL, most
// recent first.
func (r *RunRepository) ListRecent(ctx context.Context, targetURL string, limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `
		SELECT run_id, plan_id, target_url, started_at, completed_at, totals
		FROM runs
		WHERE target_url = $1
		ORDER BY started_at DESC
		LIMIT $2`

	var rows []RunRow
	if err := r.db.SelectContext(ctx, &rows, query, targetURL, limit); err != nil {
		return nil, apperr.ErrDatabase(err)
	}
	return rows, nil
}

// LatestTwo returns the two most recent runs for regression diffing,
// newest first. Fewer than two runs yields a shorter slice.
func (r *RunRepository) LatestTwo(ctx context.Context, targetURL string) ([]*domain.RunResult, error) {
	var raws []json.RawMessage
	const query = `
		SELECT result FROM runs
		WHERE target_url = $1
		ORDER BY started_at DESC
		LIMIT 2`
	if err := r.db.SelectContext(ctx, &raws, query, targetURL); err != nil {
		return nil, apperr.ErrDatabase(err)
	}

	var out []*domain.RunResult
	for _, raw := range raws {
		var run domain.RunResult
		if err := json.Unmarshal(raw, &run); err != nil {
			return nil, apperr.ErrDatabase(err)
		}
		out = append(out, &run)
	}
	return out, nil
}

// Repositories bundles every Postgres repository.
type Repositories struct {
	Runs     *RunRepository
	Coverage *CoverageRepository
}

// NewRepositories builds all repositories over one connection.
func NewRepositories(db *DB) *Repositories {
	return &Repositories{
		Runs:     NewRunRepository(db),
		Coverage: NewCoverageRepository(db),
	}
}
