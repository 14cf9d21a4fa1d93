package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/qaengine/qaengine/internal/apperr"
	"github.com/qaengine/qaengine/internal/domain"
)

// CoverageRepository mirrors the coverage registry into Postgres so
// the API can answer coverage queries without parsing registry.json.
type CoverageRepository struct {
	db *DB
}

func NewCoverageRepository(db *DB) *CoverageRepository {
	return &CoverageRepository{db: db}
}

// SignatureRow is one flattened (page, category, signature) record.
type SignatureRow struct {
	TargetURL  string          `db:"target_url" json:"target_url"`
	PageID     string          `db:"page_id" json:"page_id"`
	PageURL    string          `db:"page_url" json:"page_url"`
	Category   string          `db:"category" json:"category"`
	Signature  string          `db:"signature" json:"signature"`
	LastTested *time.Time      `db:"last_tested" json:"last_tested,omitempty"`
	LastResult string          `db:"last_result" json:"last_result"`
	TestCount  int             `db:"test_count" json:"test_count"`
	History    json.RawMessage `db:"history" json:"history"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// Mirror upserts every signature record of reg. Runs in one
// transaction so the mirror never exposes a half-merged run.
func (r *CoverageRepository) Mirror(ctx context.Context, reg *domain.CoverageRegistry) error {
	const query = `
		INSERT INTO coverage_signatures
			(target_url, page_id, page_url, category, signature, last_tested, last_result, test_count, history, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (target_url, page_id, category, signature) DO UPDATE SET
			page_url    = EXCLUDED.page_url,
			last_tested = EXCLUDED.last_tested,
			last_result = EXCLUDED.last_result,
			test_count  = EXCLUDED.test_count,
			history     = EXCLUDED.history,
			updated_at  = now()`

	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		for _, pc := range reg.Pages {
			for cat, cc := range pc.Categories {
				for _, rec := range cc.SignaturesTested {
					history, err := json.Marshal(rec.History)
					if err != nil {
						return fmt.Errorf("encoding history for %s: %w", rec.Signature, err)
					}
					var lastTested *time.Time
					if !rec.LastTested.IsZero() {
						t := rec.LastTested
						lastTested = &t
					}
					if _, err := tx.ExecContext(ctx, query,
						reg.TargetURL, pc.PageID, pc.URL, string(cat), rec.Signature,
						lastTested, string(rec.LastResult), rec.TestCount, history,
					); err != nil {
						return apperr.ErrDatabase(err)
					}
				}
			}
		}
		return nil
	})
}

// ListSignatures returns every mirrored signature for targetURL,
// ordered for stable API output.
func (r *CoverageRepository) ListSignatures(ctx context.Context, targetURL string) ([]SignatureRow, error) {
	const query = `
		SELECT target_url, page_id, page_url, category, signature,
		       last_tested, last_result, test_count, history, updated_at
		FROM coverage_signatures
		WHERE target_url = $1
		ORDER BY page_id, category, signature`

	var rows []SignatureRow
	if err := r.db.SelectContext(ctx, &rows, query, targetURL); err != nil {
		return nil, apperr.ErrDatabase(err)
	}
	return rows, nil
}

// ListFailing returns signatures whose last result is fail.
func (r *CoverageRepository) ListFailing(ctx context.Context, targetURL string) ([]SignatureRow, error) {
	const query = `
		SELECT target_url, page_id, page_url, category, signature,
		       last_tested, last_result, test_count, history, updated_at
		FROM coverage_signatures
		WHERE target_url = $1 AND last_result = 'fail'
		ORDER BY page_id, category, signature`

	var rows []SignatureRow
	if err := r.db.SelectContext(ctx, &rows, query, targetURL); err != nil {
		return nil, apperr.ErrDatabase(err)
	}
	return rows, nil
}

// Reset deletes the mirror for targetURL.
func (r *CoverageRepository) Reset(ctx context.Context, targetURL string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM coverage_signatures WHERE target_url = $1`, targetURL); err != nil {
		return apperr.ErrDatabase(err)
	}
	return nil
}
