// Package repository persists and queries jobs, blocks, and fetches
// against Postgres via sqlx, including the range-analytic queries
// (gaps, islands, bucketed status counts) the reconciliation engine
// depends on.
package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	applerrors "github.com/blockset-corp/chainaudit/internal/errors"
	"github.com/blockset-corp/chainaudit/pkg/chainmodel"
)

// JobRepository persists chainjob rows.
type JobRepository struct {
	db *sqlx.DB
}

// NewJobRepository builds a JobRepository.
func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

// FindAllActive returns every enabled job, the set the top-level
// dispatcher fans check_job ticks out over.
func (r *JobRepository) FindAllActive(ctx context.Context) ([]chainmodel.Job, error) {
	const query = `
		SELECT id, name, enabled, service_id, blockchain_id,
		       start_height, end_height, finality_depth, inflight_max,
		       created, updated
		FROM chainjob
		WHERE enabled = true
		ORDER BY id`

	var jobs []chainmodel.Job
	if err := r.db.SelectContext(ctx, &jobs, query); err != nil {
		return nil, applerrors.Wrap(err, applerrors.ErrorTypeDatabase, "failed to list active jobs")
	}
	return jobs, nil
}

// FindByID returns one job by id.
func (r *JobRepository) FindByID(ctx context.Context, jobID uuid.UUID) (*chainmodel.Job, error) {
	const query = `
		SELECT id, name, enabled, service_id, blockchain_id,
		       start_height, end_height, finality_depth, inflight_max,
		       created, updated
		FROM chainjob
		WHERE id = $1`

	var job chainmodel.Job
	if err := r.db.GetContext(ctx, &job, query, jobID); err != nil {
		return nil, applerrors.Wrap(err, applerrors.ErrorTypeDatabase, "failed to load job")
	}
	return &job, nil
}
