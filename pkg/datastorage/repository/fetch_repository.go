package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	applerrors "github.com/blockset-corp/chainaudit/internal/errors"
	"github.com/blockset-corp/chainaudit/pkg/chainmodel"
)

// FetchRepository persists chainblockfetch rows: one insert per worker
// run, plus the retention sweep's delete of superseded records.
type FetchRepository struct {
	db *sqlx.DB
}

// NewFetchRepository builds a FetchRepository.
func NewFetchRepository(db *sqlx.DB) *FetchRepository {
	return &FetchRepository{db: db}
}

// Create inserts a new, immutable Fetch row and returns its assigned id.
func (r *FetchRepository) Create(ctx context.Context, fetch chainmodel.Fetch) (uuid.UUID, error) {
	const query = `
		INSERT INTO chainblockfetch (
			id, job_id, block_id, created,
			canonical_http_status, canonical_block_hash, canonical_prev_hash, canonical_txn_count,
			service_http_status, service_block_hash, service_prev_hash, service_txn_count
		) VALUES (
			:id, :job_id, :block_id, :created,
			:canonical_http_status, :canonical_block_hash, :canonical_prev_hash, :canonical_txn_count,
			:service_http_status, :service_block_hash, :service_prev_hash, :service_txn_count
		)`

	if _, err := r.db.NamedExecContext(ctx, query, fetch); err != nil {
		return uuid.Nil, applerrors.Wrap(err, applerrors.ErrorTypeDatabase, "failed to insert fetch record")
	}
	return fetch.ID, nil
}

// DeleteSuperseded removes Fetch rows older than olderThan that are not
// referenced as the current fetch of any Block, for the retention
// sweeper. Returns the number of rows deleted.
func (r *FetchRepository) DeleteSuperseded(ctx context.Context, olderThan time.Time) (int64, error) {
	const query = `
		DELETE FROM chainblockfetch
		WHERE created <= $1
		  AND id NOT IN (
			SELECT fetch_id FROM chainblock WHERE fetch_id IS NOT NULL
		  )`

	result, err := r.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, applerrors.Wrap(err, applerrors.ErrorTypeDatabase, "failed to delete superseded fetches")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, applerrors.Wrap(err, applerrors.ErrorTypeDatabase, "failed to read rows affected after delete")
	}
	return rows, nil
}

// FindByID loads a single Fetch row by id, with the full comparison
// detail of both sources.
func (r *FetchRepository) FindByID(ctx context.Context, fetchID uuid.UUID) (*chainmodel.Fetch, error) {
	const query = `
		SELECT id, job_id, block_id, created,
		       canonical_http_status, canonical_block_hash, canonical_prev_hash, canonical_txn_count,
		       service_http_status, service_block_hash, service_prev_hash, service_txn_count
		FROM chainblockfetch
		WHERE id = $1`

	var fetch chainmodel.Fetch
	if err := r.db.GetContext(ctx, &fetch, query, fetchID); err != nil {
		return nil, applerrors.Wrap(err, applerrors.ErrorTypeDatabase, "failed to load fetch record")
	}
	return &fetch, nil
}
