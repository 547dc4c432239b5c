package repository

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	applerrors "github.com/blockset-corp/chainaudit/internal/errors"
	"github.com/blockset-corp/chainaudit/pkg/chainmodel"
)

// BlockRepository implements the range-analytic queries over one job's
// (potentially sparse) chainblock table: counts, gaps, islands,
// bucketed status counts, and time-thresholded selections.
type BlockRepository struct {
	db *sqlx.DB
}

// NewBlockRepository builds a BlockRepository.
func NewBlockRepository(db *sqlx.DB) *BlockRepository {
	return &BlockRepository{db: db}
}

// CountPending counts blocks in PEND within [start, end].
func (r *BlockRepository) CountPending(ctx context.Context, jobID uuid.UUID, start, end int64) (int64, error) {
	const query = `
		SELECT count(*) FROM chainblock
		WHERE job_id = $1 AND block_height BETWEEN $2 AND $3 AND status = $4`

	var count int64
	if err := r.db.GetContext(ctx, &count, query, jobID, start, end, chainmodel.StatusPending); err != nil {
		return 0, applerrors.Wrap(err, applerrors.ErrorTypeDatabase, "failed to count pending blocks")
	}
	return count, nil
}

// MinHeight returns the lowest recorded block_height in [start, end], or
// nil if none exist.
func (r *BlockRepository) MinHeight(ctx context.Context, jobID uuid.UUID, start, end int64) (*int64, error) {
	const query = `
		SELECT min(block_height) FROM chainblock
		WHERE job_id = $1 AND block_height BETWEEN $2 AND $3`
	return r.scanNullableHeight(ctx, query, jobID, start, end)
}

// MaxHeight returns the highest recorded block_height in [start, end], or
// nil if none exist.
func (r *BlockRepository) MaxHeight(ctx context.Context, jobID uuid.UUID, start, end int64) (*int64, error) {
	const query = `
		SELECT max(block_height) FROM chainblock
		WHERE job_id = $1 AND block_height BETWEEN $2 AND $3`
	return r.scanNullableHeight(ctx, query, jobID, start, end)
}

func (r *BlockRepository) scanNullableHeight(ctx context.Context, query string, args ...interface{}) (*int64, error) {
	var height *int64
	if err := r.db.GetContext(ctx, &height, query, args...); err != nil {
		return nil, applerrors.Wrap(err, applerrors.ErrorTypeDatabase, "failed to compute height bound")
	}
	return height, nil
}

// GapRange is an inclusive [Start, End] range of heights with no block row.
type GapRange struct {
	Start int64
	End   int64
}

// Gaps returns every maximal contiguous run of heights in [start, end]
// for which no block row exists: the leading gap before the lowest
// recorded height, the trailing gap after the highest, and the interior
// gaps found via a LEAD() window scan over consecutive recorded heights.
func (r *BlockRepository) Gaps(ctx context.Context, jobID uuid.UUID, start, end int64) ([]GapRange, error) {
	minH, err := r.MinHeight(ctx, jobID, start, end)
	if err != nil {
		return nil, err
	}
	if minH == nil {
		return []GapRange{{Start: start, End: end}}, nil
	}
	maxH, err := r.MaxHeight(ctx, jobID, start, end)
	if err != nil {
		return nil, err
	}

	var gaps []GapRange
	if start < *minH {
		gaps = append(gaps, GapRange{Start: start, End: *minH - 1})
	}

	const interiorQuery = `
		SELECT block_height AS h, next_height
		FROM (
			SELECT block_height,
			       LEAD(block_height) OVER (ORDER BY block_height) AS next_height
			FROM chainblock
			WHERE job_id = $1 AND block_height BETWEEN $2 AND $3
		) windowed
		WHERE next_height IS NOT NULL AND next_height > block_height + 1
		ORDER BY block_height`

	var rows []struct {
		H          int64  `db:"h"`
		NextHeight *int64 `db:"next_height"`
	}
	if err := r.db.SelectContext(ctx, &rows, interiorQuery, jobID, start, end); err != nil {
		return nil, applerrors.Wrap(err, applerrors.ErrorTypeDatabase, "failed to scan interior gaps")
	}
	for _, row := range rows {
		gaps = append(gaps, GapRange{Start: row.H + 1, End: *row.NextHeight - 1})
	}

	if *maxH < end {
		gaps = append(gaps, GapRange{Start: *maxH + 1, End: end})
	}
	return gaps, nil
}

// GapHeights returns the first limit individual heights covered by
// Gaps, in ascending order. Gaps is computed in full first; only the
// per-height enumeration over it stops once limit heights are collected.
func (r *BlockRepository) GapHeights(ctx context.Context, jobID uuid.UUID, start, end int64, limit int) ([]int64, error) {
	gaps, err := r.Gaps(ctx, jobID, start, end)
	if err != nil {
		return nil, err
	}

	heights := make([]int64, 0, limit)
	for h := range gapHeightSeq(gaps) {
		if len(heights) >= limit {
			break
		}
		heights = append(heights, h)
	}
	return heights, nil
}

// gapHeightSeq lazily yields every height covered by gaps, in ascending order.
func gapHeightSeq(gaps []GapRange) iter.Seq[int64] {
	return func(yield func(int64) bool) {
		for _, gap := range gaps {
			for h := gap.Start; h <= gap.End; h++ {
				if !yield(h) {
					return
				}
			}
		}
	}
}

// Island is a maximal contiguous run of block_height sharing a status.
type Island struct {
	Status chainmodel.Status
	Start  int64
	End    int64
}

// Islands finds every maximal contiguous run of heights sharing one of
// statuses within [start, end].
func (r *BlockRepository) Islands(ctx context.Context, jobID uuid.UUID, start, end int64, statuses []chainmodel.Status) ([]Island, error) {
	query, args, err := sqlx.In(`
		SELECT status, min(block_height) AS start_height, max(block_height) AS end_height
		FROM (
			SELECT status, block_height,
			       block_height - row_number() OVER (PARTITION BY status ORDER BY block_height) AS grp
			FROM chainblock
			WHERE job_id = ? AND block_height BETWEEN ? AND ? AND status IN (?)
		) grouped
		GROUP BY status, grp
		ORDER BY start_height`, jobID, start, end, statuses)
	if err != nil {
		return nil, applerrors.Wrap(err, applerrors.ErrorTypeDatabase, "failed to build islands query")
	}
	query = r.db.Rebind(query)

	var rows []struct {
		Status      chainmodel.Status `db:"status"`
		StartHeight int64             `db:"start_height"`
		EndHeight   int64             `db:"end_height"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, applerrors.Wrap(err, applerrors.ErrorTypeDatabase, "failed to scan islands")
	}

	islands := make([]Island, 0, len(rows))
	for _, row := range rows {
		islands = append(islands, Island{Status: row.Status, Start: row.StartHeight, End: row.EndHeight})
	}
	return islands, nil
}

// StatusCount is one (status, bucket) row of status_counts_in_ranges.
type StatusCount struct {
	Status      chainmodel.Status
	RangeStart  int64
	Count       int64
}

// StatusCountsInRanges buckets blocks into fixed-width ranges of size
// step and counts them per status, with range_start = floor(h/step)*step.
func (r *BlockRepository) StatusCountsInRanges(ctx context.Context, jobID uuid.UUID, start, end, step int64) ([]StatusCount, error) {
	const query = `
		SELECT status, (block_height / $4) * $4 AS range_start, count(*) AS count
		FROM chainblock
		WHERE job_id = $1 AND block_height BETWEEN $2 AND $3
		GROUP BY status, range_start
		ORDER BY range_start, status`

	var rows []struct {
		Status     chainmodel.Status `db:"status"`
		RangeStart int64             `db:"range_start"`
		Count      int64             `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, jobID, start, end, step); err != nil {
		return nil, applerrors.Wrap(err, applerrors.ErrorTypeDatabase, "failed to compute status counts")
	}

	counts := make([]StatusCount, 0, len(rows))
	for _, row := range rows {
		counts = append(counts, StatusCount{Status: row.Status, RangeStart: row.RangeStart, Count: row.Count})
	}
	return counts, nil
}

// PendingBlocks returns PEND blocks scheduled at or before scheduledBefore,
// ordered by block_height, capped at limit.
func (r *BlockRepository) PendingBlocks(ctx context.Context, jobID uuid.UUID, start, end int64, limit int, scheduledBefore time.Time) ([]chainmodel.Block, error) {
	const query = `
		SELECT id, job_id, block_height, created, updated, scheduled, completed, status, fetch_id
		FROM chainblock
		WHERE job_id = $1 AND block_height BETWEEN $2 AND $3
		  AND status = $4 AND scheduled <= $5
		ORDER BY block_height
		LIMIT $6`

	var blocks []chainmodel.Block
	if err := r.db.SelectContext(ctx, &blocks, query, jobID, start, end, chainmodel.StatusPending, scheduledBefore, limit); err != nil {
		return nil, applerrors.Wrap(err, applerrors.ErrorTypeDatabase, "failed to select pending blocks")
	}
	return blocks, nil
}

// UnsuccessfulBlocks returns BAD/FAIL blocks completed at or before
// completedBefore, ordered by block_height, capped at limit.
func (r *BlockRepository) UnsuccessfulBlocks(ctx context.Context, jobID uuid.UUID, start, end int64, limit int, completedBefore time.Time) ([]chainmodel.Block, error) {
	query, args, err := sqlx.In(`
		SELECT id, job_id, block_height, created, updated, scheduled, completed, status, fetch_id
		FROM chainblock
		WHERE job_id = ? AND block_height BETWEEN ? AND ?
		  AND status IN (?) AND completed <= ?
		ORDER BY block_height
		LIMIT ?`,
		jobID, start, end, []chainmodel.Status{chainmodel.StatusBad, chainmodel.StatusFail}, completedBefore, limit)
	if err != nil {
		return nil, applerrors.Wrap(err, applerrors.ErrorTypeDatabase, "failed to build unsuccessful blocks query")
	}
	query = r.db.Rebind(query)

	var blocks []chainmodel.Block
	if err := r.db.SelectContext(ctx, &blocks, query, args...); err != nil {
		return nil, applerrors.Wrap(err, applerrors.ErrorTypeDatabase, "failed to select unsuccessful blocks")
	}
	return blocks, nil
}

// BulkCreate inserts new PEND block rows, one per height, as the gap
// pass does when scheduling previously-unseen heights.
func (r *BlockRepository) BulkCreate(ctx context.Context, blocks []chainmodel.Block) error {
	if len(blocks) == 0 {
		return nil
	}

	const query = `
		INSERT INTO chainblock (id, job_id, block_height, created, updated, scheduled, completed, status)
		VALUES (:id, :job_id, :block_height, :created, :updated, :scheduled, :completed, :status)`

	if _, err := r.db.NamedExecContext(ctx, query, blocks); err != nil {
		return applerrors.Wrap(err, applerrors.ErrorTypeDatabase, "failed to bulk-create blocks")
	}
	return nil
}

// BulkRequeue resets a set of existing Block rows back to PEND
// (scheduled=now, completed=epoch, fetch=null), as both the expiry and
// retry passes do. The parameter is a slice of Block rows, matching the
// bulk-update input shape the per-job tick always operates on.
func (r *BlockRepository) BulkRequeue(ctx context.Context, blocks []chainmodel.Block, now time.Time) error {
	if len(blocks) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(blocks))
	for i, b := range blocks {
		ids[i] = b.ID
	}

	query, args, err := sqlx.In(`
		UPDATE chainblock
		SET status = ?, scheduled = ?, completed = ?, fetch_id = NULL, updated = ?
		WHERE id IN (?)`,
		chainmodel.StatusPending, now, chainmodel.EpochZero, now, ids)
	if err != nil {
		return applerrors.Wrap(err, applerrors.ErrorTypeDatabase, "failed to build requeue query")
	}
	query = r.db.Rebind(query)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return applerrors.Wrap(err, applerrors.ErrorTypeDatabase, "failed to requeue blocks")
	}
	return nil
}

// UpdateResult applies a worker's result to a Block row: status,
// completed, and the fetch pointer always move together.
func (r *BlockRepository) UpdateResult(ctx context.Context, blockID uuid.UUID, status chainmodel.Status, completed time.Time, fetchID uuid.UUID) error {
	const query = `
		UPDATE chainblock
		SET status = $2, completed = $3, fetch_id = $4, updated = $3
		WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, blockID, status, completed, fetchID); err != nil {
		return applerrors.Wrap(err, applerrors.ErrorTypeDatabase, "failed to update block result")
	}
	return nil
}
