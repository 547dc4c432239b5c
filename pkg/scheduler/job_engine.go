package scheduler

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/blockset-corp/chainaudit/pkg/chainmodel"
	"github.com/blockset-corp/chainaudit/pkg/metrics"
	"github.com/blockset-corp/chainaudit/pkg/shared/logging"
)

// DefaultRequeueTimedelta is the "expired pending" threshold: a block
// still PEND after this long is assumed lost and reset.
const DefaultRequeueTimedelta = 5 * time.Minute

// DefaultRetryTimedelta is the "unsuccessful" threshold: a BAD/FAIL
// block completed this long ago is eligible for retry.
const DefaultRetryTimedelta = 12 * time.Hour

// BlockEnqueuer pushes one check_block task per newly-scheduled block
// onto the block-check worker pool. Kept as an interface (rather than a
// direct dependency on pkg/taskqueue) so JobEngine never imports the
// queue binding package it's bound through.
type BlockEnqueuer interface {
	EnqueueCheckBlock(ctx context.Context, job chainmodel.Job, block chainmodel.Block) error
}

// JobEngine implements the per-job tick: given a job, compute the
// finalized height, measure current in-flight work, and
// schedule up to the remaining capacity by priority (expiry > gap >
// retry), enqueuing one check_block per scheduled block in ascending
// height order.
type JobEngine struct {
	Registry ChainAdapterRegistry
	Blocks   BlockStore
	Enqueuer BlockEnqueuer
	Logger   logr.Logger

	RequeueTimedelta time.Duration
	RetryTimedelta   time.Duration

	// Now is overridable for tests; defaults to time.Now when nil.
	Now func() time.Time
}

// NewJobEngine builds a JobEngine with the default requeue/retry
// timedeltas.
func NewJobEngine(registry ChainAdapterRegistry, blocks BlockStore, enqueuer BlockEnqueuer, logger logr.Logger) *JobEngine {
	return &JobEngine{
		Registry:         registry,
		Blocks:           blocks,
		Enqueuer:         enqueuer,
		Logger:           logger,
		RequeueTimedelta: DefaultRequeueTimedelta,
		RetryTimedelta:   DefaultRetryTimedelta,
	}
}

func (e *JobEngine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

// CheckChain runs one per-job tick for job. The caller is responsible
// for ensuring job.Enabled and for applying the single-flight lock
// keyed on job.ID.
func (e *JobEngine) CheckChain(ctx context.Context, job chainmodel.Job) error {
	now := e.now()
	metrics.RecordJobChecked()

	canonicalAdapter, err := e.Registry.Get(CanonicalServiceID, job.BlockchainID)
	if err != nil {
		return err
	}

	tip, err := canonicalAdapter.GetChain(ctx)
	if err != nil {
		return err
	}
	if !tip.OK() || tip.ChainHeight == nil {
		fields := logging.ChainJobFields(job.ID.String(), job.BlockchainID, job.ServiceID).Custom("http_status", tip.HTTPStatus)
		e.Logger.Info("canonical chain tip unavailable, skipping tick", fields.KeyValues()...)
		return nil
	}

	finalHeight := *tip.ChainHeight - job.FinalityDepth + 1
	if job.EndHeight < finalHeight {
		finalHeight = job.EndHeight
	}
	if finalHeight < job.StartHeight {
		return nil
	}

	inflight, err := e.Blocks.CountPending(ctx, job.ID, job.StartHeight, finalHeight)
	if err != nil {
		return err
	}
	capacity := job.InflightMax - int(inflight)
	if capacity <= 0 {
		return nil
	}

	capacity, err = e.expiryPass(ctx, job, finalHeight, capacity, now)
	if err != nil || capacity <= 0 {
		return err
	}

	capacity, err = e.gapPass(ctx, job, finalHeight, capacity, now)
	if err != nil || capacity <= 0 {
		return err
	}

	_, err = e.retryPass(ctx, job, finalHeight, capacity, now)
	return err
}

// expiryPass resets and re-enqueues up to capacity PEND blocks whose
// scheduled timestamp is older than RequeueTimedelta.
func (e *JobEngine) expiryPass(ctx context.Context, job chainmodel.Job, finalHeight int64, capacity int, now time.Time) (int, error) {
	expired, err := e.Blocks.PendingBlocks(ctx, job.ID, job.StartHeight, finalHeight, capacity, now.Add(-e.RequeueTimedelta))
	if err != nil {
		return capacity, err
	}
	if len(expired) == 0 {
		return capacity, nil
	}

	if err := e.Blocks.BulkRequeue(ctx, expired, now); err != nil {
		return capacity, err
	}
	if err := e.enqueueAll(ctx, job, expired); err != nil {
		return capacity, err
	}
	return capacity - len(expired), nil
}

// gapPass creates and enqueues block rows for up to capacity heights in
// [start, finalHeight] that have no row yet.
func (e *JobEngine) gapPass(ctx context.Context, job chainmodel.Job, finalHeight int64, capacity int, now time.Time) (int, error) {
	heights, err := e.Blocks.GapHeights(ctx, job.ID, job.StartHeight, finalHeight, capacity)
	if err != nil {
		return capacity, err
	}
	if len(heights) == 0 {
		return capacity, nil
	}

	blocks := make([]chainmodel.Block, len(heights))
	for i, height := range heights {
		blocks[i] = chainmodel.Block{
			ID:          uuid.New(),
			JobID:       job.ID,
			BlockHeight: height,
			Created:     now,
			Updated:     now,
			Scheduled:   now,
			Completed:   chainmodel.EpochZero,
			Status:      chainmodel.StatusPending,
		}
	}

	if err := e.Blocks.BulkCreate(ctx, blocks); err != nil {
		return capacity, err
	}
	metrics.RecordGapDetected(job.ID.String())
	if err := e.enqueueAll(ctx, job, blocks); err != nil {
		return capacity, err
	}
	return capacity - len(blocks), nil
}

// retryPass resets and re-enqueues up to capacity BAD/FAIL blocks
// completed longer ago than RetryTimedelta.
func (e *JobEngine) retryPass(ctx context.Context, job chainmodel.Job, finalHeight int64, capacity int, now time.Time) (int, error) {
	unsuccessful, err := e.Blocks.UnsuccessfulBlocks(ctx, job.ID, job.StartHeight, finalHeight, capacity, now.Add(-e.RetryTimedelta))
	if err != nil {
		return capacity, err
	}
	if len(unsuccessful) == 0 {
		return capacity, nil
	}

	if err := e.Blocks.BulkRequeue(ctx, unsuccessful, now); err != nil {
		return capacity, err
	}
	if err := e.enqueueAll(ctx, job, unsuccessful); err != nil {
		return capacity, err
	}
	return capacity - len(unsuccessful), nil
}

// enqueueAll enqueues one check_block task per block, in the slice's
// existing ascending block_height order.
func (e *JobEngine) enqueueAll(ctx context.Context, job chainmodel.Job, blocks []chainmodel.Block) error {
	for _, block := range blocks {
		if err := e.Enqueuer.EnqueueCheckBlock(ctx, job, block); err != nil {
			return err
		}
	}
	return nil
}
