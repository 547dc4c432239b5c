package scheduler

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/blockset-corp/chainaudit/pkg/chainmodel"
	"github.com/blockset-corp/chainaudit/pkg/chainsource"
	"github.com/blockset-corp/chainaudit/pkg/errorsink"
	"github.com/blockset-corp/chainaudit/pkg/metrics"
	"github.com/blockset-corp/chainaudit/pkg/shared/logging"
)

// CanonicalServiceID is the fixed service_id every job's canonical
// source is looked up under, regardless of the job's own ServiceID.
const CanonicalServiceID = "canonical"

// BlockWorker implements the per-block comparison: concurrently fetch
// canonical and service blocks, classify the result, persist it, and
// report anything short of GOOD.
type BlockWorker struct {
	Registry ChainAdapterRegistry
	Blocks   BlockStore
	Fetches  FetchStore
	Reporter errorsink.Reporter
	Logger   logr.Logger
}

// NewBlockWorker builds a BlockWorker.
func NewBlockWorker(registry ChainAdapterRegistry, blocks BlockStore, fetches FetchStore, reporter errorsink.Reporter, logger logr.Logger) *BlockWorker {
	return &BlockWorker{
		Registry: registry,
		Blocks:   blocks,
		Fetches:  fetches,
		Reporter: reporter,
		Logger:   logger,
	}
}

// CheckBlock fetches the canonical and service views of one block
// concurrently (two goroutines joined via errgroup, neither's failure
// short-circuiting the other), writes an immutable Fetch row, updates
// the Block row's status/fetch pointer together, and — for anything
// short of GOOD — emits an error report. It is idempotent: re-running
// it for the same (job, block) always converges to the same Block
// status and appends exactly one more Fetch row.
func (w *BlockWorker) CheckBlock(ctx context.Context, job chainmodel.Job, block chainmodel.Block) error {
	metrics.IncrementInFlightBlocks()
	defer metrics.DecrementInFlightBlocks()
	timer := metrics.NewTimer()

	canonicalAdapter, err := w.Registry.Get(CanonicalServiceID, job.BlockchainID)
	if err != nil {
		return err
	}
	serviceAdapter, err := w.Registry.Get(job.ServiceID, job.BlockchainID)
	if err != nil {
		return err
	}

	var canonical, service chainsource.Block
	var canonicalErr, serviceErr error

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		canonical, canonicalErr = canonicalAdapter.GetBlock(ctx, block.BlockHeight)
		return nil
	})
	g.Go(func() error {
		service, serviceErr = serviceAdapter.GetBlock(ctx, block.BlockHeight)
		return nil
	})
	_ = g.Wait()

	if canonicalErr != nil {
		fields := logging.ChainBlockFields(job.ID.String(), block.BlockHeight, "")
		w.Logger.Error(canonicalErr, "canonical block fetch failed", fields.KeyValues()...)
		canonical = chainsource.Block{}
	}
	if serviceErr != nil {
		fields := logging.ChainBlockFields(job.ID.String(), block.BlockHeight, "")
		w.Logger.Error(serviceErr, "service block fetch failed", fields.KeyValues()...)
		service = chainsource.Block{}
	}

	status := Compare(canonical, service)
	completed := time.Now().UTC()
	blockID := block.ID

	fetch := chainmodel.Fetch{
		ID:      uuid.New(),
		JobID:   job.ID,
		BlockID: &blockID,
		Created: completed,

		CanonicalHTTPStatus: canonical.HTTPStatus,
		CanonicalBlockHash:  stringPtrOrUnknown(canonical.Hash),
		CanonicalPrevHash:   stringPtrOrUnknown(canonical.PrevHash),
		CanonicalTxnCount:   intPtrOrUnknown(canonical.TxnCount),

		ServiceHTTPStatus: service.HTTPStatus,
		ServiceBlockHash:  stringPtrOrUnknown(service.Hash),
		ServicePrevHash:   stringPtrOrUnknown(service.PrevHash),
		ServiceTxnCount:   intPtrOrUnknown(service.TxnCount),
	}

	fetchID, err := w.Fetches.Create(ctx, fetch)
	if err != nil {
		return err
	}

	if err := w.Blocks.UpdateResult(ctx, block.ID, status, completed, fetchID); err != nil {
		return err
	}

	timer.RecordBlockCheck(string(status))

	if status != chainmodel.StatusGood {
		metrics.RecordBlockCheckError(job.ID.String(), string(status))
		report := errorsink.Report{
			JobID:        job.ID,
			BlockID:      block.ID,
			BlockHeight:  block.BlockHeight,
			Status:       status,
			ServiceID:    job.ServiceID,
			BlockchainID: job.BlockchainID,
			Canonical:    canonical,
			Service:      service,
			Message:      DeriveMessage(canonical, service),
		}
		if err := w.Reporter.Report(ctx, report); err != nil {
			w.Logger.Error(err, "failed to send error report", "job_id", job.ID, "block_id", block.ID)
		}
	}

	return nil
}
