package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/blockset-corp/chainaudit/pkg/chainmodel"
	"github.com/blockset-corp/chainaudit/pkg/chainsource"
	"github.com/blockset-corp/chainaudit/pkg/errorsink"
)

// fakeAdapter is a scripted chainsource.Adapter for exercising the
// engine without a network.
type fakeAdapter struct {
	chain      chainsource.Chain
	chainErr   error
	blocks     map[int64]chainsource.Block
	defaultBlk chainsource.Block
}

func (a *fakeAdapter) GetChain(ctx context.Context) (chainsource.Chain, error) {
	return a.chain, a.chainErr
}

func (a *fakeAdapter) GetBlock(ctx context.Context, height int64) (chainsource.Block, error) {
	if b, ok := a.blocks[height]; ok {
		return b, nil
	}
	return a.defaultBlk, nil
}

// fakeRegistry implements ChainAdapterRegistry over an in-memory map
// keyed by "serviceID/blockchainID".
type fakeRegistry struct {
	adapters map[string]chainsource.Adapter
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{adapters: make(map[string]chainsource.Adapter)}
}

func (r *fakeRegistry) set(serviceID, blockchainID string, adapter chainsource.Adapter) {
	r.adapters[serviceID+"/"+blockchainID] = adapter
}

func (r *fakeRegistry) Get(serviceID, blockchainID string) (chainsource.Adapter, error) {
	return r.adapters[serviceID+"/"+blockchainID], nil
}

// fakeBlockStore is an in-memory BlockStore reproducing the range
// queries' semantics closely enough to exercise JobEngine/BlockWorker.
type fakeBlockStore struct {
	byJob map[uuid.UUID][]chainmodel.Block
}

func newFakeBlockStore() *fakeBlockStore {
	return &fakeBlockStore{byJob: make(map[uuid.UUID][]chainmodel.Block)}
}

func (s *fakeBlockStore) seed(jobID uuid.UUID, blocks ...chainmodel.Block) {
	s.byJob[jobID] = append(s.byJob[jobID], blocks...)
}

func (s *fakeBlockStore) inRange(jobID uuid.UUID, start, end int64) []chainmodel.Block {
	var out []chainmodel.Block
	for _, b := range s.byJob[jobID] {
		if b.BlockHeight >= start && b.BlockHeight <= end {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockHeight < out[j].BlockHeight })
	return out
}

func (s *fakeBlockStore) CountPending(ctx context.Context, jobID uuid.UUID, start, end int64) (int64, error) {
	var count int64
	for _, b := range s.inRange(jobID, start, end) {
		if b.Status == chainmodel.StatusPending {
			count++
		}
	}
	return count, nil
}

func (s *fakeBlockStore) GapHeights(ctx context.Context, jobID uuid.UUID, start, end int64, limit int) ([]int64, error) {
	existing := make(map[int64]bool)
	for _, b := range s.inRange(jobID, start, end) {
		existing[b.BlockHeight] = true
	}
	var heights []int64
	for h := start; h <= end && len(heights) < limit; h++ {
		if !existing[h] {
			heights = append(heights, h)
		}
	}
	return heights, nil
}

func (s *fakeBlockStore) PendingBlocks(ctx context.Context, jobID uuid.UUID, start, end int64, limit int, scheduledBefore time.Time) ([]chainmodel.Block, error) {
	var out []chainmodel.Block
	for _, b := range s.inRange(jobID, start, end) {
		if b.Status == chainmodel.StatusPending && !b.Scheduled.After(scheduledBefore) {
			out = append(out, b)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeBlockStore) UnsuccessfulBlocks(ctx context.Context, jobID uuid.UUID, start, end int64, limit int, completedBefore time.Time) ([]chainmodel.Block, error) {
	var out []chainmodel.Block
	for _, b := range s.inRange(jobID, start, end) {
		if b.Status.IsUnsuccessful() && !b.Completed.After(completedBefore) {
			out = append(out, b)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeBlockStore) BulkCreate(ctx context.Context, blocks []chainmodel.Block) error {
	if len(blocks) == 0 {
		return nil
	}
	jobID := blocks[0].JobID
	s.byJob[jobID] = append(s.byJob[jobID], blocks...)
	return nil
}

func (s *fakeBlockStore) BulkRequeue(ctx context.Context, blocks []chainmodel.Block, now time.Time) error {
	ids := make(map[uuid.UUID]bool, len(blocks))
	for _, b := range blocks {
		ids[b.ID] = true
	}
	for jobID, existing := range s.byJob {
		for i, b := range existing {
			if ids[b.ID] {
				existing[i].Status = chainmodel.StatusPending
				existing[i].Scheduled = now
				existing[i].Completed = chainmodel.EpochZero
				existing[i].FetchID = nil
			}
		}
		s.byJob[jobID] = existing
	}
	return nil
}

func (s *fakeBlockStore) UpdateResult(ctx context.Context, blockID uuid.UUID, status chainmodel.Status, completed time.Time, fetchID uuid.UUID) error {
	for jobID, existing := range s.byJob {
		for i, b := range existing {
			if b.ID == blockID {
				existing[i].Status = status
				existing[i].Completed = completed
				existing[i].FetchID = &fetchID
			}
		}
		s.byJob[jobID] = existing
	}
	return nil
}

// fakeFetchStore is an in-memory FetchStore.
type fakeFetchStore struct {
	fetches []chainmodel.Fetch
}

func (s *fakeFetchStore) Create(ctx context.Context, fetch chainmodel.Fetch) (uuid.UUID, error) {
	s.fetches = append(s.fetches, fetch)
	return fetch.ID, nil
}

func (s *fakeFetchStore) DeleteSuperseded(ctx context.Context, olderThan time.Time) (int64, error) {
	var kept []chainmodel.Fetch
	var deleted int64
	for _, f := range s.fetches {
		if f.Created.Before(olderThan) {
			deleted++
			continue
		}
		kept = append(kept, f)
	}
	s.fetches = kept
	return deleted, nil
}

// fakeJobStore is an in-memory JobStore.
type fakeJobStore struct {
	jobs []chainmodel.Job
}

func (s *fakeJobStore) FindAllActive(ctx context.Context) ([]chainmodel.Job, error) {
	var out []chainmodel.Job
	for _, j := range s.jobs {
		if j.Enabled {
			out = append(out, j)
		}
	}
	return out, nil
}

// fakeBlockEnqueuer records every CheckBlock enqueue in call order.
type fakeBlockEnqueuer struct {
	calls []chainmodel.Block
}

func (e *fakeBlockEnqueuer) EnqueueCheckBlock(ctx context.Context, job chainmodel.Job, block chainmodel.Block) error {
	e.calls = append(e.calls, block)
	return nil
}

// fakeJobEnqueuer records every CheckChain enqueue.
type fakeJobEnqueuer struct {
	calls []chainmodel.Job
}

func (e *fakeJobEnqueuer) EnqueueCheckJob(ctx context.Context, job chainmodel.Job) error {
	e.calls = append(e.calls, job)
	return nil
}

// recordingReporter records every non-GOOD report handed to it.
type recordingReporter struct {
	reports []errorsink.Report
}

func (r *recordingReporter) Report(ctx context.Context, report errorsink.Report) error {
	r.reports = append(r.reports, report)
	return nil
}
