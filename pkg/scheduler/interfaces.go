package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/blockset-corp/chainaudit/pkg/chainmodel"
	"github.com/blockset-corp/chainaudit/pkg/chainsource"
)

// ChainAdapterRegistry is the subset of chainsource.Registry the
// engine depends on. *chainsource.Registry satisfies it directly.
type ChainAdapterRegistry interface {
	Get(serviceID, blockchainID string) (chainsource.Adapter, error)
}

// BlockStore is the subset of repository.BlockRepository the engine
// depends on, narrowed to an interface so JobEngine/BlockWorker can be
// exercised against fakes in tests without a database.
// *repository.BlockRepository satisfies it directly.
type BlockStore interface {
	CountPending(ctx context.Context, jobID uuid.UUID, start, end int64) (int64, error)
	GapHeights(ctx context.Context, jobID uuid.UUID, start, end int64, limit int) ([]int64, error)
	PendingBlocks(ctx context.Context, jobID uuid.UUID, start, end int64, limit int, scheduledBefore time.Time) ([]chainmodel.Block, error)
	UnsuccessfulBlocks(ctx context.Context, jobID uuid.UUID, start, end int64, limit int, completedBefore time.Time) ([]chainmodel.Block, error)
	BulkCreate(ctx context.Context, blocks []chainmodel.Block) error
	BulkRequeue(ctx context.Context, blocks []chainmodel.Block, now time.Time) error
	UpdateResult(ctx context.Context, blockID uuid.UUID, status chainmodel.Status, completed time.Time, fetchID uuid.UUID) error
}

// FetchStore is the subset of repository.FetchRepository the engine
// depends on. *repository.FetchRepository satisfies it directly.
type FetchStore interface {
	Create(ctx context.Context, fetch chainmodel.Fetch) (uuid.UUID, error)
	DeleteSuperseded(ctx context.Context, olderThan time.Time) (int64, error)
}

// JobStore is the subset of repository.JobRepository the dispatcher
// depends on. *repository.JobRepository satisfies it directly.
type JobStore interface {
	FindAllActive(ctx context.Context) ([]chainmodel.Job, error)
}
