// Package taskqueue binds the reconciliation engine's three operations
// (check_all, check_job, check_block) onto an in-process worker-pool +
// timer model: a bounded pool of goroutines managed by
// golang.org/x/sync/errgroup, fed by buffered channels, replacing the
// Celery broker/worker split the original system used.
package taskqueue

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/blockset-corp/chainaudit/pkg/chainmodel"
	"github.com/blockset-corp/chainaudit/pkg/lock"
	"github.com/blockset-corp/chainaudit/pkg/scheduler"
)

// CheckAllTaskName and CheckJobTaskPrefix are the single-flight lock
// keys the dispatcher and job pool acquire, mirroring the task names
// celery_singleton keyed its locks on.
const (
	CheckAllTaskName   = "check_all"
	CheckJobTaskPrefix = "check_job"
)

// Default tick intervals and lock TTLs.
const (
	DefaultCheckAllInterval = 60 * time.Second
	DefaultCheckJobInterval = 5 * time.Minute
	DefaultCleanInterval    = time.Hour
)

// Dispatcher drives the tick and block-check worker pools and owns the
// single-flight locks guarding check_all and every check_job.
type Dispatcher struct {
	Engine   *scheduler.JobEngine
	Worker   *scheduler.BlockWorker
	Dispatch *scheduler.DispatchEngine
	Lock     *lock.Singleflight
	Logger   logr.Logger

	CheckAllInterval time.Duration
	CheckJobTTL      time.Duration
	CleanInterval    time.Duration

	// jobPool is the bounded "tick pool" check_job tasks are queued
	// onto; blockPool is the separate "block-check worker pool" queue
	// check_block tasks run from, a buffered channel of four times the
	// block pool size (a full queue blocks the enqueuer), matching
	// queue='consumer' in the original carrying no Singleton base: no
	// single-flight lock guards check_block.
	jobPool   chan jobTask
	blockPool chan blockTask
}

type jobTask struct {
	job chainmodel.Job
}

type blockTask struct {
	job   chainmodel.Job
	block chainmodel.Block
}

// NewDispatcher builds a Dispatcher whose check_job queue buffers
// jobPoolSize tasks and whose check_block queue buffers 4*blockPoolSize
// tasks. It starts no goroutines; Run starts the workers.
func NewDispatcher(engine *scheduler.JobEngine, worker *scheduler.BlockWorker, dispatch *scheduler.DispatchEngine, singleflight *lock.Singleflight, jobPoolSize, blockPoolSize int, logger logr.Logger) *Dispatcher {
	return &Dispatcher{
		Engine:           engine,
		Worker:           worker,
		Dispatch:         dispatch,
		Lock:             singleflight,
		Logger:           logger,
		CheckAllInterval: DefaultCheckAllInterval,
		CheckJobTTL:      DefaultCheckJobInterval,
		CleanInterval:    DefaultCleanInterval,
		jobPool:          make(chan jobTask, jobPoolSize),
		blockPool:        make(chan blockTask, blockPoolSize*4),
	}
}

// EnqueueCheckJob implements scheduler.JobEnqueuer: it pushes job onto
// the bounded tick pool. A full pool blocks the caller (CheckAll), which
// is acceptable since CheckAll itself runs under the check_all
// single-flight lock and is not on a caller's hot path.
func (d *Dispatcher) EnqueueCheckJob(ctx context.Context, job chainmodel.Job) error {
	select {
	case d.jobPool <- jobTask{job: job}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnqueueCheckBlock implements scheduler.BlockEnqueuer: it pushes
// (job, block) onto the block-check worker pool. No single-flight lock
// guards this path.
func (d *Dispatcher) EnqueueCheckBlock(ctx context.Context, job chainmodel.Job, block chainmodel.Block) error {
	select {
	case d.blockPool <- blockTask{job: job, block: block}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the tick-pool workers, the block-pool workers, and the
// check_all/clean_all timers, and blocks until ctx is canceled or a
// worker returns a non-nil error.
func (d *Dispatcher) Run(ctx context.Context, jobWorkers, blockWorkers int) error {
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < jobWorkers; i++ {
		g.Go(func() error { return d.runJobWorker(ctx) })
	}
	for i := 0; i < blockWorkers; i++ {
		g.Go(func() error { return d.runBlockWorker(ctx) })
	}
	g.Go(func() error { return d.runCheckAllTicker(ctx) })
	g.Go(func() error { return d.runCleanTicker(ctx) })

	return g.Wait()
}

// runJobWorker drains check_job tasks, running each under a
// per-job single-flight lock that drops (rather than queues) a second
// invocation for the same job while one is already running.
func (d *Dispatcher) runJobWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-d.jobPool:
			key := CheckJobTaskPrefix + ":" + t.job.ID.String()
			ran, err := d.Lock.TryRun(ctx, key, d.CheckJobTTL, func(ctx context.Context) error {
				return d.Engine.CheckChain(ctx, t.job)
			})
			if err != nil {
				d.Logger.Error(err, "check_job failed", "job_id", t.job.ID)
			} else if !ran {
				d.Logger.V(1).Info("check_job dropped, already running", "job_id", t.job.ID)
			}
		}
	}
}

// runBlockWorker drains check_block tasks with no single-flight lock.
func (d *Dispatcher) runBlockWorker(ctx context.Context) error {
	worker := d.blockWorker()
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-d.blockPool:
			if err := worker(ctx, t); err != nil {
				d.Logger.Error(err, "check_block failed", "job_id", t.job.ID, "block_height", t.block.BlockHeight)
			}
		}
	}
}

// blockWorker closes over d.Worker so runBlockWorker doesn't repeat the
// field access on every iteration.
func (d *Dispatcher) blockWorker() func(ctx context.Context, t blockTask) error {
	return func(ctx context.Context, t blockTask) error {
		return d.Worker.CheckBlock(ctx, t.job, t.block)
	}
}

// runCheckAllTicker fires CheckAll every CheckAllInterval under the
// check_all single-flight lock (TTL = the tick interval, so a stuck
// invocation never wedges the next tick permanently).
func (d *Dispatcher) runCheckAllTicker(ctx context.Context) error {
	ticker := time.NewTicker(d.CheckAllInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_, err := d.Lock.TryRun(ctx, CheckAllTaskName, d.CheckAllInterval, func(ctx context.Context) error {
				return d.Dispatch.CheckAll(ctx)
			})
			if err != nil {
				d.Logger.Error(err, "check_all failed")
			}
		}
	}
}

// runCleanTicker fires CleanAll every CleanInterval. clean_all carries
// no single-flight lock in the original either: it is naturally
// idempotent (deleting an already-deleted row is a no-op).
func (d *Dispatcher) runCleanTicker(ctx context.Context) error {
	ticker := time.NewTicker(d.CleanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := d.Dispatch.CleanAll(ctx); err != nil {
				d.Logger.Error(err, "clean_all failed")
			}
		}
	}
}
