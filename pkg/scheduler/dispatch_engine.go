package scheduler

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/blockset-corp/chainaudit/pkg/chainmodel"
	"github.com/blockset-corp/chainaudit/pkg/metrics"
)

// JobEnqueuer pushes one check_job task per enabled job onto the tick
// pool. Kept as an interface for the same reason as BlockEnqueuer: the
// engine never imports pkg/taskqueue.
type JobEnqueuer interface {
	EnqueueCheckJob(ctx context.Context, job chainmodel.Job) error
}

// DispatchEngine implements the top-level dispatcher and retention
// sweeper.
type DispatchEngine struct {
	Jobs     JobStore
	Fetches  FetchStore
	Enqueuer JobEnqueuer
	Logger   logr.Logger

	// RetentionWindow is how far back a superseded Fetch row must be to
	// be eligible for deletion by CleanAll.
	RetentionWindow time.Duration

	// Now is overridable for tests; defaults to time.Now when nil.
	Now func() time.Time
}

// NewDispatchEngine builds a DispatchEngine.
func NewDispatchEngine(jobs JobStore, fetches FetchStore, enqueuer JobEnqueuer, retentionWindow time.Duration, logger logr.Logger) *DispatchEngine {
	return &DispatchEngine{
		Jobs:            jobs,
		Fetches:         fetches,
		Enqueuer:        enqueuer,
		RetentionWindow: retentionWindow,
		Logger:          logger,
	}
}

func (d *DispatchEngine) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

// CheckAll enumerates every enabled job and enqueues one check_job per
// job. The caller is responsible for the process-wide single-flight
// lock keyed on the constant task name.
func (d *DispatchEngine) CheckAll(ctx context.Context) error {
	jobs, err := d.Jobs.FindAllActive(ctx)
	if err != nil {
		metrics.RecordDispatchRun("error")
		return err
	}

	for _, job := range jobs {
		if err := d.Enqueuer.EnqueueCheckJob(ctx, job); err != nil {
			d.Logger.Error(err, "failed to enqueue check_job", "job_id", job.ID)
		}
	}

	metrics.RecordDispatchRun("ok")
	d.Logger.Info("check_all dispatched", "job_count", len(jobs))
	return nil
}

// CleanAll deletes Fetch rows that are superseded (not the current
// fetch of any Block) and older than RetentionWindow.
func (d *DispatchEngine) CleanAll(ctx context.Context) error {
	cutoff := d.now().Add(-d.RetentionWindow)
	deleted, err := d.Fetches.DeleteSuperseded(ctx, cutoff)
	if err != nil {
		return err
	}
	d.Logger.Info("retention sweep complete", "deleted", deleted, "cutoff", cutoff)
	return nil
}
