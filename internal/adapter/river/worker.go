package river

import (
	"context"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/pluginiq/internal/domain"
)

// EventHandler consumes a dequeued plugin event. Returning an error makes
// River retry the job.
type EventHandler func(ctx context.Context, event domain.Event) error

// PluginEventWorker processes plugin event jobs.
type PluginEventWorker struct {
	river.WorkerDefaults[PluginEventArgs]

	logger  *slog.Logger
	handler EventHandler
}

func (w *PluginEventWorker) Work(ctx context.Context, job *river.Job[PluginEventArgs]) error {
	w.logger.InfoContext(ctx, "processing plugin event",
		"kind", job.Args.EventKind,
		"plugin_id", job.Args.PluginID,
		"tenant_id", job.Args.TenantID,
		"job_id", job.ID,
		"attempt", job.Attempt,
	)
	if w.handler == nil {
		return nil
	}
	return w.handler(ctx, job.Args.Event())
}

// LicenseSweepArgs triggers expiry of licenses past their end date.
type LicenseSweepArgs struct{}

func (LicenseSweepArgs) Kind() string { return "license.sweep" }

// InsertOpts keeps at most one pending sweep in the queue.
func (LicenseSweepArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		UniqueOpts: river.UniqueOpts{ByPeriod: time.Minute},
	}
}

// Sweeper expires licenses whose end date has passed.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// LicenseSweepWorker runs the license Sweeper.
type LicenseSweepWorker struct {
	river.WorkerDefaults[LicenseSweepArgs]

	logger  *slog.Logger
	sweeper Sweeper
}

func (w *LicenseSweepWorker) Work(ctx context.Context, job *river.Job[LicenseSweepArgs]) error {
	n, err := w.sweeper.SweepExpired(ctx)
	if err != nil {
		return err
	}
	w.logger.InfoContext(ctx, "license sweep complete", "expired", n, "job_id", job.ID)
	return nil
}
