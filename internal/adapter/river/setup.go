package river

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riversqlite"
	"github.com/riverqueue/river/rivermigrate"
)

// DefaultSweepInterval is how often expired licenses are swept.
const DefaultSweepInterval = time.Hour

// Options configures the River client built by Setup.
type Options struct {
	Logger *slog.Logger
	// OnEvent receives every dequeued plugin event; nil only logs it.
	OnEvent EventHandler
	// Sweeper enables the periodic license sweep when set.
	Sweeper       Sweeper
	SweepInterval time.Duration
}

// Setup runs River's migrations and creates a client with the plugin event
// worker registered, plus the periodic license sweep when opts.Sweeper is
// set. The caller must Start the client and Stop it on shutdown.
func Setup(ctx context.Context, db *sql.DB, opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	driver := riversqlite.New(db)

	// River's own tables, separate from the goose-managed platform schema.
	migrator, err := rivermigrate.New(driver, nil)
	if err != nil {
		return nil, fmt.Errorf("creating river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return nil, fmt.Errorf("running river migrations: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &PluginEventWorker{logger: logger, handler: opts.OnEvent})

	var periodic []*river.PeriodicJob
	if opts.Sweeper != nil {
		river.AddWorker(workers, &LicenseSweepWorker{logger: logger, sweeper: opts.Sweeper})

		interval := opts.SweepInterval
		if interval <= 0 {
			interval = DefaultSweepInterval
		}
		periodic = append(periodic, river.NewPeriodicJob(
			river.PeriodicInterval(interval),
			func() (river.JobArgs, *river.InsertOpts) { return LicenseSweepArgs{}, nil },
			&river.PeriodicJobOpts{RunOnStart: true},
		))
	}

	client, err := river.NewClient(driver, &river.Config{
		Logger: logger,
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 2},
		},
		Workers:      workers,
		PeriodicJobs: periodic,
	})
	if err != nil {
		return nil, fmt.Errorf("creating river client: %w", err)
	}

	return client, nil
}
