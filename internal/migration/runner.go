// Package migration applies and reverts the SQL migrations bundled in plugin
// manifests.
//
// Statements run one at a time without a surrounding transaction. A failing
// statement aborts its migration; statements already executed stay applied
// and the migration is not recorded, so plugin migrations should be written
// as individually idempotent statements (CREATE TABLE IF NOT EXISTS,
// INSERT OR IGNORE, DROP TABLE IF EXISTS).
package migration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neomorfeo/pluginiq/internal/domain"
)

// Direction tells whether a migration is being applied or reverted.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Observer is notified after every migration attempt.
type Observer func(pluginID, version string, dir Direction, elapsed time.Duration, err error)

// Runner applies plugin migrations against a domain.MigrationStore.
type Runner struct {
	store    domain.MigrationStore
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithObserver registers an observer for migration outcomes.
func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observer = o }
}

// NewRunner creates a runner. A nil logger falls back to slog.Default().
func NewRunner(store domain.MigrationStore, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply runs every unapplied migration of m in declaration order and
// returns how many were applied. Already recorded versions are skipped.
func (r *Runner) Apply(ctx context.Context, m domain.Manifest) (int, error) {
	applied := 0
	for _, mig := range m.Migrations {
		done, err := r.store.IsApplied(ctx, m.ID, mig.Version)
		if err != nil {
			return applied, fmt.Errorf("checking migration %s@%s: %w", m.ID, mig.Version, err)
		}
		if done {
			continue
		}

		if err := r.run(ctx, m.ID, mig, Up); err != nil {
			return applied, err
		}

		if err := r.store.MarkApplied(ctx, domain.MigrationRecord{
			PluginID:  m.ID,
			Version:   mig.Version,
			AppliedAt: r.now(),
		}); err != nil {
			return applied, fmt.Errorf("recording migration %s@%s: %w", m.ID, mig.Version, err)
		}
		applied++
	}
	return applied, nil
}

// Rollback runs the down scripts of applied migrations in reverse order and
// returns how many were reverted. Unrecorded versions are skipped.
func (r *Runner) Rollback(ctx context.Context, m domain.Manifest) (int, error) {
	reverted := 0
	for i := len(m.Migrations) - 1; i >= 0; i-- {
		mig := m.Migrations[i]
		done, err := r.store.IsApplied(ctx, m.ID, mig.Version)
		if err != nil {
			return reverted, fmt.Errorf("checking migration %s@%s: %w", m.ID, mig.Version, err)
		}
		if !done {
			continue
		}

		if err := r.run(ctx, m.ID, mig, Down); err != nil {
			return reverted, err
		}

		if err := r.store.MarkReverted(ctx, m.ID, mig.Version); err != nil {
			return reverted, fmt.Errorf("unrecording migration %s@%s: %w", m.ID, mig.Version, err)
		}
		reverted++
	}
	return reverted, nil
}

func (r *Runner) run(ctx context.Context, pluginID string, mig domain.Migration, dir Direction) (err error) {
	script := mig.Up
	if dir == Down {
		script = mig.Down
	}

	start := time.Now()
	defer func() {
		if r.observer != nil {
			r.observer(pluginID, mig.Version, dir, time.Since(start), err)
		}
	}()

	for i, stmt := range Split(script) {
		if execErr := r.store.Exec(ctx, stmt); execErr != nil {
			r.logger.ErrorContext(ctx, "plugin migration failed",
				"plugin_id", pluginID,
				"version", mig.Version,
				"direction", string(dir),
				"statement", i+1,
				"error", execErr,
			)
			return &domain.MigrationError{
				PluginID:  pluginID,
				Version:   mig.Version,
				Direction: string(dir),
				Statement: i,
				Err:       execErr,
			}
		}
	}

	r.logger.InfoContext(ctx, "plugin migration complete",
		"plugin_id", pluginID,
		"version", mig.Version,
		"direction", string(dir),
	)
	return nil
}
