package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/neomorfeo/pluginiq/internal/domain"
)

// PluginStateRepository implements domain.PluginStateRepository using SQLite.
type PluginStateRepository struct {
	db *sql.DB
}

var _ domain.PluginStateRepository = (*PluginStateRepository)(nil)

const stateColumns = `tenant_id, plugin_id, status, version, config, error,
	installed_at, updated_at, enabled_at, disabled_at`

// Save inserts or replaces the state of (TenantID, PluginID). Concurrent
// writers are not coordinated; the last write wins.
func (r *PluginStateRepository) Save(ctx context.Context, st domain.PluginState) error {
	cfg := st.Config
	if cfg == nil {
		cfg = map[string]any{}
	}
	config, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding plugin config: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO plugin_states (`+stateColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, plugin_id) DO UPDATE SET
		   status = excluded.status,
		   version = excluded.version,
		   config = excluded.config,
		   error = excluded.error,
		   updated_at = excluded.updated_at,
		   enabled_at = excluded.enabled_at,
		   disabled_at = excluded.disabled_at`,
		st.TenantID, st.PluginID, string(st.Status), st.Version, string(config), st.Error,
		formatTime(st.InstalledAt), formatTime(st.UpdatedAt),
		formatNullTime(st.EnabledAt), formatNullTime(st.DisabledAt),
	)
	if err != nil {
		return fmt.Errorf("saving plugin state: %w", err)
	}
	return nil
}

func (r *PluginStateRepository) Get(ctx context.Context, tenantID, pluginID string) (domain.PluginState, error) {
	return scanState(r.db.QueryRowContext(ctx,
		`SELECT `+stateColumns+` FROM plugin_states WHERE tenant_id = ? AND plugin_id = ?`,
		tenantID, pluginID,
	))
}

func (r *PluginStateRepository) ListByTenant(ctx context.Context, tenantID string) ([]domain.PluginState, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+stateColumns+` FROM plugin_states WHERE tenant_id = ? ORDER BY plugin_id`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing plugin states: %w", err)
	}
	defer rows.Close()

	var out []domain.PluginState
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (r *PluginStateRepository) Delete(ctx context.Context, tenantID, pluginID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM plugin_states WHERE tenant_id = ? AND plugin_id = ?`, tenantID, pluginID)
	if err != nil {
		return fmt.Errorf("deleting plugin state: %w", err)
	}
	return nil
}

// CountInstalls returns how many tenants hold a state for pluginID.
func (r *PluginStateRepository) CountInstalls(ctx context.Context, pluginID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM plugin_states WHERE plugin_id = ?`, pluginID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting plugin installs: %w", err)
	}
	return n, nil
}

func scanState(row scanner) (domain.PluginState, error) {
	var st domain.PluginState
	var status, config, installedAt, updatedAt string
	var enabledAt, disabledAt sql.NullString

	err := row.Scan(&st.TenantID, &st.PluginID, &status, &st.Version, &config, &st.Error,
		&installedAt, &updatedAt, &enabledAt, &disabledAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PluginState{}, domain.ErrPluginNotInstalled
		}
		return domain.PluginState{}, fmt.Errorf("scanning plugin state: %w", err)
	}

	if err := json.Unmarshal([]byte(config), &st.Config); err != nil {
		return domain.PluginState{}, fmt.Errorf("decoding plugin config: %w", err)
	}
	st.Status = domain.PluginStatus(status)
	st.InstalledAt = parseTime(installedAt)
	st.UpdatedAt = parseTime(updatedAt)
	st.EnabledAt = parseNullTime(enabledAt)
	st.DisabledAt = parseNullTime(disabledAt)
	return st, nil
}
