package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/neomorfeo/pluginiq/internal/domain"
)

// FeatureFlagRepository implements domain.FeatureFlagRepository using SQLite.
type FeatureFlagRepository struct {
	db *sql.DB
}

var _ domain.FeatureFlagRepository = (*FeatureFlagRepository)(nil)

func (r *FeatureFlagRepository) Set(ctx context.Context, f domain.FeatureFlag) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO plugin_feature_flags (tenant_id, plugin_id, feature_key, is_enabled)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (tenant_id, plugin_id, feature_key) DO UPDATE SET is_enabled = excluded.is_enabled`,
		f.TenantID, f.PluginID, f.FeatureKey, f.Enabled,
	)
	if err != nil {
		return fmt.Errorf("setting feature flag: %w", err)
	}
	return nil
}

// Get returns the flag and whether a row exists.
func (r *FeatureFlagRepository) Get(ctx context.Context, tenantID, pluginID, featureKey string) (domain.FeatureFlag, bool, error) {
	f := domain.FeatureFlag{TenantID: tenantID, PluginID: pluginID, FeatureKey: featureKey}
	err := r.db.QueryRowContext(ctx,
		`SELECT is_enabled FROM plugin_feature_flags
		 WHERE tenant_id = ? AND plugin_id = ? AND feature_key = ?`,
		tenantID, pluginID, featureKey,
	).Scan(&f.Enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return f, false, nil
	}
	if err != nil {
		return f, false, fmt.Errorf("reading feature flag: %w", err)
	}
	return f, true, nil
}

func (r *FeatureFlagRepository) DeleteForPlugin(ctx context.Context, tenantID, pluginID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM plugin_feature_flags WHERE tenant_id = ? AND plugin_id = ?`, tenantID, pluginID)
	if err != nil {
		return fmt.Errorf("deleting feature flags: %w", err)
	}
	return nil
}
