package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/neomorfeo/pluginiq/internal/domain"
)

// LicenseRepository implements domain.LicenseRepository using SQLite.
// A tenant holds at most one license per plugin.
type LicenseRepository struct {
	db *sql.DB
}

var _ domain.LicenseRepository = (*LicenseRepository)(nil)

const licenseColumns = `id, tenant_id, plugin_id, plan, status, features, expires_at, created_at, updated_at`

func (r *LicenseRepository) Upsert(ctx context.Context, l domain.License) error {
	features, err := json.Marshal(nonNil(l.Features))
	if err != nil {
		return fmt.Errorf("encoding license features: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO plugin_licenses (`+licenseColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, plugin_id) DO UPDATE SET
		   plan = excluded.plan,
		   status = excluded.status,
		   features = excluded.features,
		   expires_at = excluded.expires_at,
		   updated_at = excluded.updated_at`,
		l.ID, l.TenantID, l.PluginID, string(l.Plan), string(l.Status), string(features),
		formatNullTime(l.ExpiresAt), formatTime(l.CreatedAt), formatTime(l.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting license: %w", err)
	}
	return nil
}

func (r *LicenseRepository) Get(ctx context.Context, tenantID, pluginID string) (domain.License, error) {
	return scanLicense(r.db.QueryRowContext(ctx,
		`SELECT `+licenseColumns+` FROM plugin_licenses WHERE tenant_id = ? AND plugin_id = ?`,
		tenantID, pluginID,
	))
}

// ListByTenant returns every license of the tenant regardless of status.
// Callers filter with domain.License.Active.
func (r *LicenseRepository) ListByTenant(ctx context.Context, tenantID string) ([]domain.License, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+licenseColumns+` FROM plugin_licenses WHERE tenant_id = ? ORDER BY plugin_id`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing licenses: %w", err)
	}
	defer rows.Close()

	var out []domain.License
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *LicenseRepository) Delete(ctx context.Context, tenantID, pluginID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM plugin_licenses WHERE tenant_id = ? AND plugin_id = ?`, tenantID, pluginID)
	if err != nil {
		return fmt.Errorf("deleting license: %w", err)
	}
	return nil
}

// ExpireBefore marks active licenses whose expiry is at or before now as
// expired and returns how many changed.
func (r *LicenseRepository) ExpireBefore(ctx context.Context, now time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE plugin_licenses SET status = ?, updated_at = ?
		 WHERE status = ? AND expires_at IS NOT NULL AND expires_at <= ?`,
		string(domain.LicenseExpired), formatTime(now), string(domain.LicenseActive), formatTime(now),
	)
	if err != nil {
		return 0, fmt.Errorf("expiring licenses: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return int(n), nil
}

func scanLicense(row scanner) (domain.License, error) {
	var l domain.License
	var plan, status, features, createdAt, updatedAt string
	var expiresAt sql.NullString

	err := row.Scan(&l.ID, &l.TenantID, &l.PluginID, &plan, &status, &features,
		&expiresAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.License{}, domain.ErrLicenseNotFound
		}
		return domain.License{}, fmt.Errorf("scanning license: %w", err)
	}

	if err := json.Unmarshal([]byte(features), &l.Features); err != nil {
		return domain.License{}, fmt.Errorf("decoding license features: %w", err)
	}
	l.Plan = domain.LicensePlan(plan)
	l.Status = domain.LicenseStatus(status)
	l.ExpiresAt = parseNullTime(expiresAt)
	l.CreatedAt = parseTime(createdAt)
	l.UpdatedAt = parseTime(updatedAt)
	return l, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
