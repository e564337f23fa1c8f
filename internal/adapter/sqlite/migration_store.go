package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/neomorfeo/pluginiq/internal/domain"
)

// MigrationStore runs plugin-bundled SQL against the platform database and
// tracks applied versions in plugin_migrations.
type MigrationStore struct {
	db *sql.DB
}

var (
	_ domain.MigrationStore   = (*MigrationStore)(nil)
	_ domain.TenantDataPurger = (*MigrationStore)(nil)
)

func (s *MigrationStore) Exec(ctx context.Context, statement string) error {
	if _, err := s.db.ExecContext(ctx, statement); err != nil {
		return err
	}
	return nil
}

func (s *MigrationStore) IsApplied(ctx context.Context, pluginID, version string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM plugin_migrations WHERE plugin_id = ? AND version = ?`,
		pluginID, version,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("reading migration record: %w", err)
	}
	return n > 0, nil
}

func (s *MigrationStore) MarkApplied(ctx context.Context, rec domain.MigrationRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO plugin_migrations (plugin_id, version, applied_at) VALUES (?, ?, ?)
		 ON CONFLICT (plugin_id, version) DO NOTHING`,
		rec.PluginID, rec.Version, formatTime(rec.AppliedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting migration record: %w", err)
	}
	return nil
}

func (s *MigrationStore) MarkReverted(ctx context.Context, pluginID, version string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM plugin_migrations WHERE plugin_id = ? AND version = ?`, pluginID, version)
	if err != nil {
		return fmt.Errorf("deleting migration record: %w", err)
	}
	return nil
}

// Records returns the applied migrations of pluginID in application order.
func (s *MigrationStore) Records(ctx context.Context, pluginID string) ([]domain.MigrationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT plugin_id, version, applied_at FROM plugin_migrations
		 WHERE plugin_id = ? ORDER BY applied_at, rowid`, pluginID)
	if err != nil {
		return nil, fmt.Errorf("listing migration records: %w", err)
	}
	defer rows.Close()

	var out []domain.MigrationRecord
	for rows.Next() {
		var rec domain.MigrationRecord
		var appliedAt string
		if err := rows.Scan(&rec.PluginID, &rec.Version, &appliedAt); err != nil {
			return nil, fmt.Errorf("scanning migration record: %w", err)
		}
		rec.AppliedAt = parseTime(appliedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PurgeTenantRows deletes the rows of tenantID from a plugin-owned table.
// A table that does not exist yet has nothing to purge.
func (s *MigrationStore) PurgeTenantRows(ctx context.Context, table, tenantID string) error {
	if !identifier.MatchString(table) {
		return fmt.Errorf("purging tenant rows: invalid table name %q", table)
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM "`+table+`" WHERE tenant_id = ?`, tenantID)
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return nil
		}
		return fmt.Errorf("purging %s rows for tenant %s: %w", table, tenantID, err)
	}
	return nil
}
