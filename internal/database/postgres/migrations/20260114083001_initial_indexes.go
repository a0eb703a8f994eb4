package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewRaw(`
			-- Subject lookups resolve the newest active record per type
			CREATE INDEX IF NOT EXISTS idx_punishments_subject_active
			ON punishments (subject_id, type, issued_at DESC, id DESC)
			WHERE active = true;

			-- Full history listings by subject
			CREATE INDEX IF NOT EXISTS idx_punishments_subject_history
			ON punishments (subject_id, issued_at DESC, id DESC);

			-- Name lookups go through the folded form
			CREATE INDEX IF NOT EXISTS idx_punishments_name_fold
			ON punishments (subject_name_fold, issued_at DESC, id DESC);

			-- Connection gating checks addresses against active IP bans
			CREATE INDEX IF NOT EXISTS idx_punishments_ip_active
			ON punishments (ip_address, issued_at DESC, id DESC)
			WHERE active = true AND ip_address IS NOT NULL;

			-- Sweeper reconciliation scans records due to expire
			CREATE INDEX IF NOT EXISTS idx_punishments_expiry
			ON punishments (expires_at)
			WHERE active = true AND expires_at IS NOT NULL;
		`).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewRaw(`
			DROP INDEX IF EXISTS idx_punishments_subject_active;
			DROP INDEX IF EXISTS idx_punishments_subject_history;
			DROP INDEX IF EXISTS idx_punishments_name_fold;
			DROP INDEX IF EXISTS idx_punishments_ip_active;
			DROP INDEX IF EXISTS idx_punishments_expiry;
		`).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to drop indexes: %w", err)
		}

		return nil
	})
}
