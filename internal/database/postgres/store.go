package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/wardenlabs/warden/internal/database/dbretry"
	"github.com/wardenlabs/warden/internal/database/types"
	"github.com/wardenlabs/warden/internal/database/types/enum"
	"github.com/wardenlabs/warden/pkg/utils"
)

// Save inserts the record and writes the assigned ID back into it.
func (s *Store) Save(ctx context.Context, record *types.Punishment) (int64, error) {
	record.SubjectNameFold = utils.NormalizeName(record.SubjectName)

	id, err := dbretry.Operation(ctx, func(ctx context.Context) (int64, error) {
		if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
			return 0, err
		}

		return record.ID, nil
	})
	if err != nil {
		return 0, types.NewPersistenceError("save", err)
	}

	return id, nil
}

// ListBySubjectID returns the subject's full history, newest first.
func (s *Store) ListBySubjectID(ctx context.Context, subjectID uuid.UUID) ([]*types.Punishment, error) {
	records, err := dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Punishment, error) {
		var records []*types.Punishment

		err := s.db.NewSelect().
			Model(&records).
			Where("subject_id = ?", subjectID).
			OrderExpr("issued_at DESC, id DESC").
			Scan(ctx)
		if err != nil {
			return nil, err
		}

		return records, nil
	})
	if err != nil {
		return nil, types.NewPersistenceError("list_by_subject_id", err)
	}

	return records, nil
}

// ListBySubjectName returns the history for every subject whose folded
// name matches the folded query, newest first.
func (s *Store) ListBySubjectName(ctx context.Context, name string) ([]*types.Punishment, error) {
	records, err := dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Punishment, error) {
		var records []*types.Punishment

		err := s.db.NewSelect().
			Model(&records).
			Where("subject_name_fold = ?", utils.NormalizeName(name)).
			OrderExpr("issued_at DESC, id DESC").
			Scan(ctx)
		if err != nil {
			return nil, err
		}

		return records, nil
	})
	if err != nil {
		return nil, types.NewPersistenceError("list_by_subject_name", err)
	}

	return records, nil
}

// FindActive returns the newest active record of the exact type, expiring
// it first when its term has lapsed. Absence is (nil, nil).
func (s *Store) FindActive(ctx context.Context, subjectID uuid.UUID, punishmentType enum.PunishmentType) (*types.Punishment, error) {
	record, err := dbretry.Operation(ctx, func(ctx context.Context) (*types.Punishment, error) {
		var record types.Punishment

		err := s.db.NewSelect().
			Model(&record).
			Where("subject_id = ?", subjectID).
			Where("type = ?", punishmentType).
			Where("active = ?", true).
			OrderExpr("issued_at DESC, id DESC").
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}

			return nil, err
		}

		return &record, nil
	})
	if err != nil {
		return nil, types.NewPersistenceError("find_active", err)
	}

	return s.resolveExpiry(ctx, record)
}

// FindActiveIPBan returns the newest active IP ban covering the address.
func (s *Store) FindActiveIPBan(ctx context.Context, address string) (*types.Punishment, error) {
	record, err := dbretry.Operation(ctx, func(ctx context.Context) (*types.Punishment, error) {
		var record types.Punishment

		err := s.db.NewSelect().
			Model(&record).
			Where("type = ?", enum.PunishmentTypeIPBan).
			Where("ip_address = ?", address).
			Where("active = ?", true).
			OrderExpr("issued_at DESC, id DESC").
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}

			return nil, err
		}

		return &record, nil
	})
	if err != nil {
		return nil, types.NewPersistenceError("find_active_ip_ban", err)
	}

	return s.resolveExpiry(ctx, record)
}

// ListActiveIPBans returns every in-force IP ban for the address, newest
// first. Lapsed records encountered during the scan are expired.
func (s *Store) ListActiveIPBans(ctx context.Context, address string) ([]*types.Punishment, error) {
	records, err := dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Punishment, error) {
		var records []*types.Punishment

		err := s.db.NewSelect().
			Model(&records).
			Where("type = ?", enum.PunishmentTypeIPBan).
			Where("ip_address = ?", address).
			Where("active = ?", true).
			OrderExpr("issued_at DESC, id DESC").
			Scan(ctx)
		if err != nil {
			return nil, err
		}

		return records, nil
	})
	if err != nil {
		return nil, types.NewPersistenceError("list_active_ip_bans", err)
	}

	inForce := make([]*types.Punishment, 0, len(records))

	for _, record := range records {
		if record.IsExpired() {
			if err := s.Deactivate(ctx, record.ID, enum.DeactivationReasonExpired, ""); err != nil {
				return nil, err
			}

			continue
		}

		inForce = append(inForce, record)
	}

	return inForce, nil
}

// Deactivate marks the record inactive. Missing or already inactive
// records are left untouched.
func (s *Store) Deactivate(ctx context.Context, id int64, reason enum.DeactivationReason, source string) error {
	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := s.db.NewUpdate().
			Model((*types.Punishment)(nil)).
			Set("active = ?", false).
			Set("deactivation_reason = ?", reason).
			Set("deactivation_source = ?", source).
			Set("deactivated_at = ?", time.Now().UTC()).
			Where("id = ?", id).
			Where("active = ?", true).
			Exec(ctx)

		return err
	})
	if err != nil {
		return types.NewPersistenceError("deactivate", err)
	}

	return nil
}

// ExpireDue deactivates every active record whose expiry is at or before
// now and reports how many were affected.
func (s *Store) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	count, err := dbretry.Operation(ctx, func(ctx context.Context) (int64, error) {
		result, err := s.db.NewUpdate().
			Model((*types.Punishment)(nil)).
			Set("active = ?", false).
			Set("deactivation_reason = ?", enum.DeactivationReasonExpired).
			Set("deactivation_source = NULL").
			Set("deactivated_at = ?", time.Now().UTC()).
			Where("active = ?", true).
			Where("expires_at IS NOT NULL").
			Where("expires_at <= ?", now).
			Exec(ctx)
		if err != nil {
			return 0, err
		}

		return result.RowsAffected()
	})
	if err != nil {
		return 0, types.NewPersistenceError("expire_due", err)
	}

	return count, nil
}

// resolveExpiry applies lazy expiry to a just-fetched active record.
func (s *Store) resolveExpiry(ctx context.Context, record *types.Punishment) (*types.Punishment, error) {
	if record == nil {
		return nil, nil
	}

	if record.IsExpired() {
		if err := s.Deactivate(ctx, record.ID, enum.DeactivationReasonExpired, ""); err != nil {
			return nil, err
		}

		return nil, nil
	}

	return record, nil
}
