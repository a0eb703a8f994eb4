// Package memory provides an in-process punishment store for tests and
// ephemeral deployments. State is lost on shutdown.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wardenlabs/warden/internal/database/types"
	"github.com/wardenlabs/warden/internal/database/types/enum"
	"github.com/wardenlabs/warden/pkg/utils"
	"go.uber.org/zap"
)

// Store keeps punishment records in process memory behind a single lock.
type Store struct {
	mu      sync.RWMutex
	nextID  int64
	records map[int64]*types.Punishment
	logger  *zap.Logger
}

// New creates an empty in-memory store.
func New(logger *zap.Logger) *Store {
	return &Store{
		records: make(map[int64]*types.Punishment),
		logger:  logger.Named("db_memory"),
	}
}

// Save persists a new punishment record and returns the assigned ID.
func (s *Store) Save(ctx context.Context, record *types.Punishment) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, types.NewPersistenceError("save", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	record.ID = s.nextID
	record.SubjectNameFold = utils.NormalizeName(record.SubjectName)
	s.records[record.ID] = clone(record)

	return record.ID, nil
}

// ListBySubjectID returns the subject's full history, newest first.
func (s *Store) ListBySubjectID(ctx context.Context, subjectID uuid.UUID) ([]*types.Punishment, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.NewPersistenceError("list_by_subject_id", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*types.Punishment

	for _, record := range s.records {
		if record.SubjectID == subjectID {
			results = append(results, clone(record))
		}
	}

	sortNewestFirst(results)

	return results, nil
}

// ListBySubjectName returns the history recorded under the display name,
// matched on the folded form, newest first.
func (s *Store) ListBySubjectName(ctx context.Context, name string) ([]*types.Punishment, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.NewPersistenceError("list_by_subject_name", err)
	}

	fold := utils.NormalizeName(name)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*types.Punishment

	for _, record := range s.records {
		if record.SubjectNameFold == fold {
			results = append(results, clone(record))
		}
	}

	sortNewestFirst(results)

	return results, nil
}

// FindActive returns the newest active record of exactly the given type,
// expiring it first when its expiry has already passed.
func (s *Store) FindActive(
	ctx context.Context, subjectID uuid.UUID, punishmentType enum.PunishmentType,
) (*types.Punishment, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.NewPersistenceError("find_active", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	newest := s.newestActiveLocked(func(record *types.Punishment) bool {
		return record.SubjectID == subjectID && record.Type == punishmentType
	})
	if newest == nil {
		return nil, nil
	}

	if newest.IsExpired() {
		s.deactivateLocked(newest, enum.DeactivationReasonExpired, "")
		return nil, nil
	}

	return clone(newest), nil
}

// FindActiveIPBan returns the newest active IP ban for the address,
// expiring it first when its expiry has already passed.
func (s *Store) FindActiveIPBan(ctx context.Context, address string) (*types.Punishment, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.NewPersistenceError("find_active_ip_ban", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	newest := s.newestActiveLocked(func(record *types.Punishment) bool {
		return record.Type == enum.PunishmentTypeIPBan && record.IPAddress == address
	})
	if newest == nil {
		return nil, nil
	}

	if newest.IsExpired() {
		s.deactivateLocked(newest, enum.DeactivationReasonExpired, "")
		return nil, nil
	}

	return clone(newest), nil
}

// ListActiveIPBans returns every in-force IP ban for the address, newest
// first, expiring stale ones along the way.
func (s *Store) ListActiveIPBans(ctx context.Context, address string) ([]*types.Punishment, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.NewPersistenceError("list_active_ip_bans", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var results []*types.Punishment

	for _, record := range s.records {
		if record.Type != enum.PunishmentTypeIPBan || !record.Active || record.IPAddress != address {
			continue
		}

		if record.IsExpired() {
			s.deactivateLocked(record, enum.DeactivationReasonExpired, "")
			continue
		}

		results = append(results, clone(record))
	}

	sortNewestFirst(results)

	return results, nil
}

// Deactivate marks the record inactive. Deactivating an already-inactive
// record is a no-op.
func (s *Store) Deactivate(ctx context.Context, id int64, reason enum.DeactivationReason, source string) error {
	if err := ctx.Err(); err != nil {
		return types.NewPersistenceError("deactivate", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok || !record.Active {
		return nil
	}

	s.deactivateLocked(record, reason, source)

	return nil
}

// ExpireDue marks every active record whose expiry is at or before now as
// EXPIRED and returns the count.
func (s *Store) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, types.NewPersistenceError("expire_due", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64

	for _, record := range s.records {
		if record.Active && record.ExpiresAt != nil && !record.ExpiresAt.After(now) {
			s.deactivateLocked(record, enum.DeactivationReasonExpired, "")
			count++
		}
	}

	return count, nil
}

// Close releases nothing; it exists to satisfy the storage contract.
func (s *Store) Close() error {
	s.logger.Debug("In-memory store closed")
	return nil
}

// newestActiveLocked returns the newest active record matching the filter.
// Ties on issuance time fall back to the assigned ID.
func (s *Store) newestActiveLocked(match func(*types.Punishment) bool) *types.Punishment {
	var newest *types.Punishment

	for _, record := range s.records {
		if !record.Active || !match(record) {
			continue
		}

		if newest == nil || record.IssuedAt.After(newest.IssuedAt) ||
			(record.IssuedAt.Equal(newest.IssuedAt) && record.ID > newest.ID) {
			newest = record
		}
	}

	return newest
}

func (s *Store) deactivateLocked(record *types.Punishment, reason enum.DeactivationReason, source string) {
	now := time.Now()
	record.Active = false
	record.DeactivationReason = reason
	record.DeactivationSource = source
	record.DeactivatedAt = &now
}

func sortNewestFirst(records []*types.Punishment) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].IssuedAt.Equal(records[j].IssuedAt) {
			return records[i].IssuedAt.After(records[j].IssuedAt)
		}

		return records[i].ID > records[j].ID
	})
}

func clone(record *types.Punishment) *types.Punishment {
	copied := *record

	if record.ExpiresAt != nil {
		expiresAt := *record.ExpiresAt
		copied.ExpiresAt = &expiresAt
	}

	if record.DeactivatedAt != nil {
		deactivatedAt := *record.DeactivatedAt
		copied.DeactivatedAt = &deactivatedAt
	}

	return &copied
}
