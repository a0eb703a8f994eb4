// Package punishment implements the moderation engine: issuing, removing,
// querying, and enforcing bans, mutes, and kicks.
package punishment

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wardenlabs/warden/internal/database"
	"github.com/wardenlabs/warden/internal/database/types"
	"github.com/wardenlabs/warden/internal/database/types/enum"
	"github.com/wardenlabs/warden/pkg/utils"
	"go.uber.org/zap"
)

// ConflictSource marks deactivations performed to make room for a newly
// issued punishment of the same family.
const ConflictSource = "System:conflict-resolution"

// DefaultActor attributes operations whose caller gave no actor name.
const DefaultActor = "Console"

// conflictTargets maps a newly issued type to the active types it replaces.
var conflictTargets = map[enum.PunishmentType][]enum.PunishmentType{ //nolint:gochecknoglobals // -
	enum.PunishmentTypeBan:      {enum.PunishmentTypeTempBan},
	enum.PunishmentTypeTempBan:  {enum.PunishmentTypeBan},
	enum.PunishmentTypeIPBan:    {enum.PunishmentTypeBan, enum.PunishmentTypeTempBan},
	enum.PunishmentTypeMute:     {enum.PunishmentTypeTempMute},
	enum.PunishmentTypeTempMute: {enum.PunishmentTypeMute},
}

// Manager coordinates punishment state: validation, conflict resolution,
// persistence, and the mute cache.
type Manager struct {
	store         database.Store
	cache         *MuteCache
	events        *Broadcaster
	logger        *zap.Logger
	actorFallback string
}

// Option configures a Manager.
type Option func(*Manager)

// WithBroadcaster publishes mute invalidations to other nodes.
func WithBroadcaster(events *Broadcaster) Option {
	return func(m *Manager) {
		m.events = events
	}
}

// WithActorFallback overrides the name recorded when no actor is given.
func WithActorFallback(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.actorFallback = name
		}
	}
}

// NewManager creates the engine around a store and cache.
func NewManager(store database.Store, cache *MuteCache, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:         store,
		cache:         cache,
		logger:        logger.Named("punishment"),
		actorFallback: DefaultActor,
	}

	for _, opt := range opts {
		opt(m)
	}

	// The sweeper announces expiries it performs.
	cache.events = m.events

	return m
}

// Ban permanently bans the subject.
func (m *Manager) Ban(ctx context.Context, subjectID uuid.UUID, subjectName, reason, actor string) (*types.Punishment, error) {
	record, err := m.newRecord(subjectID, subjectName, enum.PunishmentTypeBan, reason, actor)
	if err != nil {
		return nil, err
	}

	return m.issue(ctx, record)
}

// TempBan bans the subject until expiresAt, which must be in the future.
func (m *Manager) TempBan(ctx context.Context, subjectID uuid.UUID, subjectName, reason, actor string, expiresAt time.Time) (*types.Punishment, error) {
	record, err := m.newRecord(subjectID, subjectName, enum.PunishmentTypeTempBan, reason, actor)
	if err != nil {
		return nil, err
	}

	if err := setExpiry(record, &expiresAt); err != nil {
		return nil, err
	}

	return m.issue(ctx, record)
}

// IPBan bans the subject and its last known address. expiresAt is optional;
// nil means permanent.
func (m *Manager) IPBan(ctx context.Context, subjectID uuid.UUID, subjectName, reason, actor, address string, expiresAt *time.Time) (*types.Punishment, error) {
	record, err := m.newRecord(subjectID, subjectName, enum.PunishmentTypeIPBan, reason, actor)
	if err != nil {
		return nil, err
	}

	address = strings.TrimSpace(address)
	if address == "" {
		return nil, &ValidationError{Field: "ip_address", Message: "must not be empty"}
	}

	if net.ParseIP(address) == nil {
		return nil, &ValidationError{Field: "ip_address", Message: "must be a valid IP address"}
	}

	record.IPAddress = address

	if err := setExpiry(record, expiresAt); err != nil {
		return nil, err
	}

	return m.issue(ctx, record)
}

// Mute permanently mutes the subject.
func (m *Manager) Mute(ctx context.Context, subjectID uuid.UUID, subjectName, reason, actor string) (*types.Punishment, error) {
	record, err := m.newRecord(subjectID, subjectName, enum.PunishmentTypeMute, reason, actor)
	if err != nil {
		return nil, err
	}

	return m.issue(ctx, record)
}

// TempMute mutes the subject until expiresAt, which must be in the future.
func (m *Manager) TempMute(ctx context.Context, subjectID uuid.UUID, subjectName, reason, actor string, expiresAt time.Time) (*types.Punishment, error) {
	record, err := m.newRecord(subjectID, subjectName, enum.PunishmentTypeTempMute, reason, actor)
	if err != nil {
		return nil, err
	}

	if err := setExpiry(record, &expiresAt); err != nil {
		return nil, err
	}

	return m.issue(ctx, record)
}

// Kick records a kick in the history. Kicks are one-shot: the record is
// stored already deactivated, is never cached, and never gates anything.
func (m *Manager) Kick(ctx context.Context, subjectID uuid.UUID, subjectName, reason, actor string) (*types.Punishment, error) {
	record, err := m.newRecord(subjectID, subjectName, enum.PunishmentTypeKick, reason, actor)
	if err != nil {
		return nil, err
	}

	record.Active = false
	record.DeactivationReason = enum.DeactivationReasonRemovedBySource
	record.DeactivationSource = record.Actor
	deactivatedAt := record.IssuedAt
	record.DeactivatedAt = &deactivatedAt

	if _, err := m.store.Save(ctx, record); err != nil {
		return nil, err
	}

	m.logIssued(record)

	return record, nil
}

// Unban deactivates every active ban-family record for the subject.
// Returns NotFoundError when none were active.
func (m *Manager) Unban(ctx context.Context, subjectID uuid.UUID, source string) error {
	source = m.resolveActor(source)

	var removed int

	for _, punishmentType := range enum.BanFamilyTypes() {
		record, err := m.store.FindActive(ctx, subjectID, punishmentType)
		if err != nil {
			return err
		}

		if record == nil {
			continue
		}

		if err := m.store.Deactivate(ctx, record.ID, enum.DeactivationReasonRemovedBySource, source); err != nil {
			return err
		}

		removed++

		m.logger.Info("Removed punishment",
			zap.Int64("id", record.ID),
			zap.String("type", record.Type.String()),
			zap.String("subjectID", subjectID.String()),
			zap.String("source", source))
	}

	if removed == 0 {
		return &NotFoundError{SubjectID: subjectID, Family: "ban"}
	}

	return nil
}

// Unmute deactivates the subject's active mute. The record is resolved
// from the store, not the cache, so removal works even on cold nodes.
// Returns NotFoundError when none was active.
func (m *Manager) Unmute(ctx context.Context, subjectID uuid.UUID, source string) error {
	source = m.resolveActor(source)

	record, err := m.activeMute(ctx, subjectID)
	if err != nil {
		return err
	}

	if record == nil {
		return &NotFoundError{SubjectID: subjectID, Family: "mute"}
	}

	if err := m.store.Deactivate(ctx, record.ID, enum.DeactivationReasonRemovedBySource, source); err != nil {
		return err
	}

	m.cache.Evict(subjectID)
	m.publish(ctx, subjectID)

	m.logger.Info("Removed punishment",
		zap.Int64("id", record.ID),
		zap.String("type", record.Type.String()),
		zap.String("subjectID", subjectID.String()),
		zap.String("source", source))

	return nil
}

// History returns the newest-first record list for a query that is either
// a subject ID or a subject name.
func (m *Manager) History(ctx context.Context, query string) ([]*types.Punishment, error) {
	query = strings.TrimSpace(query)

	if subjectID, err := uuid.Parse(query); err == nil {
		return m.HistoryByID(ctx, subjectID)
	}

	return m.HistoryByName(ctx, query)
}

// HistoryByID returns the subject's full history, newest first.
func (m *Manager) HistoryByID(ctx context.Context, subjectID uuid.UUID) ([]*types.Punishment, error) {
	return m.store.ListBySubjectID(ctx, subjectID)
}

// HistoryByName returns the history for the name, matched case- and
// diacritic-insensitively.
func (m *Manager) HistoryByName(ctx context.Context, name string) ([]*types.Punishment, error) {
	return m.store.ListBySubjectName(ctx, name)
}

// CheckMuted returns the subject's in-force mute, or nil. Cache only,
// never blocks; an unwarmed subject reads as not muted.
func (m *Manager) CheckMuted(subjectID uuid.UUID) *types.Punishment {
	return m.cache.Get(subjectID)
}

// OnConnect warms the subject's mute entry in the background. The
// handshake never waits on the store.
func (m *Manager) OnConnect(subjectID uuid.UUID) {
	m.cache.WarmAsync(subjectID)
}

// OnDisconnect drops the subject's cache entry.
func (m *Manager) OnDisconnect(subjectID uuid.UUID) {
	m.cache.Evict(subjectID)
}

// issue runs the issuance pipeline: guard, conflict removal, persist,
// cache write-through.
func (m *Manager) issue(ctx context.Context, record *types.Punishment) (*types.Punishment, error) {
	// An active IP ban already covers the subject; plain bans are refused.
	if record.Type == enum.PunishmentTypeBan || record.Type == enum.PunishmentTypeTempBan {
		existing, err := m.store.FindActive(ctx, record.SubjectID, enum.PunishmentTypeIPBan)
		if err != nil {
			return nil, err
		}

		if existing != nil {
			return nil, &ConflictError{Existing: existing}
		}
	}

	// Read-then-write: two concurrent issuances for the same subject can
	// both pass the checks above and below. The newest record wins every
	// active lookup, so the overlap resolves on the next read.
	for _, conflictType := range conflictTargets[record.Type] {
		existing, err := m.store.FindActive(ctx, record.SubjectID, conflictType)
		if err != nil {
			return nil, err
		}

		if existing == nil {
			continue
		}

		if err := m.store.Deactivate(ctx, existing.ID, enum.DeactivationReasonRemovedBySource, ConflictSource); err != nil {
			return nil, err
		}

		m.logger.Debug("Resolved conflicting punishment",
			zap.Int64("id", existing.ID),
			zap.String("type", existing.Type.String()),
			zap.String("replacedBy", record.Type.String()))
	}

	if _, err := m.store.Save(ctx, record); err != nil {
		return nil, err
	}

	if record.Type.IsMuteFamily() {
		m.cache.Put(record)
		m.publish(ctx, record.SubjectID)
	}

	m.logIssued(record)

	return record, nil
}

// activeMute resolves the subject's active mute-family record from the
// store.
func (m *Manager) activeMute(ctx context.Context, subjectID uuid.UUID) (*types.Punishment, error) {
	for _, punishmentType := range enum.MuteFamilyTypes() {
		record, err := m.store.FindActive(ctx, subjectID, punishmentType)
		if err != nil {
			return nil, err
		}

		if record != nil {
			return record, nil
		}
	}

	return nil, nil
}

func (m *Manager) publish(ctx context.Context, subjectID uuid.UUID) {
	if m.events != nil {
		m.events.Publish(ctx, subjectID)
	}
}

func (m *Manager) newRecord(subjectID uuid.UUID, subjectName string, punishmentType enum.PunishmentType, reason, actor string) (*types.Punishment, error) {
	if subjectID == uuid.Nil {
		return nil, &ValidationError{Field: "subject_id", Message: "must not be zero"}
	}

	subjectName = strings.TrimSpace(subjectName)
	if subjectName == "" {
		return nil, &ValidationError{Field: "subject_name", Message: "must not be empty"}
	}

	reason = strings.TrimSpace(utils.CompressAllWhitespace(reason))
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Message: "must not be empty"}
	}

	return &types.Punishment{
		SubjectID:          subjectID,
		SubjectName:        subjectName,
		Type:               punishmentType,
		Reason:             reason,
		Actor:              m.resolveActor(actor),
		IssuedAt:           time.Now().UTC(),
		Active:             true,
		DeactivationReason: enum.DeactivationReasonActive,
	}, nil
}

func (m *Manager) resolveActor(actor string) string {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return m.actorFallback
	}

	return actor
}

func (m *Manager) logIssued(record *types.Punishment) {
	fields := []zap.Field{
		zap.Int64("id", record.ID),
		zap.String("type", record.Type.String()),
		zap.String("subjectID", record.SubjectID.String()),
		zap.String("subjectName", record.SubjectName),
		zap.String("actor", record.Actor),
	}

	if record.ExpiresAt != nil {
		fields = append(fields, zap.Time("expiresAt", *record.ExpiresAt))
	}

	m.logger.Info("Issued punishment", fields...)
}

// setExpiry validates and applies an expiry time. nil leaves the record
// permanent.
func setExpiry(record *types.Punishment, expiresAt *time.Time) error {
	if expiresAt == nil {
		return nil
	}

	if !expiresAt.After(time.Now()) {
		return &ValidationError{Field: "expires_at", Message: "must be in the future"}
	}

	at := expiresAt.UTC()
	record.ExpiresAt = &at

	return nil
}
