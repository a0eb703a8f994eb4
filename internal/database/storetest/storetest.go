// Package storetest runs the behavioral contract every storage backend
// must satisfy. Backend test packages call Run with a factory producing a
// fresh store per test.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wardenlabs/warden/internal/database"
	"github.com/wardenlabs/warden/internal/database/types"
	"github.com/wardenlabs/warden/internal/database/types/enum"
)

// Factory returns a fresh, empty store. Cleanup is registered on t.
type Factory func(t *testing.T) database.Store

// Run executes the full storage contract against the factory's backend.
func Run(t *testing.T, factory Factory) {
	t.Helper()

	t.Run("SaveAssignsIDs", func(t *testing.T) { testSaveAssignsIDs(t, factory(t)) })
	t.Run("SavePreservesInactiveRecords", func(t *testing.T) { testSavePreservesInactive(t, factory(t)) })
	t.Run("HistoryNewestFirst", func(t *testing.T) { testHistoryNewestFirst(t, factory(t)) })
	t.Run("HistoryTiesBreakOnID", func(t *testing.T) { testHistoryTiesBreakOnID(t, factory(t)) })
	t.Run("HistoryByNameFoldsCase", func(t *testing.T) { testHistoryByNameFoldsCase(t, factory(t)) })
	t.Run("FindActiveMatchesExactType", func(t *testing.T) { testFindActiveExactType(t, factory(t)) })
	t.Run("FindActiveSkipsInactive", func(t *testing.T) { testFindActiveSkipsInactive(t, factory(t)) })
	t.Run("FindActiveLazilyExpires", func(t *testing.T) { testFindActiveLazilyExpires(t, factory(t)) })
	t.Run("FindActiveIPBanByAddress", func(t *testing.T) { testFindActiveIPBan(t, factory(t)) })
	t.Run("ListActiveIPBans", func(t *testing.T) { testListActiveIPBans(t, factory(t)) })
	t.Run("DeactivateIsIdempotent", func(t *testing.T) { testDeactivateIdempotent(t, factory(t)) })
	t.Run("DeactivateUnknownIDIsNoop", func(t *testing.T) { testDeactivateUnknownID(t, factory(t)) })
	t.Run("ExpireDueReconciles", func(t *testing.T) { testExpireDue(t, factory(t)) })
	t.Run("ReturnedRecordsAreDetached", func(t *testing.T) { testReturnedRecordsDetached(t, factory(t)) })
	t.Run("CancelledContextFails", func(t *testing.T) { testCancelledContext(t, factory(t)) })
}

// Record returns a fresh active ban for backend-specific tests.
func Record(t *testing.T) *types.Punishment {
	t.Helper()
	return record(uuid.New(), "tango", enum.PunishmentTypeBan)
}

// record builds a minimal active punishment for contract tests.
func record(subjectID uuid.UUID, name string, punishmentType enum.PunishmentType) *types.Punishment {
	return &types.Punishment{
		SubjectID:          subjectID,
		SubjectName:        name,
		Type:               punishmentType,
		Reason:             "contract test",
		Actor:              "Console",
		IssuedAt:           time.Now().UTC().Truncate(time.Millisecond),
		Active:             true,
		DeactivationReason: enum.DeactivationReasonActive,
	}
}

func expiring(p *types.Punishment, issuedAgo, expiresIn time.Duration) *types.Punishment {
	p.IssuedAt = time.Now().UTC().Add(-issuedAgo).Truncate(time.Millisecond)
	expiresAt := time.Now().UTC().Add(expiresIn).Truncate(time.Millisecond)
	p.ExpiresAt = &expiresAt

	return p
}

func testSaveAssignsIDs(t *testing.T, store database.Store) {
	ctx := t.Context()
	subject := uuid.New()

	first := record(subject, "alpha", enum.PunishmentTypeBan)
	firstID, err := store.Save(ctx, first)
	require.NoError(t, err)
	require.Positive(t, firstID)
	assert.Equal(t, firstID, first.ID, "assigned ID must be written back")

	second := record(subject, "alpha", enum.PunishmentTypeMute)
	secondID, err := store.Save(ctx, second)
	require.NoError(t, err)
	assert.Greater(t, secondID, firstID, "IDs must never repeat")
}

func testSavePreservesInactive(t *testing.T, store database.Store) {
	ctx := t.Context()
	subject := uuid.New()

	// Kicks are recorded already deactivated and must stay that way.
	kick := record(subject, "bravo", enum.PunishmentTypeKick)
	kick.Active = false
	kick.DeactivationReason = enum.DeactivationReasonRemovedBySource
	kick.DeactivationSource = "Console"
	deactivatedAt := kick.IssuedAt
	kick.DeactivatedAt = &deactivatedAt

	_, err := store.Save(ctx, kick)
	require.NoError(t, err)

	found, err := store.FindActive(ctx, subject, enum.PunishmentTypeKick)
	require.NoError(t, err)
	assert.Nil(t, found, "inactive record must not surface as active")

	history, err := store.ListBySubjectID(ctx, subject)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].Active)
	assert.Equal(t, enum.DeactivationReasonRemovedBySource, history[0].DeactivationReason)
}

func testHistoryNewestFirst(t *testing.T, store database.Store) {
	ctx := t.Context()
	subject := uuid.New()

	oldest := record(subject, "charlie", enum.PunishmentTypeKick)
	oldest.Active = false
	oldest.DeactivationReason = enum.DeactivationReasonRemovedBySource
	oldest.DeactivationSource = "Console"
	oldest.IssuedAt = time.Now().UTC().Add(-3 * time.Hour).Truncate(time.Millisecond)
	oldestAt := oldest.IssuedAt
	oldest.DeactivatedAt = &oldestAt

	middle := record(subject, "charlie", enum.PunishmentTypeMute)
	middle.IssuedAt = time.Now().UTC().Add(-2 * time.Hour).Truncate(time.Millisecond)

	newest := record(subject, "charlie", enum.PunishmentTypeBan)
	newest.IssuedAt = time.Now().UTC().Add(-1 * time.Hour).Truncate(time.Millisecond)

	for _, p := range []*types.Punishment{middle, oldest, newest} {
		_, err := store.Save(ctx, p)
		require.NoError(t, err)
	}

	history, err := store.ListBySubjectID(ctx, subject)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, enum.PunishmentTypeBan, history[0].Type)
	assert.Equal(t, enum.PunishmentTypeMute, history[1].Type)
	assert.Equal(t, enum.PunishmentTypeKick, history[2].Type)

	// Unrelated subjects stay invisible
	other, err := store.ListBySubjectID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, other)
}

func testHistoryTiesBreakOnID(t *testing.T, store database.Store) {
	ctx := t.Context()
	subject := uuid.New()
	issuedAt := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)

	first := record(subject, "delta", enum.PunishmentTypeMute)
	first.IssuedAt = issuedAt
	second := record(subject, "delta", enum.PunishmentTypeTempMute)
	second.IssuedAt = issuedAt

	firstID, err := store.Save(ctx, first)
	require.NoError(t, err)
	secondID, err := store.Save(ctx, second)
	require.NoError(t, err)
	require.Greater(t, secondID, firstID)

	history, err := store.ListBySubjectID(ctx, subject)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, secondID, history[0].ID, "equal issuance times order by ID, newest first")
}

func testHistoryByNameFoldsCase(t *testing.T, store database.Store) {
	ctx := t.Context()

	_, err := store.Save(ctx, record(uuid.New(), "Jörmungandr", enum.PunishmentTypeBan))
	require.NoError(t, err)

	for _, query := range []string{"jörmungandr", "JÖRMUNGANDR", "jormungandr", "Jormungandr"} {
		history, err := store.ListBySubjectName(ctx, query)
		require.NoError(t, err)
		require.Len(t, history, 1, "query %q must match the folded name", query)
		assert.Equal(t, "Jörmungandr", history[0].SubjectName, "display name must be stored verbatim")
	}

	missing, err := store.ListBySubjectName(ctx, "someone else")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func testFindActiveExactType(t *testing.T, store database.Store) {
	ctx := t.Context()
	subject := uuid.New()

	banID, err := store.Save(ctx, record(subject, "echo", enum.PunishmentTypeBan))
	require.NoError(t, err)

	found, err := store.FindActive(ctx, subject, enum.PunishmentTypeBan)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, banID, found.ID)
	assert.Equal(t, "contract test", found.Reason)

	// The exact type must match: a BAN is not a TEMP_BAN
	tempBan, err := store.FindActive(ctx, subject, enum.PunishmentTypeTempBan)
	require.NoError(t, err)
	assert.Nil(t, tempBan)

	// Newest active of the type wins
	laterID, err := store.Save(ctx, record(subject, "echo", enum.PunishmentTypeBan))
	require.NoError(t, err)

	found, err = store.FindActive(ctx, subject, enum.PunishmentTypeBan)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, laterID, found.ID)
}

func testFindActiveSkipsInactive(t *testing.T, store database.Store) {
	ctx := t.Context()
	subject := uuid.New()

	id, err := store.Save(ctx, record(subject, "foxtrot", enum.PunishmentTypeMute))
	require.NoError(t, err)

	require.NoError(t, store.Deactivate(ctx, id, enum.DeactivationReasonRemovedBySource, "Moderator"))

	found, err := store.FindActive(ctx, subject, enum.PunishmentTypeMute)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func testFindActiveLazilyExpires(t *testing.T, store database.Store) {
	ctx := t.Context()
	subject := uuid.New()

	stale := expiring(record(subject, "golf", enum.PunishmentTypeTempBan), 2*time.Hour, -time.Hour)
	id, err := store.Save(ctx, stale)
	require.NoError(t, err)

	// The expired record must not surface, and the read must demote it
	found, err := store.FindActive(ctx, subject, enum.PunishmentTypeTempBan)
	require.NoError(t, err)
	assert.Nil(t, found)

	history, err := store.ListBySubjectID(ctx, subject)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, id, history[0].ID)
	assert.False(t, history[0].Active, "lazy expiry must deactivate the record")
	assert.Equal(t, enum.DeactivationReasonExpired, history[0].DeactivationReason)
	assert.NotNil(t, history[0].DeactivatedAt)
}

func testFindActiveIPBan(t *testing.T, store database.Store) {
	ctx := t.Context()

	ban := record(uuid.New(), "hotel", enum.PunishmentTypeIPBan)
	ban.IPAddress = "203.0.113.7"
	id, err := store.Save(ctx, ban)
	require.NoError(t, err)

	found, err := store.FindActiveIPBan(ctx, "203.0.113.7")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, id, found.ID)
	assert.Equal(t, "203.0.113.7", found.IPAddress)

	missing, err := store.FindActiveIPBan(ctx, "203.0.113.8")
	require.NoError(t, err)
	assert.Nil(t, missing)

	// Expired IP bans are demoted on read like every other active query
	staleBan := expiring(record(uuid.New(), "india", enum.PunishmentTypeIPBan), 2*time.Hour, -time.Hour)
	staleBan.IPAddress = "198.51.100.9"
	_, err = store.Save(ctx, staleBan)
	require.NoError(t, err)

	gone, err := store.FindActiveIPBan(ctx, "198.51.100.9")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func testListActiveIPBans(t *testing.T, store database.Store) {
	ctx := t.Context()

	older := record(uuid.New(), "juliett", enum.PunishmentTypeIPBan)
	older.IPAddress = "192.0.2.4"
	older.IssuedAt = time.Now().UTC().Add(-2 * time.Hour).Truncate(time.Millisecond)
	_, err := store.Save(ctx, older)
	require.NoError(t, err)

	newer := record(uuid.New(), "kilo", enum.PunishmentTypeIPBan)
	newer.IPAddress = "192.0.2.4"
	newer.IssuedAt = time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	newerID, err := store.Save(ctx, newer)
	require.NoError(t, err)

	unrelated := record(uuid.New(), "lima", enum.PunishmentTypeIPBan)
	unrelated.IPAddress = "192.0.2.5"
	_, err = store.Save(ctx, unrelated)
	require.NoError(t, err)

	bans, err := store.ListActiveIPBans(ctx, "192.0.2.4")
	require.NoError(t, err)
	require.Len(t, bans, 2)
	assert.Equal(t, newerID, bans[0].ID)

	for _, ban := range bans {
		assert.Equal(t, "192.0.2.4", ban.IPAddress)
		assert.True(t, ban.Active)
	}
}

func testDeactivateIdempotent(t *testing.T, store database.Store) {
	ctx := t.Context()
	subject := uuid.New()

	id, err := store.Save(ctx, record(subject, "mike", enum.PunishmentTypeBan))
	require.NoError(t, err)

	require.NoError(t, store.Deactivate(ctx, id, enum.DeactivationReasonRemovedBySource, "Moderator"))

	history, err := store.ListBySubjectID(ctx, subject)
	require.NoError(t, err)
	require.Len(t, history, 1)

	first := history[0]
	require.False(t, first.Active)
	require.NotNil(t, first.DeactivatedAt)
	assert.Equal(t, "Moderator", first.DeactivationSource)

	// A second deactivation must change nothing
	require.NoError(t, store.Deactivate(ctx, id, enum.DeactivationReasonExpired, "SomeoneElse"))

	history, err = store.ListBySubjectID(ctx, subject)
	require.NoError(t, err)
	require.Len(t, history, 1)

	second := history[0]
	assert.Equal(t, enum.DeactivationReasonRemovedBySource, second.DeactivationReason)
	assert.Equal(t, "Moderator", second.DeactivationSource)
	assert.True(t, first.DeactivatedAt.Equal(*second.DeactivatedAt), "repeat deactivation must not move the timestamp")
}

func testDeactivateUnknownID(t *testing.T, store database.Store) {
	require.NoError(t, store.Deactivate(t.Context(), 999999, enum.DeactivationReasonExpired, ""))
}

func testExpireDue(t *testing.T, store database.Store) {
	ctx := t.Context()
	subject := uuid.New()

	due := expiring(record(subject, "november", enum.PunishmentTypeTempBan), 2*time.Hour, -time.Minute)
	dueID, err := store.Save(ctx, due)
	require.NoError(t, err)

	alsoDue := expiring(record(uuid.New(), "oscar", enum.PunishmentTypeTempMute), 2*time.Hour, -time.Minute)
	_, err = store.Save(ctx, alsoDue)
	require.NoError(t, err)

	notDue := expiring(record(uuid.New(), "papa", enum.PunishmentTypeTempBan), time.Hour, time.Hour)
	notDueID, err := store.Save(ctx, notDue)
	require.NoError(t, err)

	permanent := record(uuid.New(), "quebec", enum.PunishmentTypeBan)
	permanentID, err := store.Save(ctx, permanent)
	require.NoError(t, err)

	count, err := store.ExpireDue(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	history, err := store.ListBySubjectID(ctx, subject)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, dueID, history[0].ID)
	assert.False(t, history[0].Active)
	assert.Equal(t, enum.DeactivationReasonExpired, history[0].DeactivationReason)

	stillActive, err := store.FindActive(ctx, notDue.SubjectID, enum.PunishmentTypeTempBan)
	require.NoError(t, err)
	require.NotNil(t, stillActive)
	assert.Equal(t, notDueID, stillActive.ID)

	stillPermanent, err := store.FindActive(ctx, permanent.SubjectID, enum.PunishmentTypeBan)
	require.NoError(t, err)
	require.NotNil(t, stillPermanent)
	assert.Equal(t, permanentID, stillPermanent.ID)

	// Nothing left to expire
	count, err = store.ExpireDue(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func testReturnedRecordsDetached(t *testing.T, store database.Store) {
	ctx := t.Context()
	subject := uuid.New()

	_, err := store.Save(ctx, record(subject, "romeo", enum.PunishmentTypeBan))
	require.NoError(t, err)

	found, err := store.FindActive(ctx, subject, enum.PunishmentTypeBan)
	require.NoError(t, err)
	require.NotNil(t, found)

	// Mutating a returned record must not leak into stored state
	found.Reason = "tampered"
	found.Active = false

	again, err := store.FindActive(ctx, subject, enum.PunishmentTypeBan)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, "contract test", again.Reason)
	assert.True(t, again.Active)
}

func testCancelledContext(t *testing.T, store database.Store) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := store.Save(ctx, record(uuid.New(), "sierra", enum.PunishmentTypeBan))
	require.Error(t, err)

	var persistenceErr *types.PersistenceError

	require.ErrorAs(t, err, &persistenceErr)
	assert.Equal(t, "save", persistenceErr.Op)

	_, err = store.FindActive(ctx, uuid.New(), enum.PunishmentTypeBan)
	require.ErrorAs(t, err, &persistenceErr)
}
