package enum_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wardenlabs/warden/internal/database/types/enum"
)

func TestPunishmentTypeRoundTrip(t *testing.T) {
	t.Parallel()

	all := []enum.PunishmentType{
		enum.PunishmentTypeBan,
		enum.PunishmentTypeTempBan,
		enum.PunishmentTypeIPBan,
		enum.PunishmentTypeMute,
		enum.PunishmentTypeTempMute,
		enum.PunishmentTypeKick,
	}

	for _, pt := range all {
		parsed, err := enum.ParsePunishmentType(pt.String())
		require.NoError(t, err)
		assert.Equal(t, pt, parsed)
	}
}

func TestPunishmentTypeNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "BAN", enum.PunishmentTypeBan.String())
	assert.Equal(t, "TEMP_BAN", enum.PunishmentTypeTempBan.String())
	assert.Equal(t, "IP_BAN", enum.PunishmentTypeIPBan.String())
	assert.Equal(t, "MUTE", enum.PunishmentTypeMute.String())
	assert.Equal(t, "TEMP_MUTE", enum.PunishmentTypeTempMute.String())
	assert.Equal(t, "KICK", enum.PunishmentTypeKick.String())
}

func TestParsePunishmentTypeUnknown(t *testing.T) {
	t.Parallel()

	_, err := enum.ParsePunishmentType("WARN")
	require.ErrorIs(t, err, enum.ErrUnknownPunishmentType)
}

func TestPunishmentTypeFamilies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pt   enum.PunishmentType
		ban  bool
		mute bool
	}{
		{enum.PunishmentTypeBan, true, false},
		{enum.PunishmentTypeTempBan, true, false},
		{enum.PunishmentTypeIPBan, true, false},
		{enum.PunishmentTypeMute, false, true},
		{enum.PunishmentTypeTempMute, false, true},
		{enum.PunishmentTypeKick, false, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.ban, tt.pt.IsBanFamily(), "%s ban family", tt.pt)
		assert.Equal(t, tt.mute, tt.pt.IsMuteFamily(), "%s mute family", tt.pt)
	}

	assert.Len(t, enum.BanFamilyTypes(), 3)
	assert.Len(t, enum.MuteFamilyTypes(), 2)
}

func TestPunishmentTypeScan(t *testing.T) {
	t.Parallel()

	var pt enum.PunishmentType
	require.NoError(t, pt.Scan("TEMP_MUTE"))
	assert.Equal(t, enum.PunishmentTypeTempMute, pt)

	require.NoError(t, pt.Scan([]byte("IP_BAN")))
	assert.Equal(t, enum.PunishmentTypeIPBan, pt)

	require.Error(t, pt.Scan(42))
}

func TestDeactivationReasonRoundTrip(t *testing.T) {
	t.Parallel()

	all := []enum.DeactivationReason{
		enum.DeactivationReasonActive,
		enum.DeactivationReasonExpired,
		enum.DeactivationReasonRemovedBySource,
	}

	for _, r := range all {
		parsed, err := enum.ParseDeactivationReason(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, parsed)
	}

	assert.Equal(t, "ACTIVE", enum.DeactivationReasonActive.String())
	assert.Equal(t, "EXPIRED", enum.DeactivationReasonExpired.String())
	assert.Equal(t, "REMOVED_BY_SOURCE", enum.DeactivationReasonRemovedBySource.String())
}

func TestDeactivationReasonValue(t *testing.T) {
	t.Parallel()

	v, err := enum.DeactivationReasonExpired.Value()
	require.NoError(t, err)
	assert.Equal(t, "EXPIRED", v)

	_, err = enum.DeactivationReason(99).Value()
	require.Error(t, err)
}
