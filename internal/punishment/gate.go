package punishment

import (
	"context"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"github.com/wardenlabs/warden/internal/database/types"
	"github.com/wardenlabs/warden/internal/database/types/enum"
	"go.uber.org/zap"
)

// Decision is the gate's verdict for a connection attempt. The zero value
// denies, so lookup failures never let a banned subject through.
type Decision struct {
	Allowed    bool
	Punishment *types.Punishment
}

// CheckConnection decides whether the subject may connect from the
// address. The four lookups run concurrently; evaluation order is fixed:
// subject IP ban, address IP ban, permanent ban, temp ban. Any lookup
// failure fails closed with no punishment attached.
func (m *Manager) CheckConnection(ctx context.Context, subjectID uuid.UUID, subjectName, address string) (Decision, error) {
	var subjectIPBan, addressIPBan, permBan, tempBan *types.Punishment

	p := pool.New().WithContext(ctx).WithCancelOnError()

	p.Go(func(ctx context.Context) error {
		var err error
		subjectIPBan, err = m.store.FindActive(ctx, subjectID, enum.PunishmentTypeIPBan)

		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		addressIPBan, err = m.store.FindActiveIPBan(ctx, address)

		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		permBan, err = m.store.FindActive(ctx, subjectID, enum.PunishmentTypeBan)

		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		tempBan, err = m.store.FindActive(ctx, subjectID, enum.PunishmentTypeTempBan)

		return err
	})

	if err := p.Wait(); err != nil {
		m.logger.Error("Connection gate lookup failed",
			zap.String("subjectID", subjectID.String()),
			zap.String("subjectName", subjectName),
			zap.Error(err))

		return Decision{}, err
	}

	for _, record := range []*types.Punishment{subjectIPBan, addressIPBan, permBan, tempBan} {
		if record == nil {
			continue
		}

		m.logger.Info("Connection denied",
			zap.Int64("id", record.ID),
			zap.String("type", record.Type.String()),
			zap.String("subjectID", subjectID.String()),
			zap.String("subjectName", subjectName),
			zap.String("address", address))

		return Decision{Allowed: false, Punishment: record}, nil
	}

	m.logger.Debug("Connection allowed",
		zap.String("subjectID", subjectID.String()),
		zap.String("subjectName", subjectName))

	return Decision{Allowed: true}, nil
}
