package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// RevokeCommands returns the commands that lift active punishments.
func RevokeCommands(deps *CLIDependencies) []*cli.Command {
	return []*cli.Command{
		{
			Name:      "unban",
			Usage:     "Lift every active ban for a subject",
			ArgsUsage: "SUBJECT",
			Flags:     []cli.Flag{actorFlag()},
			Action:    handleUnban(deps),
		},
		{
			Name:      "unmute",
			Usage:     "Lift the active mute for a subject",
			ArgsUsage: "SUBJECT",
			Flags:     []cli.Flag{actorFlag()},
			Action:    handleUnmute(deps),
		},
	}
}

// subjectArg extracts the single SUBJECT positional argument.
func subjectArg(c *cli.Command) (uuid.UUID, error) {
	if c.Args().Len() != 1 {
		return uuid.Nil, ErrSubjectRequired
	}

	subjectID, err := uuid.Parse(c.Args().First())
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid SUBJECT: %w", err)
	}

	return subjectID, nil
}

// handleUnban handles the 'unban' command.
func handleUnban(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		subjectID, err := subjectArg(c)
		if err != nil {
			return err
		}

		if err := deps.Manager.Unban(ctx, subjectID, c.String("actor")); err != nil {
			return err
		}

		deps.Logger.Info("Bans lifted", zap.String("subject", subjectID.String()))

		return nil
	}
}

// handleUnmute handles the 'unmute' command.
func handleUnmute(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		subjectID, err := subjectArg(c)
		if err != nil {
			return err
		}

		if err := deps.Manager.Unmute(ctx, subjectID, c.String("actor")); err != nil {
			return err
		}

		deps.Logger.Info("Mute lifted", zap.String("subject", subjectID.String()))

		return nil
	}
}
