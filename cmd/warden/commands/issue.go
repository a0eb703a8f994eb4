package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
	"github.com/wardenlabs/warden/internal/database/types"
	"github.com/wardenlabs/warden/pkg/utils"
	"go.uber.org/zap"
)

// IssueCommands returns the commands that create punishment records.
func IssueCommands(deps *CLIDependencies) []*cli.Command {
	return []*cli.Command{
		{
			Name:      "ban",
			Usage:     "Permanently ban a subject",
			ArgsUsage: "SUBJECT NAME REASON",
			Flags:     []cli.Flag{actorFlag()},
			Action:    handleBan(deps),
		},
		{
			Name:      "tempban",
			Usage:     "Ban a subject for a limited time",
			ArgsUsage: "SUBJECT NAME REASON",
			Description: `Issue a ban that lifts itself once the duration has passed.

Examples:
  warden tempban 91c43695-4b6e-4711-a442-c519c0c0c9c0 Grazer -d 7d repeated griefing
  warden tempban 91c43695-4b6e-4711-a442-c519c0c0c9c0 Grazer -d 36h -a Moderator:Ann chat abuse`,
			Flags:  []cli.Flag{actorFlag(), durationFlag("Ban duration (e.g. 30m, 12h, 7d)", true)},
			Action: handleTempBan(deps),
		},
		{
			Name:      "ipban",
			Usage:     "Ban a subject together with its network address",
			ArgsUsage: "SUBJECT NAME REASON",
			Description: `Issue a ban that also covers the given address, so the subject
cannot return on a fresh account. Permanent unless a duration is given.

Examples:
  warden ipban 91c43695-4b6e-4711-a442-c519c0c0c9c0 Grazer --ip 203.0.113.7 ban evasion
  warden ipban 91c43695-4b6e-4711-a442-c519c0c0c9c0 Grazer --ip 203.0.113.7 -d 30d ban evasion`,
			Flags: []cli.Flag{
				actorFlag(),
				durationFlag("Ban duration, permanent when omitted", false),
				&cli.StringFlag{
					Name:     "ip",
					Usage:    "Address covered by the ban",
					Required: true,
				},
			},
			Action: handleIPBan(deps),
		},
		{
			Name:      "mute",
			Usage:     "Permanently mute a subject",
			ArgsUsage: "SUBJECT NAME REASON",
			Flags:     []cli.Flag{actorFlag()},
			Action:    handleMute(deps),
		},
		{
			Name:      "tempmute",
			Usage:     "Mute a subject for a limited time",
			ArgsUsage: "SUBJECT NAME REASON",
			Flags:     []cli.Flag{actorFlag(), durationFlag("Mute duration (e.g. 30m, 12h, 7d)", true)},
			Action:    handleTempMute(deps),
		},
		{
			Name:      "kick",
			Usage:     "Record a kick for a subject",
			ArgsUsage: "SUBJECT NAME REASON",
			Flags:     []cli.Flag{actorFlag()},
			Action:    handleKick(deps),
		},
	}
}

func actorFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "actor",
		Aliases: []string{"a"},
		Usage:   "Name recorded as the issuer",
	}
}

func durationFlag(usage string, required bool) *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "duration",
		Aliases:  []string{"d"},
		Usage:    usage,
		Required: required,
	}
}

// issueArgs extracts the SUBJECT NAME REASON positional arguments.
// The reason may span all remaining arguments.
func issueArgs(c *cli.Command) (uuid.UUID, string, string, error) {
	args := c.Args().Slice()
	if len(args) < 3 {
		return uuid.Nil, "", "", ErrArgsRequired
	}

	subjectID, err := uuid.Parse(args[0])
	if err != nil {
		return uuid.Nil, "", "", fmt.Errorf("invalid SUBJECT: %w", err)
	}

	return subjectID, args[1], strings.Join(args[2:], " "), nil
}

// expiryFromFlag converts the duration flag into an absolute expiry.
func expiryFromFlag(c *cli.Command) (time.Time, error) {
	duration, err := utils.ParseDuration(c.String("duration"))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid duration: %w", err)
	}

	return time.Now().UTC().Add(duration), nil
}

func reportIssued(logger *zap.Logger, record *types.Punishment) {
	logger.Info("Punishment recorded",
		zap.Int64("id", record.ID),
		zap.String("type", record.Type.String()),
		zap.String("subject", record.SubjectName),
		zap.String("expires", utils.FormatRemaining(record.ExpiresAt)),
	)
}

// handleBan handles the 'ban' command.
func handleBan(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		subjectID, name, reason, err := issueArgs(c)
		if err != nil {
			return err
		}

		record, err := deps.Manager.Ban(ctx, subjectID, name, reason, c.String("actor"))
		if err != nil {
			return err
		}

		reportIssued(deps.Logger, record)

		return nil
	}
}

// handleTempBan handles the 'tempban' command.
func handleTempBan(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		subjectID, name, reason, err := issueArgs(c)
		if err != nil {
			return err
		}

		expiresAt, err := expiryFromFlag(c)
		if err != nil {
			return err
		}

		record, err := deps.Manager.TempBan(ctx, subjectID, name, reason, c.String("actor"), expiresAt)
		if err != nil {
			return err
		}

		reportIssued(deps.Logger, record)

		return nil
	}
}

// handleIPBan handles the 'ipban' command.
func handleIPBan(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		subjectID, name, reason, err := issueArgs(c)
		if err != nil {
			return err
		}

		var expiresAt *time.Time

		if c.String("duration") != "" {
			expiry, err := expiryFromFlag(c)
			if err != nil {
				return err
			}

			expiresAt = &expiry
		}

		record, err := deps.Manager.IPBan(ctx, subjectID, name, reason, c.String("actor"), c.String("ip"), expiresAt)
		if err != nil {
			return err
		}

		reportIssued(deps.Logger, record)

		return nil
	}
}

// handleMute handles the 'mute' command.
func handleMute(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		subjectID, name, reason, err := issueArgs(c)
		if err != nil {
			return err
		}

		record, err := deps.Manager.Mute(ctx, subjectID, name, reason, c.String("actor"))
		if err != nil {
			return err
		}

		reportIssued(deps.Logger, record)

		return nil
	}
}

// handleTempMute handles the 'tempmute' command.
func handleTempMute(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		subjectID, name, reason, err := issueArgs(c)
		if err != nil {
			return err
		}

		expiresAt, err := expiryFromFlag(c)
		if err != nil {
			return err
		}

		record, err := deps.Manager.TempMute(ctx, subjectID, name, reason, c.String("actor"), expiresAt)
		if err != nil {
			return err
		}

		reportIssued(deps.Logger, record)

		return nil
	}
}

// handleKick handles the 'kick' command.
func handleKick(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		subjectID, name, reason, err := issueArgs(c)
		if err != nil {
			return err
		}

		record, err := deps.Manager.Kick(ctx, subjectID, name, reason, c.String("actor"))
		if err != nil {
			return err
		}

		reportIssued(deps.Logger, record)

		return nil
	}
}
