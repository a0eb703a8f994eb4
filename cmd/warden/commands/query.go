package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
	"github.com/wardenlabs/warden/internal/database/types"
	"github.com/wardenlabs/warden/pkg/utils"
	"go.uber.org/zap"
)

// QueryCommands returns the read-only commands.
func QueryCommands(deps *CLIDependencies) []*cli.Command {
	return []*cli.Command{
		{
			Name:      "history",
			Usage:     "Show the punishment history for a subject",
			ArgsUsage: "QUERY",
			Description: `Look up a subject by id or by name and list its full punishment
record, newest first. Name lookup is case-insensitive.

Examples:
  warden history 91c43695-4b6e-4711-a442-c519c0c0c9c0
  warden history grazer`,
			Action: handleHistory(deps),
		},
		{
			Name:      "check",
			Usage:     "Evaluate the connection gate for a subject",
			ArgsUsage: "SUBJECT NAME ADDRESS",
			Action:    handleCheck(deps),
		},
	}
}

// handleHistory handles the 'history' command.
func handleHistory(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() != 1 {
			return ErrQueryRequired
		}

		records, err := deps.Manager.History(ctx, c.Args().First())
		if err != nil {
			return err
		}

		if len(records) == 0 {
			deps.Logger.Info("No punishment records found", zap.String("query", c.Args().First()))
			return nil
		}

		writer := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(writer, "ID\tTYPE\tSTATUS\tISSUED\tACTOR\tREASON")

		for _, record := range records {
			fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\t%s\n",
				record.ID,
				record.Type.String(),
				recordStatus(record),
				record.IssuedAt.Format("2006-01-02 15:04"),
				record.Actor,
				record.Reason,
			)
		}

		return writer.Flush()
	}
}

// recordStatus renders the lifecycle column for a history row.
func recordStatus(record *types.Punishment) string {
	if record.Active {
		return "active, " + utils.FormatRemaining(record.ExpiresAt)
	}

	status := record.DeactivationReason.String()
	if record.DeactivationSource != "" {
		status += " by " + record.DeactivationSource
	}

	return status
}

// handleCheck handles the 'check' command.
func handleCheck(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() != 3 {
			return ErrCheckArgs
		}

		args := c.Args().Slice()

		subjectID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid SUBJECT: %w", err)
		}

		decision, err := deps.Manager.CheckConnection(ctx, subjectID, args[1], args[2])
		if err != nil {
			return err
		}

		if decision.Allowed {
			fmt.Println("allowed")
			return nil
		}

		fmt.Printf("denied: %s (record %d, %s): %s\n",
			decision.Punishment.Type.String(),
			decision.Punishment.ID,
			utils.FormatRemaining(decision.Punishment.ExpiresAt),
			decision.Punishment.Reason,
		)

		return nil
	}
}
