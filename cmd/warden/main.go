package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"

	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v3"
	"github.com/wardenlabs/warden/cmd/warden/commands"
	"github.com/wardenlabs/warden/internal/database/postgres"
	"github.com/wardenlabs/warden/internal/database/postgres/migrations"
	"github.com/wardenlabs/warden/internal/setup"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	app, err := setup.InitializeApp(ctx, "cli")
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(ctx)

	// Command results go to the terminal; engine logs go to session files
	cliLogger, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	deps := &commands.CLIDependencies{
		Manager:     app.Manager,
		Store:       app.Store,
		Cache:       app.Cache,
		Broadcaster: app.Broadcaster,
		Logger:      cliLogger,
	}

	// Schema tooling binds to the SQL backend when one is active
	if pg, ok := app.Store.(*postgres.Store); ok {
		deps.Migrator = migrate.NewMigrator(pg.DB(), migrations.Migrations)
	}

	root := &cli.Command{
		Name:  "warden",
		Usage: "Punishment management tool",
		Commands: slices.Concat(
			commands.IssueCommands(deps),
			commands.RevokeCommands(deps),
			commands.QueryCommands(deps),
			commands.DaemonCommands(deps),
			commands.MigrationCommands(deps),
		),
	}

	return root.Run(ctx, os.Args)
}
