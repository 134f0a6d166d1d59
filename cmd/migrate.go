package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/feedsync/internal/config"
	"github.com/feedsync/internal/database"
	"github.com/feedsync/internal/logging"
)

// MigrateCommand applies the database schema.
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:   "migrate",
		Usage:  "Create or update the database schema",
		Action: runMigrate,
	}
}

func runMigrate(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.Setup(cfg.General.LogLevel)

	db, err := database.NewDB(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Println("Schema is up to date")
	return nil
}
