package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/feedsync/internal/config"
	"github.com/feedsync/internal/database"
	"github.com/feedsync/internal/logging"
	"github.com/feedsync/internal/origin"
	"github.com/feedsync/internal/store"
	"github.com/feedsync/internal/syncer"
	"github.com/feedsync/internal/transport"
	"github.com/feedsync/pkg/models"
)

// appEnv holds everything a command needs after bootstrap.
type appEnv struct {
	cfg     *config.Config
	origin  origin.Origin
	account models.Account
	storage *store.Storage
	syncer  *syncer.Syncer
	dbURL   string
}

// buildEnv loads config, connects the database and wires the syncer.
func buildEnv(c *cli.Context) (*appEnv, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logging.Setup(cfg.General.LogLevel)
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := origin.ToExisting(cfg.General.Origin)

	dbURL, err := database.ResolveURL(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	db, err := database.NewDB(dbURL)
	if err != nil {
		return nil, err
	}

	storage := store.NewStorage(db)
	account := models.Account{
		OriginID: o.ID,
		Username: cfg.General.Username,
	}

	client := transport.NewClient(o,
		cfg.OriginString("base_url"),
		cfg.OriginString("token"),
		cfg.OriginInt("rate_per_min"),
	)

	return &appEnv{
		cfg:     cfg,
		origin:  o,
		account: account,
		storage: storage,
		syncer:  syncer.New(storage, client, account, cfg.General.PageSize),
		dbURL:   dbURL,
	}, nil
}
