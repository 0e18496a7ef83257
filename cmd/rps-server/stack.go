package main

import (
	"database/sql"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/lox/rpsbot/internal/config"
	"github.com/lox/rpsbot/internal/rating"
	"github.com/lox/rpsbot/internal/storage"
)

// store is the rating store plus the optional capabilities the commands use.
type store interface {
	rating.Store
	rating.LeaderboardReader
	rating.SeasonResetter
}

// environment is the loaded configuration and opened storage shared by commands.
type environment struct {
	cfg    *config.Config
	tiers  rating.TierTable
	store  store
	db     *sql.DB
	logger *log.Logger
}

func setup(g *Globals) (*environment, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if g.LogLevel != "" {
		cfg.Server.LogLevel = g.LogLevel
	}
	if g.DB != "" {
		cfg.Storage.Driver = config.DriverSQLite
		cfg.Storage.Path = g.DB
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg.Server.LogLevel)
	tiers, err := cfg.TierTable()
	if err != nil {
		return nil, err
	}

	env := &environment{cfg: cfg, tiers: tiers, logger: logger}
	defaults := cfg.RatingDefaults(tiers)

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		logger.Warn("Using in-memory rating store; ratings are lost on exit")
		env.store = rating.NewMemoryStore(defaults)
	default:
		db, err := storage.Open(cfg.Storage.Path, logger)
		if err != nil {
			return nil, err
		}
		env.db = db
		env.store = storage.NewStore(db, defaults, logger)
	}
	return env, nil
}

func (e *environment) Close() error {
	if e.db == nil {
		return nil
	}
	return e.db.Close()
}
