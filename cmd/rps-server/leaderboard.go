package main

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/coder/quartz"

	"github.com/lox/rpsbot/internal/leaderboard"
)

// LeaderboardCmd prints the standings from the configured store.
type LeaderboardCmd struct {
	Tier    string `short:"t" help:"Only show this tier"`
	Size    int    `short:"n" help:"Players per tier (overrides config)"`
	Publish bool   `short:"p" help:"Also rewrite the configured leaderboard export file"`
	NoColor bool   `help:"Disable colour output" env:"NO_COLOR"`
}

func (c *LeaderboardCmd) Run(g *Globals) error {
	return c.run(context.Background(), g, os.Stdout)
}

func (c *LeaderboardCmd) run(ctx context.Context, g *Globals, out io.Writer) error {
	env, err := setup(g)
	if err != nil {
		return err
	}
	defer env.Close()

	size := env.cfg.Leaderboard.Size
	if c.Size > 0 {
		size = c.Size
	}

	var publisher leaderboard.Publisher
	if c.Publish {
		if env.cfg.Leaderboard.Export == "" {
			return errors.New("--publish needs leaderboard.export set in the configuration")
		}
		publisher = leaderboard.FilePublisher(env.cfg.Leaderboard.Export)
	}
	r := leaderboard.NewRefresher(env.store, env.tiers, size, publisher, quartz.NewReal(), env.logger)

	var board leaderboard.Board
	if c.Publish {
		if err := r.Refresh(ctx); err != nil {
			return err
		}
		board, _ = r.Latest()
		env.logger.Info("Leaderboard published", "path", env.cfg.Leaderboard.Export)
	} else if board, err = r.Build(ctx); err != nil {
		return err
	}
	return leaderboard.Render(out, board, leaderboard.RenderOptions{NoColor: c.NoColor, Tier: c.Tier})
}
