package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/lox/rpsbot/internal/bot"
	"github.com/lox/rpsbot/internal/client"
	"github.com/lox/rpsbot/internal/randutil"
	"github.com/lox/rpsbot/internal/session"
)

// BotCmd connects a practice bot to a running server.
type BotCmd struct {
	Strategy string        `arg:"" optional:"" default:"random" help:"Strategy (counter, cycle, random, rock)"`
	Server   string        `default:"ws://localhost:8080/ws" help:"WebSocket server URL"`
	ID       string        `help:"Player id (generated when empty)"`
	Name     string        `help:"Display name"`
	Queue    bool          `default:"true" negatable:"" help:"Join matchmaking between series"`
	Wait     time.Duration `default:"10m" help:"Queue wait"`
	Accept   bool          `default:"true" negatable:"" help:"Accept challenges"`
	Series   int           `short:"n" help:"Stop after this many series (0 runs until interrupted)"`
	Seed     *int64        `help:"Deterministic RNG seed (optional)"`
}

func (c *BotCmd) Run(g *Globals) error {
	logger := newLogger(g.LogLevel)

	seed := randutil.Seed(c.Seed)
	strategy, err := bot.NewStrategy(c.Strategy, randutil.New(seed))
	if err != nil {
		return err
	}
	logger.Debug("Using seed", "seed", seed)

	id := c.ID
	if id == "" {
		id = fmt.Sprintf("%s-%s", c.Strategy, uuid.NewString()[:8])
	}
	name := c.Name
	if name == "" {
		name = id
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn := client.NewClient(c.Server, logger)
	if err := conn.Connect(ctx); err != nil {
		return err
	}
	defer conn.Disconnect()

	b := bot.New(conn, bot.Options{
		Player:   session.Participant{ID: id, Name: name},
		Strategy: strategy,
		Queue:    c.Queue,
		Wait:     c.Wait,
		Accept:   c.Accept,
		Series:   c.Series,
	}, logger)

	stats, err := b.Run(ctx)
	logger.Info("Bot finished",
		"won", stats.Won,
		"lost", stats.Lost,
		"forfeited", stats.Forfeited,
		"abandoned", stats.Abandoned)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
