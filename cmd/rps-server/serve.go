package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/lox/rpsbot/internal/leaderboard"
	"github.com/lox/rpsbot/internal/matchmaking"
	"github.com/lox/rpsbot/internal/rating"
	"github.com/lox/rpsbot/internal/server"
	"github.com/lox/rpsbot/internal/session"
)

// ServeCmd runs the websocket server.
type ServeCmd struct {
	Addr string `short:"a" help:"Address to bind to (overrides config)"`
}

func (c *ServeCmd) Run(g *Globals) error {
	env, err := setup(g)
	if err != nil {
		return err
	}
	defer env.Close()

	cfg, logger := env.cfg, env.logger
	addr := cfg.ServerAddress()
	if c.Addr != "" {
		addr = c.Addr
	}

	clock := quartz.NewReal()
	srv := server.NewServer(addr, logger)
	messenger := server.NewMessenger(srv, clock, logger)
	coordinator := session.NewCoordinator(cfg.SessionConfig(), session.NewRegistry(), messenger, env.store,
		rating.NewUpdater(cfg.Rating.KFactor, env.tiers), clock, logger)
	queue := matchmaking.NewQueue(cfg.QueueConfig(), coordinator, messenger, clock, logger)

	publishers := []leaderboard.Publisher{leaderboard.PublisherFunc(
		func(ctx context.Context, board leaderboard.Board) error {
			logger.Debug("Leaderboard refreshed", "tiers", len(board.Standings))
			return nil
		})}
	if cfg.Leaderboard.Export != "" {
		publishers = append(publishers, leaderboard.FilePublisher(cfg.Leaderboard.Export))
	}
	refresher := leaderboard.NewRefresher(env.store, env.tiers, cfg.Leaderboard.Size,
		leaderboard.Publishers(publishers...), clock, logger)
	sched, err := leaderboard.Schedule(refresher, cfg.RefreshInterval(), logger)
	if err != nil {
		return err
	}

	server.NewService(srv, server.ServiceOptions{
		Coordinator: coordinator,
		Queue:       queue,
		Messenger:   messenger,
		Store:       env.store,
		Tiers:       env.tiers,
		Leaderboard: refresher,
	}, logger)

	logger.Info("Starting rps server",
		"addr", addr,
		"storage", cfg.Storage.Driver,
		"bestOf", cfg.Session.BestOf,
		"tiers", len(env.tiers.Tiers()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)
	group.Go(srv.Start)
	group.Go(func() error {
		waitCtx, cancel := context.WithTimeout(gctx, 10*time.Second)
		defer cancel()
		h, err := server.WaitForHealthy(waitCtx, "http://"+addr)
		if err != nil {
			logger.Warn("Server did not report healthy", "error", err)
			return nil
		}
		logger.Info("Server ready", "url", "ws://"+addr+"/ws", "players", h.Players)
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		queue.Close()
		if err := sched.Stop(); err != nil {
			logger.Warn("Failed to stop leaderboard scheduler", "error", err)
		}
		if err := coordinator.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Sessions did not finish cleanly", "error", err)
		}
		return srv.Stop(shutdownCtx)
	})
	return group.Wait()
}
