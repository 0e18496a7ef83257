package main

import (
	"context"
	"fmt"
)

// SeasonResetCmd starts a new season.
type SeasonResetCmd struct {
	Yes bool `short:"y" help:"Do not ask for confirmation"`
}

func (c *SeasonResetCmd) Run(g *Globals) error {
	if !c.Yes {
		return fmt.Errorf("season reset clears every player's season games; rerun with --yes to confirm")
	}

	env, err := setup(g)
	if err != nil {
		return err
	}
	defer env.Close()

	n, err := env.store.ResetSeason(context.Background())
	if err != nil {
		return err
	}
	env.logger.Info("Season reset", "players", n)
	return nil
}
