package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/rpsbot/internal/leaderboard"
	"github.com/lox/rpsbot/internal/rating"
	"github.com/lox/rpsbot/internal/storage"
)

func seedDB(t *testing.T, path string, recs ...rating.Record) {
	t.Helper()
	logger := log.New(io.Discard)
	db, err := storage.Open(path, logger)
	require.NoError(t, err)
	defer db.Close()

	store := storage.NewStore(db, rating.Defaults{Elo: 1200, Tiers: rating.MustTierTable(rating.DefaultTiers)}, logger)
	for _, rec := range recs {
		require.NoError(t, store.Put(context.Background(), rec))
	}
}

func TestLeaderboardPublish(t *testing.T) {
	dir := t.TempDir()
	export := filepath.Join(dir, "board.json")
	cfgPath := filepath.Join(dir, "rps-server.hcl")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
server {
  log_level = "error"
}

leaderboard {
  export = "`+export+`"
}
`), 0o600))

	dbPath := filepath.Join(dir, "rps.db")
	seedDB(t, dbPath, rating.Record{PlayerID: "ann", Name: "Ann", Elo: 1260, Rank: "Silver", SeasonGames: 3})
	g := &Globals{Config: cfgPath, DB: dbPath}
	ctx := context.Background()

	t.Run("plain listing leaves the export alone", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, (&LeaderboardCmd{NoColor: true}).run(ctx, g, &out))
		assert.Contains(t, out.String(), "Ann")
		assert.NoFileExists(t, export)
	})

	t.Run("publish rewrites the export", func(t *testing.T) {
		require.NoError(t, os.WriteFile(export, []byte("stale"), 0o644))
		seedDB(t, dbPath, rating.Record{PlayerID: "bo", Name: "Bo", Elo: 1280, Rank: "Silver", SeasonGames: 1})

		var out bytes.Buffer
		require.NoError(t, (&LeaderboardCmd{NoColor: true, Publish: true, Tier: "Silver"}).run(ctx, g, &out))
		assert.Contains(t, out.String(), "Bo")

		data, err := os.ReadFile(export)
		require.NoError(t, err)
		var board leaderboard.Board
		require.NoError(t, json.Unmarshal(data, &board))

		var silver []rating.Record
		for _, st := range board.Standings {
			if st.Tier.Name == "Silver" {
				silver = st.Records
			}
		}
		require.Len(t, silver, 2)
		assert.Equal(t, "bo", silver[0].PlayerID)
		assert.Equal(t, "ann", silver[1].PlayerID)
	})

	t.Run("publish without an export path fails", func(t *testing.T) {
		bare := filepath.Join(dir, "bare.hcl")
		require.NoError(t, os.WriteFile(bare, []byte("server {\n  log_level = \"error\"\n}\n"), 0o600))
		err := (&LeaderboardCmd{Publish: true}).run(ctx, &Globals{Config: bare, DB: dbPath}, io.Discard)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "leaderboard.export")
	})
}
