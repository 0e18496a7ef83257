package main

import (
	"os"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
)

// version is set by ldflags during build
var version = "dev"

// Globals are shared by every command.
type Globals struct {
	Config   string `short:"c" default:"rps-server.hcl" env:"RPS_CONFIG" help:"Path to HCL configuration file"`
	LogLevel string `short:"l" env:"RPS_LOG_LEVEL" help:"Log level (overrides config)"`
	DB       string `name:"db" env:"RPS_DB_PATH" help:"SQLite database path (overrides config)"`
}

type CLI struct {
	Globals

	Version     kong.VersionFlag `short:"v" help:"Show version"`
	Serve       ServeCmd         `cmd:"" default:"1" help:"Run the challenge server"`
	Leaderboard LeaderboardCmd   `cmd:"" help:"Print the current leaderboard"`
	SeasonReset SeasonResetCmd   `cmd:"season-reset" help:"Zero every player's season game count"`
	Bot         BotCmd           `cmd:"" help:"Run a practice bot against a server"`
}

func main() {
	// A missing .env file is fine; real environment variables still apply.
	_ = godotenv.Load()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("rps-server"),
		kong.Description("Rock-paper-scissors challenge server with Elo ranked series"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}

func newLogger(level string) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	switch level {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}
	return logger
}
