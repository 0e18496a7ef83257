// Package config loads the server's HCL configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/lox/rpsbot/internal/leaderboard"
	"github.com/lox/rpsbot/internal/matchmaking"
	"github.com/lox/rpsbot/internal/rating"
	"github.com/lox/rpsbot/internal/session"
)

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config is the complete server configuration. Every block is optional.
type Config struct {
	Server      *ServerSettings      `hcl:"server,block"`
	Storage     *StorageSettings     `hcl:"storage,block"`
	Session     *SessionSettings     `hcl:"session,block"`
	Rating      *RatingSettings      `hcl:"rating,block"`
	Queue       *QueueSettings       `hcl:"queue,block"`
	Leaderboard *LeaderboardSettings `hcl:"leaderboard,block"`
	Tiers       []TierConfig         `hcl:"tier,block"`
}

// ServerSettings configures the websocket listener.
type ServerSettings struct {
	Address  string `hcl:"address,optional"`
	Port     int    `hcl:"port,optional"`
	LogLevel string `hcl:"log_level,optional"`
}

// StorageSettings selects the rating store.
type StorageSettings struct {
	Driver string `hcl:"driver,optional"`
	Path   string `hcl:"path,optional"`
}

// SessionSettings configures challenge timing and series length.
type SessionSettings struct {
	AcceptTimeout string `hcl:"accept_timeout,optional"`
	MoveTimeout   string `hcl:"move_timeout,optional"`
	BestOf        int    `hcl:"best_of,optional"`
	MaxBestOf     int    `hcl:"max_best_of,optional"`
	CommitRetries *int   `hcl:"commit_retries,optional"`
}

// RatingSettings configures the Elo update.
type RatingSettings struct {
	StartingElo *int `hcl:"starting_elo,optional"`
	KFactor     int  `hcl:"k_factor,optional"`
}

// QueueSettings configures matchmaking timers.
type QueueSettings struct {
	DefaultWait string `hcl:"default_wait,optional"`
	MaxWait     string `hcl:"max_wait,optional"`
	BestOf      int    `hcl:"best_of,optional"`
}

// LeaderboardSettings configures the scheduled refresh.
type LeaderboardSettings struct {
	Refresh string `hcl:"refresh,optional"`
	Size    int    `hcl:"size,optional"`
	// Export, when set, is a JSON file rewritten after every refresh.
	Export string `hcl:"export,optional"`
}

// TierConfig declares one rank band.
type TierConfig struct {
	Name  string `hcl:"name,label"`
	Floor int    `hcl:"floor"`
	Color string `hcl:"color,optional"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads filename. A missing file yields the defaults.
func Load(filename string) (*Config, error) {
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var c Config
	diags = gohcl.DecodeBody(file.Body, nil, &c)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Server == nil {
		c.Server = &ServerSettings{}
	}
	if c.Server.Address == "" {
		c.Server.Address = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	if c.Storage == nil {
		c.Storage = &StorageSettings{}
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverSQLite
	}
	if c.Storage.Path == "" && c.Storage.Driver == DriverSQLite {
		c.Storage.Path = "rps.db"
	}

	sd := session.DefaultConfig()
	if c.Session == nil {
		c.Session = &SessionSettings{}
	}
	if c.Session.AcceptTimeout == "" {
		c.Session.AcceptTimeout = sd.AcceptTimeout.String()
	}
	if c.Session.MoveTimeout == "" {
		c.Session.MoveTimeout = sd.MoveTimeout.String()
	}
	if c.Session.BestOf == 0 {
		c.Session.BestOf = sd.DefaultBestOf
	}
	if c.Session.MaxBestOf == 0 {
		c.Session.MaxBestOf = sd.MaxBestOf
	}
	if c.Session.CommitRetries == nil {
		retries := sd.CommitRetries
		c.Session.CommitRetries = &retries
	}

	if c.Rating == nil {
		c.Rating = &RatingSettings{}
	}
	if c.Rating.StartingElo == nil {
		elo := 1200
		c.Rating.StartingElo = &elo
	}
	if c.Rating.KFactor == 0 {
		c.Rating.KFactor = rating.DefaultKFactor
	}

	qd := matchmaking.DefaultConfig()
	if c.Queue == nil {
		c.Queue = &QueueSettings{}
	}
	if c.Queue.DefaultWait == "" {
		c.Queue.DefaultWait = qd.DefaultWait.String()
	}
	if c.Queue.MaxWait == "" {
		c.Queue.MaxWait = qd.MaxWait.String()
	}
	if c.Queue.BestOf == 0 {
		c.Queue.BestOf = c.Session.BestOf
	}

	if c.Leaderboard == nil {
		c.Leaderboard = &LeaderboardSettings{}
	}
	if c.Leaderboard.Refresh == "" {
		c.Leaderboard.Refresh = leaderboard.DefaultInterval.String()
	}
	if c.Leaderboard.Size == 0 {
		c.Leaderboard.Size = leaderboard.DefaultSize
	}

	if len(c.Tiers) == 0 {
		for _, t := range rating.DefaultTiers {
			c.Tiers = append(c.Tiers, TierConfig{Name: t.Name, Floor: t.Floor, Color: t.Color})
		}
	}
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	switch c.Server.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Server.LogLevel)
	}

	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.Path == "" {
			return errors.New("storage: sqlite driver requires a path")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("storage: unknown driver %s", c.Storage.Driver)
	}

	for name, value := range map[string]string{
		"session.accept_timeout": c.Session.AcceptTimeout,
		"session.move_timeout":   c.Session.MoveTimeout,
		"queue.default_wait":     c.Queue.DefaultWait,
		"queue.max_wait":         c.Queue.MaxWait,
		"leaderboard.refresh":    c.Leaderboard.Refresh,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if c.Session.MaxBestOf < 1 || c.Session.MaxBestOf%2 == 0 {
		return fmt.Errorf("session: max_best_of must be a positive odd number, got %d", c.Session.MaxBestOf)
	}
	for name, n := range map[string]int{"session.best_of": c.Session.BestOf, "queue.best_of": c.Queue.BestOf} {
		if n < 1 || n%2 == 0 || n > c.Session.MaxBestOf {
			return fmt.Errorf("%s must be odd and between 1 and %d, got %d", name, c.Session.MaxBestOf, n)
		}
	}
	if *c.Session.CommitRetries < 0 {
		return errors.New("session: commit_retries cannot be negative")
	}

	if *c.Rating.StartingElo < 0 {
		return errors.New("rating: starting_elo cannot be negative")
	}
	if c.Rating.KFactor <= 0 {
		return errors.New("rating: k_factor must be positive")
	}

	defaultWait, maxWait := c.duration(c.Queue.DefaultWait), c.duration(c.Queue.MaxWait)
	if maxWait < matchmaking.MinWait || maxWait > time.Hour {
		return fmt.Errorf("queue: max_wait must be between %s and 1h", matchmaking.MinWait)
	}
	if defaultWait < matchmaking.MinWait || defaultWait > maxWait {
		return fmt.Errorf("queue: default_wait must be between %s and max_wait", matchmaking.MinWait)
	}

	if c.Leaderboard.Size < 1 {
		return errors.New("leaderboard: size must be positive")
	}

	if _, err := c.TierTable(); err != nil {
		return fmt.Errorf("tiers: %w", err)
	}
	return nil
}

// duration parses a value Validate has already checked.
func (c *Config) duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// ServerAddress returns the listen address.
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// TierTable builds the rank table from the tier blocks.
func (c *Config) TierTable() (rating.TierTable, error) {
	tiers := make([]rating.Tier, len(c.Tiers))
	for i, t := range c.Tiers {
		tiers[i] = rating.Tier{Name: t.Name, Floor: t.Floor, Color: t.Color}
	}
	return rating.NewTierTable(tiers)
}

// RatingDefaults describes new players.
func (c *Config) RatingDefaults(tiers rating.TierTable) rating.Defaults {
	return rating.Defaults{Elo: *c.Rating.StartingElo, Tiers: tiers}
}

// SessionConfig converts the session block.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		AcceptTimeout: c.duration(c.Session.AcceptTimeout),
		MoveTimeout:   c.duration(c.Session.MoveTimeout),
		DefaultBestOf: c.Session.BestOf,
		MaxBestOf:     c.Session.MaxBestOf,
		CommitRetries: *c.Session.CommitRetries,
	}
}

// QueueConfig converts the queue block.
func (c *Config) QueueConfig() matchmaking.Config {
	return matchmaking.Config{
		DefaultWait: c.duration(c.Queue.DefaultWait),
		MaxWait:     c.duration(c.Queue.MaxWait),
		BestOf:      c.Queue.BestOf,
	}
}

// RefreshInterval is the leaderboard refresh period.
func (c *Config) RefreshInterval() time.Duration {
	return c.duration(c.Leaderboard.Refresh)
}
