package server

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/rs/zerolog"

	"github.com/lox/blindbid/internal/auction"
	"github.com/lox/blindbid/internal/catalog"
	"github.com/lox/blindbid/internal/directory"
	"github.com/lox/blindbid/internal/gameid"
)

// Config represents the complete server configuration
type Config struct {
	Server    ServerSettings
	Game      GameSettings
	Directory DirectorySettings
	Archive   ArchiveSettings
	Catalog   CatalogSettings
}

// configFile mirrors Config with optional blocks so missing blocks keep
// their defaults.
type configFile struct {
	Server    *ServerSettings    `hcl:"server,block"`
	Game      *GameSettings      `hcl:"game,block"`
	Directory *DirectorySettings `hcl:"directory,block"`
	Archive   *ArchiveSettings   `hcl:"archive,block"`
	Catalog   *CatalogSettings   `hcl:"catalog,block"`
}

// ServerSettings contains HTTP listener configuration
type ServerSettings struct {
	Address     string   `hcl:"address,optional"`
	LogLevel    string   `hcl:"log_level,optional"`
	PublicURL   string   `hcl:"public_url,optional"`
	CORSOrigins []string `hcl:"cors_origins,optional"`
}

// GameSettings are the rules every new game is created with
type GameSettings struct {
	StartingBalance int  `hcl:"starting_balance,optional"`
	MinPlayers      int  `hcl:"min_players,optional"`
	MaxPlayers      int  `hcl:"max_players,optional"`
	AutoSettle      bool `hcl:"auto_settle,optional"`
	MaxItemName     int  `hcl:"max_item_name,optional"`
}

// DirectorySettings controls game codes and retention. Durations use
// time.ParseDuration syntax.
type DirectorySettings struct {
	CodeLength    int    `hcl:"code_length,optional"`
	IdleTTL       string `hcl:"idle_ttl,optional"`
	CompletedTTL  string `hcl:"completed_ttl,optional"`
	SweepInterval string `hcl:"sweep_interval,optional"`
}

// ArchiveSettings locates the results database. An empty path disables it.
type ArchiveSettings struct {
	Path string `hcl:"path,optional"`
}

// CatalogSettings points at an optional templates file replacing the
// built-in templates.
type CatalogSettings struct {
	TemplatesFile string `hcl:"templates_file,optional"`
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerSettings{
			Address:     ":8080",
			LogLevel:    "info",
			CORSOrigins: []string{"*"},
		},
		Game: GameSettings{
			StartingBalance: auction.DefaultStartingBalance,
			MinPlayers:      1,
			MaxItemName:     catalog.DefaultMaxNameLength,
		},
		Directory: DirectorySettings{
			CodeLength:    gameid.DefaultLength,
			IdleTTL:       "2h",
			CompletedTTL:  "30m",
			SweepInterval: "1m",
		},
	}
}

// LoadConfig loads configuration from an HCL file. A missing file yields
// the defaults.
func LoadConfig(filename string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return config, nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var raw configFile
	diags = gohcl.DecodeBody(file.Body, nil, &raw)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	config.merge(raw)
	return config, nil
}

// merge overlays every value set in the file onto c.
func (c *Config) merge(raw configFile) {
	if s := raw.Server; s != nil {
		if s.Address != "" {
			c.Server.Address = s.Address
		}
		if s.LogLevel != "" {
			c.Server.LogLevel = s.LogLevel
		}
		if s.PublicURL != "" {
			c.Server.PublicURL = s.PublicURL
		}
		if s.CORSOrigins != nil {
			c.Server.CORSOrigins = s.CORSOrigins
		}
	}

	if g := raw.Game; g != nil {
		if g.StartingBalance != 0 {
			c.Game.StartingBalance = g.StartingBalance
		}
		if g.MinPlayers != 0 {
			c.Game.MinPlayers = g.MinPlayers
		}
		if g.MaxPlayers != 0 {
			c.Game.MaxPlayers = g.MaxPlayers
		}
		if g.MaxItemName != 0 {
			c.Game.MaxItemName = g.MaxItemName
		}
		c.Game.AutoSettle = g.AutoSettle
	}

	if d := raw.Directory; d != nil {
		if d.CodeLength != 0 {
			c.Directory.CodeLength = d.CodeLength
		}
		if d.IdleTTL != "" {
			c.Directory.IdleTTL = d.IdleTTL
		}
		if d.CompletedTTL != "" {
			c.Directory.CompletedTTL = d.CompletedTTL
		}
		if d.SweepInterval != "" {
			c.Directory.SweepInterval = d.SweepInterval
		}
	}

	if raw.Archive != nil {
		c.Archive = *raw.Archive
	}
	if raw.Catalog != nil {
		c.Catalog = *raw.Catalog
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server address is required")
	}
	if _, err := zerolog.ParseLevel(c.Server.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Server.LogLevel, err)
	}

	if c.Game.StartingBalance <= 0 {
		return fmt.Errorf("starting balance must be positive")
	}
	if c.Game.MinPlayers < 1 {
		return fmt.Errorf("min players must be at least 1")
	}
	if c.Game.MaxPlayers < 0 {
		return fmt.Errorf("max players cannot be negative")
	}
	if c.Game.MaxPlayers > 0 && c.Game.MaxPlayers < c.Game.MinPlayers {
		return fmt.Errorf("max players (%d) is below min players (%d)", c.Game.MaxPlayers, c.Game.MinPlayers)
	}
	if c.Game.MaxItemName <= 0 {
		return fmt.Errorf("max item name length must be positive")
	}

	if c.Directory.CodeLength < 4 || c.Directory.CodeLength > 16 {
		return fmt.Errorf("code length must be between 4 and 16")
	}
	if _, err := c.DirectoryConfig(); err != nil {
		return err
	}

	return nil
}

// Level returns the configured log level, defaulting to info.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Server.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// Rules returns the game rules for new sessions.
func (c *Config) Rules() auction.Rules {
	return auction.Rules{
		StartingBalance: c.Game.StartingBalance,
		MinPlayers:      c.Game.MinPlayers,
		MaxPlayers:      c.Game.MaxPlayers,
		AutoSettle:      c.Game.AutoSettle,
	}
}

// DirectoryConfig parses the retention durations.
func (c *Config) DirectoryConfig() (directory.Config, error) {
	cfg := directory.DefaultConfig()
	cfg.Rules = c.Rules()

	for _, d := range []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"idle_ttl", c.Directory.IdleTTL, &cfg.IdleTTL},
		{"completed_ttl", c.Directory.CompletedTTL, &cfg.CompletedTTL},
		{"sweep_interval", c.Directory.SweepInterval, &cfg.SweepInterval},
	} {
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return directory.Config{}, fmt.Errorf("invalid %s %q: %w", d.name, d.value, err)
		}
		if parsed <= 0 {
			return directory.Config{}, fmt.Errorf("%s must be positive", d.name)
		}
		*d.dst = parsed
	}

	return cfg, nil
}

// LoadCatalog builds the item catalog, from the templates file when set.
func (c *Config) LoadCatalog() (*catalog.Catalog, error) {
	return catalog.Load(c.Catalog.TemplatesFile, catalog.WithMaxNameLength(c.Game.MaxItemName))
}
