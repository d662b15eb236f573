package main

import (
	"fmt"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/lox/blindbid/cmd/blindbid/shared"
	"github.com/lox/blindbid/internal/server"
)

// version is set by ldflags during build
var version = "dev"

// Globals are flags shared by every command
type Globals struct {
	Config   string `short:"c" default:"blindbid.hcl" env:"BLINDBID_CONFIG" help:"Path to HCL configuration file"`
	Debug    bool   `env:"BLINDBID_DEBUG" help:"Enable debug logging (overrides config)"`
	JSONLogs bool   `name:"json-logs" env:"BLINDBID_JSON_LOGS" help:"Emit structured JSON logs"`
}

// loadConfig reads and validates the HCL configuration.
func (g *Globals) loadConfig() (*server.Config, error) {
	cfg, err := server.LoadConfig(g.Config)
	if err != nil {
		return nil, fmt.Errorf("error loading config %s: %w", g.Config, err)
	}
	return cfg, nil
}

func (g *Globals) logger(cfg *server.Config) zerolog.Logger {
	level := cfg.Level()
	if g.Debug {
		level = zerolog.DebugLevel
	}
	return shared.SetupLogger(level, g.JSONLogs)
}

type CLI struct {
	Globals

	Version   kong.VersionFlag `short:"v" help:"Show version"`
	Server    ServerCmd        `cmd:"" help:"Run the blind auction game server"`
	Templates TemplatesCmd     `cmd:"" help:"List the item templates games can be created from"`
	Results   ResultsCmd       `cmd:"" help:"Export archived game results"`
}

func main() {
	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("blindbid"),
		kong.Description("Blind auction party game server"),
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
