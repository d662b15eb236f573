package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lox/blindbid/cmd/blindbid/shared"
	"github.com/lox/blindbid/internal/archive"
	"github.com/lox/blindbid/internal/directory"
	"github.com/lox/blindbid/internal/gameid"
	"github.com/lox/blindbid/internal/randutil"
	"github.com/lox/blindbid/internal/server"
)

// ServerCmd runs the HTTP API and the game sweeper
type ServerCmd struct {
	Addr       string   `short:"a" env:"BLINDBID_ADDR" help:"Server address (overrides config)"`
	PublicURL  string   `name:"public-url" env:"BLINDBID_PUBLIC_URL" help:"Base URL of the web client, used in join links (overrides config)"`
	Archive    string   `env:"BLINDBID_ARCHIVE" help:"Path to the results database (overrides config)"`
	Templates  string   `env:"BLINDBID_TEMPLATES" help:"Path to a YAML templates file (overrides config)"`
	AutoSettle *bool    `name:"auto-settle" env:"BLINDBID_AUTO_SETTLE" help:"Settle a round once every player has bid (overrides config)"`
	Origins    []string `name:"cors-origin" env:"BLINDBID_CORS_ORIGINS" help:"Allowed browser origins (overrides config)"`
	Seed       *int64   `help:"Deterministic RNG seed for game codes (optional)"`
}

func (c *ServerCmd) apply(cfg *server.Config) {
	if c.Addr != "" {
		cfg.Server.Address = c.Addr
	}
	if c.PublicURL != "" {
		cfg.Server.PublicURL = c.PublicURL
	}
	if c.Archive != "" {
		cfg.Archive.Path = c.Archive
	}
	if c.Templates != "" {
		cfg.Catalog.TemplatesFile = c.Templates
	}
	if c.AutoSettle != nil {
		cfg.Game.AutoSettle = *c.AutoSettle
	}
	if len(c.Origins) > 0 {
		cfg.Server.CORSOrigins = c.Origins
	}
}

func (c *ServerCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	c.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := g.logger(cfg)

	cat, err := cfg.LoadCatalog()
	if err != nil {
		return err
	}
	dirCfg, err := cfg.DirectoryConfig()
	if err != nil {
		return err
	}

	codes := gameid.NewGenerator(nil, cfg.Directory.CodeLength)
	if c.Seed != nil {
		seed, rng := randutil.Resolve(c.Seed)
		logger.Info().Int64("seed", seed).Msg("Using deterministic seed for game codes")
		codes = gameid.NewGenerator(rng, cfg.Directory.CodeLength)
	}

	dirOpts := []directory.Option{
		directory.WithConfig(dirCfg),
		directory.WithCodeGenerator(codes),
	}
	srvOpts := []server.Option{
		server.WithPublicURL(cfg.Server.PublicURL),
		server.WithCORSOrigins(cfg.Server.CORSOrigins),
	}

	if cfg.Archive.Path != "" {
		store, err := archive.Open(cfg.Archive.Path, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		dirOpts = append(dirOpts, directory.WithArchiver(store))
		srvOpts = append(srvOpts, server.WithResultStore(store))
	}

	games := directory.New(cat, logger, dirOpts...)
	api := server.NewServer(logger, games, srvOpts...)

	logger.Info().
		Str("address", cfg.Server.Address).
		Int("templates", len(cat.Templates())).
		Int("starting_balance", dirCfg.Rules.StartingBalance).
		Int("min_players", dirCfg.Rules.MinPlayers).
		Int("max_players", dirCfg.Rules.MaxPlayers).
		Bool("auto_settle", dirCfg.Rules.AutoSettle).
		Str("archive", cfg.Archive.Path).
		Msg("Starting blindbid server")

	ctx, stop := shared.SignalContext(context.Background(), logger)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return games.Run(gctx)
	})
	group.Go(func() error {
		if err := api.Start(cfg.Server.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return api.Shutdown(shutdownCtx)
	})

	runErr := group.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := games.Flush(flushCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to archive completed games")
	}

	return runErr
}
