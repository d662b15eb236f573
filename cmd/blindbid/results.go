package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/lox/blindbid/internal/archive"
	"github.com/lox/blindbid/internal/fileutil"
)

// ResultsCmd exports archived results as JSON
type ResultsCmd struct {
	GameID  string `arg:"" optional:"" help:"Game code to export; omit to list recent games"`
	Archive string `env:"BLINDBID_ARCHIVE" help:"Path to the results database (overrides config)"`
	Limit   int    `default:"20" help:"Maximum number of games to list"`
	Out     string `short:"o" type:"path" help:"Write JSON to this file instead of stdout"`
}

func (c *ResultsCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	if c.Archive != "" {
		cfg.Archive.Path = c.Archive
	}
	if cfg.Archive.Path == "" {
		return fmt.Errorf("no results archive configured; set archive.path or --archive")
	}

	store, err := archive.Open(cfg.Archive.Path, g.logger(cfg))
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()

	var payload any
	if c.GameID != "" {
		res, err := store.Get(ctx, c.GameID)
		if err != nil {
			return fmt.Errorf("game %s: %w", c.GameID, err)
		}
		payload = res
	} else {
		list, err := store.List(ctx, c.Limit)
		if err != nil {
			return err
		}
		payload = map[string]any{"results": list}
	}

	if c.Out != "" {
		if err := fileutil.WriteJSONAtomic(c.Out, payload, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Wrote %s\n", c.Out)
		return nil
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
