package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
)

// TemplatesCmd prints the resolved item catalog
type TemplatesCmd struct {
	File string `type:"path" help:"YAML templates file to list instead of the configured catalog"`
	JSON bool   `help:"Print templates as JSON"`
}

func (c *TemplatesCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	if c.File != "" {
		cfg.Catalog.TemplatesFile = c.File
	}

	cat, err := cfg.LoadCatalog()
	if err != nil {
		return err
	}
	templates := cat.Templates()

	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"templates": templates})
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tITEMS\tDESCRIPTION")
	for _, tmpl := range templates {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", tmpl.ID, tmpl.Name, len(tmpl.Items), tmpl.Description)
	}
	return w.Flush()
}
