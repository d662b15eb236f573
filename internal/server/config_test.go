package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blindbid.hcl")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.hcl"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	require.NoError(t, cfg.Validate())

	dir, err := cfg.DirectoryConfig()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, dir.IdleTTL)
	assert.Equal(t, 30*time.Minute, dir.CompletedTTL)
	assert.Equal(t, time.Minute, dir.SweepInterval)
	assert.Equal(t, 1000, dir.Rules.StartingBalance)
	assert.Equal(t, 1, dir.Rules.MinPlayers)
}

func TestLoadConfigFull(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
server {
  address      = "0.0.0.0:9000"
  log_level    = "debug"
  public_url   = "https://party.example.com"
  cors_origins = ["https://party.example.com"]
}

game {
  starting_balance = 500
  min_players      = 2
  max_players      = 8
  auto_settle      = true
  max_item_name    = 20
}

directory {
  code_length    = 5
  idle_ttl       = "45m"
  completed_ttl  = "5m"
  sweep_interval = "10s"
}

archive {
  path = "results.db"
}
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Address)
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())
	assert.Equal(t, "https://party.example.com", cfg.Server.PublicURL)
	assert.Equal(t, []string{"https://party.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "results.db", cfg.Archive.Path)
	assert.Equal(t, 5, cfg.Directory.CodeLength)

	rules := cfg.Rules()
	assert.Equal(t, 500, rules.StartingBalance)
	assert.Equal(t, 2, rules.MinPlayers)
	assert.Equal(t, 8, rules.MaxPlayers)
	assert.True(t, rules.AutoSettle)

	dir, err := cfg.DirectoryConfig()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, dir.IdleTTL)
	assert.Equal(t, 5*time.Minute, dir.CompletedTTL)
	assert.Equal(t, 10*time.Second, dir.SweepInterval)
	assert.Equal(t, rules, dir.Rules)
}

func TestLoadConfigPartialKeepsDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
game {
  max_players = 4
}
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 1000, cfg.Game.StartingBalance)
	assert.Equal(t, 4, cfg.Game.MaxPlayers)
	assert.Equal(t, "2h", cfg.Directory.IdleTTL)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(writeConfig(t, `server {`))
	assert.ErrorContains(t, err, "failed to parse HCL")

	_, err = LoadConfig(writeConfig(t, `game { unknown = 1 }`))
	assert.ErrorContains(t, err, "failed to decode HCL")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad log level", func(c *Config) { c.Server.LogLevel = "loud" }, "invalid log level"},
		{"empty address", func(c *Config) { c.Server.Address = "" }, "address"},
		{"zero balance", func(c *Config) { c.Game.StartingBalance = 0 }, "starting balance"},
		{"no players", func(c *Config) { c.Game.MinPlayers = 0 }, "min players"},
		{"max below min", func(c *Config) { c.Game.MinPlayers = 3; c.Game.MaxPlayers = 2 }, "below min"},
		{"short codes", func(c *Config) { c.Directory.CodeLength = 2 }, "code length"},
		{"bad duration", func(c *Config) { c.Directory.IdleTTL = "soon" }, "invalid idle_ttl"},
		{"negative duration", func(c *Config) { c.Directory.SweepInterval = "-1m" }, "sweep_interval must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestLoadCatalogFromTemplatesFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	templates := filepath.Join(dir, "templates.yaml")
	require.NoError(t, os.WriteFile(templates, []byte(`
templates:
  - id: garage
    name: Garage Sale
    description: Odds and ends.
    items:
      - {emoji: "🔧", name: Rusty Wrench With A Long Name, value: 15}
`), 0o644))

	cfg := DefaultConfig()
	cfg.Catalog.TemplatesFile = templates
	cfg.Game.MaxItemName = 5

	cat, err := cfg.LoadCatalog()
	require.NoError(t, err)
	require.Len(t, cat.Templates(), 1)
	assert.Equal(t, "garage", cat.Templates()[0].ID)

	def, err := DefaultConfig().LoadCatalog()
	require.NoError(t, err)
	assert.Len(t, def.Templates(), 3)
}

func TestExampleConfigIsValid(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(filepath.Join("..", "..", "blindbid.example.hcl"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "blindbid.db", cfg.Archive.Path)
	assert.Equal(t, 1000, cfg.Game.StartingBalance)
}
