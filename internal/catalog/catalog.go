// Package catalog resolves the ordered list of mystery items a game is
// played with, either from a named template or from a caller-supplied list.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/lox/blindbid/internal/gameerr"
)

// DefaultEmoji is used for items supplied without a glyph.
const DefaultEmoji = "❓"

// DefaultMaxNameLength bounds item names, in runes.
const DefaultMaxNameLength = 40

//go:embed templates.yaml
var builtinTemplates []byte

// Item is a single auctioned object. Value stays hidden from players until
// the round it belongs to is settled.
type Item struct {
	ID    string `json:"id"`
	Emoji string `json:"emoji"`
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// ItemSpec is an unvalidated item as authored by a host or a template file.
type ItemSpec struct {
	Emoji string `json:"emoji,omitempty" yaml:"emoji"`
	Name  string `json:"name" yaml:"name"`
	Value int    `json:"value" yaml:"value"`
}

// Template is a predefined, named item set.
type Template struct {
	ID          string     `yaml:"id"`
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Items       []ItemSpec `yaml:"items"`
}

// TemplateSummary is the public view of a template. Item values are omitted.
type TemplateSummary struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Items       []ItemPreview `json:"items"`
}

// ItemPreview is an item without its value.
type ItemPreview struct {
	Emoji string `json:"emoji"`
	Name  string `json:"name"`
}

// Selector picks the item source for a new game. TemplateID wins when set.
type Selector struct {
	TemplateID string
	Items      []ItemSpec
}

type templateFile struct {
	Templates []Template `yaml:"templates"`
}

// Catalog holds the known templates and the validation rules for items.
type Catalog struct {
	templates []Template
	byID      map[string]int
	maxName   int
	newID     func() string
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithMaxNameLength overrides the item name limit.
func WithMaxNameLength(n int) Option {
	return func(c *Catalog) {
		if n > 0 {
			c.maxName = n
		}
	}
}

// WithIDFunc replaces the item ID generator.
func WithIDFunc(fn func() string) Option {
	return func(c *Catalog) {
		c.newID = fn
	}
}

// New builds a catalog from templates, validating each of them.
func New(templates []Template, opts ...Option) (*Catalog, error) {
	c := &Catalog{
		byID:    make(map[string]int, len(templates)),
		maxName: DefaultMaxNameLength,
		newID:   func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, tmpl := range templates {
		if tmpl.ID == "" {
			return nil, fmt.Errorf("template %q has no id", tmpl.Name)
		}
		if _, dup := c.byID[tmpl.ID]; dup {
			return nil, fmt.Errorf("duplicate template id %q", tmpl.ID)
		}
		if _, err := c.prepare(tmpl.Items); err != nil {
			return nil, fmt.Errorf("template %q: %w", tmpl.ID, err)
		}
		c.byID[tmpl.ID] = len(c.templates)
		c.templates = append(c.templates, tmpl)
	}

	return c, nil
}

// Default returns the catalog of built-in templates.
func Default(opts ...Option) (*Catalog, error) {
	return Parse(builtinTemplates, opts...)
}

// Load reads templates from a YAML file, falling back to the built-in set
// when path is empty.
func Load(path string, opts ...Option) (*Catalog, error) {
	if path == "" {
		return Default(opts...)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read templates file: %w", err)
	}
	return Parse(data, opts...)
}

// Parse decodes a YAML template document.
func Parse(data []byte, opts ...Option) (*Catalog, error) {
	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode templates: %w", err)
	}
	return New(file.Templates, opts...)
}

// Templates lists template summaries in file order.
func (c *Catalog) Templates() []TemplateSummary {
	summaries := make([]TemplateSummary, 0, len(c.templates))
	for _, tmpl := range c.templates {
		previews := make([]ItemPreview, 0, len(tmpl.Items))
		for _, spec := range tmpl.Items {
			emoji := spec.Emoji
			if emoji == "" {
				emoji = DefaultEmoji
			}
			previews = append(previews, ItemPreview{Emoji: emoji, Name: strings.TrimSpace(spec.Name)})
		}
		summaries = append(summaries, TemplateSummary{
			ID:          tmpl.ID,
			Name:        tmpl.Name,
			Description: tmpl.Description,
			Items:       previews,
		})
	}
	return summaries
}

// Resolve turns a selector into a fresh, validated item sequence. Every call
// assigns new item IDs, so two games built from the same template never
// share items.
func (c *Catalog) Resolve(sel Selector) ([]Item, error) {
	var specs []ItemSpec
	switch {
	case sel.TemplateID != "":
		idx, ok := c.byID[sel.TemplateID]
		if !ok {
			return nil, gameerr.Wrap(gameerr.ErrTemplateNotFound, "%s", sel.TemplateID)
		}
		specs = c.templates[idx].Items
	case len(sel.Items) > 0:
		specs = sel.Items
	default:
		return nil, gameerr.Wrap(gameerr.ErrInvalidCatalog, "template or custom items required")
	}
	return c.prepare(specs)
}

func (c *Catalog) prepare(specs []ItemSpec) ([]Item, error) {
	if len(specs) == 0 {
		return nil, gameerr.Wrap(gameerr.ErrInvalidCatalog, "at least one item is required")
	}

	items := make([]Item, 0, len(specs))
	for i, spec := range specs {
		name := truncate(strings.TrimSpace(spec.Name), c.maxName)
		if name == "" {
			return nil, gameerr.Wrap(gameerr.ErrInvalidCatalog, "item %d has no name", i+1)
		}
		if spec.Value < 0 {
			return nil, gameerr.Wrap(gameerr.ErrInvalidCatalog, "item %q has a negative value", name)
		}
		emoji := strings.TrimSpace(spec.Emoji)
		if emoji == "" {
			emoji = DefaultEmoji
		}
		items = append(items, Item{
			ID:    c.newID(),
			Emoji: emoji,
			Name:  name,
			Value: spec.Value,
		})
	}
	return items, nil
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit]))
}
