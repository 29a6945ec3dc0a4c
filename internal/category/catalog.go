// Package category attributes points of interest to spatial units by tag
// category, producing the supply table for the accessibility computation.
package category

import (
	"os"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/access-cli/internal/model"
)

// Defaults for the tag key and compound delimiter.
const (
	DefaultKey       = "amenity"
	DefaultDelimiter = ";"
)

// TotalColumn is the optional column holding the sum of every category.
const TotalColumn = "total"

// Category groups tag values under one supply column.
type Category struct {
	Name   string   `yaml:"name" mapstructure:"name" json:"name"`
	Values []string `yaml:"values" mapstructure:"values" json:"values"`
}

// Catalog maps tag values of one tag key to ordered categories. A value may
// belong to several categories.
type Catalog struct {
	Key        string     `yaml:"key" mapstructure:"key" json:"key"`
	Delimiter  string     `yaml:"delimiter" mapstructure:"delimiter" json:"delimiter"`
	Categories []Category `yaml:"categories" mapstructure:"categories" json:"categories"`
}

// DefaultCatalog returns the restaurant, culture and education groups over
// the OSM amenity key.
func DefaultCatalog() Catalog {
	return Catalog{
		Key:       DefaultKey,
		Delimiter: DefaultDelimiter,
		Categories: []Category{
			{
				Name:   "restaurant",
				Values: []string{"restaurant", "cafe", "bar", "ice_cream", "fast_food", "pub", "food_court", "biergarten"},
			},
			{
				Name: "culture",
				Values: []string{
					"library", "toy_library", "music_school", "arts_centre", "cinema", "conference_centre",
					"events_venue", "planetarium", "public_bookcase", "studio", "theatre",
				},
			},
			{
				Name:   "education",
				Values: []string{"college", "driving_school", "kindergarten", "language_school", "training", "school", "university"},
			},
		},
	}
}

// LoadCatalog reads a catalog from a YAML file. Unset key and delimiter take
// their defaults.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return Catalog{}, eris.Wrapf(err, "category: read catalog %s", path)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML catalog and validates it.
func ParseCatalog(data []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, eris.Wrap(err, "category: parse catalog")
	}
	c = c.withDefaults()
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

func (c Catalog) withDefaults() Catalog {
	if c.Key == "" {
		c.Key = DefaultKey
	}
	if c.Delimiter == "" {
		c.Delimiter = DefaultDelimiter
	}
	return c
}

// Validate checks that every category is named, unique and non-empty.
func (c Catalog) Validate() error {
	if strings.TrimSpace(c.Key) == "" {
		return model.NewConfigurationError("categories.key", "tag key is required")
	}
	if len(c.Categories) == 0 {
		return model.NewConfigurationError("categories", "at least one category is required")
	}
	seen := make(map[string]struct{}, len(c.Categories))
	for i, cat := range c.Categories {
		name := strings.TrimSpace(cat.Name)
		if name == "" {
			return model.NewConfigurationError("categories", "category %d has no name", i)
		}
		if name == TotalColumn {
			return model.NewConfigurationError("categories", "%q is reserved for the totals column", TotalColumn)
		}
		if _, dup := seen[name]; dup {
			return model.NewConfigurationError("categories", "duplicate category %q", name)
		}
		if len(cat.Values) == 0 {
			return model.NewConfigurationError("categories", "category %q has no tag values", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// Names returns the category names in order.
func (c Catalog) Names() []string {
	names := make([]string, len(c.Categories))
	for i, cat := range c.Categories {
		names[i] = strings.TrimSpace(cat.Name)
	}
	return names
}

// Subset returns a catalog holding only the named categories, in the order
// given. Unknown names are a ConfigurationError.
func (c Catalog) Subset(names []string) (Catalog, error) {
	if len(names) == 0 {
		return c, nil
	}
	byName := make(map[string]Category, len(c.Categories))
	for _, cat := range c.Categories {
		byName[strings.TrimSpace(cat.Name)] = cat
	}
	out := c
	out.Categories = make([]Category, 0, len(names))
	for _, n := range names {
		cat, ok := byName[n]
		if !ok {
			return Catalog{}, model.NewConfigurationError("categories", "unknown category %q", n)
		}
		out.Categories = append(out.Categories, cat)
	}
	return out, nil
}

// matcher resolves normalized tag values to category positions.
type matcher struct {
	key    string
	delim  string
	values map[string][]int
}

func (c Catalog) matcher() matcher {
	c = c.withDefaults()
	m := matcher{key: c.Key, delim: c.Delimiter, values: make(map[string][]int)}
	for i, cat := range c.Categories {
		for _, v := range cat.Values {
			for _, norm := range SplitCompound(v, c.Delimiter) {
				if !slices.Contains(m.values[norm], i) {
					m.values[norm] = append(m.values[norm], i)
				}
			}
		}
	}
	return m
}

// match returns the categories a POI belongs to, each at most once.
func (m matcher) match(p model.POI) []int {
	raw := p.Tag(m.key)
	if raw == "" {
		return nil
	}
	var out []int
	for _, v := range SplitCompound(raw, m.delim) {
		for _, i := range m.values[v] {
			if !slices.Contains(out, i) {
				out = append(out, i)
			}
		}
	}
	return out
}
