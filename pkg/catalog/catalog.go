// Package catalog loads the avatar and inventory item catalogs sent to
// clients at login. Avatars are passed through untouched; inventory items
// are typed because background changes read them.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/goplace/pkg/model"
)

// Item is an inventory item. Items carrying BackgroundData can be used as
// room backgrounds.
type Item struct {
	NameFull       string            `json:"name_full" yaml:"name_full"`
	Img            string            `json:"img" yaml:"img"`
	BackgroundData *model.Background `json:"background_data,omitempty" yaml:"background_data,omitempty"`
}

// Catalog is the YAML document:
//
//	avatars:
//	  derpy: {...}
//	items:
//	  cave_bg:
//	    name_full: Cave
//	    img: /media/inventory/cave.png
//	    background_data: {data: /media/rooms/cave.png, width: 960, height: 660}
type Catalog struct {
	Avatars map[string]any  `yaml:"avatars"`
	Items   map[string]Item `yaml:"items"`
}

// Empty returns a catalog with no avatars and no items.
func Empty() *Catalog {
	return &Catalog{Avatars: map[string]any{}, Items: map[string]Item{}}
}

// Parse decodes a catalog document.
func Parse(data []byte) (*Catalog, error) {
	c := Empty()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	if c.Avatars == nil {
		c.Avatars = map[string]any{}
	}
	if c.Items == nil {
		c.Items = map[string]Item{}
	}
	for name, item := range c.Items {
		if bg := item.BackgroundData; bg != nil && (bg.Width < 0 || bg.Height < 0) {
			return nil, fmt.Errorf("catalog: item %q: %w", name, model.ErrRoomBounds)
		}
	}
	return c, nil
}

// Load reads a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path from server config
	if err != nil {
		return nil, fmt.Errorf("catalog: read: %w", err)
	}
	return Parse(data)
}

// Background returns the background of a named item.
func (c *Catalog) Background(name string) (model.Background, string, bool) {
	item, ok := c.Items[name]
	if !ok || item.BackgroundData == nil {
		return model.Background{}, "", false
	}
	return *item.BackgroundData, item.Img, true
}
