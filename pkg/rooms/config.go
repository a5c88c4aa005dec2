package rooms

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/goplace/pkg/model"
)

// Config is the top-level YAML document listing the configured rooms:
//
//	rooms:
//	  - name: ponyville
//	    name_full: Ponyville
//	    user_noun: ponies
//	    thumbnail: /media/rooms/ponyville-thumb.png
//	    background: {data: /media/rooms/ponyville.png, width: 1514, height: 660}
type Config struct {
	Rooms []model.Room `yaml:"rooms"`
}

// ParseConfig decodes a rooms document.
func ParseConfig(data []byte) ([]model.Room, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("rooms: parse config: %w", err)
	}
	for i := range cfg.Rooms {
		if err := cfg.Rooms[i].Validate(); err != nil {
			return nil, fmt.Errorf("rooms: parse config: %w", err)
		}
		cfg.Rooms[i].Kind = model.RoomReal
	}
	return cfg.Rooms, nil
}

// LoadConfig reads a rooms file.
func LoadConfig(path string) ([]model.Room, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path from server config
	if err != nil {
		return nil, fmt.Errorf("rooms: read config: %w", err)
	}
	return ParseConfig(data)
}
