// Package rooms is the room catalog: configured rooms, ephemeral rooms
// created on demand, and per-account houses, all addressed by name.
//
// A Catalog is owned by the server loop and is not safe for concurrent use.
package rooms

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/NicolasHaas/goplace/pkg/model"
)

var (
	ErrNoSuchRoom    = errors.New("rooms: no such room")
	ErrDuplicateRoom = errors.New("rooms: duplicate room name")
	ErrFixedRoom     = errors.New("rooms: configured rooms can't be changed")
)

// HouseSource looks up and stores house records, which live with accounts.
type HouseSource interface {
	House(nick string) (model.House, bool)
	SetHouse(nick string, h model.House) error
}

// Catalog resolves room names and tracks occupancy of real and ephemeral
// rooms. House occupancy is derived from live sessions when listing.
type Catalog struct {
	real      []*model.Room
	ephemeral []*model.Room
	byName    map[string]*model.Room
	houses    HouseSource
}

// New builds a catalog over the configured rooms.
func New(configured []model.Room, houses HouseSource) (*Catalog, error) {
	c := &Catalog{
		byName: make(map[string]*model.Room, len(configured)),
		houses: houses,
	}
	for _, r := range configured {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("rooms: %w", err)
		}
		if r.Name == strings.TrimSpace(model.HousePrefix) {
			return nil, fmt.Errorf("rooms: %q is reserved for houses", r.Name)
		}
		if _, ok := c.byName[r.Name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateRoom, r.Name)
		}
		room := r
		room.Kind = model.RoomReal
		room.UserNick = ""
		room.UserCount = 0
		if room.NameFull == "" {
			room.NameFull = room.Name
		}
		c.real = append(c.real, &room)
		c.byName[room.Name] = &room
	}
	return c, nil
}

// Lookup returns a copy of the named room. Houses resolve only when their
// owner has an account.
func (c *Catalog) Lookup(name string) (model.Room, bool) {
	if r, ok := c.byName[name]; ok {
		return cloneRoom(r), true
	}
	if owner, ok := model.HouseOwner(name); ok && c.houses != nil {
		if h, ok := c.houses.House(owner); ok {
			return model.HouseRoom(owner, h), true
		}
	}
	return model.Room{}, false
}

// Resolve finds the named room, creating an ephemeral room owned by
// requester when the name is free. House names and names with spaces are
// never created.
func (c *Catalog) Resolve(name, requester string) (model.Room, error) {
	if r, ok := c.Lookup(name); ok {
		return r, nil
	}
	if name == "" || strings.Contains(name, " ") {
		return model.Room{}, fmt.Errorf("%w: %q", ErrNoSuchRoom, name)
	}
	room := model.NewEphemeral(name, requester)
	c.ephemeral = append(c.ephemeral, &room)
	c.byName[name] = &room
	return cloneRoom(&room), nil
}

// Bounds returns the background size occupants are clamped to. Unknown
// rooms are zero-sized.
func (c *Catalog) Bounds(name string) (width, height float64) {
	r, ok := c.Lookup(name)
	if !ok {
		return 0, 0
	}
	return r.Background.Width, r.Background.Height
}

// Join counts one more occupant. Houses are not counted here.
func (c *Catalog) Join(name string) {
	if r, ok := c.byName[name]; ok {
		r.UserCount++
	}
}

// Leave counts one less occupant and destroys an ephemeral room once it is
// empty.
func (c *Catalog) Leave(name string) {
	r, ok := c.byName[name]
	if !ok {
		return
	}
	if r.UserCount > 0 {
		r.UserCount--
	}
	if r.Kind == model.RoomEphemeral && r.UserCount == 0 {
		delete(c.byName, name)
		c.ephemeral = slices.DeleteFunc(c.ephemeral, func(e *model.Room) bool { return e == r })
	}
}

// Count returns the tracked occupancy of a real or ephemeral room.
func (c *Catalog) Count(name string) int {
	if r, ok := c.byName[name]; ok {
		return r.UserCount
	}
	return 0
}

// EphemeralCount returns how many ephemeral rooms exist.
func (c *Catalog) EphemeralCount() int {
	return len(c.ephemeral)
}

// SetBackground changes the background and thumbnail of an ephemeral room
// or a house.
func (c *Catalog) SetBackground(name string, bg model.Background, thumbnail string) error {
	if r, ok := c.byName[name]; ok {
		if r.Kind == model.RoomReal {
			return fmt.Errorf("%w: %q", ErrFixedRoom, name)
		}
		r.Background = bg
		r.Thumbnail = thumbnail
		return nil
	}
	owner, ok := model.HouseOwner(name)
	if !ok || c.houses == nil {
		return fmt.Errorf("%w: %q", ErrNoSuchRoom, name)
	}
	h, ok := c.houses.House(owner)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoSuchRoom, name)
	}
	h.Background = bg
	h.Thumbnail = thumbnail
	return c.houses.SetHouse(owner, h)
}

// List returns the aggregated room list sorted by descending occupancy,
// ties kept in catalog order: configured rooms, ephemeral rooms by
// creation, then houses by first occupant. occupied holds the room of every
// live session and is used to count house occupants. Unlisted rooms are
// left out.
func (c *Catalog) List(occupied []string) []model.RoomListing {
	list := make([]model.RoomListing, 0, len(c.real)+len(c.ephemeral))
	for _, r := range c.real {
		if !r.Unlisted {
			list = append(list, r.Listing(r.UserCount))
		}
	}
	for _, r := range c.ephemeral {
		list = append(list, r.Listing(r.UserCount))
	}

	var houseOrder []string
	houseCounts := make(map[string]int)
	for _, name := range occupied {
		if _, ok := model.HouseOwner(name); !ok {
			continue
		}
		if houseCounts[name] == 0 {
			houseOrder = append(houseOrder, name)
		}
		houseCounts[name]++
	}
	for _, name := range houseOrder {
		r, ok := c.Lookup(name)
		if !ok || r.Unlisted {
			continue
		}
		list = append(list, r.Listing(houseCounts[name]))
	}

	slices.SortStableFunc(list, func(a, b model.RoomListing) int {
		return cmp.Compare(b.UserCount, a.UserCount)
	})
	return list
}

func cloneRoom(r *model.Room) model.Room {
	c := *r
	c.Widgets = slices.Clone(r.Widgets)
	return c
}
