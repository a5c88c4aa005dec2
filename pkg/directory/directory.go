// Package directory is the user directory: every account, write-through to
// a datastore, plus the live session of each logged-in nick.
//
// A Directory is owned by the server loop and is not safe for concurrent
// use. Mutations update memory first and then the datastore; a datastore
// error is returned but the in-memory change stays.
package directory

import (
	"errors"
	"fmt"
	"slices"

	"github.com/NicolasHaas/goplace/pkg/crypto"
	"github.com/NicolasHaas/goplace/pkg/datastore"
	"github.com/NicolasHaas/goplace/pkg/model"
)

var (
	ErrNickTaken     = errors.New("directory: nick already registered")
	ErrEmailTaken    = errors.New("directory: email already registered")
	ErrNoSuchAccount = errors.New("directory: no such account")
	ErrAccountInUse  = errors.New("directory: account already connected")
)

// Directory indexes accounts by nick and email and tracks live sessions in
// connection order.
type Directory struct {
	store    datastore.DataStore
	accounts map[string]*model.Account
	emails   map[string]string
	sessions map[string]*model.Session
	order    []*model.Session
}

// New loads every account from st.
func New(st datastore.DataStore) (*Directory, error) {
	accounts, err := st.ListAccounts()
	if err != nil {
		return nil, fmt.Errorf("directory: load accounts: %w", err)
	}
	d := &Directory{
		store:    st,
		accounts: make(map[string]*model.Account, len(accounts)),
		emails:   make(map[string]string, len(accounts)),
		sessions: make(map[string]*model.Session),
	}
	for i := range accounts {
		a := accounts[i]
		d.accounts[a.Nick] = &a
		d.emails[a.Email] = a.Nick
	}
	return d, nil
}

// ---- Accounts ----

// HasAccount reports whether nick is registered.
func (d *Directory) HasAccount(nick string) bool {
	_, ok := d.accounts[nick]
	return ok
}

// Account returns a copy of nick's account.
func (d *Directory) Account(nick string) (*model.Account, bool) {
	a, ok := d.accounts[nick]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// NickForEmail returns the nick registered with email.
func (d *Directory) NickForEmail(email string) (string, bool) {
	nick, ok := d.emails[email]
	return nick, ok
}

// AccountCount returns the number of registered accounts.
func (d *Directory) AccountCount() int {
	return len(d.accounts)
}

// CreateAccount registers nick with email. The account is persisted before
// it becomes visible.
func (d *Directory) CreateAccount(nick, email string) error {
	if d.HasAccount(nick) {
		return ErrNickTaken
	}
	if _, ok := d.emails[email]; ok {
		return ErrEmailTaken
	}
	a, err := d.store.CreateAccount(nick, email)
	if err != nil {
		return fmt.Errorf("directory: create account: %w", err)
	}
	d.accounts[nick] = a
	d.emails[email] = nick
	return nil
}

// DeleteAccount removes nick's account. A live session is left for the
// caller to close.
func (d *Directory) DeleteAccount(nick string) error {
	a, ok := d.accounts[nick]
	if !ok {
		return ErrNoSuchAccount
	}
	delete(d.accounts, nick)
	delete(d.emails, a.Email)
	if err := d.store.DeleteAccount(nick); err != nil {
		return fmt.Errorf("directory: delete account: %w", err)
	}
	return nil
}

// Special returns nick's special status; unknown nicks have none.
func (d *Directory) Special(nick string) model.Special {
	if a, ok := d.accounts[nick]; ok {
		return a.Special
	}
	return model.SpecialNone
}

// IsModerator reports whether nick is a moderator or the creator.
func (d *Directory) IsModerator(nick string) bool {
	return d.Special(nick).IsModerator()
}

// SetSpecial changes nick's special status.
func (d *Directory) SetSpecial(nick string, special model.Special) error {
	if !special.Valid() {
		return model.ErrInvalidSpecial
	}
	a, ok := d.accounts[nick]
	if !ok {
		return ErrNoSuchAccount
	}
	a.Special = special
	if err := d.store.UpdateSpecial(nick, special); err != nil {
		return fmt.Errorf("directory: set special: %w", err)
	}
	return nil
}

// SetBypass stores a bypass credential for nick.
func (d *Directory) SetBypass(nick, secret string) error {
	a, ok := d.accounts[nick]
	if !ok {
		return ErrNoSuchAccount
	}
	hash, err := crypto.HashSecret(secret)
	if err != nil {
		return fmt.Errorf("directory: set bypass: %w", err)
	}
	a.BypassHash = hash
	if err := d.store.UpdateBypassHash(nick, hash); err != nil {
		return fmt.Errorf("directory: set bypass: %w", err)
	}
	return nil
}

// BypassHash returns a copy of nick's bypass hash. ok is false when the
// account does not exist or has no bypass secret. Compare it with
// crypto.CheckSecret off the hub.
func (d *Directory) BypassHash(nick string) ([]byte, bool) {
	a, ok := d.accounts[nick]
	if !ok || len(a.BypassHash) == 0 {
		return nil, false
	}
	return slices.Clone(a.BypassHash), true
}

// AddFriend adds friend to nick's friend list. Adding a friend twice or
// befriending yourself is a no-op.
func (d *Directory) AddFriend(nick, friend string) error {
	a, ok := d.accounts[nick]
	if !ok || !d.HasAccount(friend) {
		return ErrNoSuchAccount
	}
	if friend == nick || a.HasFriend(friend) {
		return nil
	}
	a.Friends = append(a.Friends, friend)
	if err := d.store.AddFriend(nick, friend); err != nil {
		return fmt.Errorf("directory: add friend: %w", err)
	}
	return nil
}

// RemoveFriend removes friend from nick's friend list.
func (d *Directory) RemoveFriend(nick, friend string) error {
	a, ok := d.accounts[nick]
	if !ok {
		return ErrNoSuchAccount
	}
	if !a.HasFriend(friend) {
		return nil
	}
	a.Friends = slices.DeleteFunc(a.Friends, func(f string) bool { return f == friend })
	if err := d.store.RemoveFriend(nick, friend); err != nil {
		return fmt.Errorf("directory: remove friend: %w", err)
	}
	return nil
}

// AddWarning queues a warning shown at nick's next login.
func (d *Directory) AddWarning(nick string, w model.Warning) error {
	a, ok := d.accounts[nick]
	if !ok {
		return ErrNoSuchAccount
	}
	a.Warnings = append(a.Warnings, w)
	if err := d.store.AddWarning(nick, w); err != nil {
		return fmt.Errorf("directory: add warning: %w", err)
	}
	return nil
}

// TakeWarnings returns nick's queued warnings and clears them.
func (d *Directory) TakeWarnings(nick string) ([]model.Warning, error) {
	a, ok := d.accounts[nick]
	if !ok || len(a.Warnings) == 0 {
		return nil, nil
	}
	warnings := a.Warnings
	a.Warnings = nil
	if err := d.store.ClearWarnings(nick); err != nil {
		return warnings, fmt.Errorf("directory: clear warnings: %w", err)
	}
	return warnings, nil
}

// GrantAvatar adds an avatar to nick's inventory.
func (d *Directory) GrantAvatar(nick, avatar string) error {
	a, ok := d.accounts[nick]
	if !ok {
		return ErrNoSuchAccount
	}
	if slices.Contains(a.AvatarInventory, avatar) {
		return nil
	}
	a.AvatarInventory = append(a.AvatarInventory, avatar)
	if err := d.store.GrantAvatar(nick, avatar); err != nil {
		return fmt.Errorf("directory: grant avatar: %w", err)
	}
	return nil
}

// GrantItem adds an inventory item to nick's inventory.
func (d *Directory) GrantItem(nick, item string) error {
	a, ok := d.accounts[nick]
	if !ok {
		return ErrNoSuchAccount
	}
	if slices.Contains(a.Inventory, item) {
		return nil
	}
	a.Inventory = append(a.Inventory, item)
	if err := d.store.GrantItem(nick, item); err != nil {
		return fmt.Errorf("directory: grant item: %w", err)
	}
	return nil
}

// House returns nick's house record.
func (d *Directory) House(nick string) (model.House, bool) {
	a, ok := d.accounts[nick]
	if !ok {
		return model.House{}, false
	}
	return a.House, true
}

// SetHouse replaces nick's house record.
func (d *Directory) SetHouse(nick string, h model.House) error {
	a, ok := d.accounts[nick]
	if !ok {
		return ErrNoSuchAccount
	}
	a.House = h
	if err := d.store.UpdateHouse(nick, h); err != nil {
		return fmt.Errorf("directory: set house: %w", err)
	}
	return nil
}

// SetHouseLocked locks or unlocks nick's house. It reports whether the
// lock flag changed.
func (d *Directory) SetHouseLocked(nick string, locked bool) (bool, error) {
	h, ok := d.House(nick)
	if !ok {
		return false, ErrNoSuchAccount
	}
	if h.Locked == locked {
		return false, nil
	}
	h.Locked = locked
	return true, d.SetHouse(nick, h)
}

// IsHouseLocked reports whether nick's house is locked.
func (d *Directory) IsHouseLocked(nick string) bool {
	h, ok := d.House(nick)
	return ok && h.Locked
}

// Profile returns the public view of nick's account.
func (d *Directory) Profile(nick string) (model.Profile, bool) {
	a, ok := d.accounts[nick]
	if !ok {
		return model.Profile{}, false
	}
	p := model.Profile{Nick: a.Nick, Special: a.Special}
	if s, ok := d.sessions[nick]; ok {
		p.Online = true
		if s.Room != "" {
			room := s.Room
			p.Room = &room
		}
	}
	return p, true
}

// ---- Sessions ----

// Connect registers a live session for an existing account.
func (d *Directory) Connect(s *model.Session) error {
	if !d.HasAccount(s.Nick) {
		return ErrNoSuchAccount
	}
	if _, ok := d.sessions[s.Nick]; ok {
		return ErrAccountInUse
	}
	d.sessions[s.Nick] = s
	d.order = append(d.order, s)
	return nil
}

// Disconnect removes s if it is still the live session of its nick.
func (d *Directory) Disconnect(s *model.Session) {
	if d.sessions[s.Nick] != s {
		return
	}
	delete(d.sessions, s.Nick)
	d.order = slices.DeleteFunc(d.order, func(o *model.Session) bool { return o == s })
}

// Session returns nick's live session.
func (d *Directory) Session(nick string) (*model.Session, bool) {
	s, ok := d.sessions[nick]
	return s, ok
}

// Online reports whether nick has a live session.
func (d *Directory) Online(nick string) bool {
	_, ok := d.sessions[nick]
	return ok
}

// Sessions returns a snapshot of live sessions in connection order.
func (d *Directory) Sessions() []*model.Session {
	return slices.Clone(d.order)
}

// InRoom returns the sessions in room, in connection order.
func (d *Directory) InRoom(room string) []*model.Session {
	var out []*model.Session
	for _, s := range d.order {
		if s.Room == room {
			out = append(out, s)
		}
	}
	return out
}

// Aliases returns every live session connected from ip, in connection
// order.
func (d *Directory) Aliases(ip string) []*model.Session {
	var out []*model.Session
	for _, s := range d.order {
		if s.IP == ip {
			out = append(out, s)
		}
	}
	return out
}

// Occupancy returns the room of every live session; lobby sessions give "".
func (d *Directory) Occupancy() []string {
	rooms := make([]string, 0, len(d.order))
	for _, s := range d.order {
		rooms = append(rooms, s.Room)
	}
	return rooms
}

// UserCount returns the number of live sessions.
func (d *Directory) UserCount() int {
	return len(d.order)
}

// ModCount returns the number of live sessions with moderator rights.
func (d *Directory) ModCount() int {
	n := 0
	for _, s := range d.order {
		if d.IsModerator(s.Nick) {
			n++
		}
	}
	return n
}
