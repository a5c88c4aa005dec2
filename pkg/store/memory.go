package store

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/NicolasHaas/goplace/pkg/datastore"
	"github.com/NicolasHaas/goplace/pkg/model"
)

// Compile-time check: *MemoryStore implements datastore.DataStore.
var _ datastore.DataStore = (*MemoryStore)(nil)

// MemoryStore provides an in-memory DataStore implementation for tests.
// It mirrors SQLite behavior for validation and error handling.
type MemoryStore struct {
	mu sync.RWMutex

	now func() time.Time

	order    []string
	accounts map[string]*model.Account
	emails   map[string]string
}

// NewMemory creates a MemoryStore using time.Now().UTC().
func NewMemory() *MemoryStore {
	return NewMemoryWithClock(func() time.Time { return time.Now().UTC() })
}

// NewMemoryWithClock creates a MemoryStore with a custom clock.
func NewMemoryWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{
		now:      now,
		accounts: make(map[string]*model.Account),
		emails:   make(map[string]string),
	}
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}

// CreateAccount creates a new account with the default house.
func (s *MemoryStore) CreateAccount(nick, email string) (*model.Account, error) {
	if err := model.ValidateNick(nick); err != nil {
		return nil, fmt.Errorf("store: create account: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[nick]; ok {
		return nil, fmt.Errorf("store: create account: nick %q already exists", nick)
	}
	if _, ok := s.emails[email]; ok {
		return nil, fmt.Errorf("store: create account: email %q already exists", email)
	}
	a := &model.Account{
		Nick:      nick,
		Email:     email,
		House:     model.DefaultHouse(),
		CreatedAt: s.now().Truncate(time.Second),
	}
	s.accounts[nick] = a
	s.emails[email] = nick
	s.order = append(s.order, nick)
	return a.Clone(), nil
}

// GetAccount retrieves an account by nick. Returns (nil, nil) if not found.
func (s *MemoryStore) GetAccount(nick string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[nick]
	if !ok {
		return nil, nil
	}
	return a.Clone(), nil
}

// ListAccounts returns all accounts in creation order.
func (s *MemoryStore) ListAccounts() ([]model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	accounts := make([]model.Account, 0, len(s.order))
	for _, nick := range s.order {
		accounts = append(accounts, *s.accounts[nick].Clone())
	}
	return accounts, nil
}

// DeleteAccount removes an account and everything attached to it.
func (s *MemoryStore) DeleteAccount(nick string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[nick]
	if !ok {
		return fmt.Errorf("store: delete account: %w", datastore.ErrAccountNotFound)
	}
	delete(s.accounts, nick)
	delete(s.emails, a.Email)
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == nick })
	return nil
}

// UpdateSpecial changes an account's special status.
func (s *MemoryStore) UpdateSpecial(nick string, special model.Special) error {
	if !special.Valid() {
		return fmt.Errorf("store: update special: %w", model.ErrInvalidSpecial)
	}
	return s.update("update special", nick, func(a *model.Account) { a.Special = special })
}

// UpdateBypassHash stores (or clears, with nil) an account's bypass hash.
func (s *MemoryStore) UpdateBypassHash(nick string, hash []byte) error {
	return s.update("update bypass hash", nick, func(a *model.Account) { a.BypassHash = slices.Clone(hash) })
}

// UpdateHouse replaces an account's house record.
func (s *MemoryStore) UpdateHouse(nick string, house model.House) error {
	return s.update("update house", nick, func(a *model.Account) { a.House = house })
}

// AddFriend adds friend to nick's list. Adding twice is a no-op.
func (s *MemoryStore) AddFriend(nick, friend string) error {
	return s.update("add friend", nick, func(a *model.Account) {
		if !a.HasFriend(friend) {
			a.Friends = append(a.Friends, friend)
		}
	})
}

// RemoveFriend removes friend from nick's list.
func (s *MemoryStore) RemoveFriend(nick, friend string) error {
	return s.update("remove friend", nick, func(a *model.Account) {
		a.Friends = slices.DeleteFunc(a.Friends, func(f string) bool { return f == friend })
	})
}

// AddWarning queues a warning for nick's next login.
func (s *MemoryStore) AddWarning(nick string, w model.Warning) error {
	return s.update("add warning", nick, func(a *model.Account) { a.Warnings = append(a.Warnings, w) })
}

// ClearWarnings drops every queued warning for nick.
func (s *MemoryStore) ClearWarnings(nick string) error {
	return s.update("clear warnings", nick, func(a *model.Account) { a.Warnings = nil })
}

// GrantAvatar adds an avatar to nick's avatar inventory.
func (s *MemoryStore) GrantAvatar(nick, avatar string) error {
	return s.update("grant avatar", nick, func(a *model.Account) {
		if !slices.Contains(a.AvatarInventory, avatar) {
			a.AvatarInventory = append(a.AvatarInventory, avatar)
		}
	})
}

// GrantItem adds an item to nick's inventory.
func (s *MemoryStore) GrantItem(nick, item string) error {
	return s.update("grant item", nick, func(a *model.Account) {
		if !slices.Contains(a.Inventory, item) {
			a.Inventory = append(a.Inventory, item)
		}
	})
}

func (s *MemoryStore) update(op, nick string, fn func(a *model.Account)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[nick]
	if !ok {
		return fmt.Errorf("store: %s: %w", op, datastore.ErrAccountNotFound)
	}
	fn(a)
	return nil
}
