package datastore

import (
	"context"
	"errors"

	"github.com/NicolasHaas/goplace/pkg/model"
)

var ErrAccountNotFound = errors.New("datastore: account not found")

type DataProviderFactory interface {
	NonTx() DataStore
	Tx(context.Context) (DataStoreTx, error)
	Close() error
}

type DataStoreTx interface {
	DataStore
	Rollback() error
	Commit() error
}

// DataStore defines the persistence interface for accounts.
// Implementations are the SQLite store in this package and the in-memory
// store used by tests.
type DataStore interface {
	AccountReadProvider
	AccountWriteProvider

	FriendWriteProvider
	WarningWriteProvider
	InventoryWriteProvider
}

// Compile-time check: *ProviderFactory implements DataProviderFactory.
var _ DataProviderFactory = (*ProviderFactory)(nil)

type AccountReadProvider interface {
	// GetAccount returns nil, nil when no account has the nick.
	GetAccount(nick string) (*model.Account, error)
	ListAccounts() ([]model.Account, error)
}

type AccountWriteProvider interface {
	CreateAccount(nick, email string) (*model.Account, error)
	DeleteAccount(nick string) error
	UpdateSpecial(nick string, special model.Special) error
	UpdateBypassHash(nick string, hash []byte) error
	UpdateHouse(nick string, house model.House) error
}

type FriendWriteProvider interface {
	AddFriend(nick, friend string) error
	RemoveFriend(nick, friend string) error
}

type WarningWriteProvider interface {
	AddWarning(nick string, w model.Warning) error
	ClearWarnings(nick string) error
}

type InventoryWriteProvider interface {
	GrantAvatar(nick, avatar string) error
	GrantItem(nick, item string) error
}
