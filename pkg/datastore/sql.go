package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/NicolasHaas/goplace/pkg/model"
)

const dbTimeLayout = "2006-01-02 15:04:05"

type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type baseProvider struct {
	DB
}

type nonTxProvider struct {
	baseProvider
}

type txProvider struct {
	baseProvider
	tx *sql.Tx
}

func (c *txProvider) Rollback() error {
	return c.tx.Rollback()
}

func (c *txProvider) Commit() error {
	return c.tx.Commit()
}

// ProviderFactory hands out SQLite-backed DataStores.
type ProviderFactory struct {
	DB *sql.DB
}

func (sf ProviderFactory) NonTx() DataStore {
	return &nonTxProvider{
		baseProvider: baseProvider{
			DB: sf.DB,
		},
	}
}

func (sf ProviderFactory) Tx(ctx context.Context) (DataStoreTx, error) {
	tx, err := sf.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	return &txProvider{
		baseProvider: baseProvider{
			DB: tx,
		},
		tx: tx,
	}, nil
}

// NewProviderFactory opens (or creates) a SQLite database and runs migrations.
func NewProviderFactory(dbPath string) (*ProviderFactory, error) {
	DB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("datastore: open DB: %w", err)
	}

	ctx := context.Background()

	// Enable WAL mode for better concurrent read performance
	if _, err := DB.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = DB.Close()
		return nil, fmt.Errorf("datastore: set WAL: %w", err)
	}
	if _, err := DB.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		_ = DB.Close()
		return nil, fmt.Errorf("datastore: enable FK: %w", err)
	}
	// Set busy timeout to avoid "database is locked" when the CLI actions
	// run next to a live server
	if _, err := DB.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = DB.Close()
		return nil, fmt.Errorf("datastore: set busy_timeout: %w", err)
	}
	// PRAGMA foreign_keys is per connection
	DB.SetMaxOpenConns(1)

	s := &ProviderFactory{DB: DB}
	if err := s.migrate(); err != nil {
		_ = DB.Close()
		return nil, fmt.Errorf("datastore: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *ProviderFactory) Close() error {
	return s.DB.Close()
}

func (s *ProviderFactory) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS accounts (
		nick        TEXT    PRIMARY KEY CHECK(length(nick) >= 3 AND length(nick) <= 18),
		email       TEXT    NOT NULL UNIQUE,
		special     INTEGER NOT NULL DEFAULT 0 CHECK(special >= 0 AND special <= 2),
		bypass_hash BLOB,
		house       TEXT    NOT NULL DEFAULT '',
		created_at  TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS friends (
		nick   TEXT NOT NULL REFERENCES accounts(nick) ON DELETE CASCADE,
		friend TEXT NOT NULL,
		PRIMARY KEY (nick, friend)
	);

	CREATE TABLE IF NOT EXISTS warnings (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		nick        TEXT    NOT NULL REFERENCES accounts(nick) ON DELETE CASCADE,
		mod_nick    TEXT    NOT NULL,
		mod_special INTEGER NOT NULL DEFAULT 0,
		reason      TEXT    NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS avatar_inventory (
		nick   TEXT NOT NULL REFERENCES accounts(nick) ON DELETE CASCADE,
		avatar TEXT NOT NULL,
		PRIMARY KEY (nick, avatar)
	);

	CREATE TABLE IF NOT EXISTS inventory (
		nick TEXT NOT NULL REFERENCES accounts(nick) ON DELETE CASCADE,
		item TEXT NOT NULL,
		PRIMARY KEY (nick, item)
	);
	`
	ctx := context.Background()
	if err := s.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	currentVersion, err := s.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	migrations := []struct {
		version      int
		statements   []string
		ignoreErrors bool
	}{
		{
			version:    1,
			statements: []string{schema},
		},
		{
			version: 2,
			statements: []string{
				"CREATE INDEX IF NOT EXISTS warnings_nick ON warnings (nick)",
			},
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		for _, stmt := range m.statements {
			if err := s.execMigration(ctx, stmt, m.ignoreErrors); err != nil {
				return err
			}
		}
		if err := s.setSchemaVersion(ctx, m.version); err != nil {
			return err
		}
	}
	return nil
}

func (s *ProviderFactory) ensureSchemaMigrations(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("datastore: create schema_migrations: %w", err)
	}
	var count int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("datastore: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := s.DB.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("datastore: init schema_migrations: %w", err)
		}
	}
	return nil
}

func (s *ProviderFactory) getSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.DB.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("datastore: read schema version: %w", err)
	}
	return version, nil
}

func (s *ProviderFactory) setSchemaVersion(ctx context.Context, version int) error {
	if _, err := s.DB.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", version); err != nil {
		return fmt.Errorf("datastore: update schema version: %w", err)
	}
	return nil
}

func (s *ProviderFactory) execMigration(ctx context.Context, stmt string, ignoreErrors bool) error {
	if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
		if ignoreErrors {
			return nil
		}
		return fmt.Errorf("datastore: migrate: %w", err)
	}
	return nil
}

func formatDBTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

func parseDBTime(value string) (time.Time, error) {
	return time.ParseInLocation(dbTimeLayout, value, time.UTC)
}

func encodeHouse(h model.House) (string, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeHouse(value string) (model.House, error) {
	if value == "" {
		return model.DefaultHouse(), nil
	}
	var h model.House
	if err := json.Unmarshal([]byte(value), &h); err != nil {
		return model.House{}, err
	}
	return h, nil
}

// requireRow turns an UPDATE/DELETE that touched nothing into ErrAccountNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ---- Accounts ----

// CreateAccount creates a new account with the default house.
// It validates the nick before inserting.
func (s *baseProvider) CreateAccount(nick, email string) (*model.Account, error) {
	if err := model.ValidateNick(nick); err != nil {
		return nil, fmt.Errorf("datastore: create account: %w", err)
	}
	house, err := encodeHouse(model.DefaultHouse())
	if err != nil {
		return nil, fmt.Errorf("datastore: create account: %w", err)
	}
	now := time.Now().UTC().Truncate(time.Second)
	_, err = s.ExecContext(context.Background(),
		"INSERT INTO accounts (nick, email, house, created_at) VALUES (?, ?, ?, ?)",
		nick, email, house, formatDBTime(now))
	if err != nil {
		return nil, fmt.Errorf("datastore: create account: %w", err)
	}
	return &model.Account{
		Nick:      nick,
		Email:     email,
		House:     model.DefaultHouse(),
		CreatedAt: now,
	}, nil
}

// GetAccount retrieves an account with its friends, warnings and inventories.
func (s *baseProvider) GetAccount(nick string) (*model.Account, error) {
	ctx := context.Background()
	a := &model.Account{}
	var special int
	var house, createdAt string
	err := s.QueryRowContext(ctx,
		"SELECT nick, email, special, bypass_hash, house, created_at FROM accounts WHERE nick = ?", nick).
		Scan(&a.Nick, &a.Email, &special, &a.BypassHash, &house, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get account: %w", err)
	}
	if err := fillAccount(a, special, house, createdAt); err != nil {
		return nil, fmt.Errorf("datastore: get account: %w", err)
	}

	accounts := map[string]*model.Account{a.Nick: a}
	if err := s.loadRelations(ctx, accounts, "WHERE nick = ?", nick); err != nil {
		return nil, fmt.Errorf("datastore: get account: %w", err)
	}
	return a, nil
}

// ListAccounts returns all accounts ordered by creation.
func (s *baseProvider) ListAccounts() ([]model.Account, error) {
	ctx := context.Background()
	rows, err := s.QueryContext(ctx,
		"SELECT nick, email, special, bypass_hash, house, created_at FROM accounts ORDER BY created_at, nick")
	if err != nil {
		return nil, fmt.Errorf("datastore: list accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var order []*model.Account
	byNick := make(map[string]*model.Account)
	for rows.Next() {
		a := &model.Account{}
		var special int
		var house, createdAt string
		if err := rows.Scan(&a.Nick, &a.Email, &special, &a.BypassHash, &house, &createdAt); err != nil {
			return nil, fmt.Errorf("datastore: scan account: %w", err)
		}
		if err := fillAccount(a, special, house, createdAt); err != nil {
			return nil, fmt.Errorf("datastore: scan account: %w", err)
		}
		order = append(order, a)
		byNick[a.Nick] = a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("datastore: list accounts: %w", err)
	}
	_ = rows.Close()

	if err := s.loadRelations(ctx, byNick, ""); err != nil {
		return nil, fmt.Errorf("datastore: list accounts: %w", err)
	}

	accounts := make([]model.Account, 0, len(order))
	for _, a := range order {
		accounts = append(accounts, *a)
	}
	return accounts, nil
}

func fillAccount(a *model.Account, special int, house, createdAt string) error {
	a.Special = model.Special(special)
	h, err := decodeHouse(house)
	if err != nil {
		return err
	}
	a.House = h
	parsed, err := parseDBTime(createdAt)
	if err != nil {
		return err
	}
	a.CreatedAt = parsed
	return nil
}

// loadRelations fills friends, warnings and inventories for the given
// accounts. where restricts every query, e.g. to a single nick.
func (s *baseProvider) loadRelations(ctx context.Context, accounts map[string]*model.Account, where string, args ...any) error {
	if err := s.loadStrings(ctx, "SELECT nick, friend FROM friends "+where+" ORDER BY rowid", args, func(a *model.Account, v string) {
		a.Friends = append(a.Friends, v)
	}, accounts); err != nil {
		return err
	}
	if err := s.loadStrings(ctx, "SELECT nick, avatar FROM avatar_inventory "+where+" ORDER BY rowid", args, func(a *model.Account, v string) {
		a.AvatarInventory = append(a.AvatarInventory, v)
	}, accounts); err != nil {
		return err
	}
	if err := s.loadStrings(ctx, "SELECT nick, item FROM inventory "+where+" ORDER BY rowid", args, func(a *model.Account, v string) {
		a.Inventory = append(a.Inventory, v)
	}, accounts); err != nil {
		return err
	}

	rows, err := s.QueryContext(ctx, "SELECT nick, mod_nick, mod_special, reason FROM warnings "+where+" ORDER BY id", args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var nick string
		var w model.Warning
		var special int
		if err := rows.Scan(&nick, &w.ModNick, &special, &w.Reason); err != nil {
			return err
		}
		w.ModSpecial = model.Special(special)
		if a := accounts[nick]; a != nil {
			a.Warnings = append(a.Warnings, w)
		}
	}
	return rows.Err()
}

func (s *baseProvider) loadStrings(ctx context.Context, query string, args []any, add func(a *model.Account, v string), accounts map[string]*model.Account) error {
	rows, err := s.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var nick, value string
		if err := rows.Scan(&nick, &value); err != nil {
			return err
		}
		if a := accounts[nick]; a != nil {
			add(a, value)
		}
	}
	return rows.Err()
}

// DeleteAccount deletes an account; friends, warnings and inventories
// cascade.
func (s *baseProvider) DeleteAccount(nick string) error {
	res, err := s.ExecContext(context.Background(), "DELETE FROM accounts WHERE nick = ?", nick)
	if err != nil {
		return fmt.Errorf("datastore: delete account: %w", err)
	}
	if err := requireRow(res); err != nil {
		return fmt.Errorf("datastore: delete account: %w", err)
	}
	return nil
}

// UpdateSpecial changes an account's special status.
func (s *baseProvider) UpdateSpecial(nick string, special model.Special) error {
	if !special.Valid() {
		return fmt.Errorf("datastore: update special: %w", model.ErrInvalidSpecial)
	}
	res, err := s.ExecContext(context.Background(), "UPDATE accounts SET special = ? WHERE nick = ?", int(special), nick)
	if err != nil {
		return fmt.Errorf("datastore: update special: %w", err)
	}
	if err := requireRow(res); err != nil {
		return fmt.Errorf("datastore: update special: %w", err)
	}
	return nil
}

// UpdateBypassHash stores (or clears, with nil) an account's bypass hash.
func (s *baseProvider) UpdateBypassHash(nick string, hash []byte) error {
	res, err := s.ExecContext(context.Background(), "UPDATE accounts SET bypass_hash = ? WHERE nick = ?", hash, nick)
	if err != nil {
		return fmt.Errorf("datastore: update bypass hash: %w", err)
	}
	if err := requireRow(res); err != nil {
		return fmt.Errorf("datastore: update bypass hash: %w", err)
	}
	return nil
}

// UpdateHouse replaces an account's house record.
func (s *baseProvider) UpdateHouse(nick string, house model.House) error {
	encoded, err := encodeHouse(house)
	if err != nil {
		return fmt.Errorf("datastore: update house: %w", err)
	}
	res, err := s.ExecContext(context.Background(), "UPDATE accounts SET house = ? WHERE nick = ?", encoded, nick)
	if err != nil {
		return fmt.Errorf("datastore: update house: %w", err)
	}
	if err := requireRow(res); err != nil {
		return fmt.Errorf("datastore: update house: %w", err)
	}
	return nil
}

// ---- Friends ----

// AddFriend adds friend to nick's list. Adding twice is a no-op.
func (s *baseProvider) AddFriend(nick, friend string) error {
	_, err := s.ExecContext(context.Background(), "INSERT OR IGNORE INTO friends (nick, friend) VALUES (?, ?)", nick, friend)
	if err != nil {
		return fmt.Errorf("datastore: add friend: %w", err)
	}
	return nil
}

// RemoveFriend removes friend from nick's list.
func (s *baseProvider) RemoveFriend(nick, friend string) error {
	_, err := s.ExecContext(context.Background(), "DELETE FROM friends WHERE nick = ? AND friend = ?", nick, friend)
	if err != nil {
		return fmt.Errorf("datastore: remove friend: %w", err)
	}
	return nil
}

// ---- Warnings ----

// AddWarning queues a warning for nick's next login.
func (s *baseProvider) AddWarning(nick string, w model.Warning) error {
	_, err := s.ExecContext(context.Background(),
		"INSERT INTO warnings (nick, mod_nick, mod_special, reason) VALUES (?, ?, ?, ?)",
		nick, w.ModNick, int(w.ModSpecial), w.Reason)
	if err != nil {
		return fmt.Errorf("datastore: add warning: %w", err)
	}
	return nil
}

// ClearWarnings drops every queued warning for nick.
func (s *baseProvider) ClearWarnings(nick string) error {
	_, err := s.ExecContext(context.Background(), "DELETE FROM warnings WHERE nick = ?", nick)
	if err != nil {
		return fmt.Errorf("datastore: clear warnings: %w", err)
	}
	return nil
}

// ---- Inventories ----

// GrantAvatar adds an avatar to nick's avatar inventory.
func (s *baseProvider) GrantAvatar(nick, avatar string) error {
	_, err := s.ExecContext(context.Background(), "INSERT OR IGNORE INTO avatar_inventory (nick, avatar) VALUES (?, ?)", nick, avatar)
	if err != nil {
		return fmt.Errorf("datastore: grant avatar: %w", err)
	}
	return nil
}

// GrantItem adds an item to nick's inventory.
func (s *baseProvider) GrantItem(nick, item string) error {
	_, err := s.ExecContext(context.Background(), "INSERT OR IGNORE INTO inventory (nick, item) VALUES (?, ?)", nick, item)
	if err != nil {
		return fmt.Errorf("datastore: grant item: %w", err)
	}
	return nil
}
