package server

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/goplace/pkg/model"
	"github.com/NicolasHaas/goplace/pkg/protocol"
)

// Config holds server configuration.
type Config struct {
	ListenAddr  string // HTTP bind address for the websocket endpoint
	DataDir     string // directory holding bans.json, mod-log.json, mod-messages.json
	DBPath      string // SQLite account database
	RoomsFile   string // YAML room list (empty = no configured rooms)
	CatalogFile string // YAML avatar and inventory catalog
	MetricsAddr string // HTTP bind address for /metrics (empty = disabled)

	AllowedOrigin      string // exact Origin header accepted (empty = any)
	AllowMissingOrigin bool   // accept requests that send no Origin
	DefaultRoom        string // where /empty sends visitors

	VerifierURL      string // identity verification endpoint
	VerifierAudience string
	InsecureIdentity bool // treat assertions as email addresses (development only)

	TLS      bool   // serve wss://, generating a self-signed pair if needed
	CertFile string // defaults to DataDir/server.crt
	KeyFile  string // defaults to DataDir/server.key

	HandshakeTimeout time.Duration // 0 = no limit
	VerifyTimeout    time.Duration // 0 = no limit
	FrameRate        float64       // inbound frames per second per session, 0 = unlimited
	FrameBurst       int
	SendBuffer       int   // outbound frames queued per connection
	MaxFrameSize     int64 // largest inbound frame in bytes
	LogInterval      time.Duration

	// CLI-only actions (run and exit)
	ExportAccounts bool   // export all accounts as YAML and exit
	SetSpecial     string // "nick=status"
	SetBypass      string // "nick=secret", or "nick" to generate one
	GrantItem      string // "nick=item"
	GrantAvatar    string // "nick=avatar"
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:    ":9001",
		MetricsAddr:   ":9002",
		DataDir:       ".",
		DBPath:        "goplace.db",
		DefaultRoom:   "ponyville",
		AllowedOrigin: "",
		VerifierURL:   "https://verifier.login.persona.org/verify",
		VerifyTimeout: 20 * time.Second,
		FrameBurst:    20,
		SendBuffer:    256,
		MaxFrameSize:  protocol.MaxFrameSize,
		LogInterval:   60 * time.Second,
	}
}

// BansPath is the ban list file under DataDir.
func (c Config) BansPath() string { return filepath.Join(c.DataDir, "bans.json") }

// ModLogPath is the moderation log file under DataDir.
func (c Config) ModLogPath() string { return filepath.Join(c.DataDir, "mod-log.json") }

// MailboxPath is the moderator mailbox file under DataDir.
func (c Config) MailboxPath() string { return filepath.Join(c.DataDir, "mod-messages.json") }

// Validate rejects configurations the server can't run with.
func (c Config) Validate() error {
	switch {
	case c.ListenAddr == "":
		return fmt.Errorf("server: config: listen address is required")
	case c.DefaultRoom == "" || strings.Contains(c.DefaultRoom, " "):
		return fmt.Errorf("server: config: default room %q is not a valid room name", c.DefaultRoom)
	case c.SendBuffer <= 0:
		return fmt.Errorf("server: config: send buffer must be positive")
	case c.MaxFrameSize <= 0:
		return fmt.Errorf("server: config: max frame size must be positive")
	case c.FrameRate < 0 || c.FrameBurst < 0:
		return fmt.Errorf("server: config: frame rate limits can't be negative")
	case c.HandshakeTimeout < 0 || c.VerifyTimeout < 0:
		return fmt.Errorf("server: config: timeouts can't be negative")
	case !c.InsecureIdentity && c.VerifierURL == "":
		return fmt.Errorf("server: config: a verifier URL is required unless identity checks are insecure")
	}
	return nil
}

// ParseAssignment splits a "key=value" CLI argument.
func ParseAssignment(s string) (key, value string, err error) {
	key, value, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" || value == "" {
		return "", "", fmt.Errorf("expected key=value, got %q", s)
	}
	return key, value, nil
}

// AccountYAML is one account in a YAML export. Credentials are left out.
type AccountYAML struct {
	Nick            string          `yaml:"nick"`
	Email           string          `yaml:"email"`
	Special         string          `yaml:"special"`
	Friends         []string        `yaml:"friends,omitempty"`
	AvatarInventory []string        `yaml:"avatar_inventory,omitempty"`
	Inventory       []string        `yaml:"inventory,omitempty"`
	Warnings        []model.Warning `yaml:"warnings,omitempty"`
	House           model.House     `yaml:"house"`
	CreatedAt       string          `yaml:"created_at"`
}

// AccountsExport is the top-level YAML for account export.
type AccountsExport struct {
	Accounts []AccountYAML `yaml:"accounts"`
}

// ExportAccountsYAML renders accounts as YAML.
func ExportAccountsYAML(accounts []model.Account) ([]byte, error) {
	export := AccountsExport{Accounts: make([]AccountYAML, 0, len(accounts))}
	for _, a := range accounts {
		export.Accounts = append(export.Accounts, AccountYAML{
			Nick:            a.Nick,
			Email:           a.Email,
			Special:         a.Special.String(),
			Friends:         a.Friends,
			AvatarInventory: a.AvatarInventory,
			Inventory:       a.Inventory,
			Warnings:        a.Warnings,
			House:           a.House,
			CreatedAt:       a.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return yaml.Marshal(&export)
}
