package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/NicolasHaas/goplace/pkg/catalog"
	"github.com/NicolasHaas/goplace/pkg/datastore"
	"github.com/NicolasHaas/goplace/pkg/identity"
	"github.com/NicolasHaas/goplace/pkg/logging"
	"github.com/NicolasHaas/goplace/pkg/rooms"
	"github.com/NicolasHaas/goplace/pkg/server"
	"github.com/NicolasHaas/goplace/pkg/store"
	"github.com/NicolasHaas/goplace/pkg/version"
)

func main() {
	cfg := server.DefaultConfig()

	flag.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "Websocket bind address")
	flag.StringVar(&cfg.DataDir, "data", cfg.DataDir, "Directory for bans, moderation log and mailbox files")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite account database path")
	flag.StringVar(&cfg.RoomsFile, "rooms-file", "", "YAML file listing the configured rooms")
	flag.StringVar(&cfg.CatalogFile, "catalog-file", "", "YAML file with the avatar and inventory catalogs")
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "HTTP bind address for Prometheus /metrics (empty to disable)")
	flag.StringVar(&cfg.AllowedOrigin, "origin", cfg.AllowedOrigin, "Allowed Origin header (empty allows any)")
	flag.BoolVar(&cfg.AllowMissingOrigin, "allow-missing-origin", cfg.AllowMissingOrigin, "Accept connections without an Origin header")
	flag.StringVar(&cfg.DefaultRoom, "default-room", cfg.DefaultRoom, "Room /empty sends house visitors to")
	flag.StringVar(&cfg.VerifierURL, "verifier", cfg.VerifierURL, "Identity assertion verification endpoint")
	flag.StringVar(&cfg.VerifierAudience, "audience", cfg.VerifierAudience, "Audience sent to the verifier")
	flag.BoolVar(&cfg.InsecureIdentity, "insecure-identity", false, "Treat login assertions as email addresses (development only)")
	flag.BoolVar(&cfg.TLS, "tls", false, "Serve wss:// (self-signed certificate generated if none is given)")
	flag.StringVar(&cfg.CertFile, "cert", "", "TLS certificate file")
	flag.StringVar(&cfg.KeyFile, "key", "", "TLS private key file")
	flag.DurationVar(&cfg.HandshakeTimeout, "handshake-timeout", cfg.HandshakeTimeout, "Time allowed to log in (0 = unlimited)")
	flag.DurationVar(&cfg.VerifyTimeout, "verify-timeout", cfg.VerifyTimeout, "Time allowed for identity verification (0 = unlimited)")
	flag.Float64Var(&cfg.FrameRate, "frame-rate", cfg.FrameRate, "Inbound frames per second per session (0 = unlimited)")
	flag.IntVar(&cfg.FrameBurst, "frame-burst", cfg.FrameBurst, "Inbound frame burst per session")
	flag.IntVar(&cfg.SendBuffer, "send-buffer", cfg.SendBuffer, "Outbound frames queued per connection")
	flag.Int64Var(&cfg.MaxFrameSize, "max-frame", cfg.MaxFrameSize, "Largest inbound frame in bytes")
	flag.DurationVar(&cfg.LogInterval, "log-interval", cfg.LogInterval, "Interval of the metrics summary log line (0 disables)")
	flag.BoolVar(&cfg.ExportAccounts, "export-accounts", false, "Export all accounts as YAML and exit")
	flag.StringVar(&cfg.SetSpecial, "set-special", "", "Set special status and exit, e.g. -set-special alice=moderator")
	flag.StringVar(&cfg.SetBypass, "set-bypass", "", "Set a bypass login secret and exit, e.g. -set-bypass alice=s3cret (-set-bypass alice prints a generated one)")
	flag.StringVar(&cfg.GrantItem, "grant-item", "", "Grant an inventory item and exit, e.g. -grant-item alice=cave_bg")
	flag.StringVar(&cfg.GrantAvatar, "grant-avatar", "", "Grant an avatar and exit, e.g. -grant-avatar alice=derpy")

	logLevel := flag.String("log-level", "info", "Log level: "+logging.LevelNames())
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Full())
		return
	}

	if err := logging.Setup(logging.Options{
		Level:  *logLevel,
		Format: *logFormat,
		Output: os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}

func run(cfg server.Config) error {
	st, err := datastore.NewProviderFactory(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	if cfg.HasAdminAction() {
		return server.RunAdmin(context.Background(), st, cfg, os.Stdout)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	deps := server.Dependencies{Accounts: st.NonTx()}

	if deps.Bans, err = store.OpenBans(cfg.BansPath()); err != nil {
		return err
	}
	if deps.ModLog, err = store.OpenModLog(cfg.ModLogPath()); err != nil {
		return err
	}
	if deps.Mailbox, err = store.OpenMailbox(cfg.MailboxPath()); err != nil {
		return err
	}
	if cfg.RoomsFile != "" {
		if deps.Rooms, err = rooms.LoadConfig(cfg.RoomsFile); err != nil {
			return err
		}
	}
	if cfg.CatalogFile != "" {
		if deps.Catalog, err = catalog.Load(cfg.CatalogFile); err != nil {
			return err
		}
	}
	if cfg.InsecureIdentity {
		slog.Warn("identity verification disabled: assertions are trusted as email addresses")
		deps.Verifier = identity.Insecure{}
	} else {
		deps.Verifier = identity.NewRemoteVerifier(cfg.VerifierURL, cfg.VerifierAudience)
	}

	slog.Info("loaded state",
		"rooms", len(deps.Rooms),
		"bans", len(deps.Bans.List()),
		"mod_log", deps.ModLog.Len(),
		"mailbox", deps.Mailbox.Len(),
		"data", filepath.Clean(cfg.DataDir),
	)

	srv, err := server.New(cfg, deps)
	if err != nil {
		return err
	}
	return srv.Run()
}
