package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/NicolasHaas/goplace/pkg/crypto"
	"github.com/NicolasHaas/goplace/pkg/datastore"
	"github.com/NicolasHaas/goplace/pkg/directory"
	"github.com/NicolasHaas/goplace/pkg/model"
)

// HasAdminAction reports whether cfg asks for a CLI-only account action.
func (c Config) HasAdminAction() bool {
	return c.ExportAccounts || c.SetSpecial != "" || c.SetBypass != "" || c.GrantItem != "" || c.GrantAvatar != ""
}

// RunAdmin performs the CLI-only account actions. The export is written to
// out first; the account changes then run in one transaction, so either all
// of them land or none do.
func RunAdmin(ctx context.Context, factory datastore.DataProviderFactory, cfg Config, out io.Writer) (err error) {
	if cfg.ExportAccounts {
		list, err := factory.NonTx().ListAccounts()
		if err != nil {
			return fmt.Errorf("export accounts: %w", err)
		}
		data, err := ExportAccountsYAML(list)
		if err != nil {
			return fmt.Errorf("export accounts: %w", err)
		}
		if _, err := out.Write(data); err != nil {
			return fmt.Errorf("export accounts: %w", err)
		}
	}
	if cfg.SetSpecial == "" && cfg.SetBypass == "" && cfg.GrantItem == "" && cfg.GrantAvatar == "" {
		return nil
	}

	tx, err := factory.Tx(ctx)
	if err != nil {
		return fmt.Errorf("server: admin: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	dir, err := directory.New(tx)
	if err != nil {
		return err
	}
	if err := applyAdmin(dir, cfg, out); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("server: admin: commit: %w", err)
	}
	return nil
}

func applyAdmin(dir *directory.Directory, cfg Config, out io.Writer) error {
	if cfg.SetSpecial != "" {
		nick, status, err := ParseAssignment(cfg.SetSpecial)
		if err != nil {
			return fmt.Errorf("set-special: %w", err)
		}
		special, err := model.ParseSpecial(status)
		if err != nil {
			return fmt.Errorf("set-special: %w", err)
		}
		if err := dir.SetSpecial(nick, special); err != nil {
			return fmt.Errorf("set-special: %w", err)
		}
		slog.Info("special status updated", "nick", nick, "special", special)
	}
	if cfg.SetBypass != "" {
		// "nick" alone asks for a generated secret.
		nick, secret, _ := strings.Cut(cfg.SetBypass, "=")
		nick = strings.TrimSpace(nick)
		if nick == "" {
			return fmt.Errorf("set-bypass: expected nick or nick=secret, got %q", cfg.SetBypass)
		}
		if secret == "" {
			var err error
			if secret, err = crypto.GenerateSecret(); err != nil {
				return fmt.Errorf("set-bypass: %w", err)
			}
			_, _ = fmt.Fprintf(out, "bypass secret for %s: %s\n", nick, secret)
		}
		if err := dir.SetBypass(nick, secret); err != nil {
			return fmt.Errorf("set-bypass: %w", err)
		}
		slog.Info("bypass secret updated", "nick", nick)
	}
	if cfg.GrantItem != "" {
		nick, item, err := ParseAssignment(cfg.GrantItem)
		if err != nil {
			return fmt.Errorf("grant-item: %w", err)
		}
		if err := dir.GrantItem(nick, item); err != nil {
			return fmt.Errorf("grant-item: %w", err)
		}
		slog.Info("item granted", "nick", nick, "item", item)
	}
	if cfg.GrantAvatar != "" {
		nick, avatar, err := ParseAssignment(cfg.GrantAvatar)
		if err != nil {
			return fmt.Errorf("grant-avatar: %w", err)
		}
		if err := dir.GrantAvatar(nick, avatar); err != nil {
			return fmt.Errorf("grant-avatar: %w", err)
		}
		slog.Info("avatar granted", "nick", nick, "avatar", avatar)
	}
	return nil
}
