// Command linsky is a terminal email client with an offline-first
// local cache synchronized over IMAP or POP3.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tomatyss/linsky/internal/app"
	"github.com/tomatyss/linsky/internal/credential"
	"github.com/tomatyss/linsky/internal/mailbox"
	"github.com/tomatyss/linsky/internal/model"
	"github.com/tomatyss/linsky/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "linsky:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := model.LoadConfig(model.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, logFile, err := openLogger(cfg.Cache.Path)
	if err != nil {
		return err
	}
	defer logFile.Close()

	resolvePasswords(cfg.Accounts, logger)

	if err := os.MkdirAll(filepath.Dir(cfg.Cache.Path), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	st, err := store.NewSQLiteStore(cfg.Cache.Path)
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	defer st.Close()

	mb := mailbox.New(st, logger, cfg.Cache.BodyKeepPerFolder)
	for _, account := range cfg.Accounts {
		mb.AddAccount(account)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mb.Start(ctx)
	defer mb.Close()

	program := tea.NewProgram(
		app.New(mb),
		tea.WithAltScreen(),
	)
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("running UI: %w", err)
	}
	return nil
}

// openLogger writes structured logs next to the cache database. The
// terminal itself belongs to the UI.
func openLogger(cachePath string) (*slog.Logger, *os.File, error) {
	logPath := filepath.Join(filepath.Dir(cachePath), "linsky.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
	return logger, f, nil
}

// resolvePasswords fills in passwords from the system keyring for
// accounts whose config leaves them empty.
func resolvePasswords(accounts []model.AccountConfig, logger *slog.Logger) {
	for i := range accounts {
		account := &accounts[i]

		incoming := account.Incoming()
		if incoming.Password == "" {
			if pw, err := credential.Get(credential.IncomingKey(account.ID)); err == nil {
				incoming.Password = pw
			} else {
				logger.Warn("no stored credential for incoming server",
					"account", account.ID, "error", err)
			}
		}

		if account.SMTP.Password == "" {
			if pw, err := credential.Get(credential.SMTPKey(account.ID)); err == nil {
				account.SMTP.Password = pw
			} else {
				logger.Warn("no stored credential for submission server",
					"account", account.ID, "error", err)
			}
		}
	}
}
