package model

import (
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(cfg.Accounts) != 0 {
		t.Errorf("accounts = %v, want none", cfg.Accounts)
	}
	if cfg.Display.Theme != "default" {
		t.Errorf("theme = %q, want %q", cfg.Display.Theme, "default")
	}
	if cfg.Cache.BodyKeepPerFolder != 200 {
		t.Errorf("body keep = %d, want 200", cfg.Cache.BodyKeepPerFolder)
	}
	// An empty path would open a temporary database that vanishes on
	// close, so the default must always resolve to a real file.
	if cfg.Cache.Path == "" {
		t.Error("cache path is empty, want the default database path")
	}
	if cfg.Cache.Path != DefaultCachePath() {
		t.Errorf("cache path = %q, want %q", cfg.Cache.Path, DefaultCachePath())
	}
}

func TestLoadConfigFillsMissingCachePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := &AppConfig{
		Accounts: []AccountConfig{
			{ID: "work", Email: "me@example.com", IMAP: &ServerConfig{Host: "imap.example.com", Port: "993"}},
		},
	}
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Cache.Path == "" {
		t.Error("cache path is empty after load, want the default database path")
	}
}

func TestSaveAndLoadConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := &AppConfig{
		Accounts: []AccountConfig{
			{
				ID:       "work",
				Name:     "Work",
				Email:    "me@example.com",
				Protocol: ProtocolIMAP,
				IMAP: &ServerConfig{
					Host:     "imap.example.com",
					Port:     "993",
					Username: "me@example.com",
					TLS:      true,
				},
				SMTP: ServerConfig{
					Host:     "smtp.example.com",
					Port:     "465",
					Username: "me@example.com",
					TLS:      true,
				},
				SyncIntervalSec: 120,
			},
		},
		Display: DisplayConfig{Theme: "default"},
		Cache:   CacheConfig{Path: "/tmp/linsky.db", BodyKeepPerFolder: 50},
	}

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if len(loaded.Accounts) != 1 {
		t.Fatalf("got %d accounts, want 1", len(loaded.Accounts))
	}
	acct := loaded.Accounts[0]
	if acct.ID != "work" || acct.Email != "me@example.com" {
		t.Errorf("account = %+v", acct)
	}
	if acct.Protocol != ProtocolIMAP {
		t.Errorf("protocol = %q", acct.Protocol)
	}
	if acct.IMAP == nil || acct.IMAP.Addr() != "imap.example.com:993" {
		t.Errorf("imap = %+v", acct.IMAP)
	}
	if acct.SMTP.Addr() != "smtp.example.com:465" {
		t.Errorf("smtp = %+v", acct.SMTP)
	}
	if acct.SyncIntervalSec != 120 {
		t.Errorf("sync interval = %d", acct.SyncIntervalSec)
	}
	if loaded.Cache.BodyKeepPerFolder != 50 {
		t.Errorf("body keep = %d", loaded.Cache.BodyKeepPerFolder)
	}
}

func TestLoadConfigAppliesAccountDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := &AppConfig{
		Accounts: []AccountConfig{
			{
				ID:    "home",
				Email: "home@example.com",
				IMAP:  &ServerConfig{Host: "imap.example.com", Port: "993"},
			},
		},
	}
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	acct := loaded.Accounts[0]
	if acct.Protocol != ProtocolIMAP {
		t.Errorf("protocol = %q, want default imap", acct.Protocol)
	}
	if acct.SyncIntervalSec != 300 {
		t.Errorf("sync interval = %d, want default 300", acct.SyncIntervalSec)
	}
	if acct.Incoming() == nil || acct.Incoming().Host != "imap.example.com" {
		t.Errorf("incoming = %+v", acct.Incoming())
	}
}
