package model

import "time"

// Protocol identifies the incoming-mail protocol an account uses.
type Protocol string

const (
	ProtocolIMAP Protocol = "imap"
	ProtocolPOP3 Protocol = "pop3"
)

// ServerConfig holds the connection settings for a single mail server
// endpoint (IMAP, POP3, or SMTP).
type ServerConfig struct {
	// Host is the server hostname.
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the server port as a string (e.g., "993").
	Port string `mapstructure:"port" yaml:"port"`

	// Username for authentication.
	Username string `mapstructure:"username" yaml:"username"`

	// Password for authentication. Left empty when the credential is
	// stored in the system keyring instead of the config file.
	Password string `mapstructure:"password" yaml:"password"`

	// TLS selects implicit TLS; when false, STARTTLS is attempted.
	TLS bool `mapstructure:"tls" yaml:"tls"`
}

// Addr returns the host:port dial address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// AccountConfig holds the configuration for a single mail account.
// It is immutable for the lifetime of a session except for credential
// resolution at startup.
type AccountConfig struct {
	// ID is the stable unique identifier for this account. It namespaces
	// everything the account owns in the local store.
	ID string `mapstructure:"id" yaml:"id"`

	// Name is the user-defined label for the account.
	Name string `mapstructure:"name" yaml:"name"`

	// Email is the account's address, used as the From address when
	// composing.
	Email string `mapstructure:"email" yaml:"email"`

	// Protocol selects the incoming transport ("imap" or "pop3").
	Protocol Protocol `mapstructure:"protocol" yaml:"protocol"`

	// IMAP holds the IMAP endpoint when Protocol is "imap".
	IMAP *ServerConfig `mapstructure:"imap" yaml:"imap,omitempty"`

	// POP3 holds the POP3 endpoint when Protocol is "pop3".
	POP3 *ServerConfig `mapstructure:"pop3" yaml:"pop3,omitempty"`

	// SMTP holds the outgoing endpoint.
	SMTP ServerConfig `mapstructure:"smtp" yaml:"smtp"`

	// SyncIntervalSec is how often (in seconds) the account's folders
	// are synchronized in the background.
	SyncIntervalSec int `mapstructure:"sync_interval_sec" yaml:"sync_interval_sec"`
}

// Incoming returns the server config for the account's incoming protocol.
func (a AccountConfig) Incoming() *ServerConfig {
	if a.Protocol == ProtocolPOP3 {
		return a.POP3
	}
	return a.IMAP
}

// AccountState describes the sync health of an account.
type AccountState int

const (
	StateOffline AccountState = iota
	StateSyncing
	StateSynced
	StateDegraded
)

// String returns the short status label rendered in the UI.
func (s AccountState) String() string {
	switch s {
	case StateSyncing:
		return "syncing"
	case StateSynced:
		return "synced"
	case StateDegraded:
		return "degraded"
	default:
		return "offline"
	}
}

// AccountStatus is the last observed sync status of a single account.
type AccountStatus struct {
	AccountID string
	State     AccountState
	LastSync  time.Time
	Err       error
}
