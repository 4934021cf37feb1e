// Package mailstore provides durable per-account message storage for
// the postale server. Two backends implement the same Store contract: a
// filesystem layout with one directory per account and one file per
// message, and a SQLite database for deployments that prefer a single
// file. The server talks only to the Store interface, so backends can
// be swapped without touching the router or the connection loop.
package mailstore

import (
	"fmt"

	"github.com/postale/postale/config"
)

// Store is the mailbox storage contract. Account names passed in are
// canonical lower-cased usernames; the reserved "lost" mailbox is
// addressed with consts.LostMailbox and supports Append and Stats like
// any account, but is never returned by Lookup.
type Store interface {
	// CreateAccount creates the account and persists its password
	// digest. It fails with consts.ErrUserExists when the account is
	// already present.
	CreateAccount(username, passwordDigest string) error

	// Lookup resolves a username case-insensitively to its canonical
	// form. It reports false for unknown accounts and for the reserved
	// lost mailbox.
	Lookup(username string) (string, bool)

	// PasswordDigest returns the stored digest for the account, or
	// consts.ErrUnknownUser.
	PasswordDigest(username string) (string, error)

	// Append stores the message and returns its sequence number.
	// Sequence numbers start at 1 and are assigned as count+1.
	Append(account string, msg *Message) (int, error)

	// List returns the account's messages newest first. An empty
	// mailbox yields an empty slice, not an error.
	List(account string) ([]*Message, error)

	// Get returns the message at the given 1-based index into the
	// newest-first order, or consts.ErrMessageNotFound when the index
	// is outside [1, count].
	Get(account string, index int) (*Message, error)

	// Stats returns the message count and the total byte size of the
	// account's stored data. The count excludes the credential file;
	// the size includes it.
	Stats(account string) (count int, size int64, err error)

	Close() error
}

// New creates the store selected by the configuration.
func New(cfg *config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "fs":
		return NewFSStore(cfg.DataDir)
	case "sqlite":
		return NewSQLiteStore(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}
