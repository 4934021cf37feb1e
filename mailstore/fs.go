package mailstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/postale/postale/consts"
)

// FSStore keeps mailboxes as plain directories: one directory per
// account under the data root, a fixed-name credential file inside it,
// and message files named "1", "2", "3", ... each holding one JSON
// message object. A sibling "lost" directory collects undeliverable
// internal mail with the same numbering.
//
// The store performs no locking. The server mutates it from a single
// goroutine; concurrent external writers to the same directories are
// not guarded against.
type FSStore struct {
	root string
}

// NewFSStore prepares the data root and the lost mailbox.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", root, err)
	}
	if err := os.MkdirAll(filepath.Join(root, consts.LostMailbox), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lost mailbox: %w", err)
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) accountDir(account string) string {
	return filepath.Join(s.root, strings.ToLower(account))
}

// CreateAccount creates the account directory and writes the credential
// file.
func (s *FSStore) CreateAccount(username, passwordDigest string) error {
	dir := s.accountDir(username)
	if _, err := os.Stat(dir); err == nil {
		return consts.ErrUserExists
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to check account directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create account directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, consts.PasswordFilename), []byte(passwordDigest), 0600); err != nil {
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	return nil
}

// Lookup resolves a username to its canonical lower-cased form.
func (s *FSStore) Lookup(username string) (string, bool) {
	name := strings.ToLower(username)
	if name == consts.LostMailbox {
		return "", false
	}
	info, err := os.Stat(s.accountDir(name))
	if err != nil || !info.IsDir() {
		return "", false
	}
	return name, true
}

// PasswordDigest reads the credential file of the account.
func (s *FSStore) PasswordDigest(username string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.accountDir(username), consts.PasswordFilename))
	if err != nil {
		if os.IsNotExist(err) {
			return "", consts.ErrUnknownUser
		}
		return "", fmt.Errorf("failed to read credential file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// messageCount counts the numbered message files in the account
// directory, skipping the credential file and anything non-numeric.
func (s *FSStore) messageCount(account string) (int, error) {
	entries, err := os.ReadDir(s.accountDir(account))
	if err != nil {
		return 0, fmt.Errorf("failed to read mailbox %s: %w", account, err)
	}
	count := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if n, err := strconv.Atoi(entry.Name()); err == nil && n > 0 {
			count++
		}
	}
	return count, nil
}

// Append writes the message under the next sequence number and fsyncs
// it before returning.
func (s *FSStore) Append(account string, msg *Message) (int, error) {
	count, err := s.messageCount(account)
	if err != nil {
		return 0, err
	}
	seq := count + 1

	data, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal message: %w", err)
	}

	path := filepath.Join(s.accountDir(account), strconv.Itoa(seq))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to create message file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return 0, fmt.Errorf("failed to write message file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return 0, fmt.Errorf("failed to sync message file: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("failed to close message file: %w", err)
	}
	return seq, nil
}

func (s *FSStore) readMessage(account string, seq int) (*Message, error) {
	data, err := os.ReadFile(filepath.Join(s.accountDir(account), strconv.Itoa(seq)))
	if err != nil {
		return nil, fmt.Errorf("failed to read message %d of %s: %w", seq, account, err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode message %d of %s: %w", seq, account, err)
	}
	return &msg, nil
}

// List returns the messages newest first.
func (s *FSStore) List(account string) ([]*Message, error) {
	count, err := s.messageCount(account)
	if err != nil {
		return nil, err
	}
	messages := make([]*Message, 0, count)
	for seq := count; seq >= 1; seq-- {
		msg, err := s.readMessage(account, seq)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Get returns the message at the 1-based index into the newest-first
// order.
func (s *FSStore) Get(account string, index int) (*Message, error) {
	count, err := s.messageCount(account)
	if err != nil {
		return nil, err
	}
	if index < 1 || index > count {
		return nil, consts.ErrMessageNotFound
	}
	// Index 1 is the newest message, which carries the highest sequence.
	return s.readMessage(account, count-index+1)
}

// Stats returns the message count and the summed byte size of every
// file in the account directory. The size includes the credential file
// while the count does not; the mismatch is the documented historical
// behavior of this layout.
func (s *FSStore) Stats(account string) (int, int64, error) {
	entries, err := os.ReadDir(s.accountDir(account))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read mailbox %s: %w", account, err)
	}
	count := 0
	var size int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return 0, 0, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
		}
		size += info.Size()
		if n, err := strconv.Atoi(entry.Name()); err == nil && n > 0 {
			count++
		}
	}
	return count, size, nil
}

func (s *FSStore) Close() error {
	return nil
}
