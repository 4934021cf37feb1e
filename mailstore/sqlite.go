package mailstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/postale/postale/consts"
)

// SQLiteStore implements Store over a single SQLite database file. It
// mirrors the filesystem layout's semantics: per-account sequence
// numbers assigned as count+1, newest-first listing, and a size figure
// that counts the stored password digest alongside the message bodies.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	name     TEXT PRIMARY KEY,
	password TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	account     TEXT    NOT NULL,
	seq         INTEGER NOT NULL,
	sender      TEXT    NOT NULL,
	destination TEXT    NOT NULL,
	subject     TEXT    NOT NULL,
	date        TEXT    NOT NULL,
	content     TEXT    NOT NULL,
	size        INTEGER NOT NULL,
	PRIMARY KEY (account, seq)
);
`

// NewSQLiteStore opens (and if needed creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	// The server writes from a single goroutine; one connection keeps
	// the sqlite driver from returning SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateAccount(username, passwordDigest string) error {
	name := strings.ToLower(username)
	var exists bool
	if err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM accounts WHERE name = ?)`, name).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check account: %w", err)
	}
	if exists {
		return consts.ErrUserExists
	}
	if _, err := s.db.Exec(`INSERT INTO accounts (name, password) VALUES (?, ?)`, name, passwordDigest); err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Lookup(username string) (string, bool) {
	name := strings.ToLower(username)
	if name == consts.LostMailbox {
		return "", false
	}
	var exists bool
	if err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM accounts WHERE name = ?)`, name).Scan(&exists); err != nil || !exists {
		return "", false
	}
	return name, true
}

func (s *SQLiteStore) PasswordDigest(username string) (string, error) {
	var digest string
	err := s.db.QueryRow(`SELECT password FROM accounts WHERE name = ?`, strings.ToLower(username)).Scan(&digest)
	if err == sql.ErrNoRows {
		return "", consts.ErrUnknownUser
	}
	if err != nil {
		return "", fmt.Errorf("failed to read credential: %w", err)
	}
	return digest, nil
}

func (s *SQLiteStore) Append(account string, msg *Message) (int, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal message: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM messages WHERE account = ?`, account).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	seq := count + 1

	_, err = tx.Exec(
		`INSERT INTO messages (account, seq, sender, destination, subject, date, content, size)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		account, seq, msg.Sender, msg.Destination, msg.Subject, msg.Date, msg.Content, len(data),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to store message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit message: %w", err)
	}
	return seq, nil
}

func (s *SQLiteStore) List(account string) ([]*Message, error) {
	rows, err := s.db.Query(
		`SELECT sender, destination, subject, date, content
		 FROM messages WHERE account = ? ORDER BY seq DESC`, account)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []*Message{}
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.Sender, &msg.Destination, &msg.Subject, &msg.Date, &msg.Content); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

func (s *SQLiteStore) Get(account string, index int) (*Message, error) {
	if index < 1 {
		return nil, consts.ErrMessageNotFound
	}
	var msg Message
	err := s.db.QueryRow(
		`SELECT sender, destination, subject, date, content
		 FROM messages WHERE account = ? ORDER BY seq DESC LIMIT 1 OFFSET ?`,
		account, index-1).Scan(&msg.Sender, &msg.Destination, &msg.Subject, &msg.Date, &msg.Content)
	if err == sql.ErrNoRows {
		return nil, consts.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	return &msg, nil
}

func (s *SQLiteStore) Stats(account string) (int, int64, error) {
	var count int
	var size int64
	err := s.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(size), 0) FROM messages WHERE account = ?`, account).
		Scan(&count, &size)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to compute stats: %w", err)
	}
	// The reported size also covers the stored credential, matching the
	// filesystem backend.
	var digestLen int64
	err = s.db.QueryRow(
		`SELECT COALESCE(LENGTH(password), 0) FROM accounts WHERE name = ?`, account).Scan(&digestLen)
	if err != nil && err != sql.ErrNoRows {
		return 0, 0, fmt.Errorf("failed to read credential length: %w", err)
	}
	return count, size + digestLen, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
