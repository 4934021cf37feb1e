// Package auth implements account registration and credential
// verification for the postale server. Passwords are stored as
// hex-encoded SHA3-512 digests; verification uses a constant-time
// comparison so timing reveals nothing about the stored digest.
package auth

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/crypto/sha3"

	"github.com/postale/postale/consts"
	"github.com/postale/postale/mailstore"
)

// MinPasswordLength is the shortest acceptable password.
const MinPasswordLength = 10

var usernamePattern = regexp.MustCompile(`^[\w.-]+$`)

// Manager validates credentials against the mailbox store. It binds no
// sessions itself; the connection dispatcher owns those.
type Manager struct {
	store mailstore.Store
}

// NewManager returns a Manager backed by the given store.
func NewManager(store mailstore.Store) *Manager {
	return &Manager{store: store}
}

// HashPassword computes the hex-encoded SHA3-512 digest of a password.
func HashPassword(password string) string {
	digest := sha3.Sum512([]byte(password))
	return hex.EncodeToString(digest[:])
}

// ValidUsername reports whether the username matches the account name
// pattern and is not the reserved lost mailbox.
func ValidUsername(username string) bool {
	if !usernamePattern.MatchString(username) {
		return false
	}
	return !strings.EqualFold(username, consts.LostMailbox)
}

// ValidPassword enforces the password policy: at least
// MinPasswordLength characters with one uppercase letter, one lowercase
// letter and one digit.
func ValidPassword(password string) bool {
	if len(password) < MinPasswordLength {
		return false
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	return hasUpper && hasLower && hasDigit
}

// Register validates the credentials and creates the account. The
// returned errors map onto the protocol's validation and conflict
// responses: consts.ErrInvalidUsername, consts.ErrWeakPassword or
// consts.ErrUserExists.
func (m *Manager) Register(username, password string) error {
	if !ValidUsername(username) {
		return consts.ErrInvalidUsername
	}
	if !ValidPassword(password) {
		return consts.ErrWeakPassword
	}
	if err := m.store.CreateAccount(username, HashPassword(password)); err != nil {
		return err
	}
	return nil
}

// Login verifies the password of an existing account. Unknown accounts
// and wrong passwords fail with distinct errors so the client can tell
// them apart.
func (m *Manager) Login(username, password string) error {
	stored, err := m.store.PasswordDigest(username)
	if err != nil {
		return err
	}
	supplied := HashPassword(password)
	if subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) != 1 {
		return consts.ErrBadPassword
	}
	return nil
}

// CanonicalName resolves a username to the lower-cased account name, or
// fails with consts.ErrUnknownUser.
func (m *Manager) CanonicalName(username string) (string, error) {
	name, ok := m.store.Lookup(username)
	if !ok {
		return "", fmt.Errorf("%w: %s", consts.ErrUnknownUser, username)
	}
	return name, nil
}
