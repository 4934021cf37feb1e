package server

// SessionTable maps live connection IDs to the account bound to them.
// A connection with no entry is unauthenticated. The table is owned
// exclusively by the dispatcher goroutine, so it needs no locking: it
// must never be touched from reader goroutines.
type SessionTable struct {
	byConn map[string]string
}

// NewSessionTable returns an empty table.
func NewSessionTable() *SessionTable {
	return &SessionTable{byConn: make(map[string]string)}
}

// Bind associates the connection with an account, replacing any
// previous binding.
func (t *SessionTable) Bind(connID, account string) {
	t.byConn[connID] = account
}

// Username returns the account bound to the connection, if any.
func (t *SessionTable) Username(connID string) (string, bool) {
	account, ok := t.byConn[connID]
	return account, ok
}

// Clear removes the connection's binding. It reports whether a binding
// existed.
func (t *SessionTable) Clear(connID string) bool {
	if _, ok := t.byConn[connID]; !ok {
		return false
	}
	delete(t.byConn, connID)
	return true
}

// Len returns the number of bound sessions.
func (t *SessionTable) Len() int {
	return len(t.byConn)
}
