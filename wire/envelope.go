// Package wire defines the framed envelope protocol spoken between the
// postale server and its clients. Each exchange is a single Envelope:
// a header naming the operation plus an optional JSON payload, moved
// over the stream with a 4-byte length prefix.
package wire

import (
	"encoding/json"
	"fmt"
)

// Header tags an envelope with the operation it carries.
type Header string

const (
	HeaderAuthRegister Header = "AUTH_REGISTER"
	HeaderAuthLogin    Header = "AUTH_LOGIN"
	HeaderAuthLogout   Header = "AUTH_LOGOUT"
	HeaderEmailSending Header = "EMAIL_SENDING"
	HeaderInboxRequest Header = "INBOX_READING_REQUEST"
	HeaderInboxChoice  Header = "INBOX_READING_CHOICE"
	HeaderStatsRequest Header = "STATS_REQUEST"
	HeaderBye          Header = "BYE"
	HeaderOK           Header = "OK"
	HeaderError        Header = "ERROR"
)

// Envelope is the unit exchanged per request and per response. Payload
// is the raw JSON of the header-specific payload type, or nil when the
// operation carries none.
type Envelope struct {
	Header  Header          `json:"header"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AuthPayload carries registration and login credentials.
type AuthPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// EmailPayload carries one full message, both on EMAIL_SENDING requests
// and on INBOX_READING_CHOICE responses.
type EmailPayload struct {
	Sender      string `json:"sender"`
	Destination string `json:"destination"`
	Subject     string `json:"subject"`
	Date        string `json:"date"`
	Content     string `json:"content"`
}

// ChoicePayload carries the 1-based index of the message to read,
// counted into the newest-first list the server last returned.
type ChoicePayload struct {
	Choice int `json:"choice"`
}

// InboxListPayload carries one-line summaries, newest first.
type InboxListPayload struct {
	EmailList []string `json:"email_list"`
}

// StatsPayload carries the message count and the total byte size of the
// account's mailbox directory.
type StatsPayload struct {
	Count int   `json:"count"`
	Size  int64 `json:"size"`
}

// ErrorPayload carries the human-readable message of an ERROR envelope.
type ErrorPayload struct {
	ErrorMessage string `json:"error_message"`
}

// NewEnvelope builds an envelope with the given payload marshalled in
// place. A nil payload produces an envelope with no payload at all.
func NewEnvelope(header Header, payload any) (*Envelope, error) {
	env := &Envelope{Header: header}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", header, err)
	}
	env.Payload = raw
	return env, nil
}

// MustEnvelope is NewEnvelope for payload types that cannot fail to
// marshal. It panics on error and is only used with local struct types.
func MustEnvelope(header Header, payload any) *Envelope {
	env, err := NewEnvelope(header, payload)
	if err != nil {
		panic(err)
	}
	return env
}

// OK returns a bare success envelope.
func OK() *Envelope {
	return &Envelope{Header: HeaderOK}
}

// Error returns an ERROR envelope carrying msg.
func Error(msg string) *Envelope {
	return MustEnvelope(HeaderError, ErrorPayload{ErrorMessage: msg})
}

// DecodePayload unmarshals the envelope payload into dst. An absent
// payload is an error: every caller asks only for payloads its header
// requires.
func (e *Envelope) DecodePayload(dst any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s envelope has no payload", e.Header)
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Header, err)
	}
	return nil
}

// ErrorMessage extracts the message of an ERROR envelope, or "" when
// the envelope is not an error or carries none.
func (e *Envelope) ErrorMessage() string {
	if e.Header != HeaderError {
		return ""
	}
	var p ErrorPayload
	if err := e.DecodePayload(&p); err != nil {
		return ""
	}
	return p.ErrorMessage
}
