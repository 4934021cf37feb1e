package delivery

import (
	"bytes"
	"fmt"
	"time"

	"github.com/emersion/go-message"

	"github.com/postale/postale/mailstore"
)

// BuildRawMessage renders a stored message as a plain-text RFC 5322
// email for the external relay. The stored date string is passed
// through when present; otherwise the current time is used.
func BuildRawMessage(msg *mailstore.Message) ([]byte, error) {
	var buf bytes.Buffer

	var header message.Header
	header.Set("From", msg.Sender)
	header.Set("To", msg.Destination)
	header.Set("Subject", msg.Subject)
	header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.Date != "" {
		header.Set("Date", msg.Date)
	} else {
		header.Set("Date", time.Now().Format(time.RFC1123Z))
	}

	w, err := message.CreateWriter(&buf, header)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}
	if _, err := w.Write([]byte(msg.Content)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish message: %w", err)
	}
	return buf.Bytes(), nil
}
