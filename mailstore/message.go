package mailstore

import "fmt"

// Message is one immutable stored mail. Date is kept as the
// client-supplied string; the store never reinterprets it.
type Message struct {
	Sender      string `json:"sender"`
	Destination string `json:"destination"`
	Subject     string `json:"subject"`
	Date        string `json:"date"`
	Content     string `json:"content"`
}

// Summary renders the one-line inbox listing for the message at the
// given 1-based position in the newest-first order.
func (m *Message) Summary(n int) string {
	return fmt.Sprintf("#%d From: %s Subject: %s Date: %s", n, m.Sender, m.Subject, m.Date)
}
