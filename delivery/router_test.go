package delivery

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/postale/postale/consts"
	"github.com/postale/postale/mailstore"
)

type fakeRelay struct {
	calls int
	from  string
	to    string
	raw   []byte
	err   error
}

func (f *fakeRelay) SendToExternalRelay(from, to string, messageBytes []byte) error {
	f.calls++
	f.from = from
	f.to = to
	f.raw = messageBytes
	return f.err
}

func newRouter(t *testing.T, relay RelayHandler) (*Router, mailstore.Store) {
	t.Helper()
	store, err := mailstore.NewFSStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewRouter(store, relay, "Campus.Example.Com"), store
}

func testMessage(destination string) *mailstore.Message {
	return &mailstore.Message{
		Sender:      "alice@campus.example.com",
		Destination: destination,
		Subject:     "greetings",
		Date:        "Mon, 02 Jan 2006 15:04:05 +0000",
		Content:     "hello",
	}
}

func TestIsLocal(t *testing.T) {
	router, _ := newRouter(t, nil)

	require.True(t, router.IsLocal("bob@campus.example.com"))
	require.True(t, router.IsLocal("Bob@CAMPUS.EXAMPLE.COM"))
	require.False(t, router.IsLocal("bob@elsewhere.org"))
	require.False(t, router.IsLocal("bob"))
}

func TestSendLocalDelivers(t *testing.T) {
	relay := &fakeRelay{}
	router, store := newRouter(t, relay)
	require.NoError(t, store.CreateAccount("bob", "digest"))

	require.NoError(t, router.Send(testMessage("Bob@campus.example.com")))
	require.Zero(t, relay.calls, "local mail never touches the relay")

	messages, err := store.List("bob")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, "greetings", messages[0].Subject)
}

func TestSendUnknownLocalRecipientGoesToLost(t *testing.T) {
	router, store := newRouter(t, nil)

	err := router.Send(testMessage("ghost@campus.example.com"))
	require.ErrorIs(t, err, consts.ErrUnknownRecipient)

	// The message is archived even though the send failed.
	count, _, statsErr := store.Stats(consts.LostMailbox)
	require.NoError(t, statsErr)
	require.Equal(t, 1, count)
}

func TestSendExternalRelays(t *testing.T) {
	relay := &fakeRelay{}
	router, _ := newRouter(t, relay)

	require.NoError(t, router.Send(testMessage("carol@elsewhere.org")))
	require.Equal(t, 1, relay.calls)
	require.Equal(t, "alice@campus.example.com", relay.from)
	require.Equal(t, "carol@elsewhere.org", relay.to)
	require.Contains(t, string(relay.raw), "Subject: greetings")
	require.Contains(t, string(relay.raw), "hello")
}

func TestSendExternalRelayFailure(t *testing.T) {
	relay := &fakeRelay{err: errors.New("connection refused")}
	router, _ := newRouter(t, relay)

	err := router.Send(testMessage("carol@elsewhere.org"))
	require.ErrorIs(t, err, consts.ErrRelayFailed)
}

func TestSendExternalWithoutRelay(t *testing.T) {
	router, _ := newRouter(t, nil)

	err := router.Send(testMessage("carol@elsewhere.org"))
	require.ErrorIs(t, err, consts.ErrRelayFailed)
}

func TestBuildRawMessage(t *testing.T) {
	raw, err := BuildRawMessage(testMessage("carol@elsewhere.org"))
	require.NoError(t, err)

	text := string(raw)
	require.Contains(t, text, "From: alice@campus.example.com")
	require.Contains(t, text, "To: carol@elsewhere.org")
	require.Contains(t, text, "Subject: greetings")
	require.Contains(t, text, "Date: Mon, 02 Jan 2006 15:04:05 +0000")
	require.Contains(t, text, "hello")
}
