package server

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/postale/postale/auth"
	"github.com/postale/postale/config"
	"github.com/postale/postale/consts"
	"github.com/postale/postale/delivery"
	"github.com/postale/postale/mailstore"
	"github.com/postale/postale/wire"
)

func startTestServer(t *testing.T) (*Server, mailstore.Store) {
	t.Helper()

	store, err := mailstore.NewFSStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := &config.ServerConfig{
		Addr:        "127.0.0.1:0",
		Hostname:    "test",
		LocalDomain: "campus.example.com",
	}
	srv := New(cfg, store, auth.NewManager(store), delivery.NewRouter(store, nil, cfg.LocalDomain))
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("server did not shut down")
		}
	})
	return srv, store
}

type testClient struct {
	t    *testing.T
	conn net.Conn
}

func dialTestServer(t *testing.T, srv *Server) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn}
}

func (c *testClient) exchange(env *wire.Envelope) *wire.Envelope {
	c.t.Helper()
	require.NoError(c.t, wire.Write(c.conn, env))
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	reply, err := wire.Read(c.conn)
	require.NoError(c.t, err)
	return reply
}

func (c *testClient) register(username, password string) *wire.Envelope {
	return c.exchange(wire.MustEnvelope(wire.HeaderAuthRegister, wire.AuthPayload{Username: username, Password: password}))
}

func (c *testClient) login(username, password string) *wire.Envelope {
	return c.exchange(wire.MustEnvelope(wire.HeaderAuthLogin, wire.AuthPayload{Username: username, Password: password}))
}

func (c *testClient) send(destination, subject string) *wire.Envelope {
	return c.exchange(wire.MustEnvelope(wire.HeaderEmailSending, wire.EmailPayload{
		Sender:      "alice@campus.example.com",
		Destination: destination,
		Subject:     subject,
		Date:        "Mon, 02 Jan 2006 15:04:05 +0000",
		Content:     "hello",
	}))
}

func requireOK(t *testing.T, env *wire.Envelope) {
	t.Helper()
	require.Equal(t, wire.HeaderOK, env.Header, "unexpected error: %s", env.ErrorMessage())
}

func requireError(t *testing.T, env *wire.Envelope, want error) {
	t.Helper()
	require.Equal(t, wire.HeaderError, env.Header)
	require.Contains(t, env.ErrorMessage(), want.Error())
}

func TestEndToEndScenario(t *testing.T) {
	srv, store := startTestServer(t)
	c := dialTestServer(t, srv)

	requireOK(t, c.register("alice", "Passw0rd12"))
	requireError(t, c.register("alice", "Passw0rd12"), consts.ErrUserExists)

	requireOK(t, c.exchange(&wire.Envelope{Header: wire.HeaderAuthLogout}))
	requireError(t, c.login("alice", "wrong"), consts.ErrBadPassword)
	requireError(t, c.login("nobody", "Passw0rd12"), consts.ErrUnknownUser)
	requireOK(t, c.login("alice", "Passw0rd12"))

	// No such local account: archived in lost, reported as failure.
	requireError(t, c.send("bob@campus.example.com", "for bob"), consts.ErrUnknownRecipient)
	count, _, err := store.Stats(consts.LostMailbox)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// Mail to self is delivered.
	requireOK(t, c.send("alice@campus.example.com", "note to self"))
	count, _, err = store.Stats("alice")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestRegisterBindsSession(t *testing.T) {
	srv, _ := startTestServer(t)
	c := dialTestServer(t, srv)

	requireOK(t, c.register("alice", "Passw0rd12"))

	// Stats work right away: registration authenticated the connection.
	reply := c.exchange(&wire.Envelope{Header: wire.HeaderStatsRequest})
	requireOK(t, reply)

	var stats wire.StatsPayload
	require.NoError(t, reply.DecodePayload(&stats))
	require.Equal(t, 0, stats.Count)
	require.Greater(t, stats.Size, int64(0), "credential file counts toward the size")
}

func TestAuthRequiredBeforeMailboxOperations(t *testing.T) {
	srv, _ := startTestServer(t)
	c := dialTestServer(t, srv)

	requireError(t, c.send("x@campus.example.com", "s"), consts.ErrNoSession)
	requireError(t, c.exchange(&wire.Envelope{Header: wire.HeaderInboxRequest}), consts.ErrNoSession)
	requireError(t, c.exchange(wire.MustEnvelope(wire.HeaderInboxChoice, wire.ChoicePayload{Choice: 1})), consts.ErrNoSession)
	requireError(t, c.exchange(&wire.Envelope{Header: wire.HeaderStatsRequest}), consts.ErrNoSession)
	requireError(t, c.exchange(&wire.Envelope{Header: wire.HeaderAuthLogout}), consts.ErrNoSession)
}

func TestInboxReading(t *testing.T) {
	srv, _ := startTestServer(t)
	c := dialTestServer(t, srv)

	requireOK(t, c.register("alice", "Passw0rd12"))
	requireOK(t, c.send("alice@campus.example.com", "first"))
	requireOK(t, c.send("alice@campus.example.com", "second"))

	reply := c.exchange(&wire.Envelope{Header: wire.HeaderInboxRequest})
	requireOK(t, reply)

	var list wire.InboxListPayload
	require.NoError(t, reply.DecodePayload(&list))
	require.Len(t, list.EmailList, 2)
	require.Contains(t, list.EmailList[0], "second", "newest first")
	require.Contains(t, list.EmailList[1], "first")

	reply = c.exchange(wire.MustEnvelope(wire.HeaderInboxChoice, wire.ChoicePayload{Choice: 1}))
	requireOK(t, reply)

	var email wire.EmailPayload
	require.NoError(t, reply.DecodePayload(&email))
	require.Equal(t, "second", email.Subject)
	require.Equal(t, "hello", email.Content)

	requireError(t, c.exchange(wire.MustEnvelope(wire.HeaderInboxChoice, wire.ChoicePayload{Choice: 3})), consts.ErrMessageNotFound)
	requireError(t, c.exchange(wire.MustEnvelope(wire.HeaderInboxChoice, wire.ChoicePayload{Choice: 0})), consts.ErrMessageNotFound)
}

func TestLogoutLifecycle(t *testing.T) {
	srv, _ := startTestServer(t)
	c := dialTestServer(t, srv)

	requireOK(t, c.register("alice", "Passw0rd12"))
	requireOK(t, c.exchange(&wire.Envelope{Header: wire.HeaderAuthLogout}))

	// Logging out twice is an error, but the connection survives it.
	requireError(t, c.exchange(&wire.Envelope{Header: wire.HeaderAuthLogout}), consts.ErrNoSession)
	requireOK(t, c.login("alice", "Passw0rd12"))
}

func TestUnknownHeader(t *testing.T) {
	srv, _ := startTestServer(t)
	c := dialTestServer(t, srv)

	requireError(t, c.exchange(&wire.Envelope{Header: wire.Header("MAKE_COFFEE")}), consts.ErrUnknownHeader)

	// The loop is still alive afterwards.
	requireOK(t, c.register("alice", "Passw0rd12"))
}

func TestByeClosesConnection(t *testing.T) {
	srv, _ := startTestServer(t)
	c := dialTestServer(t, srv)

	requireOK(t, c.register("alice", "Passw0rd12"))
	require.NoError(t, wire.Write(c.conn, &wire.Envelope{Header: wire.HeaderBye}))

	// BYE gets no response; the server closes the stream.
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err := wire.Read(c.conn)
	require.ErrorIs(t, err, io.EOF)
}

func TestImplicitDisconnectClearsSession(t *testing.T) {
	srv, _ := startTestServer(t)
	c := dialTestServer(t, srv)

	requireOK(t, c.register("alice", "Passw0rd12"))
	require.NoError(t, c.conn.Close())

	// A second connection can log into the same account afterwards.
	c2 := dialTestServer(t, srv)
	requireOK(t, c2.login("alice", "Passw0rd12"))
}

func TestConcurrentConnectionsAreIndependent(t *testing.T) {
	srv, _ := startTestServer(t)

	c1 := dialTestServer(t, srv)
	c2 := dialTestServer(t, srv)

	requireOK(t, c1.register("alice", "Passw0rd12"))
	requireOK(t, c2.register("bob", "Passw0rd12"))

	// Alice's session on c1 does not leak to c2 and vice versa.
	requireOK(t, c1.send("bob@campus.example.com", "hi bob"))

	reply := c2.exchange(&wire.Envelope{Header: wire.HeaderInboxRequest})
	requireOK(t, reply)
	var list wire.InboxListPayload
	require.NoError(t, reply.DecodePayload(&list))
	require.Len(t, list.EmailList, 1)
	require.Contains(t, list.EmailList[0], "hi bob")
}
