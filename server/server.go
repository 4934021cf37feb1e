// Package server implements the postale connection multiplexer: it
// owns the listener, the set of live connections and the session
// table, and dispatches decoded envelopes to the auth manager, the
// mailbox store and the delivery router.
//
// Concurrency model: one reader goroutine per connection performs the
// blocking framed read and funnels events into a single channel; one
// dispatcher goroutine consumes that channel and processes exactly one
// envelope at a time. All session and connection state belongs to the
// dispatcher, so it is accessed without locks. While a handler blocks
// on filesystem I/O or on the external relay, no other envelope is
// processed; that stall is part of the design, not an accident.
package server

import (
	"context"
	"errors"
	"net"

	"github.com/google/uuid"

	"github.com/postale/postale/auth"
	"github.com/postale/postale/config"
	"github.com/postale/postale/delivery"
	"github.com/postale/postale/logger"
	"github.com/postale/postale/mailstore"
	"github.com/postale/postale/pkg/metrics"
	"github.com/postale/postale/wire"
)

type conn struct {
	id string
	nc net.Conn
}

type eventKind int

const (
	evConnect eventKind = iota
	evEnvelope
	evDisconnect
)

type event struct {
	kind eventKind
	c    *conn
	env  *wire.Envelope
}

// Server is the campus mail server.
type Server struct {
	addr     string
	hostname string

	store  mailstore.Store
	auth   *auth.Manager
	router *delivery.Router

	sessions *SessionTable
	conns    map[string]*conn
	events   chan event

	listener net.Listener
}

// New assembles a server from its components.
func New(cfg *config.ServerConfig, store mailstore.Store, authManager *auth.Manager, router *delivery.Router) *Server {
	return &Server{
		addr:     cfg.Addr,
		hostname: cfg.Hostname,
		store:    store,
		auth:     authManager,
		router:   router,
		sessions: NewSessionTable(),
		conns:    make(map[string]*conn),
		events:   make(chan event),
	}
}

// Listen binds the configured address.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln
	logger.Info("server listening", "addr", ln.Addr().String(), "hostname", s.hostname)
	return nil
}

// Serve accepts connections and runs the dispatcher until the context
// is cancelled or the listener fails. Listen must have succeeded first.
func (s *Server) Serve(ctx context.Context) error {
	acceptErr := make(chan error, 1)
	go s.acceptLoop(ctx, acceptErr)

	return s.dispatchLoop(ctx, acceptErr)
}

// ListenAndServe is Listen followed by Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Addr returns the bound listener address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) acceptLoop(ctx context.Context, acceptErr chan<- error) {
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				acceptErr <- nil
			} else {
				acceptErr <- err
			}
			return
		}
		c := &conn{id: uuid.New().String(), nc: nc}
		select {
		case s.events <- event{kind: evConnect, c: c}:
		case <-ctx.Done():
			nc.Close()
			acceptErr <- nil
			return
		}
	}
}

// readLoop reads framed envelopes from one connection and funnels them
// to the dispatcher. Any read failure, including a clean EOF, ends the
// connection with a disconnect event.
func (s *Server) readLoop(ctx context.Context, c *conn) {
	for {
		env, err := wire.Read(c.nc)
		if err != nil {
			select {
			case s.events <- event{kind: evDisconnect, c: c}:
			case <-ctx.Done():
			}
			return
		}
		select {
		case s.events <- event{kind: evEnvelope, c: c, env: env}:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) dispatchLoop(ctx context.Context, acceptErr <-chan error) error {
	defer s.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-acceptErr:
			return err

		case ev := <-s.events:
			switch ev.kind {
			case evConnect:
				s.addConn(ctx, ev.c)
			case evDisconnect:
				s.removeConn(ev.c)
			case evEnvelope:
				s.handleEnvelope(ev.c, ev.env)
			}
		}
	}
}

func (s *Server) addConn(ctx context.Context, c *conn) {
	s.conns[c.id] = c
	metrics.ConnectionsTotal.Inc()
	metrics.ConnectionsCurrent.Set(float64(len(s.conns)))
	logger.Debug("connection accepted", "conn", c.id, "remote", c.nc.RemoteAddr().String())
	go s.readLoop(ctx, c)
}

// removeConn drops the connection and its session. It is idempotent:
// a disconnect event may arrive after BYE already cleaned up.
func (s *Server) removeConn(c *conn) {
	if _, ok := s.conns[c.id]; !ok {
		return
	}
	delete(s.conns, c.id)
	s.sessions.Clear(c.id)
	c.nc.Close()
	metrics.ConnectionsCurrent.Set(float64(len(s.conns)))
	logger.Debug("connection closed", "conn", c.id)
}

// respond writes the envelope back on the issuing connection. A write
// failure is treated like a disconnect.
func (s *Server) respond(c *conn, env *wire.Envelope) {
	if _, ok := s.conns[c.id]; !ok {
		return
	}
	if err := wire.Write(c.nc, env); err != nil {
		logger.Warn("failed to write response", "conn", c.id, "error", err)
		s.removeConn(c)
	}
}

func (s *Server) shutdown() {
	if s.listener != nil {
		s.listener.Close()
	}
	for _, c := range s.conns {
		c.nc.Close()
	}
	s.conns = make(map[string]*conn)
	s.sessions = NewSessionTable()
	metrics.ConnectionsCurrent.Set(0)
	logger.Info("server stopped")
}
