package server

import (
	"fmt"
	"strings"

	"github.com/postale/postale/consts"
	"github.com/postale/postale/logger"
	"github.com/postale/postale/mailstore"
	"github.com/postale/postale/pkg/metrics"
	"github.com/postale/postale/wire"
)

// handleEnvelope processes one decoded request and writes the response
// on the same connection. Every failure is converted into an ERROR
// envelope for the issuing client; nothing here ever stops the loop.
func (s *Server) handleEnvelope(c *conn, env *wire.Envelope) {
	// An envelope can be queued behind the disconnect of its own
	// connection; once the connection is gone its requests are void.
	if _, ok := s.conns[c.id]; !ok {
		return
	}
	metrics.EnvelopesTotal.WithLabelValues(string(env.Header)).Inc()

	switch env.Header {
	case wire.HeaderAuthRegister:
		s.respond(c, s.handleRegister(c, env))
	case wire.HeaderAuthLogin:
		s.respond(c, s.handleLogin(c, env))
	case wire.HeaderAuthLogout:
		s.respond(c, s.handleLogout(c))
	case wire.HeaderEmailSending:
		s.respond(c, s.handleSend(c, env))
	case wire.HeaderInboxRequest:
		s.respond(c, s.handleInboxList(c))
	case wire.HeaderInboxChoice:
		s.respond(c, s.handleInboxChoice(c, env))
	case wire.HeaderStatsRequest:
		s.respond(c, s.handleStats(c))
	case wire.HeaderBye:
		// Explicit quit: no response is sent.
		s.removeConn(c)
	default:
		logger.Warn("unknown request header", "conn", c.id, "header", string(env.Header))
		s.respond(c, errorEnvelope(consts.ErrUnknownHeader))
	}
}

// session returns the account bound to the connection, or an ERROR
// envelope when there is none. The check runs before any component is
// consulted.
func (s *Server) session(c *conn) (string, *wire.Envelope) {
	account, ok := s.sessions.Username(c.id)
	if !ok {
		return "", errorEnvelope(consts.ErrNoSession)
	}
	return account, nil
}

func (s *Server) handleRegister(c *conn, env *wire.Envelope) *wire.Envelope {
	var payload wire.AuthPayload
	if err := env.DecodePayload(&payload); err != nil {
		return protocolError(err)
	}

	if err := s.auth.Register(payload.Username, payload.Password); err != nil {
		metrics.AuthenticationAttempts.WithLabelValues("register", "failure").Inc()
		logger.Info("registration rejected", "conn", c.id, "username", payload.Username, "error", err)
		return errorEnvelope(err)
	}

	account := strings.ToLower(payload.Username)
	s.sessions.Bind(c.id, account)
	metrics.AuthenticationAttempts.WithLabelValues("register", "success").Inc()
	logger.Info("account registered", "conn", c.id, "account", account)
	return wire.OK()
}

func (s *Server) handleLogin(c *conn, env *wire.Envelope) *wire.Envelope {
	var payload wire.AuthPayload
	if err := env.DecodePayload(&payload); err != nil {
		return protocolError(err)
	}

	if err := s.auth.Login(payload.Username, payload.Password); err != nil {
		metrics.AuthenticationAttempts.WithLabelValues("login", "failure").Inc()
		logger.Info("login rejected", "conn", c.id, "username", payload.Username, "error", err)
		return errorEnvelope(err)
	}

	account := strings.ToLower(payload.Username)
	s.sessions.Bind(c.id, account)
	metrics.AuthenticationAttempts.WithLabelValues("login", "success").Inc()
	logger.Info("user logged in", "conn", c.id, "account", account)
	return wire.OK()
}

func (s *Server) handleLogout(c *conn) *wire.Envelope {
	if !s.sessions.Clear(c.id) {
		return errorEnvelope(consts.ErrNoSession)
	}
	logger.Info("user logged out", "conn", c.id)
	return wire.OK()
}

func (s *Server) handleSend(c *conn, env *wire.Envelope) *wire.Envelope {
	if _, errEnv := s.session(c); errEnv != nil {
		return errEnv
	}

	var payload wire.EmailPayload
	if err := env.DecodePayload(&payload); err != nil {
		return protocolError(err)
	}

	msg := &mailstore.Message{
		Sender:      payload.Sender,
		Destination: payload.Destination,
		Subject:     payload.Subject,
		Date:        payload.Date,
		Content:     payload.Content,
	}
	if err := s.router.Send(msg); err != nil {
		return errorEnvelope(err)
	}
	return wire.OK()
}

func (s *Server) handleInboxList(c *conn) *wire.Envelope {
	account, errEnv := s.session(c)
	if errEnv != nil {
		return errEnv
	}

	messages, err := s.store.List(account)
	if err != nil {
		logger.Error("failed to list mailbox", "account", account, "error", err)
		return errorEnvelope(err)
	}

	summaries := make([]string, 0, len(messages))
	for i, msg := range messages {
		summaries = append(summaries, msg.Summary(i+1))
	}
	return wire.MustEnvelope(wire.HeaderOK, wire.InboxListPayload{EmailList: summaries})
}

func (s *Server) handleInboxChoice(c *conn, env *wire.Envelope) *wire.Envelope {
	account, errEnv := s.session(c)
	if errEnv != nil {
		return errEnv
	}

	var payload wire.ChoicePayload
	if err := env.DecodePayload(&payload); err != nil {
		return protocolError(err)
	}

	msg, err := s.store.Get(account, payload.Choice)
	if err != nil {
		return errorEnvelope(err)
	}
	return wire.MustEnvelope(wire.HeaderOK, wire.EmailPayload{
		Sender:      msg.Sender,
		Destination: msg.Destination,
		Subject:     msg.Subject,
		Date:        msg.Date,
		Content:     msg.Content,
	})
}

func (s *Server) handleStats(c *conn) *wire.Envelope {
	account, errEnv := s.session(c)
	if errEnv != nil {
		return errEnv
	}

	count, size, err := s.store.Stats(account)
	if err != nil {
		logger.Error("failed to compute stats", "account", account, "error", err)
		return errorEnvelope(err)
	}
	return wire.MustEnvelope(wire.HeaderOK, wire.StatsPayload{Count: count, Size: size})
}

func errorEnvelope(err error) *wire.Envelope {
	return wire.Error(err.Error())
}

func protocolError(err error) *wire.Envelope {
	return wire.Error(fmt.Sprintf("%s: %v", consts.ErrUnknownHeader.Error(), err))
}
