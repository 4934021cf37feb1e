package delivery

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/postale/postale/config"
	"github.com/postale/postale/logger"
)

// RelayHandler is the contract for handing a message to the external
// relay. It either accepts the message or reports one error; the
// router never retries.
type RelayHandler interface {
	SendToExternalRelay(from, to string, messageBytes []byte) error
}

// SMTPRelay relays messages over SMTP with an overall per-attempt time
// bound. While a relay attempt is in flight the dispatcher is blocked,
// so the deadline covers the whole exchange, not individual commands.
type SMTPRelay struct {
	Host        string
	Timeout     time.Duration
	UseTLS      bool
	UseStartTLS bool
	TLSVerify   bool
	Username    string
	Password    string
}

// NewSMTPRelay builds a relay from configuration. It returns nil when
// no relay host is configured.
func NewSMTPRelay(cfg *config.RelayConfig) (*SMTPRelay, error) {
	if !cfg.IsConfigured() {
		return nil, nil
	}
	timeout, err := cfg.GetTimeout()
	if err != nil {
		return nil, err
	}
	return &SMTPRelay{
		Host:        cfg.Host,
		Timeout:     timeout,
		UseTLS:      cfg.TLS,
		UseStartTLS: cfg.UseStartTLS,
		TLSVerify:   cfg.TLSVerify,
		Username:    cfg.Username,
		Password:    cfg.Password,
	}, nil
}

func (r *SMTPRelay) dial() (net.Conn, error) {
	dialer := &net.Dialer{Timeout: r.Timeout}
	if r.UseTLS && !r.UseStartTLS {
		return tls.DialWithDialer(dialer, "tcp", r.Host, r.tlsConfig())
	}
	return dialer.Dial("tcp", r.Host)
}

func (r *SMTPRelay) tlsConfig() *tls.Config {
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: !r.TLSVerify,
	}
}

// SendToExternalRelay performs one SMTP transaction with the relay.
func (r *SMTPRelay) SendToExternalRelay(from, to string, messageBytes []byte) error {
	conn, err := r.dial()
	if err != nil {
		return fmt.Errorf("failed to connect to relay %s: %w", r.Host, err)
	}
	// One deadline bounds the whole exchange.
	if err := conn.SetDeadline(time.Now().Add(r.Timeout)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set relay deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if r.UseStartTLS {
		if err := c.StartTLS(r.tlsConfig()); err != nil {
			return fmt.Errorf("failed to start TLS with relay: %w", err)
		}
	}

	if r.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", r.Username, r.Password)); err != nil {
			return fmt.Errorf("failed to authenticate with relay: %w", err)
		}
	}

	if err := c.Mail(from, nil); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := c.Rcpt(to, nil); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}
	if _, err := wc.Write(messageBytes); err != nil {
		// Close anyway to send the terminating dot.
		_ = wc.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		// The message was already accepted; a failed QUIT is not fatal.
		logger.Warn("relay QUIT failed", "host", r.Host, "error", err)
	}
	return nil
}
