// Package delivery routes outgoing mail. Destinations inside the local
// mail domain are appended directly to the recipient's mailbox; every
// other destination goes out through the external SMTP relay.
package delivery

import (
	"fmt"
	"strings"

	"github.com/postale/postale/consts"
	"github.com/postale/postale/helpers"
	"github.com/postale/postale/logger"
	"github.com/postale/postale/mailstore"
	"github.com/postale/postale/pkg/metrics"
)

// Router decides between internal delivery and external relaying.
type Router struct {
	store       mailstore.Store
	relay       RelayHandler
	localDomain string
}

// NewRouter builds a Router. relay may be nil when no external relay is
// configured; external sends then fail with consts.ErrRelayFailed.
func NewRouter(store mailstore.Store, relay RelayHandler, localDomain string) *Router {
	return &Router{
		store:       store,
		relay:       relay,
		localDomain: strings.ToLower(localDomain),
	}
}

// IsLocal reports whether the destination belongs to the local domain.
func (r *Router) IsLocal(destination string) bool {
	_, domain := helpers.SplitEmailAddress(destination)
	return domain == r.localDomain
}

// Send delivers one message. Internal mail to an unknown recipient is
// archived in the lost mailbox and still reported as a failure to the
// sender with consts.ErrUnknownRecipient. Relay failures come back as
// consts.ErrRelayFailed; no retry is attempted.
func (r *Router) Send(msg *mailstore.Message) error {
	if r.IsLocal(msg.Destination) {
		return r.sendLocal(msg)
	}
	return r.sendExternal(msg)
}

func (r *Router) sendLocal(msg *mailstore.Message) error {
	localPart, _ := helpers.SplitEmailAddress(msg.Destination)
	account, ok := r.store.Lookup(localPart)
	if !ok {
		// Archive the message even though delivery failed.
		if _, err := r.store.Append(consts.LostMailbox, msg); err != nil {
			logger.Error("failed to archive undeliverable message", "destination", msg.Destination, "error", err)
		}
		metrics.DeliveriesTotal.WithLabelValues("internal", "lost").Inc()
		return fmt.Errorf("%w: %s", consts.ErrUnknownRecipient, msg.Destination)
	}

	seq, err := r.store.Append(account, msg)
	if err != nil {
		metrics.DeliveriesTotal.WithLabelValues("internal", "failure").Inc()
		return fmt.Errorf("failed to deliver to %s: %w", account, err)
	}
	metrics.DeliveriesTotal.WithLabelValues("internal", "success").Inc()
	logger.Info("delivered internal message", "account", account, "seq", seq)
	return nil
}

func (r *Router) sendExternal(msg *mailstore.Message) error {
	if r.relay == nil {
		metrics.DeliveriesTotal.WithLabelValues("external", "failure").Inc()
		return fmt.Errorf("%w: no relay configured", consts.ErrRelayFailed)
	}

	raw, err := BuildRawMessage(msg)
	if err != nil {
		metrics.DeliveriesTotal.WithLabelValues("external", "failure").Inc()
		return fmt.Errorf("%w: %v", consts.ErrRelayFailed, err)
	}

	if err := r.relay.SendToExternalRelay(msg.Sender, msg.Destination, raw); err != nil {
		metrics.DeliveriesTotal.WithLabelValues("external", "failure").Inc()
		return fmt.Errorf("%w: %v", consts.ErrRelayFailed, err)
	}
	metrics.DeliveriesTotal.WithLabelValues("external", "success").Inc()
	logger.Info("relayed external message", "destination", msg.Destination)
	return nil
}
