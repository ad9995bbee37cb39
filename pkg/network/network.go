package network

import (
	"context"
	"errors"

	"github.com/amirimatin/go-peerseed/pkg/discovery"
	"github.com/amirimatin/go-peerseed/pkg/wire"
)

// ErrChannelStopped is the reason a session reports when it was closed by a
// local Stop request rather than by the remote peer or a transport fault.
var ErrChannelStopped = errors.New("network: channel stopped")

// Session is one established peer connection. Messages may be read
// synchronously with Receive until Start is called; Start hands the connection
// to a background dispatch loop that routes inbound messages to subscribers.
type Session interface {
	// Send writes one message. Safe for concurrent use.
	Send(ctx context.Context, msg wire.Message) error

	// Receive reads the next inbound message. Only valid before Start.
	Receive(ctx context.Context) (wire.Message, error)

	// Start launches the background dispatch loop. Subscriptions registered
	// before Start are guaranteed not to miss messages.
	Start()

	// SubscribeAddrs registers a handler for inbound address-list messages.
	SubscribeAddrs(fn func(*wire.AddrMessage))

	// SubscribeStop registers a one-shot handler invoked with the reason the
	// session ended. If the session has already ended the handler is invoked
	// immediately.
	SubscribeStop(fn func(reason error))

	// Stop closes the session with the given reason. Idempotent; only the
	// first reason is reported to stop subscribers.
	Stop(reason error)

	// RemoteAddr returns the remote endpoint for logging.
	RemoteAddr() string
}

// Connector establishes sessions to seed endpoints.
type Connector interface {
	Connect(ctx context.Context, ep discovery.Endpoint) (Session, error)
}

// Handshaker performs protocol version negotiation on a fresh session. The
// relay flag advertises willingness to receive unsolicited inventory; seeding
// sessions keep it off.
type Handshaker interface {
	Perform(ctx context.Context, s Session, relay bool) error
}
