// Package tcp provides the TCP-backed connector and peer session used to
// contact seeds over the raw peer wire protocol.
package tcp

import (
	"context"
	"log"
	"net"

	"github.com/amirimatin/go-peerseed/pkg/discovery"
	"github.com/amirimatin/go-peerseed/pkg/network"
)

// Connector dials seed endpoints over TCP.
type Connector struct {
	magic  uint32
	logger *log.Logger
	dialer net.Dialer
}

// NewConnector returns a connector speaking the wire network identified by
// magic. Sessions are returned un-started; the caller registers subscriptions
// and performs the handshake before calling Start.
func NewConnector(magic uint32, logger *log.Logger) *Connector {
	if logger == nil {
		logger = log.Default()
	}
	return &Connector{magic: magic, logger: logger}
}

func (c *Connector) Connect(ctx context.Context, ep discovery.Endpoint) (network.Session, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", ep.String())
	if err != nil {
		return nil, err
	}
	return newSession(conn, c.magic, c.logger), nil
}

// NewSession wraps an already established connection in a Session. Useful for
// callers that manage their own dialing and for tests.
func NewSession(conn net.Conn, magic uint32, logger *log.Logger) network.Session {
	if logger == nil {
		logger = log.Default()
	}
	return newSession(conn, magic, logger)
}

var _ network.Connector = (*Connector)(nil)
