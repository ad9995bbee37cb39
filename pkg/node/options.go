package node

import (
	"errors"
	"log"
	"time"

	"github.com/amirimatin/go-peerseed/pkg/discovery"
	"github.com/amirimatin/go-peerseed/pkg/hosts"
	"github.com/amirimatin/go-peerseed/pkg/network"
	"github.com/amirimatin/go-peerseed/pkg/transport"
)

// Options carries dependency-injected components and runtime configuration
// used to assemble the node facade. Instances are typically produced from
// bootstrap.Config.
type Options struct {
	// Name identifies this node in status output and logs.
	Name string
	// Discovery resolves the seed endpoints to contact.
	Discovery discovery.Discovery
	// Connector establishes peer sessions.
	Connector network.Connector
	// Handshaker negotiates the protocol on new sessions.
	Handshaker network.Handshaker
	// Registry is the host address book that seeding fills.
	Registry hosts.Registry
	// Logger is used by the node to report operational messages.
	Logger *log.Logger

	// Optional management RPC server (status, seed trigger, address export).
	RPCServer transport.RPCServer

	// AttemptTimeout bounds each per-seed contact attempt.
	AttemptTimeout time.Duration
	// ReseedInterval re-runs seeding periodically; zero disables it.
	ReseedInterval time.Duration
	// SeedOnStart runs an initial seeding pass when the node starts.
	SeedOnStart bool

	// OnSeedComplete is invoked after every run with its verdict.
	OnSeedComplete func(err error)
}

// Validate performs a minimal validation of Options. It does not start any
// network activity and is safe to call before New.
func (o Options) Validate() error {
	if o.Name == "" {
		return errors.New("node: empty Name")
	}
	if o.Discovery == nil {
		return errors.New("node: nil Discovery")
	}
	if o.Connector == nil {
		return errors.New("node: nil Connector")
	}
	if o.Handshaker == nil {
		return errors.New("node: nil Handshaker")
	}
	if o.Registry == nil {
		return errors.New("node: nil Registry")
	}
	if o.Logger == nil {
		return errors.New("node: nil Logger")
	}
	return nil
}
