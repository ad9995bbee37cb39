// Package handshake negotiates the protocol version with a freshly connected
// peer. The exchange runs synchronously on the session before its dispatch
// loop starts, so no handshake message can race a subscriber registration.
package handshake

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/amirimatin/go-peerseed/pkg/network"
	"github.com/amirimatin/go-peerseed/pkg/wire"
)

var (
	ErrSelfConnection  = errors.New("handshake: connected to self")
	ErrVersionTooOld   = errors.New("handshake: peer protocol version too old")
	ErrUnexpectedReply = errors.New("handshake: unexpected message")
)

// MinProtocolVersion is the oldest peer version we will talk to.
const MinProtocolVersion uint32 = 60001

// Handshake implements network.Handshaker.
type Handshake struct {
	services uint64
	nonce    uint64
	logger   *log.Logger
}

// New constructs a Handshake advertising the given service bits. The nonce is
// randomized once per instance and used to detect self-connections.
func New(services uint64, logger *log.Logger) *Handshake {
	if logger == nil {
		logger = log.Default()
	}
	return &Handshake{services: services, nonce: randomNonce(), logger: logger}
}

// Perform exchanges version/verack with the peer: send our version, expect
// the peer's version, acknowledge it, then expect the peer's verack.
func (h *Handshake) Perform(ctx context.Context, s network.Session, relay bool) error {
	local := &wire.VersionMessage{
		Version:   wire.ProtocolVersion,
		Services:  h.services,
		Timestamp: time.Now().UTC(),
		Nonce:     h.nonce,
		Relay:     relay,
	}
	if err := s.Send(ctx, local); err != nil {
		return fmt.Errorf("handshake: send version: %w", err)
	}

	msg, err := s.Receive(ctx)
	if err != nil {
		return fmt.Errorf("handshake: await version: %w", err)
	}
	remote, ok := msg.(*wire.VersionMessage)
	if !ok {
		return fmt.Errorf("%w: got %s, want %s", ErrUnexpectedReply, msg.Command(), wire.CmdVersion)
	}
	if remote.Nonce == h.nonce {
		return ErrSelfConnection
	}
	if remote.Version < MinProtocolVersion {
		return fmt.Errorf("%w: %d < %d", ErrVersionTooOld, remote.Version, MinProtocolVersion)
	}
	if err := s.Send(ctx, &wire.VerackMessage{}); err != nil {
		return fmt.Errorf("handshake: send verack: %w", err)
	}

	msg, err = s.Receive(ctx)
	if err != nil {
		return fmt.Errorf("handshake: await verack: %w", err)
	}
	if _, ok := msg.(*wire.VerackMessage); !ok {
		return fmt.Errorf("%w: got %s, want %s", ErrUnexpectedReply, msg.Command(), wire.CmdVerack)
	}
	return nil
}

func randomNonce() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

var _ network.Handshaker = (*Handshake)(nil)
