//go:build integration

package integration

import (
	"net"
	"testing"
	"time"

	"github.com/amirimatin/go-peerseed/pkg/wire"
)

// startSeedServer runs a minimal peer that completes the version handshake
// and answers getaddr with the given addresses. Returns its host:port.
func startSeedServer(t *testing.T, magic uint32, addrs []wire.NetAddress) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("seed listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSeedConn(conn, magic, addrs)
		}
	}()
	return ln.Addr().String()
}

func serveSeedConn(conn net.Conn, magic uint32, addrs []wire.NetAddress) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

	// client's version
	if _, err := wire.ReadMessage(conn, magic); err != nil {
		return
	}
	ver := &wire.VersionMessage{
		Version:   wire.ProtocolVersion,
		Services:  1,
		Timestamp: time.Now().UTC(),
		Nonce:     0xfeedface,
	}
	if err := wire.WriteMessage(conn, magic, ver); err != nil {
		return
	}
	// client's verack
	if _, err := wire.ReadMessage(conn, magic); err != nil {
		return
	}
	if err := wire.WriteMessage(conn, magic, &wire.VerackMessage{}); err != nil {
		return
	}
	// address request
	msg, err := wire.ReadMessage(conn, magic)
	if err != nil || msg.Command() != wire.CmdGetAddr {
		return
	}
	_ = wire.WriteMessage(conn, magic, &wire.AddrMessage{Addresses: addrs})
	// hold the connection open until the client closes it
	buf := make([]byte, 1)
	_, _ = conn.Read(buf)
}

// startDroppingSeed runs a peer that accepts connections and closes them
// immediately, so the client's handshake fails.
func startDroppingSeed(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("seed listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()
	return ln.Addr().String()
}

// startUnresponsiveSeed runs a peer that accepts connections and never sends
// a byte back.
func startUnresponsiveSeed(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("seed listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		var held []net.Conn
		defer func() {
			for _, c := range held {
				_ = c.Close()
			}
		}()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			held = append(held, conn)
		}
	}()
	return ln.Addr().String()
}

// refusedEndpoint returns an address that refuses connections.
func refusedEndpoint(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func mkNetAddr(last byte) wire.NetAddress {
	return wire.NetAddress{
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Services:  1,
		IP:        net.IPv4(10, 9, 0, last),
		Port:      wire.TestnetPort,
	}
}
