package tcp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/amirimatin/go-peerseed/pkg/network"
	"github.com/amirimatin/go-peerseed/pkg/wire"
)

const testMagic = wire.TestnetMagic

func TestDispatchRoutesAddrMessages(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	sess := newSession(client, testMagic, nil)
	got := make(chan *wire.AddrMessage, 1)
	sess.SubscribeAddrs(func(m *wire.AddrMessage) { got <- m })
	sess.Start()

	msg := &wire.AddrMessage{Addresses: []wire.NetAddress{
		{Timestamp: time.Now(), IP: net.IPv4(10, 0, 0, 9).To16(), Port: 8555},
	}}
	require.NoError(t, wire.WriteMessage(server, testMagic, msg))

	select {
	case m := <-got:
		require.Len(t, m.Addresses, 1)
		require.Equal(t, "10.0.0.9:8555", m.Addresses[0].Key())
	case <-time.After(5 * time.Second):
		t.Fatal("addr message not dispatched")
	}
}

func TestStopNotifiesOnceWithFirstReason(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	sess := newSession(client, testMagic, nil)
	reasons := make(chan error, 2)
	sess.SubscribeStop(func(reason error) { reasons <- reason })

	sess.Stop(network.ErrChannelStopped)
	sess.Stop(context.Canceled)

	select {
	case r := <-reasons:
		require.ErrorIs(t, r, network.ErrChannelStopped)
	case <-time.After(time.Second):
		t.Fatal("stop handler not invoked")
	}
	select {
	case r := <-reasons:
		t.Fatalf("stop handler invoked twice: %v", r)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeAfterStopFiresImmediately(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	sess := newSession(client, testMagic, nil)
	sess.Stop(network.ErrChannelStopped)

	fired := make(chan error, 1)
	sess.SubscribeStop(func(reason error) { fired <- reason })
	select {
	case r := <-fired:
		require.ErrorIs(t, r, network.ErrChannelStopped)
	case <-time.After(time.Second):
		t.Fatal("late subscriber not notified")
	}
}

func TestRemoteCloseStopsSession(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	sess := newSession(client, testMagic, nil)
	reasons := make(chan error, 1)
	sess.SubscribeStop(func(reason error) { reasons <- reason })
	sess.Start()

	_ = server.Close()

	select {
	case r := <-reasons:
		require.Error(t, r)
		require.NotErrorIs(t, r, network.ErrChannelStopped)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop on remote close")
	}
}
