package node

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/require"

	"github.com/amirimatin/go-peerseed/pkg/discovery"
	"github.com/amirimatin/go-peerseed/pkg/discovery/static"
	"github.com/amirimatin/go-peerseed/pkg/hosts"
	"github.com/amirimatin/go-peerseed/pkg/network"
	"github.com/amirimatin/go-peerseed/pkg/seeder"
	"github.com/amirimatin/go-peerseed/pkg/wire"
)

type stubSession struct {
	mu      sync.Mutex
	addrFns []func(*wire.AddrMessage)
	stopFns []func(error)
	stopped bool
	reason  error
	batch   *wire.AddrMessage
}

func (s *stubSession) Send(ctx context.Context, msg wire.Message) error {
	if _, ok := msg.(*wire.GetAddrMessage); ok && s.batch != nil {
		go func() {
			s.mu.Lock()
			fns := append(([]func(*wire.AddrMessage))(nil), s.addrFns...)
			s.mu.Unlock()
			for _, fn := range fns {
				fn(s.batch)
			}
		}()
	}
	return nil
}

func (s *stubSession) Receive(ctx context.Context) (wire.Message, error) {
	return nil, errors.New("no inbound queue")
}

func (s *stubSession) Start() {}

func (s *stubSession) SubscribeAddrs(fn func(*wire.AddrMessage)) {
	s.mu.Lock()
	s.addrFns = append(s.addrFns, fn)
	s.mu.Unlock()
}

func (s *stubSession) SubscribeStop(fn func(error)) {
	s.mu.Lock()
	if s.stopped {
		reason := s.reason
		s.mu.Unlock()
		fn(reason)
		return
	}
	s.stopFns = append(s.stopFns, fn)
	s.mu.Unlock()
}

func (s *stubSession) Stop(reason error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.reason = reason
	fns := s.stopFns
	s.stopFns = nil
	s.mu.Unlock()
	for _, fn := range fns {
		fn(reason)
	}
}

func (s *stubSession) RemoteAddr() string { return "stub:18555" }

type stubConnector struct {
	connect func(ctx context.Context, ep discovery.Endpoint) (network.Session, error)
}

func (c *stubConnector) Connect(ctx context.Context, ep discovery.Endpoint) (network.Session, error) {
	return c.connect(ctx, ep)
}

type stubHandshaker struct{}

func (stubHandshaker) Perform(context.Context, network.Session, bool) error { return nil }

func stubBatch(n int) *wire.AddrMessage {
	msg := &wire.AddrMessage{}
	for i := 0; i < n; i++ {
		msg.Addresses = append(msg.Addresses, wire.NetAddress{
			Timestamp: time.Unix(1700000000, 0).UTC(),
			Services:  1,
			IP:        net.IPv4(10, 1, 0, byte(i+1)),
			Port:      wire.TestnetPort,
		})
	}
	return msg
}

func testNodeOptions(connect func(ctx context.Context, ep discovery.Endpoint) (network.Session, error)) Options {
	return Options{
		Name:       "test-node",
		Discovery:  static.New(discovery.Endpoint{Host: "seed.example", Port: 18555}),
		Connector:  &stubConnector{connect: connect},
		Handshaker: stubHandshaker{},
		Registry:   hosts.NewMemory(),
		Logger:     log.New(io.Discard, "", 0),
	}
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestSeedNowRequiresStart(t *testing.T) {
	n, err := New(testNodeOptions(func(context.Context, discovery.Endpoint) (network.Session, error) {
		return &stubSession{batch: stubBatch(1)}, nil
	}))
	require.NoError(t, err)
	require.ErrorIs(t, n.SeedNow(context.Background()), ErrNotStarted)
}

func TestSeedNowGrowsRegistryAndRecordsRun(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	opts := testNodeOptions(func(context.Context, discovery.Endpoint) (network.Session, error) {
		return &stubSession{batch: stubBatch(3)}, nil
	})
	n, err := New(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, n.Start(ctx))
	events := n.Subscribe(ctx)

	require.NoError(t, n.SeedNow(ctx))

	st, err := n.Status(ctx)
	require.NoError(t, err)
	require.True(t, st.Healthy)
	require.Equal(t, 3, st.KnownHosts)
	require.Equal(t, "ok", st.LastResult)
	require.Equal(t, 3, st.LastNewHosts)
	require.False(t, st.LastRunAt.IsZero())

	var types []EventType
	for len(types) < 2 {
		select {
		case ev := <-events:
			types = append(types, ev.Type)
		case <-time.After(2 * time.Second):
			t.Fatal("missing seed run events")
		}
	}
	require.Equal(t, []EventType{EventSeedRunStarted, EventSeedRunCompleted}, types)

	require.NoError(t, n.Stop(ctx))
	require.ErrorIs(t, n.SeedNow(ctx), ErrStopped)
}

func TestSeedNowFailureIsRecorded(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	opts := testNodeOptions(func(context.Context, discovery.Endpoint) (network.Session, error) {
		return nil, errors.New("connection refused")
	})
	n, err := New(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, n.Start(ctx))
	defer n.Close()

	require.ErrorIs(t, n.SeedNow(ctx), seeder.ErrNoNewHosts)
	st, err := n.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, "no_new_hosts", st.LastResult)
	require.NotEmpty(t, st.Warnings)
}

func TestConcurrentSeedNowIsRejected(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	opts := testNodeOptions(func(ctx context.Context, _ discovery.Endpoint) (network.Session, error) {
		once.Do(func() { close(entered) })
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, errors.New("dial interrupted")
	})
	n, err := New(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, n.Start(ctx))
	defer n.Close()

	done := make(chan error, 1)
	go func() { done <- n.SeedNow(ctx) }()
	<-entered

	require.ErrorIs(t, n.SeedNow(ctx), ErrSeedInProgress)

	close(release)
	require.ErrorIs(t, <-done, seeder.ErrNoNewHosts)
}

func TestStartIsIdempotent(t *testing.T) {
	n, err := New(testNodeOptions(func(context.Context, discovery.Endpoint) (network.Session, error) {
		return nil, errors.New("unused")
	}))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, n.Start(ctx))
	require.NoError(t, n.Start(ctx))
	require.NoError(t, n.Stop(ctx))
	require.NoError(t, n.Stop(ctx))
}
