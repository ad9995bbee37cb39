package seeder

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/require"

	"github.com/amirimatin/go-peerseed/pkg/discovery"
	"github.com/amirimatin/go-peerseed/pkg/hosts"
	"github.com/amirimatin/go-peerseed/pkg/network"
	"github.com/amirimatin/go-peerseed/pkg/wire"
)

type fakeSession struct {
	mu      sync.Mutex
	addrFns []func(*wire.AddrMessage)
	stopFns []func(error)
	stopped bool
	reason  error

	sendErr error
	// onSend runs after a successful Send, letting a test script the
	// peer's reaction to the address request.
	onSend func(*fakeSession, wire.Message)
}

func (s *fakeSession) Send(ctx context.Context, msg wire.Message) error {
	s.mu.Lock()
	err := s.sendErr
	fn := s.onSend
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if fn != nil {
		fn(s, msg)
	}
	return nil
}

func (s *fakeSession) Receive(ctx context.Context) (wire.Message, error) {
	return nil, errors.New("fake session has no inbound queue")
}

func (s *fakeSession) Start() {}

func (s *fakeSession) SubscribeAddrs(fn func(*wire.AddrMessage)) {
	s.mu.Lock()
	s.addrFns = append(s.addrFns, fn)
	s.mu.Unlock()
}

func (s *fakeSession) SubscribeStop(fn func(error)) {
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

func (s *fakeSession) Stop(reason error) {
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

func (s *fakeSession) RemoteAddr() string { return "fake:8555" }

func (s *fakeSession) deliverAddrs(msg *wire.AddrMessage) {
	s.mu.Lock()
	fns := append(([]func(*wire.AddrMessage))(nil), s.addrFns...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(msg)
	}
}

type fakeConnector struct {
	connects int32
	connect  func(ctx context.Context, ep discovery.Endpoint) (network.Session, error)
}

func (c *fakeConnector) Connect(ctx context.Context, ep discovery.Endpoint) (network.Session, error) {
	atomic.AddInt32(&c.connects, 1)
	return c.connect(ctx, ep)
}

type fakeHandshaker struct {
	perform func(ctx context.Context, s network.Session, relay bool) error
}

func (h *fakeHandshaker) Perform(ctx context.Context, s network.Session, relay bool) error {
	if h.perform == nil {
		return nil
	}
	return h.perform(ctx, s, relay)
}

func testAddr(last byte) wire.NetAddress {
	return wire.NetAddress{
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Services:  1,
		IP:        net.IPv4(10, 0, 0, last),
		Port:      wire.TestnetPort,
	}
}

func addrBatch(lasts ...byte) *wire.AddrMessage {
	msg := &wire.AddrMessage{}
	for _, l := range lasts {
		msg.Addresses = append(msg.Addresses, testAddr(l))
	}
	return msg
}

// respondingSession answers the address request with the given batch from a
// separate goroutine, the way a real dispatch loop would.
func respondingSession(batch *wire.AddrMessage) *fakeSession {
	return &fakeSession{
		onSend: func(s *fakeSession, msg wire.Message) {
			if _, ok := msg.(*wire.GetAddrMessage); !ok {
				return
			}
			go s.deliverAddrs(batch)
		},
	}
}

func testOptions(c network.Connector, h network.Handshaker, r hosts.Registry) Options {
	return Options{
		Connector:      c,
		Handshaker:     h,
		Registry:       r,
		Logger:         log.New(io.Discard, "", 0),
		AttemptTimeout: 2 * time.Second,
	}
}

func seeds(n int) []discovery.Endpoint {
	out := make([]discovery.Endpoint, n)
	for i := range out {
		out[i] = discovery.Endpoint{Host: "seed.example", Port: 18555 + i}
	}
	return out
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)

	_, err = New(testOptions(&fakeConnector{}, &fakeHandshaker{}, hosts.NewMemory()))
	require.NoError(t, err)
}

func TestEmptySeedsCompletesSynchronously(t *testing.T) {
	conn := &fakeConnector{connect: func(context.Context, discovery.Endpoint) (network.Session, error) {
		return nil, errors.New("must not be called")
	}}
	s, err := New(testOptions(conn, &fakeHandshaker{}, hosts.NewMemory()))
	require.NoError(t, err)

	var calls int32
	var got error = errors.New("sentinel")
	s.Start(context.Background(), nil, func(err error) {
		atomic.AddInt32(&calls, 1)
		got = err
	})

	// done has already run by the time Start returns.
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	require.NoError(t, got)
	require.EqualValues(t, 0, atomic.LoadInt32(&conn.connects))
}

func TestAllSeedsUnreachable(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	conn := &fakeConnector{connect: func(context.Context, discovery.Endpoint) (network.Session, error) {
		return nil, errors.New("connection refused")
	}}
	reg := hosts.NewMemory()
	s, err := New(testOptions(conn, &fakeHandshaker{}, reg))
	require.NoError(t, err)

	err = s.Run(context.Background(), seeds(3))
	require.ErrorIs(t, err, ErrNoNewHosts)
	require.Equal(t, 0, reg.Size())
	require.EqualValues(t, 3, atomic.LoadInt32(&conn.connects))
}

func TestSuccessfulSeedGrowsRegistry(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	conn := &fakeConnector{connect: func(context.Context, discovery.Endpoint) (network.Session, error) {
		return respondingSession(addrBatch(1, 2, 3)), nil
	}}
	reg := hosts.NewMemory()
	s, err := New(testOptions(conn, &fakeHandshaker{}, reg))
	require.NoError(t, err)

	require.NoError(t, s.Run(context.Background(), seeds(1)))
	require.Equal(t, 3, reg.Size())
}

func TestKnownAddressesOnlyIsNotGrowth(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	reg := hosts.NewMemory()
	require.NoError(t, reg.Store(testAddr(1)))
	require.NoError(t, reg.Store(testAddr(2)))

	conn := &fakeConnector{connect: func(context.Context, discovery.Endpoint) (network.Session, error) {
		return respondingSession(addrBatch(1, 2)), nil
	}}
	s, err := New(testOptions(conn, &fakeHandshaker{}, reg))
	require.NoError(t, err)

	err = s.Run(context.Background(), seeds(1))
	require.ErrorIs(t, err, ErrNoNewHosts)
	require.Equal(t, 2, reg.Size())
}

func TestHandshakeFailureStillCompletesRun(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	conn := &fakeConnector{connect: func(context.Context, discovery.Endpoint) (network.Session, error) {
		return &fakeSession{}, nil
	}}
	hs := &fakeHandshaker{perform: func(context.Context, network.Session, bool) error {
		return errors.New("version too old")
	}}
	s, err := New(testOptions(conn, hs, hosts.NewMemory()))
	require.NoError(t, err)

	// Every attempt must report even when the handshake is rejected,
	// otherwise the run would hang waiting for the barrier.
	err = s.Run(context.Background(), seeds(2))
	require.ErrorIs(t, err, ErrNoNewHosts)
}

func TestSendFailureCompletesRun(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	conn := &fakeConnector{connect: func(context.Context, discovery.Endpoint) (network.Session, error) {
		return &fakeSession{sendErr: errors.New("broken pipe")}, nil
	}}
	s, err := New(testOptions(conn, &fakeHandshaker{}, hosts.NewMemory()))
	require.NoError(t, err)

	err = s.Run(context.Background(), seeds(1))
	require.ErrorIs(t, err, ErrNoNewHosts)
}

func TestDuplicateTerminationIsIgnored(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	var sess *fakeSession
	conn := &fakeConnector{connect: func(context.Context, discovery.Endpoint) (network.Session, error) {
		sess = respondingSession(addrBatch(7))
		return sess, nil
	}}
	reg := hosts.NewMemory()
	s, err := New(testOptions(conn, &fakeHandshaker{}, reg))
	require.NoError(t, err)

	var calls int32
	ch := make(chan error, 4)
	s.Start(context.Background(), seeds(1), func(err error) {
		atomic.AddInt32(&calls, 1)
		ch <- err
	})

	select {
	case err := <-ch:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not complete")
	}

	// Late events on an already reported attempt must be swallowed.
	sess.deliverAddrs(addrBatch(8))
	sess.Stop(errors.New("remote reset"))

	time.Sleep(50 * time.Millisecond)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	require.Equal(t, 1, reg.Size())
}

func TestAttemptDeadline(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	// The seed accepts the request but never answers.
	conn := &fakeConnector{connect: func(context.Context, discovery.Endpoint) (network.Session, error) {
		return &fakeSession{}, nil
	}}
	opts := testOptions(conn, &fakeHandshaker{}, hosts.NewMemory())
	opts.AttemptTimeout = 50 * time.Millisecond
	s, err := New(opts)
	require.NoError(t, err)

	start := time.Now()
	err = s.Run(context.Background(), seeds(1))
	require.ErrorIs(t, err, ErrNoNewHosts)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestMixedOutcomes(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	reg := hosts.NewMemory()
	require.NoError(t, reg.Store(testAddr(1)))
	require.NoError(t, reg.Store(testAddr(2)))

	var next int32
	conn := &fakeConnector{connect: func(context.Context, discovery.Endpoint) (network.Session, error) {
		switch atomic.AddInt32(&next, 1) {
		case 1:
			return nil, errors.New("connection refused")
		case 2:
			// Accepts, then drops before the handshake completes.
			s := &fakeSession{}
			s.Stop(errors.New("remote reset"))
			return s, nil
		default:
			// Five addresses, two of which are already known.
			return respondingSession(addrBatch(1, 2, 3, 4, 5)), nil
		}
	}}
	s, err := New(testOptions(conn, &fakeHandshaker{}, reg))
	require.NoError(t, err)

	require.NoError(t, s.Run(context.Background(), seeds(3)))
	require.Equal(t, 5, reg.Size())
}

func TestRunHonorsContextCancellation(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	block := make(chan struct{})
	conn := &fakeConnector{connect: func(ctx context.Context, _ discovery.Endpoint) (network.Session, error) {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil, errors.New("dial interrupted")
	}}
	s, err := New(testOptions(conn, &fakeHandshaker{}, hosts.NewMemory()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err = s.Run(ctx, seeds(1))
	require.ErrorIs(t, err, context.Canceled)
	close(block)
}
